package types

import (
	"crypto/sha256"
	"encoding/json"
	"math/big"

	"spacekit/crypto"
)

// Transaction is one contract invocation admitted by the engine. It is
// immutable once created; the ID is engine-generated and unique.
type Transaction struct {
	ID         string                   `json:"id"`
	ContractID string                   `json:"contractId"`
	Caller     string                   `json:"callerIdentity"`
	Input      []byte                   `json:"input"`
	Value      *big.Int                 `json:"value"`
	Timestamp  int64                    `json:"timestamp"`
	Nonce      uint64                   `json:"nonce"`
	Signature  *crypto.SignaturePayload `json:"signature,omitempty"`
}

// CanonicalBytes is the serialized form committed to by the transaction
// Merkle root. Field order is fixed by the struct definition.
func (tx *Transaction) CanonicalBytes() ([]byte, error) {
	return json.Marshal(tx)
}

// Hash returns the SHA-256 hash of the canonical transaction bytes.
func (tx *Transaction) Hash() ([]byte, error) {
	b, err := tx.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(b)
	return sum[:], nil
}

// SigningMessage is the canonical message a submitter signs for this
// transaction's fields.
func (tx *Transaction) SigningMessage() []byte {
	return crypto.TransactionMessage(tx.ContractID, tx.Caller, tx.Input, tx.Value, tx.Nonce, tx.Timestamp)
}
