package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"lukechampine.com/blake3"
)

// Receipt is the immutable record of one transaction's execution outcome.
// Status <= 0 denotes contract-reported failure; a positive status is the
// byte length of the successful result.
type Receipt struct {
	TxID        string  `json:"txId"`
	ContractID  string  `json:"contractId"`
	Status      int32   `json:"status"`
	Result      []byte  `json:"result"`
	Events      []Event `json:"events"`
	Timestamp   int64   `json:"timestamp"`
	GasUsed     uint64  `json:"gasUsed"`
	ReceiptHash string  `json:"receiptHash"`
}

// NewReceipt builds a receipt and stamps its hash. The hash is computed
// exactly once here; the receipt must not be mutated afterwards.
func NewReceipt(txID, contractID string, status int32, result []byte, events []Event, timestamp int64, gasUsed uint64) *Receipt {
	r := &Receipt{
		TxID:       txID,
		ContractID: contractID,
		Status:     status,
		Result:     result,
		Events:     events,
		Timestamp:  timestamp,
		GasUsed:    gasUsed,
	}
	r.ReceiptHash = r.computeHash()
	return r
}

// Failed reports whether the contract reported failure.
func (r *Receipt) Failed() bool {
	return r.Status <= 0
}

// CanonicalBytes is the serialized form committed to by the receipt Merkle
// root: the canonical fields pipe-delimited, result and event payloads hex
// encoded.
func (r *Receipt) CanonicalBytes() []byte {
	parts := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		parts = append(parts, e.canonical())
	}
	msg := fmt.Sprintf("%s|%s|%d|%s|%d|%d|%s",
		r.TxID, r.ContractID, r.Status, hex.EncodeToString(r.Result),
		r.GasUsed, r.Timestamp, strings.Join(parts, ";"))
	return []byte(msg)
}

func (r *Receipt) computeHash() string {
	sum := blake3.Sum256(r.CanonicalBytes())
	return hex.EncodeToString(sum[:])
}
