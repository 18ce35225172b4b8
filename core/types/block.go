package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math/big"

	"spacekit/verkle"
)

// GenesisParentHash is the sentinel previous-hash carried by the first block.
const GenesisParentHash = "genesis"

// BlockHeader is the audit-bearing summary of a block. Headers are what
// light clients retain; bodies may be discarded once archived.
type BlockHeader struct {
	Version          uint32   `json:"version"`
	ChainID          string   `json:"chainId"`
	Height           uint64   `json:"height"`
	Timestamp        int64    `json:"timestamp"`
	PrevHash         string   `json:"prevHash"`
	BlockHash        string   `json:"blockHash"`
	TxRoot           string   `json:"txRoot"`
	ReceiptRoot      string   `json:"receiptRoot"`
	StateRoot        string   `json:"stateRoot"`
	QuantumStateRoot string   `json:"quantumStateRoot,omitempty"`
	TxCount          int      `json:"txCount"`
	ReceiptCount     int      `json:"receiptCount"`
	ABIVersion       string   `json:"abiVersion"`
	GasLimit         uint64   `json:"gasLimit"`
	GasUsed          uint64   `json:"gasUsed"`
	GenesisHash      string   `json:"genesisHash,omitempty"`
	TotalSupply      *big.Int `json:"totalSupply,omitempty"`
	SupplyCap        *big.Int `json:"supplyCap,omitempty"`
}

// Block is one sealed batch of executed transactions together with every
// commitment a remote verifier needs.
type Block struct {
	Height           uint64          `json:"height"`
	PrevHash         string          `json:"prevHash"`
	BlockHash        string          `json:"blockHash"`
	StateRoot        string          `json:"stateRoot"`
	QuantumStateRoot string          `json:"quantumStateRoot"`
	TxRoot           string          `json:"txRoot"`
	ReceiptRoot      string          `json:"receiptRoot"`
	Timestamp        int64           `json:"timestamp"`
	Transactions     []*Transaction  `json:"transactions"`
	Receipts         []*Receipt      `json:"receipts"`
	Header           *BlockHeader    `json:"header"`
	Witness          *verkle.Witness `json:"witness,omitempty"`
}

// ComputeHash hashes the full serialized block payload with the hash fields
// cleared. Called exactly once at seal time via Seal.
func (b *Block) ComputeHash() (string, error) {
	clone := *b
	clone.BlockHash = ""
	if b.Header != nil {
		header := *b.Header
		header.BlockHash = ""
		clone.Header = &header
	}
	payload, err := json.Marshal(&clone)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Seal computes and stamps the block hash on the block and its header.
func (b *Block) Seal() error {
	hash, err := b.ComputeHash()
	if err != nil {
		return err
	}
	b.BlockHash = hash
	if b.Header != nil {
		b.Header.BlockHash = hash
	}
	return nil
}
