package core

import (
	"encoding/hex"
	"fmt"

	"spacekit/core/types"
	"spacekit/merkle"
	"spacekit/verkle"
)

// VerificationResult reports the outcome of stateless block verification.
// When Valid is false, Reason names the first check that failed.
type VerificationResult struct {
	Valid  bool
	Reason string
}

func invalid(format string, args ...any) VerificationResult {
	return VerificationResult{Reason: fmt.Sprintf(format, args...)}
}

// VerifyBlockStateless checks a sealed block using only the block itself: the
// block hash, both Merkle roots, header/body consistency, and the Verkle
// witness against the claimed quantum state roots. No local state is needed.
func VerifyBlockStateless(block *types.Block) VerificationResult {
	if block == nil {
		return invalid("nil block")
	}
	if block.Header == nil {
		return invalid("missing header")
	}

	hash, err := block.ComputeHash()
	if err != nil {
		return invalid("hash block: %v", err)
	}
	if hash != block.BlockHash {
		return invalid("block hash mismatch: sealed %s, computed %s", block.BlockHash, hash)
	}
	if block.Header.BlockHash != block.BlockHash {
		return invalid("header hash %s disagrees with block hash %s", block.Header.BlockHash, block.BlockHash)
	}

	h := block.Header
	if h.Height != block.Height {
		return invalid("header height %d disagrees with block height %d", h.Height, block.Height)
	}
	if h.PrevHash != block.PrevHash {
		return invalid("header prev hash disagrees with block prev hash")
	}
	if block.Height == 1 && block.PrevHash != types.GenesisParentHash {
		return invalid("first block must carry the genesis parent sentinel")
	}
	if h.TxCount != len(block.Transactions) || h.ReceiptCount != len(block.Receipts) {
		return invalid("header counts (%d txs, %d receipts) disagree with body (%d, %d)",
			h.TxCount, h.ReceiptCount, len(block.Transactions), len(block.Receipts))
	}
	if len(block.Transactions) != len(block.Receipts) {
		return invalid("body has %d transactions but %d receipts", len(block.Transactions), len(block.Receipts))
	}

	txLeaves := make([][]byte, len(block.Transactions))
	for i, tx := range block.Transactions {
		leaf, err := tx.CanonicalBytes()
		if err != nil {
			return invalid("canonicalize tx %s: %v", tx.ID, err)
		}
		txLeaves[i] = leaf
	}
	txRoot := merkle.Root(txLeaves)
	if hex.EncodeToString(txRoot[:]) != block.TxRoot || block.TxRoot != h.TxRoot {
		return invalid("transaction root mismatch")
	}

	receiptLeaves := make([][]byte, len(block.Receipts))
	for i, receipt := range block.Receipts {
		receiptLeaves[i] = receipt.CanonicalBytes()
	}
	receiptRoot := merkle.Root(receiptLeaves)
	if hex.EncodeToString(receiptRoot[:]) != block.ReceiptRoot || block.ReceiptRoot != h.ReceiptRoot {
		return invalid("receipt root mismatch")
	}

	if block.StateRoot != h.StateRoot || block.QuantumStateRoot != h.QuantumStateRoot {
		return invalid("header state roots disagree with block state roots")
	}

	if block.Witness == nil {
		return invalid("missing state witness")
	}
	if err := verkle.VerifyWitness(block.Witness); err != nil {
		return invalid("witness verification failed: %v", err)
	}
	if block.Witness.PostStateRoot != block.QuantumStateRoot {
		return invalid("witness post-state root %s disagrees with block quantum state root %s",
			block.Witness.PostStateRoot, block.QuantumStateRoot)
	}

	return VerificationResult{Valid: true}
}

// VerifyBlockStateless additionally pins the block to this engine's genesis
// configuration.
func (e *Engine) VerifyBlockStateless(block *types.Block) VerificationResult {
	result := VerifyBlockStateless(block)
	if !result.Valid {
		return result
	}
	if block.Header.GenesisHash != e.genesisHash {
		return invalid("block genesis hash %s disagrees with chain genesis %s",
			block.Header.GenesisHash, e.genesisHash)
	}
	return result
}
