package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"spacekit/core/genesis"
	"spacekit/core/types"
	"spacekit/crypto"
	"spacekit/merkle"
	"spacekit/storage"
)

// Height returns the latest sealed height.
func (e *Engine) Height() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.height
}

// GenesisHash returns the canonical hash of the chain configuration.
func (e *Engine) GenesisHash() string {
	return e.genesisHash
}

// GetBlock returns the block sealed at the given height, from memory when
// the body is still in the window, otherwise from the archive.
func (e *Engine) GetBlock(height uint64) (*types.Block, error) {
	e.mu.Lock()
	block, ok := e.recent[height]
	e.mu.Unlock()
	if ok {
		return block, nil
	}
	if e.archive != nil {
		block, err := e.archive.GetByHeight(height)
		if err == nil {
			return block, nil
		}
	}
	return nil, fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
}

// GetBlockByHash returns the block with the given hash.
func (e *Engine) GetBlockByHash(hash string) (*types.Block, error) {
	e.mu.Lock()
	height, ok := e.byHash[hash]
	e.mu.Unlock()
	if ok {
		return e.GetBlock(height)
	}
	if e.archive != nil {
		block, err := e.archive.GetByHash(hash)
		if err == nil {
			return block, nil
		}
	}
	return nil, fmt.Errorf("%w: hash %s", ErrBlockNotFound, hash)
}

// GetHeader returns the retained header for a height. Headers outlive the
// in-memory body window.
func (e *Engine) GetHeader(height uint64) (*types.BlockHeader, error) {
	e.mu.Lock()
	header, ok := e.headers[height]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
	}
	return header, nil
}

// GetTransaction finds a transaction by ID, pending or mined.
func (e *Engine) GetTransaction(txID string) (*types.Transaction, error) {
	e.mu.Lock()
	if entry, ok := e.pendingByID[txID]; ok {
		e.mu.Unlock()
		return entry.Tx, nil
	}
	height, mined := e.txHeight[txID]
	e.mu.Unlock()
	if !mined {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, txID)
	}
	block, err := e.GetBlock(height)
	if err != nil {
		return nil, err
	}
	for _, tx := range block.Transactions {
		if tx.ID == txID {
			return tx, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, txID)
}

// GetReceipt finds a receipt by transaction ID, pending or mined.
func (e *Engine) GetReceipt(txID string) (*types.Receipt, error) {
	e.mu.Lock()
	if entry, ok := e.pendingByID[txID]; ok {
		e.mu.Unlock()
		return entry.Receipt, nil
	}
	height, mined := e.txHeight[txID]
	e.mu.Unlock()
	if !mined {
		return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, txID)
	}
	block, err := e.GetBlock(height)
	if err != nil {
		return nil, err
	}
	for _, receipt := range block.Receipts {
		if receipt.TxID == txID {
			return receipt, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, txID)
}

// BalanceOf returns the native balance of an identity.
func (e *Engine) BalanceOf(identity string) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balanceOf(identity)
}

func (e *Engine) balanceOf(identity string) (*big.Int, error) {
	raw, err := e.state.Get(e.genesis.BalanceKey(identity))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return parseAmount(raw), nil
}

// NonceOf returns the next expected nonce for an identity.
func (e *Engine) NonceOf(identity string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nonceOf(identity)
}

func (e *Engine) nonceOf(identity string) (uint64, error) {
	raw, err := e.state.Get(e.genesis.NonceKey(identity))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return parseAmount(raw).Uint64(), nil
}

// CurrentSupply returns the circulating native supply.
func (e *Engine) CurrentSupply() (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentSupply()
}

func (e *Engine) currentSupply() (*big.Int, error) {
	raw, err := e.state.Get(e.genesis.SupplyKey())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return parseAmount(raw), nil
}

// EstimateFee prices a transaction by input size without executing it.
func (e *Engine) EstimateFee(inputLen int) *big.Int {
	return e.fees.EstimateFee(inputLen)
}

// EstimateGas returns the intrinsic gas for an input size.
func (e *Engine) EstimateGas(inputLen int) uint64 {
	return e.gas.IntrinsicGas(inputLen)
}

// ContractMeta returns the deployment record for a contract.
func (e *Engine) ContractMeta(contractID string) (owner, bytecodeHash string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	raw, err := e.state.Get(contractMetaKey + contractID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownContract, contractID)
	}
	if err != nil {
		return "", "", err
	}
	var meta contractMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return "", "", err
	}
	return meta.Owner, meta.BytecodeHash, nil
}

// TransactionProof builds a Merkle inclusion proof for a mined transaction
// against its block's transaction root.
func (e *Engine) TransactionProof(height uint64, txID string) ([]merkle.ProofStep, error) {
	block, err := e.GetBlock(height)
	if err != nil {
		return nil, err
	}
	leaves := make([][]byte, len(block.Transactions))
	index := -1
	for i, tx := range block.Transactions {
		leaf, err := tx.CanonicalBytes()
		if err != nil {
			return nil, err
		}
		leaves[i] = leaf
		if tx.ID == txID {
			index = i
		}
	}
	if index < 0 {
		return nil, fmt.Errorf("%w: %s in block %d", ErrTransactionNotFound, txID, height)
	}
	return merkle.Prove(leaves, index)
}

// ReceiptProof builds a Merkle inclusion proof for a mined receipt against
// its block's receipt root.
func (e *Engine) ReceiptProof(height uint64, txID string) ([]merkle.ProofStep, error) {
	block, err := e.GetBlock(height)
	if err != nil {
		return nil, err
	}
	leaves := make([][]byte, len(block.Receipts))
	index := -1
	for i, receipt := range block.Receipts {
		leaves[i] = receipt.CanonicalBytes()
		if receipt.TxID == txID {
			index = i
		}
	}
	if index < 0 {
		return nil, fmt.Errorf("%w: %s in block %d", ErrReceiptNotFound, txID, height)
	}
	return merkle.Prove(leaves, index)
}

// RegisterDid registers a decentralized identifier under the engine lock so
// the write lands in the current block's access set.
func (e *Engine) RegisterDid(ctx context.Context, id, publicKeyHex, algorithm string) (*genesis.DidDocument, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = ctx
	return e.dids.Register(id, publicKeyHex, algorithm)
}

// UpdateDid rotates a DID key under the engine lock.
func (e *Engine) UpdateDid(ctx context.Context, id, newKeyHex, newAlgorithm string, sig *crypto.SignaturePayload) (*genesis.DidDocument, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dids.Update(ctx, id, newKeyHex, newAlgorithm, sig)
}

// DeactivateDid retires a DID under the engine lock.
func (e *Engine) DeactivateDid(ctx context.Context, id string, sig *crypto.SignaturePayload) (*genesis.DidDocument, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dids.Deactivate(ctx, id, sig)
}

// ResolveDid returns the document for a registered identifier.
func (e *Engine) ResolveDid(id string) (*genesis.DidDocument, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dids.Resolve(id)
}

// ResolveDidByAddress returns the document owning a bech32 account address.
func (e *Engine) ResolveDidByAddress(address string) (*genesis.DidDocument, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dids.ResolveByAddress(address)
}
