// Package core implements the single-sequencer execution engine: contract
// deployment, signed transaction admission, block sealing with Merkle and
// Verkle commitments, and stateless block verification.
package core

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"spacekit/core/genesis"
	"spacekit/core/types"
	"spacekit/crypto"
	"spacekit/mempool"
	"spacekit/merkle"
	"spacekit/observability/metrics"
	"spacekit/runtime"
	"spacekit/storage"
	"spacekit/storage/blockstore"
	"spacekit/verkle"
)

// ABIVersion identifies the host call convention stamped into block headers.
const ABIVersion = "wasm-1"

const (
	genesisHashKey    = "genesis:config:hash"
	contractCodeKey   = "contract:code:"
	contractMetaKey   = "contract:meta:"
	blockVersion      = 1
	defaultMaxTxBlock = 100
	defaultMemWindow  = 128
)

// Config assembles an Engine. Genesis, State, Runtime and Verifier are
// required; everything else has working defaults.
type Config struct {
	Genesis  *genesis.Config
	State    *verkle.Manager
	Runtime  runtime.Runtime
	Verifier *crypto.Verifier

	// Meterer, when set, rewrites bytecode with gas instrumentation at
	// deploy time.
	Meterer runtime.Meterer
	// Archive persists sealed blocks. Nil keeps blocks in memory only.
	Archive *blockstore.Store

	Fees          FeePolicy
	Gas           GasPolicy
	MaxTxPerBlock int
	// MemoryWindow is how many recent block bodies stay in memory; older
	// bodies are served from the archive while headers are retained.
	MemoryWindow int

	Logger  *slog.Logger
	Metrics *metrics.Engine
}

// contractMeta is the deployment record stored beside the bytecode.
type contractMeta struct {
	Owner        string `json:"owner"`
	BytecodeHash string `json:"bytecodeHash"`
	DeployedAt   int64  `json:"deployedAt"`
	ABIVersion   string `json:"abiVersion"`
}

// Engine is the single-writer sequencer. All mutating operations serialize on
// one mutex; queries take the same lock and copy out.
type Engine struct {
	mu sync.Mutex

	log         *slog.Logger
	metrics     *metrics.Engine
	genesis     *genesis.Config
	genesisHash string
	state       *verkle.Manager
	vm          runtime.Runtime
	meterer     runtime.Meterer
	verifier    *crypto.Verifier
	dids        *genesis.DidRegistry
	pool        *mempool.Pool
	archive     *blockstore.Store

	fees          FeePolicy
	gas           GasPolicy
	maxTxPerBlock int
	memoryWindow  int

	height   uint64
	prevHash string

	recent      map[uint64]*types.Block
	recentOrder []uint64
	headers     map[uint64]*types.BlockHeader
	byHash      map[string]uint64
	txHeight    map[string]uint64
	pendingByID map[string]mempool.Entry

	now func() time.Time
}

// NewEngine validates the genesis configuration, initializes the state tree,
// seeds first-boot state, and recovers chain position from the archive.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Genesis == nil || cfg.State == nil || cfg.Runtime == nil || cfg.Verifier == nil {
		return nil, errors.New("core: genesis, state, runtime and verifier are required")
	}
	if err := cfg.Genesis.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fees := cfg.Fees
	if fees.BaseFee == nil && fees.PerByteFee == nil {
		fees = DefaultFeePolicy()
	}
	gas := cfg.Gas
	if gas.GasLimit == 0 {
		gas = DefaultGasPolicy()
	}
	maxTx := cfg.MaxTxPerBlock
	if maxTx <= 0 {
		maxTx = defaultMaxTxBlock
	}
	window := cfg.MemoryWindow
	if window <= 0 {
		window = defaultMemWindow
	}

	e := &Engine{
		log:           logger.With("component", "engine"),
		metrics:       cfg.Metrics,
		genesis:       cfg.Genesis,
		genesisHash:   cfg.Genesis.Hash(),
		state:         cfg.State,
		vm:            cfg.Runtime,
		meterer:       cfg.Meterer,
		verifier:      cfg.Verifier,
		pool:          mempool.New(),
		archive:       cfg.Archive,
		fees:          fees,
		gas:           gas,
		maxTxPerBlock: maxTx,
		memoryWindow:  window,
		prevHash:      types.GenesisParentHash,
		recent:        make(map[uint64]*types.Block),
		headers:       make(map[uint64]*types.BlockHeader),
		byHash:        make(map[string]uint64),
		txHeight:      make(map[string]uint64),
		pendingByID:   make(map[string]mempool.Entry),
		now:           time.Now,
	}
	e.dids = genesis.NewDidRegistry(cfg.State, cfg.Verifier)

	if err := cfg.State.Init(); err != nil {
		return nil, err
	}
	if err := e.seedGenesis(); err != nil {
		return nil, err
	}
	if err := e.recoverFromArchive(); err != nil {
		return nil, err
	}

	// Genesis seeding and recovery reads must not leak into the first
	// block's witness.
	e.state.FlushAccessLog()
	e.state.MarkPreBlockRoot()

	e.log.Info("engine ready",
		"chainId", e.genesis.ChainID,
		"genesisHash", e.genesisHash,
		"height", e.height)
	return e, nil
}

// seedGenesis writes the initial supply, treasury balance, and initial DID
// documents on first boot. On later boots it checks the stored genesis hash
// so a node cannot silently restart under a different configuration.
func (e *Engine) seedGenesis() error {
	stored, err := e.state.Get(genesisHashKey)
	if err == nil {
		if string(stored) != e.genesisHash {
			return fmt.Errorf("core: state was initialized with genesis %s, config hashes to %s",
				stored, e.genesisHash)
		}
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	seed := e.genesis.Token.InitialTreasurySupply
	if seed == nil {
		seed = big.NewInt(0)
	}
	if err := e.state.Set(e.genesis.SupplyKey(), formatAmount(seed)); err != nil {
		return err
	}
	if err := e.state.Set(e.genesis.BalanceKey(e.genesis.Treasury), formatAmount(seed)); err != nil {
		return err
	}
	for _, did := range e.genesis.InitialDIDs {
		if _, err := e.dids.Register(did.ID, did.PublicKeyHex, did.Algorithm); err != nil {
			return fmt.Errorf("core: seed did %s: %w", did.ID, err)
		}
	}
	if err := e.state.Set(genesisHashKey, []byte(e.genesisHash)); err != nil {
		return err
	}
	e.log.Info("genesis state seeded",
		"treasury", e.genesis.Treasury,
		"supply", seed.String(),
		"dids", len(e.genesis.InitialDIDs))
	return nil
}

// recoverFromArchive rebuilds chain position and transaction indexes from the
// persisted block archive.
func (e *Engine) recoverFromArchive() error {
	if e.archive == nil {
		return nil
	}
	latest, err := e.archive.LatestHeight()
	if err != nil || latest == 0 {
		return err
	}
	for h := uint64(1); h <= latest; h++ {
		block, err := e.archive.GetByHeight(h)
		if err != nil {
			return fmt.Errorf("core: recover height %d: %w", h, err)
		}
		hash, err := block.ComputeHash()
		if err != nil {
			return fmt.Errorf("core: recover height %d: %w", h, err)
		}
		if hash != block.BlockHash {
			return fmt.Errorf("%w: archived block %d hash mismatch", ErrInvalidBlock, h)
		}
		e.indexBlock(block)
	}
	e.height = latest
	tip, err := e.archive.GetByHeight(latest)
	if err != nil {
		return err
	}
	e.prevHash = tip.BlockHash
	e.log.Info("recovered from archive", "height", latest)
	return nil
}

// DeployContract instruments, validates, and registers contract bytecode,
// returning the engine-assigned contract ID.
func (e *Engine) DeployContract(ctx context.Context, bytecode []byte, owner string) (string, error) {
	return e.DeployContractWithID(ctx, bytecode, owner, "")
}

// DeployContractWithID deploys under a caller-chosen ID. An empty ID gets a
// generated one; a taken ID is rejected.
func (e *Engine) DeployContractWithID(ctx context.Context, bytecode []byte, owner, id string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(bytecode) == 0 {
		return "", ErrEmptyBytecode
	}
	if id != "" {
		if _, err := e.state.Get(contractCodeKey + id); err == nil {
			return "", fmt.Errorf("core: contract ID %s already registered", id)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return "", err
		}
	}
	if e.meterer != nil {
		instrumented, err := e.meterer.Instrument(bytecode)
		if err != nil {
			return "", fmt.Errorf("core: meter bytecode: %w", err)
		}
		bytecode = instrumented
	}

	// Instantiate once up front so a module missing its entrypoint or
	// result accessors is rejected at deploy time, not first call.
	probe, err := e.vm.Instantiate(bytecode, &runtime.HostBindings{})
	if err != nil {
		return "", fmt.Errorf("core: validate bytecode: %w", err)
	}
	defer probe.Close()
	for _, export := range []string{runtime.ExportExecute, runtime.ExportResultLen, runtime.ExportResultPtr} {
		if !probe.HasExport(export) {
			return "", fmt.Errorf("%w: %s", runtime.ErrMissingEntrypoint, export)
		}
	}

	if id == "" {
		id = uuid.NewString()
	}
	meta := contractMeta{
		Owner:        owner,
		BytecodeHash: hex.EncodeToString(crypto.HashMessage(bytecode)),
		DeployedAt:   e.now().Unix(),
		ABIVersion:   ABIVersion,
	}
	metaBlob, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	if err := e.state.Set(contractCodeKey+id, bytecode); err != nil {
		return "", err
	}
	if err := e.state.Set(contractMetaKey+id, metaBlob); err != nil {
		return "", err
	}
	e.log.Info("contract deployed", "contractId", id, "owner", owner, "bytecodeHash", meta.BytecodeHash)
	return id, nil
}

// contractBytecode loads registered bytecode, through the overlay when one is
// active.
func (e *Engine) contractBytecode(o *stateOverlay, contractID string) ([]byte, error) {
	var raw []byte
	var err error
	if o != nil {
		raw, err = o.get(contractCodeKey + contractID)
	} else {
		raw, err = e.state.Get(contractCodeKey + contractID)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, contractID)
	}
	return raw, err
}

// ExecuteTransaction runs a transaction against current state without fees,
// nonce accounting, or queuing. Contract writes commit on success. A
// contract-reported failure (status <= 0) is a receipt, not an error;
// infrastructure failures are errors.
func (e *Engine) ExecuteTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.normalize(tx)

	exec := &execState{
		engine:  e,
		overlay: newOverlay(e.state),
		gas:     &gasMeter{limit: e.gas.GasLimit},
	}
	receipt, err := e.runContract(exec, tx)
	if err != nil {
		return nil, err
	}
	if !receipt.Failed() {
		if err := exec.overlay.commit(); err != nil {
			return nil, err
		}
	}
	return receipt, nil
}

// SubmitTransaction is the full admission path: signature, nonce, fee, and
// balance checks, then execution and enqueueing for the next block. Admission
// is all-or-nothing; a rejected transaction leaves no state change. Once
// admitted, the fee, the value transfer, and the nonce bump stand even when
// the contract reports failure.
func (e *Engine) SubmitTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.normalize(tx)

	if tx.Value != nil && tx.Value.Sign() < 0 {
		return nil, ErrInvalidValue
	}
	value := tx.Value
	if value == nil {
		value = big.NewInt(0)
	}
	if _, err := e.contractBytecode(nil, tx.ContractID); err != nil {
		return nil, err
	}
	if tx.Signature == nil {
		return nil, fmt.Errorf("%w: transaction %s", ErrSignatureRequired, tx.ID)
	}
	if err := e.checkCallerKey(tx); err != nil {
		return nil, err
	}
	if err := e.verifier.Verify(ctx, tx.SigningMessage(), tx.Signature); err != nil {
		return nil, err
	}

	expectedNonce, err := e.nonceOf(tx.Caller)
	if err != nil {
		return nil, err
	}
	if tx.Nonce != expectedNonce {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrNonceMismatch, tx.Nonce, expectedNonce)
	}

	if e.gas.IntrinsicGas(len(tx.Input)) > e.gas.GasLimit {
		return nil, fmt.Errorf("%w: input of %d bytes", ErrGasLimitExceeded, len(tx.Input))
	}
	fee := e.fees.EstimateFee(len(tx.Input))
	total := new(big.Int).Add(fee, value)
	balance, err := e.balanceOf(tx.Caller)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(total) < 0 {
		return nil, fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, tx.Caller, balance, total)
	}

	// Admission effects commit before the guest runs: the fee moves to the
	// treasury, the value credits the contract, and the nonce bumps. A
	// contract failure later does not undo any of them; only the guest's
	// writes and events are discarded.
	admission := &execState{engine: e, overlay: newOverlay(e.state)}
	if err := admission.transfer(tx.Caller, e.genesis.Treasury, fee); err != nil {
		return nil, err
	}
	if value.Sign() > 0 {
		if err := admission.transfer(tx.Caller, tx.ContractID, value); err != nil {
			return nil, err
		}
	}
	admission.overlay.set(e.genesis.NonceKey(tx.Caller), formatAmount(new(big.Int).SetUint64(expectedNonce+1)))
	if err := admission.overlay.commit(); err != nil {
		return nil, err
	}

	exec := &execState{
		engine:  e,
		overlay: newOverlay(e.state),
		gas:     &gasMeter{limit: e.gas.GasLimit},
	}
	receipt, err := e.runContract(exec, tx)
	if err != nil {
		e.observeTx("error")
		return nil, err
	}
	if !receipt.Failed() {
		if err := exec.overlay.commit(); err != nil {
			return nil, err
		}
		e.observeTx("success")
	} else {
		e.observeTx("failed")
	}

	e.pool.Add(tx, receipt)
	e.pendingByID[tx.ID] = mempool.Entry{Tx: tx, Receipt: receipt}
	if e.metrics != nil {
		e.metrics.PendingPoolDepth.Set(float64(e.pool.Len()))
	}
	e.log.Info("transaction admitted",
		"txId", tx.ID,
		"contractId", tx.ContractID,
		"caller", tx.Caller,
		"status", receipt.Status,
		"gasUsed", receipt.GasUsed)
	return receipt, nil
}

// runContract executes the guest entrypoint inside the given execution
// context and builds the receipt. Caller decides whether the overlay commits.
func (e *Engine) runContract(exec *execState, tx *types.Transaction) (*types.Receipt, error) {
	bytecode, err := e.contractBytecode(exec.overlay, tx.ContractID)
	if err != nil {
		return nil, err
	}
	if err := exec.gas.Consume(e.gas.IntrinsicGas(len(tx.Input))); err != nil {
		return nil, fmt.Errorf("%w: intrinsic gas", err)
	}
	instance, err := e.vm.Instantiate(bytecode, exec.bindings(tx.ContractID, tx.Caller))
	if err != nil {
		return nil, fmt.Errorf("core: instantiate %s: %w", tx.ContractID, err)
	}
	defer instance.Close()
	if !instance.HasExport(runtime.ExportExecute) {
		return nil, fmt.Errorf("%w: %s", runtime.ErrMissingEntrypoint, runtime.ExportExecute)
	}

	status, err := instance.Invoke(runtime.ExportExecute, tx.Input)
	if err != nil {
		return nil, err
	}
	var result []byte
	var events []types.Event
	if status > 0 {
		if result, err = instance.ReadResult(); err != nil {
			return nil, err
		}
		events = exec.events
	}
	return types.NewReceipt(tx.ID, tx.ContractID, status, result, events, e.now().Unix(), exec.gas.used), nil
}

// checkCallerKey binds the signature key to the caller's DID document when
// one is registered. Unregistered callers are admitted on signature alone.
func (e *Engine) checkCallerKey(tx *types.Transaction) error {
	doc, err := e.dids.Resolve(tx.Caller)
	if errors.Is(err, genesis.ErrDidNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !doc.Active {
		return fmt.Errorf("%w: caller %s is deactivated", genesis.ErrDidDeactivated, tx.Caller)
	}
	want := strings.TrimPrefix(strings.ToLower(doc.PublicKeyHex), "0x")
	got := strings.TrimPrefix(strings.ToLower(tx.Signature.PublicKeyHex), "0x")
	if want != got {
		return fmt.Errorf("%w: signature key does not match caller's registered key", crypto.ErrSignatureInvalid)
	}
	return nil
}

func (e *Engine) normalize(tx *types.Transaction) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Timestamp == 0 {
		tx.Timestamp = e.now().Unix()
	}
}

func (e *Engine) observeTx(outcome string) {
	if e.metrics != nil {
		e.metrics.TxExecuted.WithLabelValues(outcome).Inc()
	}
}

// MineBlock seals all pending transactions (up to MaxTxPerBlock, oldest
// first) into the next block. Returns nil without error when nothing is
// pending.
func (e *Engine) MineBlock(ctx context.Context) (*types.Block, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	started := e.now()

	entries := e.pool.Take(e.maxTxPerBlock)
	if len(entries) == 0 {
		return nil, nil
	}

	txs := make([]*types.Transaction, len(entries))
	receipts := make([]*types.Receipt, len(entries))
	txLeaves := make([][]byte, len(entries))
	receiptLeaves := make([][]byte, len(entries))
	var gasUsed uint64
	for i, entry := range entries {
		txs[i] = entry.Tx
		receipts[i] = entry.Receipt
		leaf, err := entry.Tx.CanonicalBytes()
		if err != nil {
			return nil, fmt.Errorf("core: canonicalize tx %s: %w", entry.Tx.ID, err)
		}
		txLeaves[i] = leaf
		receiptLeaves[i] = entry.Receipt.CanonicalBytes()
		gasUsed += entry.Receipt.GasUsed
	}
	txRootBytes := merkle.Root(txLeaves)
	receiptRootBytes := merkle.Root(receiptLeaves)
	txRoot := hex.EncodeToString(txRootBytes[:])
	receiptRoot := hex.EncodeToString(receiptRootBytes[:])

	supply, err := e.currentSupply()
	if err != nil {
		return nil, err
	}
	stateRoot := e.state.ComputeStateRoot()
	quantumRoot := e.state.Root()

	accessLog, preRoot := e.state.FlushAccessLog()
	witness, err := e.state.GenerateWitness(accessLog, preRoot)
	if err != nil {
		return nil, fmt.Errorf("core: witness for height %d: %w", e.height+1, err)
	}
	e.state.MarkPreBlockRoot()

	height := e.height + 1
	timestamp := e.now().Unix()
	header := &types.BlockHeader{
		Version:          blockVersion,
		ChainID:          e.genesis.ChainID,
		Height:           height,
		Timestamp:        timestamp,
		PrevHash:         e.prevHash,
		TxRoot:           txRoot,
		ReceiptRoot:      receiptRoot,
		StateRoot:        stateRoot,
		QuantumStateRoot: quantumRoot,
		TxCount:          len(txs),
		ReceiptCount:     len(receipts),
		ABIVersion:       ABIVersion,
		GasLimit:         e.gas.GasLimit,
		GasUsed:          gasUsed,
		GenesisHash:      e.genesisHash,
		TotalSupply:      supply,
		SupplyCap:        e.genesis.Token.MaxSupply,
	}
	block := &types.Block{
		Height:           height,
		PrevHash:         e.prevHash,
		StateRoot:        stateRoot,
		QuantumStateRoot: quantumRoot,
		TxRoot:           txRoot,
		ReceiptRoot:      receiptRoot,
		Timestamp:        timestamp,
		Transactions:     txs,
		Receipts:         receipts,
		Header:           header,
		Witness:          witness,
	}
	if err := block.Seal(); err != nil {
		return nil, err
	}

	if e.archive != nil {
		if err := e.archive.Put(block); err != nil {
			return nil, fmt.Errorf("core: archive height %d: %w", height, err)
		}
	}
	e.indexBlock(block)
	e.height = height
	e.prevHash = block.BlockHash
	for _, tx := range txs {
		delete(e.pendingByID, tx.ID)
	}

	if e.metrics != nil {
		e.metrics.BlocksSealed.Inc()
		e.metrics.GasUsed.Add(float64(gasUsed))
		e.metrics.PendingPoolDepth.Set(float64(e.pool.Len()))
		e.metrics.SealDuration.Observe(e.now().Sub(started).Seconds())
	}
	e.log.Info("block sealed",
		"height", height,
		"blockHash", block.BlockHash,
		"txs", len(txs),
		"gasUsed", gasUsed)
	return block, nil
}

// indexBlock records the block in the in-memory window and indexes. Bodies
// older than the window are dropped from memory; headers are retained and
// bodies remain available from the archive.
func (e *Engine) indexBlock(block *types.Block) {
	e.recent[block.Height] = block
	e.recentOrder = append(e.recentOrder, block.Height)
	e.headers[block.Height] = block.Header
	e.byHash[block.BlockHash] = block.Height
	for _, tx := range block.Transactions {
		e.txHeight[tx.ID] = block.Height
	}
	for len(e.recentOrder) > e.memoryWindow {
		evicted := e.recentOrder[0]
		e.recentOrder = e.recentOrder[1:]
		delete(e.recent, evicted)
	}
}
