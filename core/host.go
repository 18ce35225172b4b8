package core

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"spacekit/core/genesis"
	"spacekit/core/types"
	"spacekit/runtime"
	"spacekit/storage"
	"spacekit/verkle"
)

// maxCallDepth bounds synchronous contract-to-contract call chains.
const maxCallDepth = 8

// stateOverlay buffers writes during one transaction. Reads fall through to
// the witnessed state manager, so read accesses are recorded even when the
// transaction later rolls back. Writes reach the manager only on commit, in
// first-write order.
type stateOverlay struct {
	state  *verkle.Manager
	writes map[string][]byte
	order  []string
}

func newOverlay(state *verkle.Manager) *stateOverlay {
	return &stateOverlay{state: state, writes: make(map[string][]byte)}
}

func (o *stateOverlay) get(key string) ([]byte, error) {
	if value, ok := o.writes[key]; ok {
		return append([]byte(nil), value...), nil
	}
	return o.state.Get(key)
}

func (o *stateOverlay) set(key string, value []byte) {
	if _, seen := o.writes[key]; !seen {
		o.order = append(o.order, key)
	}
	o.writes[key] = append([]byte(nil), value...)
}

func (o *stateOverlay) commit() error {
	for _, key := range o.order {
		if err := o.state.Set(key, o.writes[key]); err != nil {
			return fmt.Errorf("core: commit %q: %w", key, err)
		}
	}
	return nil
}

// balance reads a native balance through the overlay.
func (o *stateOverlay) balance(key string) (*big.Int, error) {
	raw, err := o.get(key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return parseAmount(raw), nil
}

func (o *stateOverlay) setBalance(key string, amount *big.Int) {
	o.set(key, formatAmount(amount))
}

func parseAmount(raw []byte) *big.Int {
	if len(raw) == 0 {
		return big.NewInt(0)
	}
	v, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

func formatAmount(v *big.Int) []byte {
	if v == nil {
		return []byte("0")
	}
	return []byte(v.String())
}

// gasMeter is the shared per-transaction execution budget.
type gasMeter struct {
	used  uint64
	limit uint64
}

func (g *gasMeter) Consume(amount uint64) error {
	// Compared against the remainder so a huge amount cannot wrap the sum.
	if amount > g.limit-g.used {
		g.used = g.limit
		return runtime.ErrOutOfGas
	}
	g.used += amount
	return nil
}

func (g *gasMeter) Remaining() uint64 {
	return g.limit - g.used
}

// execState is the per-transaction execution context shared by every call
// frame: one overlay, one gas meter, one event stream, one depth counter.
type execState struct {
	engine  *Engine
	overlay *stateOverlay
	events  []types.Event
	gas     *gasMeter
	depth   int
}

// hostFrame binds the shared execution state to one contract instance.
type hostFrame struct {
	exec       *execState
	contractID string
	caller     string
}

func (s *execState) bindings(contractID, caller string) *runtime.HostBindings {
	frame := &hostFrame{exec: s, contractID: contractID, caller: caller}
	return &runtime.HostBindings{
		Storage:    frame,
		Identity:   frame,
		Events:     frame,
		Gas:        s.gas,
		Call:       frame,
		Token:      (*tokenFrame)(frame),
		NFT:        (*nftFrame)(frame),
		Reputation: (*reputationFrame)(frame),
	}
}

// contractStateKey namespaces a guest key under its contract so modules
// cannot read or clobber each other's state.
func contractStateKey(contractID, key string) string {
	return "contract:state:" + contractID + ":" + key
}

func (f *hostFrame) Get(key string) ([]byte, error) {
	if err := genesis.EnforceStorageProtection(key); err != nil {
		return nil, err
	}
	value, err := f.exec.overlay.get(contractStateKey(f.contractID, key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return value, err
}

func (f *hostFrame) Set(key string, value []byte) error {
	if err := genesis.EnforceStorageProtection(key); err != nil {
		return err
	}
	f.exec.overlay.set(contractStateKey(f.contractID, key), value)
	return nil
}

func (f *hostFrame) Caller() string {
	return f.caller
}

func (f *hostFrame) ContractID() string {
	return f.contractID
}

func (f *hostFrame) Emit(eventType string, attributes map[string]string, data []byte) error {
	f.exec.events = append(f.exec.events, types.Event{
		Type:       eventType,
		Attributes: attributes,
		Data:       append([]byte(nil), data...),
	})
	return nil
}

// Call invokes another contract synchronously. The callee shares the gas
// meter, event stream, and overlay; its identity becomes the caller for any
// deeper frames.
func (f *hostFrame) Call(contractID string, input []byte, value *big.Int) ([]byte, error) {
	exec := f.exec
	if exec.depth+1 >= maxCallDepth {
		return nil, fmt.Errorf("%w: depth %d", ErrCallDepthExceeded, exec.depth+1)
	}
	exec.depth++
	defer func() { exec.depth-- }()

	bytecode, err := exec.engine.contractBytecode(exec.overlay, contractID)
	if err != nil {
		return nil, err
	}
	if value != nil && value.Sign() > 0 {
		if err := exec.transfer(f.contractID, contractID, value); err != nil {
			return nil, err
		}
	}

	instance, err := exec.engine.vm.Instantiate(bytecode, exec.bindings(contractID, f.contractID))
	if err != nil {
		return nil, fmt.Errorf("core: instantiate %s: %w", contractID, err)
	}
	defer instance.Close()

	status, err := instance.Invoke(runtime.ExportExecute, input)
	if err != nil {
		return nil, err
	}
	if status <= 0 {
		return nil, fmt.Errorf("core: call to %s failed with status %d", contractID, status)
	}
	return instance.ReadResult()
}

// transfer moves native currency between identities inside the overlay.
func (s *execState) transfer(from, to string, amount *big.Int) error {
	fromKey := s.engine.genesis.BalanceKey(from)
	toKey := s.engine.genesis.BalanceKey(to)
	fromBalance, err := s.overlay.balance(fromKey)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from, fromBalance, amount)
	}
	toBalance, err := s.overlay.balance(toKey)
	if err != nil {
		return err
	}
	s.overlay.setBalance(fromKey, new(big.Int).Sub(fromBalance, amount))
	s.overlay.setBalance(toKey, new(big.Int).Add(toBalance, amount))
	return nil
}

// tokenFrame exposes native currency movement to the running contract.
type tokenFrame hostFrame

func (f *tokenFrame) BalanceOf(identity string) (*big.Int, error) {
	return f.exec.overlay.balance(f.exec.engine.genesis.BalanceKey(identity))
}

func (f *tokenFrame) Transfer(to string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidValue
	}
	return f.exec.transfer(f.contractID, to, amount)
}

// nftFrame exposes non-fungible asset issuance scoped to the overlay.
type nftFrame hostFrame

func nftOwnerKey(tokenID string) string    { return "nft:owner:" + tokenID }
func nftMetadataKey(tokenID string) string { return "nft:meta:" + tokenID }

func (f *nftFrame) Mint(tokenID, owner string, metadata []byte) error {
	if _, err := f.exec.overlay.get(nftOwnerKey(tokenID)); err == nil {
		return fmt.Errorf("core: nft %q already minted", tokenID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	f.exec.overlay.set(nftOwnerKey(tokenID), []byte(owner))
	if len(metadata) > 0 {
		f.exec.overlay.set(nftMetadataKey(tokenID), metadata)
	}
	return nil
}

func (f *nftFrame) OwnerOf(tokenID string) (string, error) {
	owner, err := f.exec.overlay.get(nftOwnerKey(tokenID))
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("core: nft %q not found", tokenID)
	}
	if err != nil {
		return "", err
	}
	return string(owner), nil
}

func (f *nftFrame) Transfer(tokenID, to string) error {
	owner, err := f.OwnerOf(tokenID)
	if err != nil {
		return err
	}
	if owner != f.contractID {
		return fmt.Errorf("core: nft %q owned by %s, not %s", tokenID, owner, f.contractID)
	}
	f.exec.overlay.set(nftOwnerKey(tokenID), []byte(to))
	return nil
}

// reputationFrame exposes the attestation ledger scoped to the overlay.
type reputationFrame hostFrame

func reputationScoreKey(subject string) string { return "reputation:score:" + subject }

func (f *reputationFrame) Attest(subject string, score int64, evidence []byte) error {
	current, err := f.ScoreOf(subject)
	if err != nil {
		return err
	}
	f.exec.overlay.set(reputationScoreKey(subject), []byte(strconv.FormatInt(current+score, 10)))
	if len(evidence) > 0 {
		f.exec.overlay.set("reputation:attestation:"+subject+":"+f.contractID, evidence)
	}
	return nil
}

func (f *reputationFrame) ScoreOf(subject string) (int64, error) {
	raw, err := f.exec.overlay.get(reputationScoreKey(subject))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	score, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("core: corrupt reputation score for %s: %w", subject, err)
	}
	return score, nil
}
