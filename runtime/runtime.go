// Package runtime defines the boundary between the execution engine and the
// WebAssembly virtual machine. The VM itself is an external collaborator: the
// engine programs against these interfaces and never links a concrete
// interpreter.
package runtime

import (
	"errors"
	"math/big"
)

// Export names every contract module must or may provide. The engine refuses
// execution when the requested entrypoint is absent.
const (
	// ExportExecute is the default entrypoint invoked when a transaction
	// names none.
	ExportExecute = "execute"
	// ExportAllocate is the guest allocator used to place input bytes.
	ExportAllocate = "allocate"
	// ExportResultLen reports the byte length of the last result buffer.
	ExportResultLen = "result_len"
	// ExportResultPtr reports the guest address of the last result buffer.
	ExportResultPtr = "result_ptr"
)

var (
	// ErrMissingEntrypoint is returned when a module lacks the requested
	// export.
	ErrMissingEntrypoint = errors.New("runtime: module missing entrypoint")
	// ErrOutOfGas is returned by the gas meter when the budget is exhausted.
	ErrOutOfGas = errors.New("runtime: out of gas")
	// ErrTrap is returned when guest execution faults.
	ErrTrap = errors.New("runtime: guest trapped")
	// ErrVMUnavailable is returned by Unavailable when no virtual machine
	// implementation has been linked into the binary.
	ErrVMUnavailable = errors.New("runtime: no virtual machine linked")
)

// Unavailable is the Runtime used when the node is built without a VM
// integration. Every instantiation fails with ErrVMUnavailable; queries,
// identity operations, and mining of already-admitted work stay functional.
type Unavailable struct{}

func (Unavailable) Instantiate([]byte, *HostBindings) (Instance, error) {
	return nil, ErrVMUnavailable
}

// Runtime instantiates contract modules. Implementations wrap a concrete
// WASM engine; tests use an in-process fake.
type Runtime interface {
	// Instantiate compiles or loads bytecode and binds the host surface.
	// The returned instance is single-use per invocation context.
	Instantiate(bytecode []byte, host *HostBindings) (Instance, error)
}

// Instance is one loaded contract module ready to run.
type Instance interface {
	// HasExport reports whether the module exposes the named function.
	HasExport(name string) bool
	// Invoke runs the named exported function with the raw input placed in
	// guest memory. The returned status follows the contract ABI: values
	// greater than zero are success codes, zero and below are failures.
	Invoke(entry string, input []byte) (int32, error)
	// ReadResult copies the guest's result buffer out of linear memory.
	ReadResult() ([]byte, error)
	// Close releases guest memory. Idempotent.
	Close() error
}

// Meterer rewrites bytecode with gas accounting instrumentation before
// deployment. Nil disables the rewrite pass.
type Meterer interface {
	Instrument(bytecode []byte) ([]byte, error)
}

// HostBindings is the complete, closed set of capabilities a contract can
// reach. Every field is populated by the engine before instantiation; guests
// cannot acquire capabilities outside this bundle.
type HostBindings struct {
	Storage  StorageHost
	Identity IdentityHost
	Events   EventHost
	Gas      GasHost
	Call     CallHost

	// Optional native-asset extensions. Nil when the chain does not enable
	// the corresponding capability.
	Token      TokenHost
	NFT        NFTHost
	Reputation ReputationHost
}

// StorageHost exposes contract-scoped state. Writes to engine-reserved key
// prefixes are rejected by the engine before reaching disk.
type StorageHost interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

// IdentityHost exposes the identity of the calling party and the contract's
// own address.
type IdentityHost interface {
	Caller() string
	ContractID() string
}

// EventHost collects structured events emitted during execution. Events are
// only published if the transaction commits.
type EventHost interface {
	Emit(eventType string, attributes map[string]string, data []byte) error
}

// GasHost meters execution. Consume returns ErrOutOfGas when the budget is
// exhausted; the engine aborts and rolls back the transaction.
type GasHost interface {
	Consume(amount uint64) error
	Remaining() uint64
}

// CallHost performs synchronous contract-to-contract calls. The engine
// enforces the call depth limit and shares the gas budget down the chain.
type CallHost interface {
	Call(contractID string, input []byte, value *big.Int) ([]byte, error)
}

// TokenHost exposes native currency movement to trusted contracts.
type TokenHost interface {
	BalanceOf(identity string) (*big.Int, error)
	Transfer(to string, amount *big.Int) error
}

// NFTHost exposes non-fungible asset issuance and transfer.
type NFTHost interface {
	Mint(tokenID, owner string, metadata []byte) error
	OwnerOf(tokenID string) (string, error)
	Transfer(tokenID, to string) error
}

// ReputationHost exposes the attestation ledger.
type ReputationHost interface {
	Attest(subject string, score int64, evidence []byte) error
	ScoreOf(subject string) (int64, error)
}
