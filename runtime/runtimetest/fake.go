// Package runtimetest provides an in-process fake VM for engine tests. Guest
// behavior is supplied as a Go function operating through the same host
// bindings a real module would use.
package runtimetest

import (
	"fmt"

	"spacekit/runtime"
)

// Behavior is the fake guest body. It receives the host surface and the raw
// input, and returns the ABI status code plus the result buffer.
type Behavior func(host *runtime.HostBindings, input []byte) (int32, []byte, error)

// Runtime instantiates fake instances backed by per-bytecode behaviors.
// Register behaviors keyed by the exact bytecode the engine will deploy.
type Runtime struct {
	behaviors map[string]Behavior
	// MissingEntry simulates a module that lacks the requested export.
	MissingEntry bool
}

func NewRuntime() *Runtime {
	return &Runtime{behaviors: make(map[string]Behavior)}
}

// Register binds a behavior to a bytecode blob.
func (r *Runtime) Register(bytecode []byte, behavior Behavior) {
	r.behaviors[string(bytecode)] = behavior
}

func (r *Runtime) Instantiate(bytecode []byte, host *runtime.HostBindings) (runtime.Instance, error) {
	behavior, ok := r.behaviors[string(bytecode)]
	if !ok {
		return nil, fmt.Errorf("runtimetest: no behavior registered for bytecode %q", bytecode)
	}
	return &instance{behavior: behavior, host: host, missingEntry: r.MissingEntry}, nil
}

type instance struct {
	behavior     Behavior
	host         *runtime.HostBindings
	missingEntry bool
	result       []byte
	closed       bool
}

func (i *instance) HasExport(name string) bool {
	if i.missingEntry {
		return false
	}
	switch name {
	case runtime.ExportExecute, runtime.ExportAllocate, runtime.ExportResultLen, runtime.ExportResultPtr:
		return true
	}
	return false
}

func (i *instance) Invoke(entry string, input []byte) (int32, error) {
	if !i.HasExport(entry) {
		return 0, fmt.Errorf("%w: %s", runtime.ErrMissingEntrypoint, entry)
	}
	status, result, err := i.behavior(i.host, input)
	if err != nil {
		return status, err
	}
	i.result = result
	return status, nil
}

func (i *instance) ReadResult() ([]byte, error) {
	return append([]byte(nil), i.result...), nil
}

func (i *instance) Close() error {
	i.closed = true
	return nil
}
