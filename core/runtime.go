package core

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// TransformResult is what a single process_block or rollback invocation
// yields: the CDC records the guest emitted (in emission order) and the
// state snapshot taken immediately afterward.
type TransformResult struct {
	CdcMessages   []CdcMessage
	StateSnapshot *TransformState
}

// Runtime owns the bytecode engine and the authoritative transform state
// across invocations; each invocation collects its CDC records in a buffer
// of its own per-call hostCtx. It is grounded on
// virtual_machine.go's HeavyVM: a fresh guest instance is compiled/created
// per call, its memory export located, and its process_block/rollback
// exports invoked — but here the host import table is built from a
// per-instance hostCtx instead of gas-metered opcode bookkeeping.
type Runtime struct {
	mu      sync.Mutex
	factory GuestFactory
	client  ViewClient
	views   *ViewRegistry
	state   *TransformState
	logger  *logrus.Logger
}

// NewRuntime constructs a Runtime with an empty transform state.
func NewRuntime(factory GuestFactory, client ViewClient, views *ViewRegistry, logger *logrus.Logger) *Runtime {
	if views == nil {
		views = NewViewRegistry()
	}
	return &Runtime{
		factory: factory,
		client:  client,
		views:   views,
		state:   NewTransformState(),
		logger:  logger,
	}
}

// State returns the runtime's current authoritative state (not a copy).
func (r *Runtime) State() *TransformState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// RestoreState replaces the authoritative state, used when rewinding to a
// cached snapshot during reorg handling.
func (r *Runtime) RestoreState(state *TransformState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

// ProcessBlock sets the block context, clears the CDC buffer, instantiates a
// fresh guest bound to a per-instance host import table, invokes
// `process_block`, and captures the emitted records alongside a state
// snapshot.
func (r *Runtime) ProcessBlock(height uint32, hash string) (TransformResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invoke(height, hash, func(guest GuestModule) (int32, error) {
		return guest.CallProcessBlock()
	})
}

// Rollback has the same invocation shape as ProcessBlock but calls the
// `rollback` export. The guest is free to emit its own compensating
// records; if it emits none, the caller (the synchronizer) is responsible
// for synthesizing inverses (an empty buffer is not itself an error).
func (r *Runtime) Rollback(height uint32, hash string) (TransformResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invoke(height, hash, func(guest GuestModule) (int32, error) {
		return guest.CallRollback()
	})
}

func (r *Runtime) invoke(height uint32, hash string, call func(GuestModule) (int32, error)) (TransformResult, error) {
	hctx := &hostCtx{
		height: height,
		hash:   decodeHexHash(hash),
		state:  r.state.Snapshot(),
		views:  r.views,
		client: r.client,
		logger: r.logger,
	}
	imports := newHostImports(hctx)

	guest, err := r.factory.Instantiate(imports)
	if err != nil {
		return TransformResult{}, fmt.Errorf("%w: %v", ErrBytecodeLoad, err)
	}
	defer guest.Close()
	imports.SetMemory(guest.Memory())

	ret, err := call(guest)
	if err != nil {
		return TransformResult{}, fmt.Errorf("%w: %v", ErrTransformExec, err)
	}
	if ret < 0 {
		return TransformResult{}, fmt.Errorf("%w: guest export returned %d", ErrTransformExec, ret)
	}

	r.state = hctx.state
	return TransformResult{
		CdcMessages:   hctx.cdc,
		StateSnapshot: r.state.Snapshot(),
	}, nil
}
