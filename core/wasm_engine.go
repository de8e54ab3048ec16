package core

import (
	"errors"
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"
)

// WasmEngine loads a compiled transform module and instantiates fresh
// wasmer instances against it for each invocation. Grounded on
// virtual_machine.go's HeavyVM: one wasmer.Engine/Store/Module is kept for
// the life of the transform, and wasmer.NewInstance is called anew for
// every process_block/rollback, since the guest's private heap does not
// persist across invocations.
type WasmEngine struct {
	engine *wasmer.Engine
	store  *wasmer.Store
	module *wasmer.Module
}

// NewWasmEngine compiles wasmBytes once; instantiation happens per call via
// Instantiate.
func NewWasmEngine(wasmBytes []byte) (*WasmEngine, error) {
	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)
	module, err := wasmer.NewModule(store, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: compile transform module: %v", ErrBytecodeLoad, err)
	}
	return &WasmEngine{engine: engine, store: store, module: module}, nil
}

// Instantiate satisfies GuestFactory: it registers the host import table
// under the "env" namespace (mirroring registerHost), creates a fresh
// instance, and locates its memory export; the process_block/rollback
// function exports are looked up when they are called.
func (e *WasmEngine) Instantiate(imports *HostImports) (GuestModule, error) {
	importObject := registerABI(e.store, imports)

	instance, err := wasmer.NewInstance(e.module, importObject)
	if err != nil {
		return nil, fmt.Errorf("instantiate transform module: %w", err)
	}

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		instance.Close()
		return nil, errors.New("transform module does not export linear memory")
	}

	return &wasmGuestModule{instance: instance, mem: mem}, nil
}

// registerABI builds the wasmer import object for the env namespace,
// binding each wasmer function to the corresponding HostImports method. The
// shape (NewFunctionType per import, Register under "env") mirrors
// virtual_machine.go's registerHost.
func registerABI(store *wasmer.Store, h *HostImports) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()
	i32 := wasmer.NewValueTypes(wasmer.I32)
	i32i32 := wasmer.NewValueTypes(wasmer.I32, wasmer.I32)
	none := wasmer.NewValueTypes()

	height := wasmer.NewFunction(store, wasmer.NewFunctionType(none, i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			return []wasmer.Value{wasmer.NewI32(h.Height())}, nil
		})

	blockHash := wasmer.NewFunction(store, wasmer.NewFunctionType(none, i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			return []wasmer.Value{wasmer.NewI32(h.BlockHash())}, nil
		})

	load := wasmer.NewFunction(store, wasmer.NewFunctionType(i32, none),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			h.Load(args[0].I32())
			return []wasmer.Value{}, nil
		})

	view := wasmer.NewFunction(store, wasmer.NewFunctionType(i32i32, i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			return []wasmer.Value{wasmer.NewI32(h.View(args[0].I32(), args[1].I32()))}, nil
		})

	getState := wasmer.NewFunction(store, wasmer.NewFunctionType(i32, i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			return []wasmer.Value{wasmer.NewI32(h.GetState(args[0].I32()))}, nil
		})

	setState := wasmer.NewFunction(store, wasmer.NewFunctionType(i32i32, i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			return []wasmer.Value{wasmer.NewI32(h.SetState(args[0].I32(), args[1].I32()))}, nil
		})

	deleteState := wasmer.NewFunction(store, wasmer.NewFunctionType(i32, i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			return []wasmer.Value{wasmer.NewI32(h.DeleteState(args[0].I32()))}, nil
		})

	pushCdcMessage := wasmer.NewFunction(store, wasmer.NewFunctionType(i32, i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			return []wasmer.Value{wasmer.NewI32(h.PushCdcMessage(args[0].I32()))}, nil
		})

	stdout := wasmer.NewFunction(store, wasmer.NewFunctionType(i32, none),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			h.Stdout(args[0].I32())
			return []wasmer.Value{}, nil
		})

	stderr := wasmer.NewFunction(store, wasmer.NewFunctionType(i32, none),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			h.Stderr(args[0].I32())
			return []wasmer.Value{}, nil
		})

	imports.Register("env", map[string]wasmer.IntoExtern{
		"height":           height,
		"block_hash":       blockHash,
		"view":             view,
		"load":             load,
		"get_state":        getState,
		"set_state":        setState,
		"delete_state":     deleteState,
		"push_cdc_message": pushCdcMessage,
		"stdout":           stdout,
		"stderr":           stderr,
	})

	return imports
}

// wasmGuestModule adapts a wasmer.Instance to GuestModule.
type wasmGuestModule struct {
	instance *wasmer.Instance
	mem      *wasmer.Memory
}

func (g *wasmGuestModule) Memory() GuestMemory { return wasmMemory{g.mem} }

func (g *wasmGuestModule) CallProcessBlock() (int32, error) {
	return g.callExport("process_block")
}

func (g *wasmGuestModule) CallRollback() (int32, error) {
	return g.callExport("rollback")
}

func (g *wasmGuestModule) callExport(name string) (int32, error) {
	fn, err := g.instance.Exports.GetFunction(name)
	if err != nil {
		return 0, fmt.Errorf("transform module does not export %q: %w", name, err)
	}
	ret, err := fn()
	if err != nil {
		return 0, err
	}
	i32Ret, ok := ret.(int32)
	if !ok {
		return 0, fmt.Errorf("%q did not return an i32", name)
	}
	return i32Ret, nil
}

func (g *wasmGuestModule) Close() { g.instance.Close() }

// wasmMemory adapts *wasmer.Memory to GuestMemory.
type wasmMemory struct{ mem *wasmer.Memory }

func (m wasmMemory) Data() []byte { return m.mem.Data() }
