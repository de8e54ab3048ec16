package core

import (
	"encoding/hex"
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// hostCtx is the per-instance host state threaded through every import
// closure for a single process_block/rollback invocation. Unlike the
// reference runtime's thread-local globals (host.rs's CURRENT_HEIGHT,
// CURRENT_HASH, TRANSFORM_STATE), this struct is owned by one Runtime call
// and discarded with the guest instance that used it — no process-wide
// mutable state shared between concurrent guest instances.
type hostCtx struct {
	height uint32
	hash   []byte
	state  *TransformState
	views  *ViewRegistry
	client ViewClient

	staged []byte // most recent byte payload pending a `load` call
	cdc    []CdcMessage
	logger *logrus.Logger
}

// HostImports is the wasmer-facing (or test-facing) surface of hostCtx: one
// Go method per ABI import. A GuestFactory implementation
// registers these under whatever namespace its engine uses (the wasmer
// adapter in wasm_engine.go registers them under "env", mirroring
// virtual_machine.go's registerHost).
type HostImports struct {
	ctx *hostCtx
	mem GuestMemory
}

func newHostImports(ctx *hostCtx) *HostImports {
	return &HostImports{ctx: ctx}
}

// SetMemory binds the guest's linear memory once the instance has been
// created; import calls occur only after this point in the guest's
// lifecycle, so capturing memory lazily (as virtual_machine.go does via
// `hctx.mem = mem` after NewInstance) is safe.
func (h *HostImports) SetMemory(mem GuestMemory) { h.mem = mem }

// Height implements the `height` import.
func (h *HostImports) Height() int32 { return int32(h.ctx.height) }

// BlockHash implements the `block_hash` import: stages the current block
// hash bytes and returns their length.
func (h *HostImports) BlockHash() int32 {
	h.ctx.staged = h.ctx.hash
	return int32(len(h.ctx.staged))
}

// Load implements the `load` import: copies the staged payload into dst.
func (h *HostImports) Load(dstPtr int32) {
	writeGuestBytes(h.mem, dstPtr, h.ctx.staged)
	h.ctx.staged = nil
}

// View implements the `view` import: reads a length-prefixed view name and
// input from guest memory, resolves it against the runtime's registered
// view functions first, falling back to the configured upstream client,
// stages the result, and returns its length or a negative value on
// failure.
func (h *HostImports) View(namePtr, inputPtr int32) int32 {
	nameBytes, err := readLengthPrefixed(h.mem, namePtr)
	if err != nil {
		return -1
	}
	input, err := readLengthPrefixed(h.mem, inputPtr)
	if err != nil {
		return -1
	}
	name := string(nameBytes)

	if out, handled, err := h.ctx.views.Call(name, input); handled {
		if err != nil {
			if h.ctx.logger != nil {
				h.ctx.logger.WithError(err).WithField("view", name).Warn("view call failed")
			}
			return -1
		}
		h.ctx.staged = out
		return int32(len(out))
	}

	if h.ctx.client == nil {
		return -1
	}
	out, err := h.ctx.client.CallView(name, input, h.ctx.height)
	if err != nil {
		if h.ctx.logger != nil {
			h.ctx.logger.WithError(err).WithField("view", name).Warn("view call failed")
		}
		return -1
	}
	h.ctx.staged = out
	return int32(len(out))
}

// GetState implements the `get_state` import.
func (h *HostImports) GetState(keyPtr int32) int32 {
	key, err := readLengthPrefixed(h.mem, keyPtr)
	if err != nil {
		return -1
	}
	val, ok := h.ctx.state.Get(key)
	if !ok {
		return -1
	}
	h.ctx.staged = val
	return int32(len(val))
}

// SetState implements the `set_state` import.
func (h *HostImports) SetState(keyPtr, valPtr int32) int32 {
	key, err := readLengthPrefixed(h.mem, keyPtr)
	if err != nil {
		return -1
	}
	val, err := readLengthPrefixed(h.mem, valPtr)
	if err != nil {
		return -1
	}
	h.ctx.state.Set(key, val)
	return 0
}

// DeleteState implements the `delete_state` import: returns 1 if a key was
// removed, 0 otherwise.
func (h *HostImports) DeleteState(keyPtr int32) int32 {
	key, err := readLengthPrefixed(h.mem, keyPtr)
	if err != nil {
		return -1
	}
	if h.ctx.state.Delete(key) {
		return 1
	}
	return 0
}

// PushCdcMessage implements the `push_cdc_message` import: decodes the
// length-prefixed JSON record and appends it to the per-block buffer.
func (h *HostImports) PushCdcMessage(ptr int32) int32 {
	raw, err := readLengthPrefixed(h.mem, ptr)
	if err != nil {
		return -1
	}
	var msg CdcMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		if h.ctx.logger != nil {
			h.ctx.logger.WithError(err).Warn("guest pushed an unparseable cdc message")
		}
		return -1
	}
	h.ctx.cdc = append(h.ctx.cdc, msg)
	return int32(len(h.ctx.cdc))
}

// Stdout implements the `stdout` import: ptr is a length-prefixed buffer.
func (h *HostImports) Stdout(ptr int32) {
	msg, err := readLengthPrefixed(h.mem, ptr)
	if err != nil || h.ctx.logger == nil {
		return
	}
	h.ctx.logger.Info(string(msg))
}

// Stderr implements the `stderr` import: ptr is a length-prefixed buffer.
func (h *HostImports) Stderr(ptr int32) {
	msg, err := readLengthPrefixed(h.mem, ptr)
	if err != nil || h.ctx.logger == nil {
		return
	}
	h.ctx.logger.Warn(string(msg))
}

func decodeHexHash(hash string) []byte {
	b, err := hex.DecodeString(hash)
	if err != nil {
		return []byte(hash)
	}
	return b
}
