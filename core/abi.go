package core

import (
	"encoding/binary"
	"fmt"
)

// EncodeLengthPrefixed lays out a byte buffer for the host<->guest boundary:
// a little-endian u32 length immediately followed by the payload.
func EncodeLengthPrefixed(b []byte) []byte {
	out := make([]byte, 4+len(b))
	binary.LittleEndian.PutUint32(out, uint32(len(b)))
	copy(out[4:], b)
	return out
}

// DecodeLengthPrefixed reads a length-prefixed buffer starting at the front
// of mem and returns the payload bytes.
func DecodeLengthPrefixed(mem []byte) ([]byte, error) {
	if len(mem) < 4 {
		return nil, fmt.Errorf("%w: buffer too short for length prefix", ErrSerialization)
	}
	n := binary.LittleEndian.Uint32(mem[:4])
	end := 4 + int(n)
	if end > len(mem) {
		return nil, fmt.Errorf("%w: length prefix %d exceeds available %d bytes", ErrSerialization, n, len(mem)-4)
	}
	return mem[4:end], nil
}

// GuestMemory is the linear byte array a guest module exposes to the host.
// Grounded on virtual_machine.go's LinearMemory/wasmer.Memory access pattern:
// the host never holds its own copy of guest memory, it reads/writes the
// guest's backing array directly by offset.
type GuestMemory interface {
	Data() []byte
}

// GuestModule is the sandboxed bytecode module contract: it must expose a
// linear memory and the two required exports.
type GuestModule interface {
	Memory() GuestMemory
	CallProcessBlock() (int32, error)
	CallRollback() (int32, error)
	Close()
}

// GuestFactory instantiates a fresh GuestModule bound to the given host
// import table for a single invocation. A new instance is created per
// process_block/rollback call, since the guest's private heap does not
// persist across invocations, mirroring HeavyVM.Execute's per-call
// wasmer.NewInstance(mod, imports).
type GuestFactory interface {
	Instantiate(imports *HostImports) (GuestModule, error)
}

// writeGuestBytes writes data into guest memory at offset, mirroring
// virtual_machine.go's registerHost "write" closure.
func writeGuestBytes(mem GuestMemory, offset int32, data []byte) {
	d := mem.Data()
	if offset < 0 || int(offset) > len(d) {
		return
	}
	copy(d[offset:], data)
}

// readLengthPrefixed reads a length-prefixed buffer living in guest memory
// at ptr.
func readLengthPrefixed(mem GuestMemory, ptr int32) ([]byte, error) {
	data := mem.Data()
	if ptr < 0 || int(ptr)+4 > len(data) {
		return nil, fmt.Errorf("%w: pointer out of bounds", ErrSerialization)
	}
	n := binary.LittleEndian.Uint32(data[ptr : ptr+4])
	start := int(ptr) + 4
	end := start + int(n)
	if end > len(data) {
		return nil, fmt.Errorf("%w: length prefix %d exceeds guest memory", ErrSerialization, n)
	}
	out := make([]byte, n)
	copy(out, data[start:end])
	return out, nil
}
