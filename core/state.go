package core

import "bytes"

// TransformState is the guest's only durable memory between block
// invocations: a byte-keyed, byte-valued mapping with a dirty flag set by
// any mutation and cleared only by MarkClean.
type TransformState struct {
	inner map[string][]byte
	dirty bool
}

// NewTransformState returns an empty, clean state.
func NewTransformState() *TransformState {
	return &TransformState{inner: make(map[string][]byte)}
}

func (s *TransformState) Get(key []byte) ([]byte, bool) {
	v, ok := s.inner[string(key)]
	return v, ok
}

func (s *TransformState) Set(key, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	s.inner[string(key)] = cp
	s.dirty = true
}

// Delete removes key, reporting whether it was present. Deleting an absent
// key does not mark the state dirty.
func (s *TransformState) Delete(key []byte) bool {
	_, ok := s.inner[string(key)]
	if ok {
		delete(s.inner, string(key))
		s.dirty = true
	}
	return ok
}

func (s *TransformState) IsDirty() bool { return s.dirty }

func (s *TransformState) MarkClean() { s.dirty = false }

func (s *TransformState) Keys() [][]byte {
	out := make([][]byte, 0, len(s.inner))
	for k := range s.inner {
		out = append(out, []byte(k))
	}
	return out
}

func (s *TransformState) KeysWithPrefix(prefix []byte) [][]byte {
	out := make([][]byte, 0)
	for k := range s.inner {
		if bytes.HasPrefix([]byte(k), prefix) {
			out = append(out, []byte(k))
		}
	}
	return out
}

// Iter calls fn for every key/value pair. Iteration order is unspecified.
func (s *TransformState) Iter(fn func(key, value []byte)) {
	for k, v := range s.inner {
		fn([]byte(k), v)
	}
}

func (s *TransformState) Len() int { return len(s.inner) }

func (s *TransformState) IsEmpty() bool { return len(s.inner) == 0 }

// Clear empties the state. Clearing an already-empty state does not mark it
// dirty.
func (s *TransformState) Clear() {
	if len(s.inner) > 0 {
		s.inner = make(map[string][]byte)
		s.dirty = true
	}
}

// Snapshot returns a deep copy suitable for caching alongside a processed
// block and later restoring on rollback.
func (s *TransformState) Snapshot() *TransformState {
	cp := &TransformState{inner: make(map[string][]byte, len(s.inner)), dirty: s.dirty}
	for k, v := range s.inner {
		vv := make([]byte, len(v))
		copy(vv, v)
		cp.inner[k] = vv
	}
	return cp
}
