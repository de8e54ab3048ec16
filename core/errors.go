package core

import "errors"

// Sentinel error kinds per the error taxonomy. Callers wrap them with %w and
// match them with errors.Is; no propagation policy (fatal, retried,
// tick-aborting) is encoded in the kind itself.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrUpstreamTransport = errors.New("upstream transport error")
	ErrBytecodeLoad      = errors.New("bytecode load error")
	ErrTransformExec     = errors.New("transform execution error")
	ErrSerialization     = errors.New("serialization error")
	ErrSink              = errors.New("sink error")
	ErrReorgHandling     = errors.New("reorg handling error")
	ErrStateInvariant    = errors.New("state invariant violation")
)
