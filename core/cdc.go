package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// CdcOperation is the kind of change a CDC record describes.
type CdcOperation int

const (
	OpCreate CdcOperation = iota
	OpUpdate
	OpDelete
)

func (o CdcOperation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

func (o CdcOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *CdcOperation) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "create":
		*o = OpCreate
	case "update":
		*o = OpUpdate
	case "delete":
		*o = OpDelete
	default:
		return fmt.Errorf("%w: unknown cdc operation %q", ErrSerialization, s)
	}
	return nil
}

// CdcHeader carries the provenance of a CDC message.
type CdcHeader struct {
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	BlockHeight   uint32    `json:"block_height"`
	BlockHash     string    `json:"block_hash"`
	TransactionID string    `json:"transaction_id,omitempty"`
}

// CdcPayload carries the change itself.
//
// Invariants: Create requires Before == nil && After != nil; Delete requires
// Before != nil && After == nil; Update requires both present.
type CdcPayload struct {
	Operation CdcOperation    `json:"operation"`
	Table     string          `json:"table"`
	Key       string          `json:"key"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
}

// CdcMessage is a complete change-data-capture record.
type CdcMessage struct {
	Header  CdcHeader  `json:"header"`
	Payload CdcPayload `json:"payload"`
}

// MessageID returns a deterministic idempotency key for a message, combining
// source, table, key and block height the way downstream dedup keys off of
// for at-least-once delivery.
func MessageID(m CdcMessage) string {
	return fmt.Sprintf("%s:%s:%s:%d", m.Header.Source, m.Payload.Table, m.Payload.Key, m.Header.BlockHeight)
}

// Inverse returns the compensating record for m, per the derivation table:
// Create -> Delete, Update -> Update (before/after swapped), Delete -> Create.
// The new header's block height/hash/timestamp are supplied by the caller
// since they reflect the post-rollback tip, not the original block.
func Inverse(m CdcMessage, newHeight uint32, newHash string, now time.Time) (CdcMessage, error) {
	inv := CdcMessage{
		Header: CdcHeader{
			Source:      m.Header.Source,
			Timestamp:   now,
			BlockHeight: newHeight,
			BlockHash:   newHash,
		},
		Payload: CdcPayload{
			Table: m.Payload.Table,
			Key:   m.Payload.Key,
		},
	}
	switch m.Payload.Operation {
	case OpCreate:
		inv.Payload.Operation = OpDelete
		inv.Payload.Before = m.Payload.After
		inv.Payload.After = nil
	case OpUpdate:
		inv.Payload.Operation = OpUpdate
		inv.Payload.Before = m.Payload.After
		inv.Payload.After = m.Payload.Before
	case OpDelete:
		inv.Payload.Operation = OpCreate
		inv.Payload.Before = nil
		inv.Payload.After = m.Payload.Before
	default:
		return CdcMessage{}, fmt.Errorf("%w: cannot invert message with unknown operation", ErrSerialization)
	}
	return inv, nil
}

// InverseBatch inverts a block's emitted records in reverse order: the
// inverse sequence to replay is [inv(mn), ..., inv(m1)].
func InverseBatch(msgs []CdcMessage, newHeight uint32, newHash string, now time.Time) ([]CdcMessage, error) {
	out := make([]CdcMessage, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		inv, err := Inverse(msgs[i], newHeight, newHash, now)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}
