package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCdcMessageSerialization(t *testing.T) {
	m := CdcMessage{
		Header: CdcHeader{
			Source:        "test_source",
			Timestamp:     time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			BlockHeight:   123456,
			BlockHash:     "000000000000000000024bead8df69990852c202db0e0097c1a12ea637d7e96d",
			TransactionID: "tx123",
		},
		Payload: CdcPayload{
			Operation: OpCreate,
			Table:     "test_table",
			Key:       "test_key",
			After:     json.RawMessage(`{"field1":"value1","field2":42}`),
		},
	}

	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var out CdcMessage
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out.Payload.Operation != OpCreate || out.Header.Source != "test_source" {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if out.Payload.Before != nil {
		t.Fatalf("expected absent before to stay nil, got %s", out.Payload.Before)
	}
}

func TestInverseOfCreateIsDelete(t *testing.T) {
	now := time.Unix(0, 0).UTC()
	m := CdcMessage{
		Header:  CdcHeader{Source: "s", BlockHeight: 5, BlockHash: "h5"},
		Payload: CdcPayload{Operation: OpCreate, Table: "t", Key: "k", After: json.RawMessage(`{"x":1}`)},
	}
	inv, err := Inverse(m, 4, "h4", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Payload.Operation != OpDelete {
		t.Fatalf("expected Delete, got %v", inv.Payload.Operation)
	}
	if string(inv.Payload.Before) != `{"x":1}` || inv.Payload.After != nil {
		t.Fatalf("unexpected inverse payload: %+v", inv.Payload)
	}
	if inv.Header.BlockHeight != 4 || inv.Header.BlockHash != "h4" {
		t.Fatalf("expected inverse header to carry the new tip, got %+v", inv.Header)
	}
	if inv.Header.TransactionID != "" {
		t.Fatalf("expected inverse to clear transaction id")
	}
}

func TestInverseRoundTrip(t *testing.T) {
	now := time.Unix(0, 0).UTC()
	original := CdcMessage{
		Header:  CdcHeader{Source: "s", BlockHeight: 5, BlockHash: "h5"},
		Payload: CdcPayload{Operation: OpUpdate, Table: "t", Key: "k", Before: json.RawMessage(`{"x":1}`), After: json.RawMessage(`{"x":2}`)},
	}
	inv, err := Inverse(original, 4, "h4", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	back, err := Inverse(inv, 5, "h5", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back.Payload.Operation != original.Payload.Operation ||
		string(back.Payload.Before) != string(original.Payload.Before) ||
		string(back.Payload.After) != string(original.Payload.After) ||
		back.Payload.Table != original.Payload.Table ||
		back.Payload.Key != original.Payload.Key {
		t.Fatalf("inv(inv(m)) != m on payload fields: got %+v, want %+v", back.Payload, original.Payload)
	}
}

func TestInverseBatchReversesOrder(t *testing.T) {
	now := time.Unix(0, 0).UTC()
	m1 := CdcMessage{Payload: CdcPayload{Operation: OpCreate, Table: "t", Key: "1", After: json.RawMessage(`{}`)}}
	m2 := CdcMessage{Payload: CdcPayload{Operation: OpCreate, Table: "t", Key: "2", After: json.RawMessage(`{}`)}}
	inv, err := InverseBatch([]CdcMessage{m1, m2}, 0, "h", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inv) != 2 || inv[0].Payload.Key != "2" || inv[1].Payload.Key != "1" {
		t.Fatalf("expected reverse order [2,1], got %+v", inv)
	}
}

func TestMessageID(t *testing.T) {
	m := CdcMessage{
		Header:  CdcHeader{Source: "test_source", BlockHeight: 123456},
		Payload: CdcPayload{Table: "test_table", Key: "test_key"},
	}
	if got, want := MessageID(m), "test_source:test_table:test_key:123456"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
