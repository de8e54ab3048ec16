package jsonrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler func(req request) (any, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("server: decode request: %v", err)
		}
		result, rpcErr := handler(req)
		resp := response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
		if rpcErr == nil {
			raw, err := json.Marshal(result)
			if err != nil {
				t.Fatalf("server: marshal result: %v", err)
			}
			resp.Result = raw
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("server: encode response: %v", err)
		}
	}))
}

func TestClientHeight(t *testing.T) {
	srv := newTestServer(t, func(req request) (any, *rpcError) {
		if req.Method != "height" {
			t.Fatalf("expected method height, got %s", req.Method)
		}
		return 12345, nil
	})
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h, err := c.Height(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h != 12345 {
		t.Fatalf("expected height 12345, got %d", h)
	}
}

func TestClientBlockHash(t *testing.T) {
	srv := newTestServer(t, func(req request) (any, *rpcError) {
		if req.Method != "blockHash" {
			t.Fatalf("expected method blockHash, got %s", req.Method)
		}
		return "deadbeef", nil
	})
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hash, err := c.BlockHash(context.Background(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash != "deadbeef" {
		t.Fatalf("expected deadbeef, got %s", hash)
	}
}

func TestClientCallViewSendsHexEncodedParams(t *testing.T) {
	var gotParams []any
	srv := newTestServer(t, func(req request) (any, *rpcError) {
		params, ok := req.Params.([]any)
		if !ok {
			t.Fatalf("expected params to decode as a JSON array, got %T", req.Params)
		}
		gotParams = params
		return json.RawMessage(`{}`), nil
	})
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.CallView("balance", []byte{0xde, 0xad, 0xbe, 0xef}, 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(gotParams) != 3 {
		t.Fatalf("expected 3 positional params, got %d: %v", len(gotParams), gotParams)
	}
	if gotParams[0] != "balance" {
		t.Fatalf("expected name %q, got %v", "balance", gotParams[0])
	}
	if gotParams[1] != "deadbeef" {
		t.Fatalf("expected lower-case unpadded hex %q, got %v", "deadbeef", gotParams[1])
	}
}

func TestClientCallViewPropagatesRpcError(t *testing.T) {
	srv := newTestServer(t, func(req request) (any, *rpcError) {
		return nil, &rpcError{Code: -32000, Message: "view not found"}
	})
	defer srv.Close()

	c, err := NewClient(srv.URL, WithMaxRetries(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = c.CallView("missing_view", []byte(`{}`), 1)
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestNewClientRejectsInvalidURL(t *testing.T) {
	if _, err := NewClient("not-a-url"); err == nil {
		t.Fatalf("expected an error for an invalid url")
	}
}

func TestMockClientServesFixtures(t *testing.T) {
	m := NewMockClient()
	m.Heights = []uint32{100, 101, 102}
	m.BlockHashes[100] = "h100"
	m.Views["balance"] = []byte(`{"balance":1}`)

	ctx := context.Background()
	for _, want := range []uint32{100, 101, 102, 102} {
		h, err := m.Height(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h != want {
			t.Fatalf("expected %d, got %d", want, h)
		}
	}

	hash, err := m.BlockHash(ctx, 100)
	if err != nil || hash != "h100" {
		t.Fatalf("unexpected hash result: %s, %v", hash, err)
	}

	out, err := m.CallView("balance", nil, 100)
	if err != nil || string(out) != `{"balance":1}` {
		t.Fatalf("unexpected view result: %s, %v", out, err)
	}
}
