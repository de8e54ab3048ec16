// Package jsonrpc implements a minimal JSON-RPC 2.0 client for the upstream
// view-provider the runtime depends on, plus bounded retry around transient
// transport failures.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"reorgcdc/core"
	"reorgcdc/pkg/utils"
)

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message) }

// Client is an HTTP-transported JSON-RPC 2.0 client bound to a single
// upstream endpoint, with calls wrapped in an exponential backoff retry
// (cenkalti/backoff/v4, the same retry library erigon's go.mod carries for
// its own upstream RPC plumbing).
type Client struct {
	url        string
	httpClient *http.Client
	maxRetries uint64
	nextID     int64
	logger     *logrus.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default *http.Client (useful for injecting
// timeouts or a custom transport in tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries bounds the number of retry attempts for transient failures.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithLogger attaches a logger used to report retried/failed calls.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient constructs a Client bound to rawURL, validated via
// utils.ParseURL.
func NewClient(rawURL string, opts ...Option) (*Client, error) {
	if _, err := utils.ParseURL(rawURL); err != nil {
		return nil, utils.Wrap(err, "invalid upstream url")
	}
	c := &Client{
		url:        rawURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 5,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Height calls the `height` method, returning the current tip height as
// reported by the upstream view-provider.
func (c *Client) Height(ctx context.Context) (uint32, error) {
	var out uint32
	if err := c.callWithRetry(ctx, "height", nil, &out); err != nil {
		return 0, fmt.Errorf("%w: height: %v", core.ErrUpstreamTransport, err)
	}
	return out, nil
}

// BlockHash calls the `blockHash` method for the block at height.
func (c *Client) BlockHash(ctx context.Context, height uint32) (string, error) {
	var out string
	if err := c.callWithRetry(ctx, "blockHash", []any{height}, &out); err != nil {
		return "", fmt.Errorf("%w: blockHash(%d): %v", core.ErrUpstreamTransport, height, err)
	}
	return out, nil
}

// CallView implements core.ViewClient by forwarding to the upstream `view`
// method with (name, hex(params), height) positional arguments: params is an
// arbitrary guest-supplied byte buffer, not necessarily valid JSON, so it
// travels over the wire as lower-case unpadded hex rather than a raw JSON
// value.
func (c *Client) CallView(name string, params []byte, atHeight uint32) ([]byte, error) {
	var out json.RawMessage
	err := c.callWithRetry(context.Background(), "view", []any{name, hex.EncodeToString(params), atHeight}, &out)
	if err != nil {
		return nil, fmt.Errorf("%w: view(%s): %v", core.ErrUpstreamTransport, name, err)
	}
	return out, nil
}

func (c *Client) callWithRetry(ctx context.Context, method string, params any, out any) error {
	var raw json.RawMessage

	op := func() error {
		r, err := c.call(ctx, method, params)
		if err != nil {
			return err
		}
		raw = r
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries)
	notify := func(err error, wait time.Duration) {
		if c.logger != nil {
			c.logger.WithError(err).WithField("method", method).WithField("wait", wait).
				Warn("retrying jsonrpc call")
		}
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.nextID++
	body, err := json.Marshal(request{JSONRPC: "2.0", ID: c.nextID, Method: method, Params: params})
	if err != nil {
		return nil, utils.Wrap(err, "marshal jsonrpc request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, utils.Wrap(err, "build jsonrpc request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, utils.Wrap(err, "jsonrpc transport")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, utils.Wrap(err, "read jsonrpc response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jsonrpc http status %d: %s", resp.StatusCode, raw)
	}

	var rpcResp response
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, utils.Wrap(err, "unmarshal jsonrpc response")
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}
