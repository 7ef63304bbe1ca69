// Package chain talks to a Neo N3 node over JSON-RPC. It supplies the ledger
// with the current block height and resolves NEP-17 asset handlers.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Client provides Neo N3 RPC client functionality.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	networkID  uint32
	retry      RetryPolicy
	breaker    *breaker
}

// Config holds client configuration.
type Config struct {
	RPCURL    string
	NetworkID uint32 // MainNet: 860833102, TestNet: 894710606
	Timeout   time.Duration
	Retry     RetryPolicy // zero value selects DefaultRetryPolicy
}

// NewClient creates a new Neo N3 client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	retry := cfg.Retry
	if retry == (RetryPolicy{}) {
		retry = DefaultRetryPolicy()
	}

	return &Client{
		rpcURL:     cfg.RPCURL,
		httpClient: &http.Client{Timeout: timeout},
		networkID:  cfg.NetworkID,
		retry:      retry,
		breaker:    &breaker{now: time.Now},
	}, nil
}

// NetworkID returns the configured network magic.
func (c *Client) NetworkID() uint32 {
	return c.networkID
}

// Call makes an RPC call to the Neo N3 node and returns the raw result.
// Transport failures of read methods are retried with backoff.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (gjson.Result, error) {
	var result gjson.Result
	err := c.withRetry(ctx, method, func() error {
		var err error
		result, err = c.call(ctx, method, params)
		return err
	})
	return result, err
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (gjson.Result, error) {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read response: %w", err)
	}
	if !gjson.ValidBytes(respBody) {
		return gjson.Result{}, fmt.Errorf("%s: invalid response (http %d)", method, resp.StatusCode)
	}

	parsed := gjson.ParseBytes(respBody)
	if rpcErr := parsed.Get("error"); rpcErr.Exists() && rpcErr.Type != gjson.Null {
		return gjson.Result{}, &RPCError{
			Code:    int(rpcErr.Get("code").Int()),
			Message: rpcErr.Get("message").String(),
		}
	}
	result := parsed.Get("result")
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("%s: response has no result", method)
	}
	return result, nil
}

// GetBlockCount returns the number of blocks in the chain.
func (c *Client) GetBlockCount(ctx context.Context) (uint64, error) {
	result, err := c.Call(ctx, "getblockcount", nil)
	if err != nil {
		return 0, err
	}
	if result.Type != gjson.Number {
		return 0, fmt.Errorf("getblockcount: unexpected result %s", result.Raw)
	}
	return result.Uint(), nil
}

// CurrentHeight returns the index of the latest block. It makes the client a
// block source for the ledger.
func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	count, err := c.GetBlockCount(ctx)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	return count - 1, nil
}
