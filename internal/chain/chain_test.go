package chain

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func principal(b byte) domain.Principal {
	var u util.Uint160
	u[0] = b
	u[19] = 0x42
	return domain.PrincipalFromHash(u)
}

// fakeNode answers the RPC methods the package uses. Contracts other than
// token are unknown. Relayed transactions persist with appLogState.
type fakeNode struct {
	token        domain.Principal
	transferOK   bool
	transferHalt bool

	mu           sync.Mutex
	lastTransfer gjson.Result
	methods      []string
	sent         []string
	relayErr     int    // non-zero rejects sendrawtransaction with this code
	relayDrop    bool   // hang up on sendrawtransaction
	appLogState  string // defaults to HALT
	appLogAbsent bool
}

func (n *fakeNode) calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.methods {
		if m == method {
			c++
		}
	}
	return c
}

func (n *fakeNode) relayed() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	req := gjson.ParseBytes(body)
	method := req.Get("method").String()
	params := req.Get("params").Array()

	n.mu.Lock()
	defer n.mu.Unlock()
	n.methods = append(n.methods, method)

	reply := func(result string) {
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":%s}`, result)
	}
	fail := func(code int, msg string) {
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"error":{"code":%d,"message":%q}}`, code, msg)
	}
	halt := func(item string) {
		reply(`{"state":"HALT","gasconsumed":"100","stack":[` + item + `]}`)
	}

	switch method {
	case "getblockcount":
		reply("1234")
	case "getversion":
		reply(`{"protocol":{"network":860833102}}`)
	case "getcontractstate":
		if params[0].String() != n.token.Hex() {
			fail(-100, "Unknown contract")
			return
		}
		reply(`{"id":7,"hash":"` + n.token.Hex() + `","manifest":{"name":"TestToken","supportedstandards":["NEP-17"]}}`)
	case "invokefunction":
		switch params[1].String() {
		case "symbol":
			halt(`{"type":"ByteString","value":"` + base64.StdEncoding.EncodeToString([]byte("TT")) + `"}`)
		case "decimals":
			halt(`{"type":"Integer","value":"8"}`)
		case "totalSupply":
			halt(`{"type":"Integer","value":"100000000000"}`)
		case "balanceOf":
			halt(`{"type":"Integer","value":"42"}`)
		case "transfer":
			n.lastTransfer = req
			if !n.transferHalt {
				reply(`{"state":"FAULT","exception":"insufficient funds","stack":[]}`)
				return
			}
			halt(fmt.Sprintf(`{"type":"Boolean","value":%t}`, n.transferOK))
		default:
			fail(-32601, "method not found")
		}
	case "invokescript":
		halt(`{"type":"Null"}`)
	case "calculatenetworkfee":
		reply(`{"networkfee":"1230"}`)
	case "sendrawtransaction":
		if n.relayDrop {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					_ = conn.Close()
					return
				}
			}
			http.Error(w, "gone", http.StatusBadGateway)
			return
		}
		if n.relayErr != 0 {
			fail(n.relayErr, "Invalid transaction")
			return
		}
		raw := params[0].String()
		n.sent = append(n.sent, raw)
		reply(fmt.Sprintf(`{"hash":"0x%064x"}`, len(n.sent)))
	case "getapplicationlog":
		if n.appLogAbsent {
			fail(-100, "Unknown transaction")
			return
		}
		state := n.appLogState
		if state == "" {
			state = "HALT"
		}
		reply(`{"txid":"` + params[0].String() + `","executions":[{"trigger":"Application","vmstate":"` + state + `","exception":"boom","gasconsumed":"100","stack":[]}]}`)
	default:
		fail(-32601, "method not found")
	}
}

func newTestClient(t *testing.T, node http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{RPCURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestClient_BlockHeight(t *testing.T) {
	c := newTestClient(t, &fakeNode{})
	count, err := c.GetBlockCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), count)

	h, err := c.CurrentHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1233), h)

	_, err = NewClient(Config{})
	require.Error(t, err)
}

func TestClient_RPCError(t *testing.T) {
	c := newTestClient(t, &fakeNode{})
	_, err := c.Call(context.Background(), "nosuchmethod", nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
}

func TestNEP17Directory_Lookup(t *testing.T) {
	token := principal(1)
	c := newTestClient(t, &fakeNode{token: token})
	dir := NewNEP17Directory(c, nil)
	ctx := context.Background()

	h, deployed, err := dir.Lookup(ctx, principal(2))
	require.NoError(t, err)
	assert.False(t, deployed)
	assert.Nil(t, h)

	h, deployed, err = dir.Lookup(ctx, token)
	require.NoError(t, err)
	require.True(t, deployed)

	name, err := h.Name(ctx)
	require.NoError(t, err)
	assert.Equal(t, "TestToken", name)
	symbol, err := h.Symbol(ctx)
	require.NoError(t, err)
	assert.Equal(t, "TT", symbol)
	decimals, err := h.Decimals(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint8(8), decimals)
	supply, err := h.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100000000000), supply)
	bal, err := h.BalanceOf(ctx, principal(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), bal)
}

type recordingSubmitter struct {
	reqs []TransferRequest
}

func (s *recordingSubmitter) SubmitTransfer(_ context.Context, req TransferRequest) (string, error) {
	s.reqs = append(s.reqs, req)
	return "0xabc", nil
}

func TestNEP17Token_Transfer(t *testing.T) {
	token := principal(1)
	node := &fakeNode{token: token, transferHalt: true, transferOK: true}
	c := newTestClient(t, node)
	sub := &recordingSubmitter{}
	h, _, err := NewNEP17Directory(c, sub).Lookup(context.Background(), token)
	require.NoError(t, err)

	from, to := principal(5), principal(6)
	require.NoError(t, h.Transfer(context.Background(), 500, from, to, nil))
	node.mu.Lock()
	params := node.lastTransfer.Get("params")
	node.mu.Unlock()
	assert.Equal(t, from.Hex(), params.Get("2.0.value").String())
	assert.Equal(t, "500", params.Get("2.2.value").String())
	assert.Equal(t, from.Hex(), params.Get("3.0.account").String())
	require.Len(t, sub.reqs, 1)
	assert.Equal(t, uint64(500), sub.reqs[0].Amount)
	assert.Equal(t, token, sub.reqs[0].Token)

	node.mu.Lock()
	node.transferOK = false
	node.mu.Unlock()
	require.Error(t, h.Transfer(context.Background(), 500, from, to, nil))
	node.mu.Lock()
	node.transferHalt = false
	node.mu.Unlock()
	require.Error(t, h.Transfer(context.Background(), 500, from, to, nil))
	assert.Len(t, sub.reqs, 1, "rejected transfers are not submitted")
}

func TestNEP17Token_TransferNeedsSubmitter(t *testing.T) {
	token := principal(1)
	node := &fakeNode{token: token, transferHalt: true, transferOK: true}
	c := newTestClient(t, node)
	ctx := context.Background()

	h, _, err := NewNEP17Directory(c, nil).Lookup(ctx, token)
	require.NoError(t, err)
	require.ErrorIs(t, h.Transfer(ctx, 500, principal(5), principal(6), nil), ErrNoSubmitter)
	node.mu.Lock()
	assert.False(t, node.lastTransfer.Exists(), "transfer was test-invoked")
	node.mu.Unlock()

	h, _, err = NewNEP17Directory(c, nil, SimulateTransfers()).Lookup(ctx, token)
	require.NoError(t, err)
	require.NoError(t, h.Transfer(ctx, 500, principal(5), principal(6), nil))
	assert.Zero(t, node.calls("sendrawtransaction"))
}

func TestParsers(t *testing.T) {
	n, err := ParseInteger(StackItem{Type: "ByteString", Value: base64.StdEncoding.EncodeToString([]byte{0xff})})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), n.Int64())

	n, err = ParseInteger(StackItem{Type: "ByteString", Value: base64.StdEncoding.EncodeToString([]byte{0x00, 0x01})})
	require.NoError(t, err)
	assert.Equal(t, int64(256), n.Int64())

	_, err = ParseUint64(StackItem{Type: "Integer", Value: "-5"})
	require.Error(t, err)
	_, err = ParseInteger(StackItem{Type: "Integer", Value: "abc"})
	require.Error(t, err)

	b, err := ParseBoolean(StackItem{Type: "Boolean", Value: "true"})
	require.NoError(t, err)
	assert.True(t, b)

	s, err := ParseString(StackItem{Type: "Null"})
	require.NoError(t, err)
	assert.Empty(t, s)
}
