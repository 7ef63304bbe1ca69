package chain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flakyNode(failures int32) (http.Handler, *int32) {
	var hits int32
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= failures {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":10}`))
	}), &hits
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:       2,
		InitialDelay:     time.Millisecond,
		MaxDelay:         5 * time.Millisecond,
		Multiplier:       2,
		BreakerThreshold: 2,
		BreakerReset:     time.Minute,
	}
}

func TestClient_RetriesTransportFailures(t *testing.T) {
	node, hits := flakyNode(2)
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{RPCURL: srv.URL, Retry: fastPolicy()})
	require.NoError(t, err)

	count, err := c.GetBlockCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), count)
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
}

func TestClient_DoesNotRetryRPCErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-100,"message":"unknown contract"}}`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{RPCURL: srv.URL, Retry: fastPolicy()})
	require.NoError(t, err)

	_, err = c.Call(context.Background(), "getcontractstate", []interface{}{"0x01"})
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClient_SubmissionsAreSentOnce(t *testing.T) {
	node, hits := flakyNode(5)
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{RPCURL: srv.URL, Retry: fastPolicy()})
	require.NoError(t, err)

	_, err = c.Call(context.Background(), "sendrawtransaction", []interface{}{"AA=="})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestClient_CircuitBreaker(t *testing.T) {
	node, hits := flakyNode(100)
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	policy := fastPolicy()
	policy.MaxRetries = 0
	c, err := NewClient(Config{RPCURL: srv.URL, Retry: policy})
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	c.breaker.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err = c.GetBlockCount(ctx)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrCircuitOpen)
	}

	_, err = c.GetBlockCount(ctx)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))

	now = now.Add(policy.BreakerReset)
	_, err = c.GetBlockCount(ctx)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))

	_, err = c.GetBlockCount(ctx)
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: 350 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, p.delay(1))
	assert.Equal(t, 200*time.Millisecond, p.delay(2))
	assert.Equal(t, 350*time.Millisecond, p.delay(3))
}
