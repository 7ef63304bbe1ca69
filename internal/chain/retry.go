package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the node is considered unavailable after
// repeated transport failures.
var ErrCircuitOpen = errors.New("chain: circuit breaker is open")

// RetryPolicy controls how the client retries failed node calls.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier.
	Multiplier float64

	// BreakerThreshold is the number of consecutive failed calls that opens
	// the circuit (0 disables the breaker).
	BreakerThreshold int

	// BreakerReset is how long the circuit stays open.
	BreakerReset time.Duration
}

// DefaultRetryPolicy returns the policy used when Config.Retry is unset.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:       2,
		InitialDelay:     200 * time.Millisecond,
		MaxDelay:         2 * time.Second,
		Multiplier:       2.0,
		BreakerThreshold: 5,
		BreakerReset:     30 * time.Second,
	}
}

// delay returns the wait before the given retry (1-based).
func (p RetryPolicy) delay(retry int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 1; i < retry; i++ {
		d *= p.Multiplier
		if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return time.Duration(d)
}

// Methods that change chain state are sent once.
var nonIdempotent = map[string]bool{
	"sendrawtransaction": true,
	"submitblock":        true,
}

// retryable reports whether err came from the transport rather than the node
// rejecting the request.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

type breaker struct {
	mu       sync.Mutex
	failures int
	openedAt time.Time
	now      func() time.Time
}

func (b *breaker) allow(p RetryPolicy) error {
	if p.BreakerThreshold <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openedAt.IsZero() {
		return nil
	}
	if b.now().Sub(b.openedAt) >= p.BreakerReset {
		// half-open: let one call through and re-arm on failure
		b.openedAt = time.Time{}
		b.failures = p.BreakerThreshold - 1
		return nil
	}
	return ErrCircuitOpen
}

func (b *breaker) record(p RetryPolicy, failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !failed {
		b.failures = 0
		b.openedAt = time.Time{}
		return
	}
	b.failures++
	if p.BreakerThreshold > 0 && b.failures >= p.BreakerThreshold && b.openedAt.IsZero() {
		b.openedAt = b.now()
	}
}

// withRetry runs fn under the client's retry policy and circuit breaker.
func (c *Client) withRetry(ctx context.Context, method string, fn func() error) error {
	if err := c.breaker.allow(c.retry); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	attempts := 1
	if !nonIdempotent[method] && c.retry.MaxRetries > 0 {
		attempts += c.retry.MaxRetries
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(c.retry.delay(attempt - 1)):
			case <-ctx.Done():
				c.breaker.record(c.retry, true)
				return ctx.Err()
			}
		}
		err = fn()
		if !retryable(err) {
			break
		}
	}
	c.breaker.record(c.retry, retryable(err))
	return err
}
