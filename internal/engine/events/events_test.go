package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
)

func event(id string, kind vault.EventKind, user vault.Principal) vault.Event {
	return vault.Event{ID: id, Kind: kind, User: user}
}

func TestRingBuffer_Publish(t *testing.T) {
	rb := NewRingBuffer(10)
	if err := rb.Publish(context.Background(), event("a", vault.EventDeposit, "alice")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if rb.Count() != 1 {
		t.Errorf("Count() = %d, want 1", rb.Count())
	}
	recent := rb.Recent(1)
	if len(recent) != 1 || recent[0].ID != "a" {
		t.Fatalf("Recent(1) = %+v", recent)
	}
}

func TestRingBuffer_Overflow(t *testing.T) {
	rb := NewRingBuffer(5)
	for i := 0; i < 10; i++ {
		_ = rb.Publish(context.Background(), event(string(rune('A'+i)), vault.EventDeposit, ""))
	}

	if rb.Count() != 5 {
		t.Errorf("Count() = %d, want 5 (capped)", rb.Count())
	}
	recent := rb.Recent(5)
	if len(recent) != 5 {
		t.Fatalf("Recent(5) len = %d, want 5", len(recent))
	}
	if recent[0].ID != "J" {
		t.Errorf("newest = %q, want J", recent[0].ID)
	}
	if recent[4].ID != "F" {
		t.Errorf("oldest = %q, want F", recent[4].ID)
	}
	if got := rb.Recent(0); got != nil {
		t.Errorf("Recent(0) = %+v, want nil", got)
	}
}

func TestRingBuffer_RecentFilters(t *testing.T) {
	rb := NewRingBuffer(10)
	ctx := context.Background()
	_ = rb.Publish(ctx, event("1", vault.EventDeposit, "alice"))
	_ = rb.Publish(ctx, event("2", vault.EventDeposit, "bob"))
	_ = rb.Publish(ctx, event("3", vault.EventWithdraw, "alice"))
	_ = rb.Publish(ctx, event("4", vault.EventClaimRewards, "alice"))

	deposits := rb.RecentByKind(vault.EventDeposit, 10)
	if len(deposits) != 2 || deposits[0].ID != "2" || deposits[1].ID != "1" {
		t.Fatalf("RecentByKind = %+v", deposits)
	}
	aliceEvents := rb.RecentByUser("alice", 2)
	if len(aliceEvents) != 2 || aliceEvents[0].ID != "4" || aliceEvents[1].ID != "3" {
		t.Fatalf("RecentByUser = %+v", aliceEvents)
	}

	rb.Clear()
	if rb.Count() != 0 || rb.Recent(10) != nil {
		t.Fatalf("Clear did not empty buffer")
	}
}

func TestRingBuffer_Subscribe(t *testing.T) {
	rb := NewRingBuffer(10)
	ctx := context.Background()

	var all, withdrawals int32
	unsubAll := rb.Subscribe(func(vault.Event) { atomic.AddInt32(&all, 1) })
	unsubW := rb.SubscribeFiltered(func(e vault.Event) bool { return e.Kind == vault.EventWithdraw },
		func(vault.Event) { atomic.AddInt32(&withdrawals, 1) })
	if rb.Subscribers() != 2 {
		t.Fatalf("Subscribers() = %d", rb.Subscribers())
	}

	_ = rb.Publish(ctx, event("1", vault.EventDeposit, "alice"))
	_ = rb.Publish(ctx, event("2", vault.EventWithdraw, "alice"))

	if atomic.LoadInt32(&all) != 2 || atomic.LoadInt32(&withdrawals) != 1 {
		t.Fatalf("all=%d withdrawals=%d", all, withdrawals)
	}

	unsubAll()
	unsubW()
	_ = rb.Publish(ctx, event("3", vault.EventWithdraw, "alice"))
	if atomic.LoadInt32(&all) != 2 || rb.Subscribers() != 0 {
		t.Fatalf("handler called after unsubscribe")
	}
}

func TestRingBuffer_Concurrent(t *testing.T) {
	rb := NewRingBuffer(100)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = rb.Publish(context.Background(), event("x", vault.EventDeposit, ""))
				_ = rb.Recent(5)
			}
		}()
	}
	wg.Wait()
	if rb.Count() != 100 {
		t.Fatalf("Count() = %d, want 100", rb.Count())
	}
}
