// Package events keeps a bounded in-memory history of committed ledger events
// and fans them out to live subscribers (the websocket stream).
package events

import (
	"context"
	"sync"

	"github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
)

// Handler processes events as they are published.
type Handler func(vault.Event)

// Filter decides whether a subscriber receives an event.
type Filter func(vault.Event) bool

// RingBuffer is a thread-safe circular buffer of ledger events. It implements
// the ledger's EventSink.
type RingBuffer struct {
	mu       sync.RWMutex
	events   []vault.Event
	size     int
	head     int
	count    int
	handlers []handlerEntry
	nextID   int64
}

type handlerEntry struct {
	id      int64
	filter  Filter
	handler Handler
}

// DefaultSize is used when NewRingBuffer is given a non-positive size.
const DefaultSize = 1000

// NewRingBuffer creates a buffer that keeps the last size events.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &RingBuffer{
		events: make([]vault.Event, size),
		size:   size,
	}
}

// Publish records the event and notifies subscribers outside the lock.
func (rb *RingBuffer) Publish(_ context.Context, event vault.Event) error {
	rb.mu.Lock()
	rb.events[rb.head] = event
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}
	handlers := make([]handlerEntry, len(rb.handlers))
	copy(handlers, rb.handlers)
	rb.mu.Unlock()

	for _, h := range handlers {
		if h.filter == nil || h.filter(event) {
			h.handler(event)
		}
	}
	return nil
}

// Subscribe registers a handler for all events and returns the unsubscribe
// function.
func (rb *RingBuffer) Subscribe(handler Handler) func() {
	return rb.SubscribeFiltered(nil, handler)
}

// SubscribeFiltered registers a handler that only sees events passing filter.
func (rb *RingBuffer) SubscribeFiltered(filter Filter, handler Handler) func() {
	rb.mu.Lock()
	id := rb.nextID
	rb.nextID++
	rb.handlers = append(rb.handlers, handlerEntry{id: id, filter: filter, handler: handler})
	rb.mu.Unlock()

	return func() {
		rb.mu.Lock()
		defer rb.mu.Unlock()
		for i, h := range rb.handlers {
			if h.id == id {
				rb.handlers = append(rb.handlers[:i], rb.handlers[i+1:]...)
				return
			}
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (rb *RingBuffer) Subscribers() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.handlers)
}

// Recent returns the most recent n events, newest first.
func (rb *RingBuffer) Recent(n int) []vault.Event {
	return rb.recentMatching(n, nil)
}

// RecentByKind returns the most recent n events of one kind.
func (rb *RingBuffer) RecentByKind(kind vault.EventKind, n int) []vault.Event {
	return rb.recentMatching(n, func(e vault.Event) bool { return e.Kind == kind })
}

// RecentByUser returns the most recent n events involving the participant.
func (rb *RingBuffer) RecentByUser(user vault.Principal, n int) []vault.Event {
	return rb.recentMatching(n, func(e vault.Event) bool { return e.User == user })
}

func (rb *RingBuffer) recentMatching(n int, match Filter) []vault.Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || rb.count == 0 {
		return nil
	}
	var result []vault.Event
	for i := 0; i < rb.count && len(result) < n; i++ {
		idx := (rb.head - 1 - i + rb.size) % rb.size
		if match == nil || match(rb.events[idx]) {
			result = append(result, rb.events[idx])
		}
	}
	return result
}

// Count returns the number of buffered events.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Clear drops the history. Subscriptions are kept.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.events = make([]vault.Event, rb.size)
	rb.head = 0
	rb.count = 0
}
