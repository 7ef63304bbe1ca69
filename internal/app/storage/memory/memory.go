package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/R3E-Network/yield_ledger/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu       sync.RWMutex
	snapshot *vault.State
	events   []vault.Event
}

var _ storage.StateStore = (*Store)(nil)
var _ storage.JournalStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// StateStore implementation ---------------------------------------------------

func (s *Store) Load(_ context.Context) (*vault.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return nil, nil
	}
	return s.snapshot.Clone(), nil
}

func (s *Store) Save(_ context.Context, st *vault.State, prev uint64) error {
	if st == nil {
		return fmt.Errorf("nil state")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var current uint64
	if s.snapshot != nil {
		current = s.snapshot.Version
	}
	if current != prev {
		return fmt.Errorf("stored v%d, expected v%d: %w", current, prev, storage.ErrVersionConflict)
	}
	s.snapshot = st.Clone()
	return nil
}

// JournalStore implementation -------------------------------------------------

func (s *Store) AppendEvent(_ context.Context, event vault.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListEvents returns up to limit events, newest first. A non-positive limit
// returns everything.
func (s *Store) ListEvents(_ context.Context, limit int) ([]vault.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]vault.Event, 0, n)
	for i := len(s.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}
