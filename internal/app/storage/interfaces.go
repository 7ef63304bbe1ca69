package storage

import (
	"context"
	"errors"

	"github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
)

// ErrVersionConflict is returned by Save when the stored snapshot is not at
// the version the caller staged its changes against.
var ErrVersionConflict = errors.New("state version conflict")

// StateStore persists versioned ledger snapshots.
type StateStore interface {
	// Load returns the latest snapshot, or nil when nothing was saved yet.
	Load(ctx context.Context) (*vault.State, error)
	// Save stores st (whose Version is prev+1) if the latest stored version
	// is prev. Version 0 means "no snapshot yet".
	Save(ctx context.Context, st *vault.State, prev uint64) error
}

// JournalStore is implemented by stores that also keep the event history.
type JournalStore interface {
	AppendEvent(ctx context.Context, event vault.Event) error
	ListEvents(ctx context.Context, limit int) ([]vault.Event, error)
}
