package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/R3E-Network/yield_ledger/internal/app/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store implements the storage interfaces backed by PostgreSQL. The ledger
// state is a single versioned JSONB row; events are appended to their own
// table.
type Store struct {
	db *sqlx.DB
}

var _ storage.StateStore = (*Store)(nil)
var _ storage.JournalStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// Open connects to dsn with the lib/pq driver.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for migrations.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- StateStore -------------------------------------------------------------

type stateRow struct {
	Version  int64  `db:"version"`
	Snapshot []byte `db:"snapshot"`
}

func (s *Store) Load(ctx context.Context) (*vault.State, error) {
	var row stateRow
	err := s.db.GetContext(ctx, &row, `
		SELECT version, snapshot
		FROM ledger_state
		WHERE id = 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var st vault.State
	if err := json.Unmarshal(row.Snapshot, &st); err != nil {
		return nil, fmt.Errorf("decode snapshot v%d: %w", row.Version, err)
	}
	st.Version = uint64(row.Version)
	st.Normalize()
	return &st, nil
}

func (s *Store) Save(ctx context.Context, st *vault.State, prev uint64) error {
	snapshot, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	now := time.Now().UTC()

	var result sql.Result
	if prev == 0 {
		result, err = s.db.ExecContext(ctx, `
			INSERT INTO ledger_state (id, version, snapshot, updated_at)
			VALUES (1, $1, $2, $3)
			ON CONFLICT (id) DO NOTHING
		`, int64(st.Version), snapshot, now)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE ledger_state
			SET version = $1, snapshot = $2, updated_at = $3
			WHERE id = 1 AND version = $4
		`, int64(st.Version), snapshot, now, int64(prev))
	}
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("save v%d over v%d: %w", st.Version, prev, storage.ErrVersionConflict)
	}
	return nil
}

// --- JournalStore -----------------------------------------------------------

type eventRow struct {
	ID        string    `db:"id"`
	Kind      string    `db:"kind"`
	Principal string    `db:"principal"`
	Handler   string    `db:"handler"`
	Amount    string    `db:"amount"`
	Block     int64     `db:"block"`
	Version   int64     `db:"version"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *Store) AppendEvent(ctx context.Context, event vault.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_events (id, kind, principal, handler, amount, block, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, string(event.Kind), string(event.User), string(event.Handler),
		strconv.FormatUint(event.Amount, 10), int64(event.Block), int64(event.Version), event.Timestamp.UTC())
	return err
}

func (s *Store) ListEvents(ctx context.Context, limit int) ([]vault.Event, error) {
	query := `
		SELECT id, kind, principal, handler, amount, block, version, created_at
		FROM ledger_events
		ORDER BY created_at DESC, version DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]vault.Event, 0, len(rows))
	for _, r := range rows {
		amount, err := strconv.ParseUint(r.Amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("event %s amount %q: %w", r.ID, r.Amount, err)
		}
		out = append(out, vault.Event{
			ID:        r.ID,
			Kind:      vault.EventKind(r.Kind),
			User:      vault.Principal(r.Principal),
			Handler:   vault.Principal(r.Handler),
			Amount:    amount,
			Block:     uint64(r.Block),
			Version:   uint64(r.Version),
			Timestamp: r.CreatedAt,
		})
	}
	return out, nil
}
