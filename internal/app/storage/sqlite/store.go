// Package sqlite persists the ledger in a single SQLite file. It is the
// default durable backend for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/R3E-Network/yield_ledger/internal/app/storage"
	_ "modernc.org/sqlite"
)

// Store implements storage.StateStore and storage.JournalStore.
type Store struct {
	db *sql.DB
}

var _ storage.StateStore = (*Store)(nil)
var _ storage.JournalStore = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	db, err := sql.Open("sqlite", filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer keeps SQLITE_BUSY out of the commit path.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ledger_state (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			version    INTEGER NOT NULL,
			snapshot   BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_events (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			kind       TEXT NOT NULL,
			principal  TEXT NOT NULL,
			handler    TEXT NOT NULL,
			amount     TEXT NOT NULL,
			block      INTEGER NOT NULL,
			version    INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_events_principal ON ledger_events(principal)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (*vault.State, error) {
	var (
		version  int64
		snapshot []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, snapshot FROM ledger_state WHERE id = 1`,
	).Scan(&version, &snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var st vault.State
	if err := json.Unmarshal(snapshot, &st); err != nil {
		return nil, fmt.Errorf("decode snapshot v%d: %w", version, err)
	}
	st.Version = uint64(version)
	st.Normalize()
	return &st, nil
}

func (s *Store) Save(ctx context.Context, st *vault.State, prev uint64) error {
	snapshot, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	now := time.Now().UTC().UnixNano()

	var result sql.Result
	if prev == 0 {
		result, err = s.db.ExecContext(ctx,
			`INSERT INTO ledger_state (id, version, snapshot, updated_at)
			 VALUES (1, ?, ?, ?)
			 ON CONFLICT (id) DO NOTHING`,
			int64(st.Version), snapshot, now)
	} else {
		result, err = s.db.ExecContext(ctx,
			`UPDATE ledger_state
			 SET version = ?, snapshot = ?, updated_at = ?
			 WHERE id = 1 AND version = ?`,
			int64(st.Version), snapshot, now, int64(prev))
	}
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("save v%d over v%d: %w", st.Version, prev, storage.ErrVersionConflict)
	}
	return nil
}

func (s *Store) AppendEvent(ctx context.Context, event vault.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_events (id, kind, principal, handler, amount, block, version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, string(event.Kind), string(event.User), string(event.Handler),
		strconv.FormatUint(event.Amount, 10), int64(event.Block), int64(event.Version),
		event.Timestamp.UTC().UnixNano())
	return err
}

func (s *Store) ListEvents(ctx context.Context, limit int) ([]vault.Event, error) {
	query := `SELECT id, kind, principal, handler, amount, block, version, created_at
		FROM ledger_events
		ORDER BY seq DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vault.Event
	for rows.Next() {
		var (
			ev                    vault.Event
			kind, user, handler   string
			amount                string
			block, version, stamp int64
		)
		if err := rows.Scan(&ev.ID, &kind, &user, &handler, &amount, &block, &version, &stamp); err != nil {
			return nil, err
		}
		ev.Amount, err = strconv.ParseUint(amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("event %s amount %q: %w", ev.ID, amount, err)
		}
		ev.Kind = vault.EventKind(kind)
		ev.User = vault.Principal(user)
		ev.Handler = vault.Principal(handler)
		ev.Block = uint64(block)
		ev.Version = uint64(version)
		ev.Timestamp = time.Unix(0, stamp).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}
