package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/R3E-Network/yield_ledger/internal/app/storage"
	"github.com/R3E-Network/yield_ledger/internal/platform/migrations"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestStore_LoadEmpty(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT version, snapshot FROM ledger_state").
		WillReturnRows(sqlmock.NewRows([]string{"version", "snapshot"}))

	st, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st != nil {
		t.Fatalf("expected nil state, got %+v", st)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStore_LoadSnapshot(t *testing.T) {
	store, mock := newMockStore(t)

	want := vault.NewState(vault.Params{})
	want.TotalValueLocked = 0
	want.PlatformFeeBps = 25
	raw, _ := json.Marshal(want)
	mock.ExpectQuery("SELECT version, snapshot FROM ledger_state").
		WillReturnRows(sqlmock.NewRows([]string{"version", "snapshot"}).AddRow(int64(7), raw))

	st, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st.Version != 7 || st.PlatformFeeBps != 25 || st.Accounts == nil {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestStore_SaveVersioning(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	st := vault.NewState(vault.Params{})

	st.Version = 1
	mock.ExpectExec("INSERT INTO ledger_state").
		WithArgs(int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Save(ctx, st, 0); err != nil {
		t.Fatalf("first save: %v", err)
	}

	st.Version = 2
	mock.ExpectExec("UPDATE ledger_state").
		WithArgs(int64(2), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Save(ctx, st, 1); err != nil {
		t.Fatalf("second save: %v", err)
	}

	mock.ExpectExec("UPDATE ledger_state").
		WithArgs(int64(2), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.Save(ctx, st, 1); !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStore_Events(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	event := vault.Event{ID: "e1", Kind: vault.EventDeposit, User: "alice", Handler: "token", Amount: 18446744073709551615, Block: 9, Version: 3, Timestamp: now}
	mock.ExpectExec("INSERT INTO ledger_events").
		WithArgs("e1", "deposit", "alice", "token", "18446744073709551615", int64(9), int64(3), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.AppendEvent(ctx, event); err != nil {
		t.Fatalf("append: %v", err)
	}

	rows := sqlmock.NewRows([]string{"id", "kind", "principal", "handler", "amount", "block", "version", "created_at"}).
		AddRow("e1", "deposit", "alice", "token", "18446744073709551615", int64(9), int64(3), now)
	mock.ExpectQuery("SELECT id, kind, principal, handler, amount, block, version, created_at FROM ledger_events").
		WithArgs(10).
		WillReturnRows(rows)

	events, err := store.ListEvents(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 || events[0] != event {
		t.Fatalf("unexpected events: %+v", events)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM ledger_state`); err != nil {
		t.Fatalf("reset: %v", err)
	}

	store := New(db)
	st := vault.NewState(vault.Params{})
	st.Version = 1
	if err := store.Save(ctx, st, 0); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Version != 1 {
		t.Fatalf("loaded v%d", loaded.Version)
	}
}
