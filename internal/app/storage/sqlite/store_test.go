package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/R3E-Network/yield_ledger/internal/app/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestStore_StateRoundTrip(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()

	st, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, st)

	next := vault.NewState(vault.Params{})
	next.Version = 1
	next.Accounts["alice"] = vault.UserAccount{Principal: "alice", Balance: 5000, Checkpoint: 10}
	next.TotalValueLocked = 5000
	require.NoError(t, s.Save(ctx, next, 0))

	next.Version = 2
	next.EmergencyShutdown = true
	require.NoError(t, s.Save(ctx, next, 1))
	require.ErrorIs(t, s.Save(ctx, next, 1), storage.ErrVersionConflict)
	require.ErrorIs(t, s.Save(ctx, next, 0), storage.ErrVersionConflict)

	require.NoError(t, s.Close())
	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(2), got.Version)
	assert.True(t, got.EmergencyShutdown)
	assert.Equal(t, uint64(5000), got.Accounts["alice"].Balance)
	assert.NotNil(t, got.Whitelist)
}

func TestStore_EventsNewestFirst(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	first := vault.NewEvent(vault.EventDeposit, "alice", "token", 1500)
	first.Version = 1
	second := vault.NewEvent(vault.EventWithdraw, "alice", "token", ^uint64(0))
	second.Version = 2
	require.NoError(t, s.AppendEvent(ctx, first))
	require.NoError(t, s.AppendEvent(ctx, second))

	all, err := s.ListEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, ^uint64(0), all[0].Amount)
	assert.Equal(t, first.Timestamp.UnixNano(), all[1].Timestamp.UnixNano())

	one, err := s.ListEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, vault.EventWithdraw, one[0].Kind)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}
