//go:build integration && postgres

package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	vaultsvc "github.com/R3E-Network/yield_ledger/internal/app/services/vault"
	"github.com/R3E-Network/yield_ledger/internal/app/storage/postgres"
	"github.com/R3E-Network/yield_ledger/internal/engine/events"
	"github.com/R3E-Network/yield_ledger/internal/middleware"
	"github.com/R3E-Network/yield_ledger/internal/platform/migrations"
	"github.com/R3E-Network/yield_ledger/pkg/logger"
)

// Integration test against Postgres to ensure migrations and the deposit flow
// work with persistence, and that a restarted ledger resumes the stored state.
func TestIntegrationPostgres(t *testing.T) {
	_ = godotenv.Load() // allow .env for local runs
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration")
	}

	ctx := context.Background()
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, migrations.Apply(ctx, db))
	_, err = db.ExecContext(ctx, `TRUNCATE ledger_state, ledger_events`)
	require.NoError(t, err)

	store := postgres.New(db)
	dir := vaultsvc.NewStaticDirectory()
	dir.Register(tokenP, stubToken{})
	params := domain.Params{Admin: adminP, Self: selfP}

	build := func() (*testEnv, *vaultsvc.Service) {
		blocks := vaultsvc.NewManualBlocks(100)
		rb := events.NewRingBuffer(10)
		ledger, err := vaultsvc.NewLedger(ctx, params, dir, blocks,
			vaultsvc.WithStore(store),
			vaultsvc.WithEventSink(rb),
			vaultsvc.WithEventSink(vaultsvc.NewJournalSink(store)),
			vaultsvc.WithLogger(logger.Discard()),
		)
		require.NoError(t, err)
		svc := vaultsvc.NewService(ledger, nil, logger.Discard())
		env := &testEnv{blocks: blocks, events: rb, tokens: map[domain.Principal]string{}}
		for _, p := range []domain.Principal{adminP, alice} {
			tok, err := middleware.IssueToken(testSecret, p, jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			})
			require.NoError(t, err)
			env.tokens[p] = tok
		}
		env.handler = NewHandler(Dependencies{
			Service: svc,
			Auth:    middleware.NewAuthMiddleware(testSecret, logger.Discard()),
			Events:  rb,
			Journal: store,
			Log:     logger.Discard(),
		})
		return env, svc
	}

	env, _ := build()
	env.bootstrap(t)
	rec := env.do(t, alice, http.MethodPost, "/v1/deposits", map[string]any{"handler": tokenP, "amount": 5000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, resumed := build()
	require.Equal(t, uint64(5000), resumed.GetTotalTVL())
	require.Equal(t, uint64(5000), resumed.GetUserDeposit(alice).Balance)

	evs, err := store.ListEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, evs, 2)
}
