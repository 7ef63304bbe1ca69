package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	vaultsvc "github.com/R3E-Network/yield_ledger/internal/app/services/vault"
	"github.com/R3E-Network/yield_ledger/internal/app/system"
	"github.com/R3E-Network/yield_ledger/internal/config"
	"github.com/R3E-Network/yield_ledger/pkg/logger"
)

func principal(b byte) vault.Principal {
	var u util.Uint160
	u[0] = b
	u[19] = 0x33
	return vault.PrincipalFromHash(u)
}

type nopToken struct{}

func (nopToken) Transfer(context.Context, uint64, vault.Principal, vault.Principal, []byte) error {
	return nil
}
func (nopToken) BalanceOf(context.Context, vault.Principal) (uint64, error) { return 0, nil }
func (nopToken) Decimals(context.Context) (uint8, error)                    { return 8, nil }
func (nopToken) Name(context.Context) (string, error)                       { return "Nop", nil }
func (nopToken) Symbol(context.Context) (string, error)                     { return "NOP", nil }
func (nopToken) TotalSupply(context.Context) (uint64, error)                { return 1, nil }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Ledger.Admin = principal(1).Hex()
	cfg.Ledger.Self = principal(2).Hex()
	return cfg
}

func TestApplicationLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	token := principal(10)
	dir := vaultsvc.NewStaticDirectory()
	dir.Register(token, nopToken{})
	cfg := testConfig()
	cfg.Ledger.Whitelist = []string{token.Hex()}

	ctx := context.Background()
	application, err := New(ctx, cfg, Stores{}, Chain{Directory: dir}, logger.Discard())
	require.NoError(t, err)
	assert.True(t, application.Service.IsWhitelisted(token))
	assert.Equal(t, 1, application.Events.Count())

	require.NoError(t, application.Attach(system.NoopService{ServiceName: "http"}))
	require.NoError(t, application.Start(ctx))
	assert.True(t, application.Manager().Healthy())
	require.NoError(t, application.Auditor.RunOnce())
	require.NoError(t, application.Stop(ctx))
}

func TestApplicationWhitelistRequiresDeployedHandler(t *testing.T) {
	cfg := testConfig()
	cfg.Ledger.Whitelist = []string{principal(10).Hex()}
	_, err := New(context.Background(), cfg, Stores{}, Chain{}, logger.Discard())
	require.ErrorIs(t, err, vault.ErrInvalidHandler)
}

func TestApplicationResumesSQLiteState(t *testing.T) {
	ctx := context.Background()
	token := principal(10)
	dir := vaultsvc.NewStaticDirectory()
	dir.Register(token, nopToken{})
	cfg := testConfig()
	cfg.Storage = config.StorageConfig{Driver: config.DriverSQLite, DSN: filepath.Join(t.TempDir(), "ledger.db")}

	open := func() *Application {
		stores, err := OpenStores(ctx, cfg.Storage)
		require.NoError(t, err)
		application, err := New(ctx, cfg, stores, Chain{Directory: dir}, logger.Discard())
		require.NoError(t, err)
		return application
	}

	first := open()
	require.NoError(t, first.Service.WhitelistToken(ctx, first.Params.Admin, token))
	require.NoError(t, first.Stop(ctx))

	second := open()
	defer second.Stop(ctx)
	assert.True(t, second.Service.IsWhitelisted(token))
	evs, err := second.Journal.ListEvents(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}

func TestOpenStoresUnknownDriver(t *testing.T) {
	_, err := OpenStores(context.Background(), config.StorageConfig{Driver: "mongo"})
	require.Error(t, err)
}

func TestConnectChainWithoutRPC(t *testing.T) {
	ch, err := ConnectChain(testConfig(), logger.Discard())
	require.NoError(t, err)
	assert.Nil(t, ch.Directory)
	assert.Nil(t, ch.Blocks)
}
