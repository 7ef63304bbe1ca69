package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/R3E-Network/yield_ledger/internal/app/metrics"
	vaultsvc "github.com/R3E-Network/yield_ledger/internal/app/services/vault"
	"github.com/R3E-Network/yield_ledger/internal/app/storage"
	"github.com/R3E-Network/yield_ledger/internal/app/storage/memory"
	"github.com/R3E-Network/yield_ledger/internal/app/storage/postgres"
	"github.com/R3E-Network/yield_ledger/internal/app/storage/sqlite"
	"github.com/R3E-Network/yield_ledger/internal/app/system"
	"github.com/R3E-Network/yield_ledger/internal/chain"
	"github.com/R3E-Network/yield_ledger/internal/config"
	"github.com/R3E-Network/yield_ledger/internal/engine/events"
	"github.com/R3E-Network/yield_ledger/internal/platform/migrations"
	"github.com/R3E-Network/yield_ledger/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	State   storage.StateStore
	Journal storage.JournalStore
	closer  io.Closer
}

// Chain groups the on-chain collaborators of the ledger.
type Chain struct {
	Directory vaultsvc.Directory
	Blocks    vaultsvc.BlockSource
}

// Application ties the ledger together and manages its lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger
	stores  Stores

	Params  vault.Params
	Ledger  *vaultsvc.Ledger
	Service *vaultsvc.Service
	Events  *events.RingBuffer
	Journal storage.JournalStore
	Auditor *vaultsvc.Auditor
}

// New builds a fully initialised application from explicit collaborators.
func New(ctx context.Context, cfg *config.Config, stores Stores, ch Chain, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	params, err := cfg.LedgerParams()
	if err != nil {
		return nil, err
	}
	if stores.State == nil || stores.Journal == nil {
		mem := memory.New()
		if stores.State == nil {
			stores.State = mem
		}
		if stores.Journal == nil {
			stores.Journal = mem
		}
	}
	if ch.Directory == nil {
		ch.Directory = vaultsvc.NewStaticDirectory()
	}
	if ch.Blocks == nil {
		ch.Blocks = vaultsvc.NewManualBlocks(0)
	}

	manager := system.NewManager()
	buffer := events.NewRingBuffer(cfg.Events.BufferSize)

	opts := []vaultsvc.Option{
		vaultsvc.WithStore(stores.State),
		vaultsvc.WithEventSink(buffer),
		vaultsvc.WithEventSink(vaultsvc.NewJournalSink(stores.Journal)),
		vaultsvc.WithEventSink(vaultsvc.NewLogSink(log.Named("vault-events"))),
		vaultsvc.WithLogger(log.Named("vault-ledger")),
	}
	if cfg.Events.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Events.RedisAddr})
		opts = append(opts, vaultsvc.WithEventSink(vaultsvc.NewRedisSink(client, cfg.Events.RedisChannel)))
		if err := manager.Register(&redisService{client: client, log: log}); err != nil {
			return nil, err
		}
	}

	ledger, err := vaultsvc.NewLedger(ctx, params, ch.Directory, ch.Blocks, opts...)
	if err != nil {
		return nil, fmt.Errorf("build ledger: %w", err)
	}
	observer := metrics.Ledger{}
	service := vaultsvc.NewService(ledger, observer, log.Named("vault-service"))
	auditor := vaultsvc.NewAuditor(service, cfg.Audit.Schedule, observer, log.Named("vault-auditor"))
	if err := manager.Register(auditor); err != nil {
		return nil, fmt.Errorf("register %s: %w", auditor.Name(), err)
	}

	application := &Application{
		manager: manager,
		log:     log,
		stores:  stores,
		Params:  params,
		Ledger:  ledger,
		Service: service,
		Events:  buffer,
		Journal: stores.Journal,
		Auditor: auditor,
	}
	if err := application.bootstrapWhitelist(ctx, cfg.Ledger.Whitelist); err != nil {
		return nil, err
	}
	return application, nil
}

// bootstrapWhitelist approves the configured handlers that are not yet
// whitelisted, acting as the admin.
func (a *Application) bootstrapWhitelist(ctx context.Context, handlers []string) error {
	for _, raw := range handlers {
		h, err := vault.ParsePrincipal(raw)
		if err != nil {
			return fmt.Errorf("whitelist %q: %w", raw, err)
		}
		if a.Service.IsWhitelisted(h) {
			continue
		}
		if err := a.Service.WhitelistToken(ctx, a.Params.Admin, h); err != nil {
			return fmt.Errorf("whitelist %s: %w", h, err)
		}
		a.log.WithField("handler", h).Info("handler whitelisted from configuration")
	}
	return nil
}

// OpenStores opens the backend selected by cfg. Postgres schemas are
// migrated on open.
func OpenStores(ctx context.Context, cfg config.StorageConfig) (Stores, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		mem := memory.New()
		return Stores{State: mem, Journal: mem}, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return Stores{}, err
		}
		return Stores{State: s, Journal: s, closer: s}, nil
	case config.DriverPostgres:
		s, err := postgres.Open(cfg.DSN)
		if err != nil {
			return Stores{}, err
		}
		if err := s.DB().PingContext(ctx); err != nil {
			s.Close()
			return Stores{}, fmt.Errorf("ping postgres: %w", err)
		}
		if err := migrations.Apply(ctx, s.DB()); err != nil {
			s.Close()
			return Stores{}, err
		}
		return Stores{State: s, Journal: s, closer: s}, nil
	default:
		return Stores{}, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// ConnectChain builds the Neo RPC collaborators. With no RPC URL the ledger
// runs on a manual block source and an empty handler directory. Otherwise
// transfers are signed with the configured keys, which must include the
// ledger's own account, unless simulation mode is on.
func ConnectChain(cfg *config.Config, log *logger.Logger) (Chain, error) {
	cc := cfg.Chain
	if cc.RPCURL == "" {
		return Chain{}, nil
	}
	if log == nil {
		log = logger.NewDefault("chain")
	}
	client, err := chain.NewClient(chain.Config{RPCURL: cc.RPCURL, NetworkID: cc.NetworkID, Timeout: cc.Timeout})
	if err != nil {
		return Chain{}, err
	}
	if cc.SimulateOnly {
		log.WithField("rpc_url", cc.RPCURL).Warn("chain.simulate_only set; transfers are test-invoked and never broadcast")
		return Chain{Directory: chain.NewNEP17Directory(client, nil, chain.SimulateTransfers()), Blocks: client}, nil
	}

	params, err := cfg.LedgerParams()
	if err != nil {
		return Chain{}, err
	}
	submitter, err := chain.NewKeyringSubmitter(client, chain.KeyringConfig{
		Keys:           cc.SignerKeys,
		ValidBlocks:    cc.ValidBlocks,
		ConfirmTimeout: cc.ConfirmTimeout,
		PollInterval:   cc.PollInterval,
	})
	if err != nil {
		return Chain{}, fmt.Errorf("chain.signer_keys: %w", err)
	}
	if !submitter.Holds(params.Self) {
		return Chain{}, fmt.Errorf("chain.signer_keys has no key for ledger.self %s", params.Self)
	}
	return Chain{Directory: chain.NewNEP17Directory(client, submitter), Blocks: client}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Manager exposes the lifecycle manager for health reporting.
func (a *Application) Manager() *system.Manager {
	return a.manager
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services and closes the stores.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	if a.stores.closer != nil {
		err = errors.Join(err, a.stores.closer.Close())
	}
	return err
}

// redisService owns the redis client used by the event sink.
type redisService struct {
	client *redis.Client
	log    *logger.Logger
}

func (r *redisService) Name() string { return "redis-events" }

func (r *redisService) Start(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	r.log.WithField("addr", r.client.Options().Addr).Info("redis event sink connected")
	return nil
}

func (r *redisService) Stop(context.Context) error {
	return r.client.Close()
}
