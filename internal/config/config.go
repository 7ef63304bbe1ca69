// Package config loads vaultd configuration from a YAML file, an optional .env
// file and YL_* environment variables, in that order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/R3E-Network/yield_ledger/pkg/logger"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type ServerConfig struct {
	Host        string   `yaml:"host" env:"YL_SERVER_HOST"`
	Port        int      `yaml:"port" env:"YL_SERVER_PORT"`
	CORSOrigins []string `yaml:"cors_origins" env:"YL_SERVER_CORS_ORIGINS"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LoggingConfig struct {
	Level      string `yaml:"level" env:"YL_LOG_LEVEL"`
	Format     string `yaml:"format" env:"YL_LOG_FORMAT"`
	Output     string `yaml:"output" env:"YL_LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"YL_LOG_FILE_PREFIX"`
}

// LedgerConfig holds the deployment constants of the ledger. Admin and Self
// are Neo addresses or script hashes.
type LedgerConfig struct {
	Admin         string `yaml:"admin" env:"YL_LEDGER_ADMIN"`
	Self          string `yaml:"self" env:"YL_LEDGER_SELF"`
	MaxStrategyID uint32 `yaml:"max_strategy_id" env:"YL_LEDGER_MAX_STRATEGY_ID"`
	MinAPY        uint32 `yaml:"min_apy" env:"YL_LEDGER_MIN_APY"`
	MaxAPY        uint32 `yaml:"max_apy" env:"YL_LEDGER_MAX_APY"`
	MinDeposit    uint64 `yaml:"min_deposit" env:"YL_LEDGER_MIN_DEPOSIT"`
	MaxDeposit    uint64 `yaml:"max_deposit" env:"YL_LEDGER_MAX_DEPOSIT"`
	// Whitelist lists handlers approved at bootstrap when the store is empty.
	Whitelist []string `yaml:"whitelist" env:"YL_LEDGER_WHITELIST"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" env:"YL_STORAGE_DRIVER"`
	DSN    string `yaml:"dsn" env:"YL_STORAGE_DSN"`
}

// ChainConfig points at a Neo N3 RPC node. An empty RPCURL runs the ledger
// against a manual block source and static handler directory.
//
// With an RPC node, transfers are signed with SignerKeys (WIF, the key of
// ledger.self among them). SimulateOnly instead stops every transfer after a
// test invocation; nothing is broadcast.
type ChainConfig struct {
	RPCURL         string        `yaml:"rpc_url" env:"YL_CHAIN_RPC_URL"`
	NetworkID      uint32        `yaml:"network_id" env:"YL_CHAIN_NETWORK_ID"`
	Timeout        time.Duration `yaml:"timeout" env:"YL_CHAIN_TIMEOUT"`
	SignerKeys     []string      `yaml:"signer_keys" env:"YL_CHAIN_SIGNER_KEYS"`
	SimulateOnly   bool          `yaml:"simulate_only" env:"YL_CHAIN_SIMULATE_ONLY"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout" env:"YL_CHAIN_CONFIRM_TIMEOUT"`
	PollInterval   time.Duration `yaml:"poll_interval" env:"YL_CHAIN_POLL_INTERVAL"`
	ValidBlocks    uint32        `yaml:"valid_blocks" env:"YL_CHAIN_VALID_BLOCKS"`
}

type EventsConfig struct {
	BufferSize   int    `yaml:"buffer_size" env:"YL_EVENTS_BUFFER_SIZE"`
	RedisAddr    string `yaml:"redis_addr" env:"YL_EVENTS_REDIS_ADDR"`
	RedisChannel string `yaml:"redis_channel" env:"YL_EVENTS_REDIS_CHANNEL"`
}

// AuthConfig holds the HMAC secret for caller tokens. Without a secret the
// mutating endpoints reject every request.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"YL_AUTH_JWT_SECRET"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" env:"YL_RATELIMIT_RPS"`
	Burst int     `yaml:"burst" env:"YL_RATELIMIT_BURST"`
}

type AuditConfig struct {
	Schedule string `yaml:"schedule" env:"YL_AUDIT_SCHEDULE"`
}

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Storage   StorageConfig   `yaml:"storage"`
	Chain     ChainConfig     `yaml:"chain"`
	Events    EventsConfig    `yaml:"events"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Audit     AuditConfig     `yaml:"audit"`
}

// Default returns a configuration suitable for local runs. Ledger principals
// are left empty and must be supplied.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 8080},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout", FilePrefix: "vaultd"},
		Ledger: LedgerConfig{
			MaxStrategyID: vault.DefaultMaxStrategyID,
			MinAPY:        vault.DefaultMinAPY,
			MaxAPY:        vault.DefaultMaxAPY,
			MinDeposit:    vault.DefaultMinDeposit,
			MaxDeposit:    vault.DefaultMaxDeposit,
		},
		Storage:   StorageConfig{Driver: DriverMemory},
		Chain:     ChainConfig{Timeout: 10 * time.Second},
		Events:    EventsConfig{BufferSize: 1000, RedisChannel: "yield-ledger.events"},
		RateLimit: RateLimitConfig{RPS: 50, Burst: 100},
		Audit:     AuditConfig{Schedule: "0 * * * * *"},
	}
}

// Load reads path (if non-empty) over the defaults, then applies .env and
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if _, err := c.LedgerParams(); err != nil {
		return err
	}
	for _, raw := range c.Ledger.Whitelist {
		if _, err := vault.ParsePrincipal(raw); err != nil {
			return fmt.Errorf("ledger.whitelist: %w", err)
		}
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	if c.Chain.RPCURL != "" {
		if c.Chain.Timeout <= 0 {
			return fmt.Errorf("chain.timeout must be positive")
		}
		switch {
		case c.Chain.SimulateOnly && len(c.Chain.SignerKeys) > 0:
			return fmt.Errorf("chain.simulate_only and chain.signer_keys are exclusive")
		case !c.Chain.SimulateOnly && len(c.Chain.SignerKeys) == 0:
			return fmt.Errorf("chain.signer_keys is required with chain.rpc_url (or set chain.simulate_only)")
		}
	}
	if c.Events.BufferSize <= 0 {
		return fmt.Errorf("events.buffer_size must be positive")
	}
	if c.Events.RedisAddr != "" && c.Events.RedisChannel == "" {
		return fmt.Errorf("events.redis_channel is required with events.redis_addr")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit values must not be negative")
	}
	if strings.TrimSpace(c.Audit.Schedule) == "" {
		return fmt.Errorf("audit.schedule is required")
	}
	return nil
}

// LedgerParams converts the ledger section into validated domain params.
func (c *Config) LedgerParams() (vault.Params, error) {
	admin, err := vault.ParsePrincipal(c.Ledger.Admin)
	if err != nil {
		return vault.Params{}, fmt.Errorf("ledger.admin: %w", err)
	}
	self, err := vault.ParsePrincipal(c.Ledger.Self)
	if err != nil {
		return vault.Params{}, fmt.Errorf("ledger.self: %w", err)
	}
	p := vault.Params{
		Admin:         admin,
		Self:          self,
		MaxStrategyID: c.Ledger.MaxStrategyID,
		MinAPY:        c.Ledger.MinAPY,
		MaxAPY:        c.Ledger.MaxAPY,
		MinDeposit:    c.Ledger.MinDeposit,
		MaxDeposit:    c.Ledger.MaxDeposit,
	}.WithDefaults()
	if err := p.Validate(); err != nil {
		return vault.Params{}, fmt.Errorf("ledger: %w", err)
	}
	return p, nil
}

// LoggerConfig adapts the logging section for pkg/logger.
func (c *Config) LoggerConfig() logger.LoggingConfig {
	return logger.LoggingConfig{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		Output:     c.Logging.Output,
		FilePrefix: c.Logging.FilePrefix,
	}
}
