// Package runtime runs vaultd: it builds the application from configuration,
// serves the HTTP API and shuts everything down on cancellation.
package runtime

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	app "github.com/R3E-Network/yield_ledger/internal/app"
	"github.com/R3E-Network/yield_ledger/internal/app/httpapi"
	"github.com/R3E-Network/yield_ledger/internal/config"
	"github.com/R3E-Network/yield_ledger/internal/middleware"
	"github.com/R3E-Network/yield_ledger/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg    *config.Config
	log    *logger.Logger
	app    *app.Application
	server *httpServer
}

// NewApplication constructs the application described by cfg.
func NewApplication(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.New(cfg.LoggerConfig())

	stores, err := app.OpenStores(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}
	ch, err := app.ConnectChain(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure chain: %w", err)
	}
	if ch.Directory == nil {
		log.Warn("chain.rpc_url not set; using manual block source and empty handler directory")
	}

	core, err := app.New(ctx, cfg, stores, ch, log)
	if err != nil {
		return nil, err
	}

	secret, err := ParseSecret(cfg.Auth.JWTSecret)
	if err != nil {
		log.Warnf("auth.jwt_secret invalid: %v", err)
	}
	if len(secret) == 0 {
		log.Warn("auth.jwt_secret not set; mutating endpoints will reject every request")
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, log.Named("ratelimit"))
	handler := httpapi.NewHandler(httpapi.Dependencies{
		Service:     core.Service,
		Auth:        middleware.NewAuthMiddleware(string(secret), log.Named("auth")),
		Events:      core.Events,
		Journal:     core.Journal,
		Health:      core.Manager(),
		RateLimiter: limiter,
		CORS:        middleware.NewCORSMiddleware(cfg.Server.CORSOrigins),
		Log:         log.Named("httpapi"),
	})

	server := newHTTPServer(cfg.Server.Addr(), handler, limiter, log.Named("http"))
	if err := core.Attach(server); err != nil {
		return nil, err
	}

	return &Application{cfg: cfg, log: log, app: core, server: server}, nil
}

// App exposes the composed application.
func (a *Application) App() *app.Application {
	return a.app
}

// Addr returns the bound listen address once running.
func (a *Application) Addr() string {
	return a.server.Addr()
}

// Run starts every service and blocks until ctx is cancelled or the HTTP
// server fails. Services are stopped before Run returns.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		_ = a.app.Stop(context.Background())
		return err
	}
	a.log.Infof("HTTP server listening on %s", a.server.Addr())

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-a.server.Errors():
	}
	return errors.Join(runErr, a.Shutdown(context.Background()))
}

// Shutdown gracefully stops the services and closes the stores.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return a.app.Stop(shutdownCtx)
}

// ParseSecret accepts a raw secret or a "base64:"/"hex:" encoded one. Decoded
// secrets must be at least 16 bytes.
func ParseSecret(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	var (
		decoded []byte
		err     error
	)
	switch {
	case strings.HasPrefix(value, "base64:"):
		decoded, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "base64:"))
	case strings.HasPrefix(value, "hex:"):
		decoded, err = hex.DecodeString(strings.TrimPrefix(value, "hex:"))
	default:
		decoded = []byte(value)
	}
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}
	if len(decoded) < 16 {
		return nil, errors.New("secret must be at least 16 bytes")
	}
	return decoded, nil
}

// httpServer runs the API as a lifecycle-managed service.
type httpServer struct {
	srv     *http.Server
	limiter *middleware.RateLimiter
	log     *logger.Logger
	errCh   chan error
	cancel  context.CancelFunc

	mu   sync.Mutex
	addr string
}

func newHTTPServer(addr string, handler http.Handler, limiter *middleware.RateLimiter, log *logger.Logger) *httpServer {
	return &httpServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		limiter: limiter,
		log:     log,
		errCh:   make(chan error, 1),
		addr:    addr,
	}
}

func (s *httpServer) Name() string { return "http-server" }
