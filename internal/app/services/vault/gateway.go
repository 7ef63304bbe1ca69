package vault

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
)

// Handler is the external asset-transfer capability (a NEP-17 token). The
// ledger moves value only through Transfer; the metadata calls are checked
// during validation.
type Handler interface {
	Transfer(ctx context.Context, amount uint64, from, to domain.Principal, memo []byte) error
	BalanceOf(ctx context.Context, who domain.Principal) (uint64, error)
	Decimals(ctx context.Context) (uint8, error)
	Name(ctx context.Context) (string, error)
	Symbol(ctx context.Context) (string, error)
	TotalSupply(ctx context.Context) (uint64, error)
}

// Directory resolves handler ids. deployed is false when the id is a plain
// account rather than a deployed contract.
type Directory interface {
	Lookup(ctx context.Context, id domain.Principal) (h Handler, deployed bool, err error)
}

// validationCache remembers handlers validated during the current operation.
// A fresh cache is created per operation and never outlives it.
type validationCache map[domain.Principal]Handler

type gateway struct {
	dir Directory
}

// validate checks the whitelist, then that the id is a deployed contract
// answering the four metadata calls.
func (g gateway) validate(ctx context.Context, st *domain.State, cache validationCache, id domain.Principal) (Handler, error) {
	if !st.IsWhitelisted(id) {
		return nil, fmt.Errorf("handler %s: %w", id, domain.ErrHandlerNotWhitelisted)
	}
	if h, ok := cache[id]; ok {
		return h, nil
	}

	h, err := g.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkCapabilities(ctx, h); err != nil {
		return nil, fmt.Errorf("handler %s: %w: %v", id, domain.ErrInvalidHandler, err)
	}

	cache[id] = h
	return h, nil
}

// resolve returns the handler only when the id refers to a deployed contract.
func (g gateway) resolve(ctx context.Context, id domain.Principal) (Handler, error) {
	if g.dir == nil {
		return nil, fmt.Errorf("handler %s: %w: no directory", id, domain.ErrInvalidHandler)
	}
	h, deployed, err := g.dir.Lookup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("handler %s: %w: %v", id, domain.ErrInvalidHandler, err)
	}
	if !deployed || h == nil {
		return nil, fmt.Errorf("handler %s is not a deployed contract: %w", id, domain.ErrInvalidHandler)
	}
	return h, nil
}

func checkCapabilities(ctx context.Context, h Handler) error {
	if _, err := h.Name(ctx); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	if _, err := h.Symbol(ctx); err != nil {
		return fmt.Errorf("symbol: %w", err)
	}
	if _, err := h.Decimals(ctx); err != nil {
		return fmt.Errorf("decimals: %w", err)
	}
	if _, err := h.TotalSupply(ctx); err != nil {
		return fmt.Errorf("total supply: %w", err)
	}
	return nil
}

// StaticDirectory is an in-process Directory. Registered ids are deployed
// contracts; every other id resolves as a plain account.
type StaticDirectory struct {
	mu       sync.RWMutex
	handlers map[domain.Principal]Handler
}

// NewStaticDirectory creates an empty directory.
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{handlers: make(map[domain.Principal]Handler)}
}

// Register deploys h under id.
func (d *StaticDirectory) Register(id domain.Principal, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[id] = h
}

// Lookup implements Directory.
func (d *StaticDirectory) Lookup(_ context.Context, id domain.Principal) (Handler, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[id]
	return h, ok, nil
}
