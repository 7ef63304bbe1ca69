package vault

import (
	"context"
	"errors"
	"testing"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/R3E-Network/yield_ledger/internal/app/storage/memory"
	"github.com/R3E-Network/yield_ledger/pkg/logger"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

func testPrincipal(b byte) domain.Principal {
	var u util.Uint160
	u[0] = b
	u[19] = 0xAA
	return domain.PrincipalFromHash(u)
}

var (
	adminP = testPrincipal(1)
	selfP  = testPrincipal(2)
	alice  = testPrincipal(3)
	bob    = testPrincipal(4)
	tokenP = testPrincipal(10)
	otherP = testPrincipal(11)
)

type transferCall struct {
	amount   uint64
	from, to domain.Principal
}

// fakeToken is a scripted NEP-17 handler.
type fakeToken struct {
	transfers   []transferCall
	transferErr error
	metaErr     error
	metaCalls   int
	onTransfer  func(ctx context.Context, call transferCall) error
}

func (f *fakeToken) Transfer(ctx context.Context, amount uint64, from, to domain.Principal, _ []byte) error {
	call := transferCall{amount: amount, from: from, to: to}
	if f.onTransfer != nil {
		if err := f.onTransfer(ctx, call); err != nil {
			return err
		}
	}
	if f.transferErr != nil {
		return f.transferErr
	}
	f.transfers = append(f.transfers, call)
	return nil
}

func (f *fakeToken) BalanceOf(context.Context, domain.Principal) (uint64, error) { return 0, nil }

func (f *fakeToken) Decimals(context.Context) (uint8, error) {
	f.metaCalls++
	return 8, f.metaErr
}

func (f *fakeToken) Name(context.Context) (string, error) {
	f.metaCalls++
	return "Test Token", f.metaErr
}

func (f *fakeToken) Symbol(context.Context) (string, error) {
	f.metaCalls++
	return "TT", f.metaErr
}

func (f *fakeToken) TotalSupply(context.Context) (uint64, error) {
	f.metaCalls++
	return 1 << 40, f.metaErr
}

// captureSink collects published events.
type captureSink struct {
	events []domain.Event
	err    error
}

func (c *captureSink) Publish(_ context.Context, e domain.Event) error {
	c.events = append(c.events, e)
	return c.err
}

type fixture struct {
	ctx    context.Context
	ledger *Ledger
	blocks *ManualBlocks
	dir    *StaticDirectory
	token  *fakeToken
	store  *memory.Store
	sink   *captureSink
}

// newFixture builds a ledger at height 100 with one whitelisted token and
// strategy 1 (5% APY) holding the full allocation.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:    context.Background(),
		blocks: NewManualBlocks(100),
		dir:    NewStaticDirectory(),
		token:  &fakeToken{},
		store:  memory.New(),
		sink:   &captureSink{},
	}
	f.dir.Register(tokenP, f.token)

	ledger, err := NewLedger(f.ctx, domain.Params{Admin: adminP, Self: selfP}, f.dir, f.blocks,
		WithStore(f.store), WithEventSink(f.sink), WithLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	f.ledger = ledger

	if err := ledger.WhitelistToken(f.ctx, adminP, tokenP); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	if _, err := ledger.AddProtocol(f.ctx, adminP, 1, "Flamingo", 500); err != nil {
		t.Fatalf("add protocol: %v", err)
	}
	if _, err := ledger.SetAllocation(f.ctx, adminP, 1, domain.BasisPoints); err != nil {
		t.Fatalf("set allocation: %v", err)
	}
	f.sink.events = nil
	return f
}

func requireCode(t *testing.T, err error, want *domain.Error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func requireInvariants(t *testing.T, l *Ledger) {
	t.Helper()
	if l.GuardHeld() {
		t.Fatalf("guard still held")
	}
	if err := l.Snapshot().CheckInvariants(l.Params().MaxStrategyID); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}
