// Package vault implements the yield ledger engine: the reentrancy guard, the
// handler validation gateway, the strategy registry and allocation engine, the
// reward calculator and the deposit/withdraw/claim orchestrators.
//
// Every mutating operation follows the same pipeline:
//
//  1. acquire the guard (released by defer on every exit path)
//  2. run the pre-condition checks against a working copy of the state
//  3. stage the effects on the working copy and expose it as the in-flight view
//  4. call the external handler
//  5. commit: persist the working copy and make it the live state
//  6. publish events
//
// A failure before the handler call discards the working copy, so the live
// and persisted state are left exactly as they were. Once the handler has
// moved assets the effects are never dropped: if they cannot be persisted the
// working copy still becomes live, the ledger enters emergency shutdown and
// Sync retries the save.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/R3E-Network/yield_ledger/internal/app/storage"
	"github.com/R3E-Network/yield_ledger/pkg/logger"
)

// BlockSource reports the current chain height.
type BlockSource interface {
	CurrentHeight(ctx context.Context) (uint64, error)
}

// EventSink receives events after the operation that produced them commits.
type EventSink interface {
	Publish(ctx context.Context, event domain.Event) error
}

var (
	// ErrLedgerHalted is returned when an operation moved assets but its
	// effects could not be committed normally. The ledger is left in
	// emergency shutdown until an admin clears it.
	ErrLedgerHalted = errors.New("ledger halted after settled transfer")

	// ErrTransferInDoubt is returned by handlers when a transfer was
	// broadcast but its outcome is unknown. The ledger treats it as settled.
	ErrTransferInDoubt = errors.New("transfer outcome unknown")
)

// Ledger is the accounting engine. It is not safe for concurrent use: the
// host (Service) serializes top-level calls, and the guard rejects calls that
// re-enter from inside an operation.
type Ledger struct {
	params domain.Params

	state    *domain.State
	inflight *domain.State
	guard    Guard

	// persisted is the version held by the store; it trails state.Version
	// while a halted commit awaits Sync.
	persisted uint64

	gw     gateway
	blocks BlockSource
	store  storage.StateStore
	sinks  []EventSink
	log    *logger.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStore persists every committed state through store.
func WithStore(store storage.StateStore) Option {
	return func(l *Ledger) { l.store = store }
}

// WithEventSink adds an event sink.
func WithEventSink(sink EventSink) Option {
	return func(l *Ledger) {
		if sink != nil {
			l.sinks = append(l.sinks, sink)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLedger builds a ledger. When a store is configured and holds a snapshot,
// the ledger resumes from it; otherwise it starts from domain.NewState.
func NewLedger(ctx context.Context, params domain.Params, dir Directory, blocks BlockSource, opts ...Option) (*Ledger, error) {
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("ledger params: %w", err)
	}
	if blocks == nil {
		return nil, fmt.Errorf("block source is required")
	}

	l := &Ledger{
		params: params,
		gw:     gateway{dir: dir},
		blocks: blocks,
		log:    logger.NewDefault("vault"),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.state = domain.NewState(params)
	if l.store != nil {
		snapshot, err := l.store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load state: %w", err)
		}
		if snapshot != nil {
			snapshot.Normalize()
			if err := snapshot.CheckInvariants(params.MaxStrategyID); err != nil {
				return nil, fmt.Errorf("stored state v%d is inconsistent: %w", snapshot.Version, err)
			}
			l.state = snapshot
			l.persisted = snapshot.Version
		}
	}
	return l, nil
}

// Params returns the deployment constants.
func (l *Ledger) Params() domain.Params {
	return l.params
}

// GuardHeld reports whether an operation is in flight.
func (l *Ledger) GuardHeld() bool {
	return l.guard.Held()
}

// view is the state visible to readers: the staged working copy while an
// operation is calling out, the committed state otherwise.
func (l *Ledger) view() *domain.State {
	if l.inflight != nil {
		return l.inflight
	}
	return l.state
}

// operation is the staging area of one top-level call.
type operation struct {
	st     *domain.State
	cache  validationCache
	events []domain.Event
}

func (l *Ledger) begin() *operation {
	return &operation{
		st:    l.state.Clone(),
		cache: make(validationCache),
	}
}

// expose publishes the working copy as the in-flight view. end clears it.
func (l *Ledger) expose(op *operation) {
	l.inflight = op.st
}

func (l *Ledger) end() {
	l.inflight = nil
}

func (op *operation) emit(kind domain.EventKind, user, handler domain.Principal, amount uint64) {
	op.events = append(op.events, domain.NewEvent(kind, user, handler, amount))
}

// commit persists the working copy and swaps it in. Events are published
// only once the new state is durable.
func (l *Ledger) commit(ctx context.Context, op *operation, height uint64) error {
	op.st.Version = l.state.Version + 1
	if err := l.save(ctx, op.st); err != nil {
		return fmt.Errorf("commit state v%d: %w", op.st.Version, err)
	}
	l.state = op.st
	l.publish(ctx, op, height)
	return nil
}

// settle finishes an operation whose handler call has returned. A clean
// transfer commits normally. A transfer in doubt, or a commit that fails
// after assets moved, halts the ledger with the effects applied.
func (l *Ledger) settle(ctx context.Context, op *operation, height uint64, transferErr error) error {
	if transferErr == nil {
		err := l.commit(ctx, op, height)
		if err == nil {
			return nil
		}
		return l.halt(ctx, op, height, err)
	}
	if errors.Is(transferErr, ErrTransferInDoubt) {
		return l.halt(ctx, op, height, transferErr)
	}
	return transferErr
}

func (l *Ledger) halt(ctx context.Context, op *operation, height uint64, cause error) error {
	op.st.EmergencyShutdown = true
	op.st.Version = l.state.Version + 1
	l.state = op.st

	entry := l.log.WithError(cause).WithField("version", l.state.Version)
	if err := l.save(ctx, l.state); err != nil {
		entry.WithField("save_error", err.Error()).Error("ledger halted; state not persisted, awaiting sync")
	} else {
		entry.Error("ledger halted after settled transfer")
	}
	l.publish(ctx, op, height)
	return fmt.Errorf("%w: %w", ErrLedgerHalted, cause)
}

func (l *Ledger) save(ctx context.Context, st *domain.State) error {
	if l.store != nil {
		if err := l.store.Save(ctx, st, l.persisted); err != nil {
			return err
		}
	}
	l.persisted = st.Version
	return nil
}

func (l *Ledger) publish(ctx context.Context, op *operation, height uint64) {
	for i := range op.events {
		op.events[i].Block = height
		op.events[i].Version = l.state.Version
		for _, sink := range l.sinks {
			if err := sink.Publish(ctx, op.events[i]); err != nil {
				l.log.WithError(err).WithField("event", op.events[i].Kind).Warn("publish event failed")
			}
		}
	}
}

// PendingSync reports whether the live state is ahead of the store.
func (l *Ledger) PendingSync() bool {
	return l.persisted != l.state.Version
}

// Sync persists the live state when a halted commit left the store behind.
func (l *Ledger) Sync(ctx context.Context) error {
	release, err := l.guard.Acquire()
	if err != nil {
		return err
	}
	defer release()

	if !l.PendingSync() {
		return nil
	}
	if err := l.save(ctx, l.state); err != nil {
		return fmt.Errorf("sync state v%d: %w", l.state.Version, err)
	}
	l.log.WithField("version", l.state.Version).Info("halted state persisted")
	return nil
}

func (l *Ledger) height(ctx context.Context) (uint64, error) {
	h, err := l.blocks.CurrentHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("current block height: %w", err)
	}
	return h, nil
}

func (l *Ledger) authorize(caller domain.Principal) error {
	if caller != l.params.Admin {
		return fmt.Errorf("caller %s: %w", caller, domain.ErrNotAuthorized)
	}
	return nil
}

// ManualBlocks is a BlockSource advanced by hand, used in tests and in
// deployments without a chain connection.
type ManualBlocks struct {
	mu     sync.Mutex
	height uint64
}

// NewManualBlocks starts at height.
func NewManualBlocks(height uint64) *ManualBlocks {
	return &ManualBlocks{height: height}
}

// CurrentHeight implements BlockSource.
func (m *ManualBlocks) CurrentHeight(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.height, nil
}

// Advance moves the height forward by n blocks and returns the new height.
func (m *ManualBlocks) Advance(n uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height += n
	return m.height
}

// Set moves the height to h.
func (m *ManualBlocks) Set(h uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height = h
}
