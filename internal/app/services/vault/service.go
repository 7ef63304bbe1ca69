package vault

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/R3E-Network/yield_ledger/pkg/logger"
	"github.com/sirupsen/logrus"
)

// Observer receives operation outcomes. The metrics package implements it.
type Observer interface {
	ObserveOperation(op string, err error, d time.Duration)
	SetTVL(tvl uint64)
}

type noopObserver struct{}

func (noopObserver) ObserveOperation(string, error, time.Duration) {}
func (noopObserver) SetTVL(uint64)                                 {}

// Service serializes access to a Ledger for concurrent callers. Each call
// runs to completion before the next one starts. Handlers that call back into
// the ledger during a transfer must use Ledger() directly; going through the
// Service would block on its own lock.
type Service struct {
	mu       sync.RWMutex
	ledger   *Ledger
	observer Observer
	log      *logger.Logger
}

// NewService wraps ledger. observer may be nil.
func NewService(ledger *Ledger, observer Observer, log *logger.Logger) *Service {
	if observer == nil {
		observer = noopObserver{}
	}
	if log == nil {
		log = logger.NewDefault("vault-service")
	}
	s := &Service{ledger: ledger, observer: observer, log: log}
	observer.SetTVL(ledger.GetTotalTVL())
	return s
}

// Ledger exposes the underlying engine.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

func (s *Service) record(op string, start time.Time, fields logrus.Fields, err error) {
	d := time.Since(start)
	s.observer.ObserveOperation(op, err, d)
	s.observer.SetTVL(s.ledger.GetTotalTVL())

	entry := s.log.WithFields(fields).WithField("op", op).WithField("duration", d)
	if errors.Is(err, ErrLedgerHalted) {
		entry.WithError(err).Error("operation settled but ledger halted")
		return
	}
	if err != nil {
		if e, ok := domain.AsError(err); ok {
			entry = entry.WithField("code", e.Code)
		}
		entry.WithError(err).Info("operation rejected")
		return
	}
	entry.Debug("operation committed")
}

// Deposit runs Ledger.Deposit under the service lock.
func (s *Service) Deposit(ctx context.Context, caller, handler domain.Principal, amount uint64) (domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	acct, err := s.ledger.Deposit(ctx, caller, handler, amount)
	s.record("deposit", start, logrus.Fields{"caller": caller, "handler": handler, "amount": amount}, err)
	return acct, err
}

// Withdraw runs Ledger.Withdraw under the service lock.
func (s *Service) Withdraw(ctx context.Context, caller, handler domain.Principal, amount uint64) (domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	acct, err := s.ledger.Withdraw(ctx, caller, handler, amount)
	s.record("withdraw", start, logrus.Fields{"caller": caller, "handler": handler, "amount": amount}, err)
	return acct, err
}

// ClaimRewards runs Ledger.ClaimRewards under the service lock.
func (s *Service) ClaimRewards(ctx context.Context, caller, handler domain.Principal) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	reward, err := s.ledger.ClaimRewards(ctx, caller, handler)
	s.record("claim", start, logrus.Fields{"caller": caller, "handler": handler, "reward": reward}, err)
	return reward, err
}

// AddProtocol registers a strategy (admin only).
func (s *Service) AddProtocol(ctx context.Context, caller domain.Principal, id uint32, name string, apy uint32) (domain.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	strategy, err := s.ledger.AddProtocol(ctx, caller, id, name, apy)
	s.record("add_protocol", start, logrus.Fields{"caller": caller, "strategy": id, "apy": apy}, err)
	return strategy, err
}

// UpdateProtocolStatus enables or disables a strategy (admin only).
func (s *Service) UpdateProtocolStatus(ctx context.Context, caller domain.Principal, id uint32, active bool) (domain.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	strategy, err := s.ledger.UpdateProtocolStatus(ctx, caller, id, active)
	s.record("update_protocol_status", start, logrus.Fields{"caller": caller, "strategy": id, "active": active}, err)
	return strategy, err
}

// UpdateProtocolAPY changes a strategy's APY (admin only).
func (s *Service) UpdateProtocolAPY(ctx context.Context, caller domain.Principal, id uint32, apy uint32) (domain.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	strategy, err := s.ledger.UpdateProtocolAPY(ctx, caller, id, apy)
	s.record("update_protocol_apy", start, logrus.Fields{"caller": caller, "strategy": id, "apy": apy}, err)
	return strategy, err
}

// SetAllocation sets a strategy's allocation weight (admin only).
func (s *Service) SetAllocation(ctx context.Context, caller domain.Principal, id uint32, weight uint32) (domain.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	alloc, err := s.ledger.SetAllocation(ctx, caller, id, weight)
	s.record("set_allocation", start, logrus.Fields{"caller": caller, "strategy": id, "weight": weight}, err)
	return alloc, err
}

// SetPlatformFee records the platform fee (admin only).
func (s *Service) SetPlatformFee(ctx context.Context, caller domain.Principal, bps uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	err := s.ledger.SetPlatformFee(ctx, caller, bps)
	s.record("set_platform_fee", start, logrus.Fields{"caller": caller, "bps": bps}, err)
	return err
}

// SetEmergencyShutdown toggles emergency shutdown (admin only).
func (s *Service) SetEmergencyShutdown(ctx context.Context, caller domain.Principal, shutdown bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	err := s.ledger.SetEmergencyShutdown(ctx, caller, shutdown)
	s.record("set_emergency_shutdown", start, logrus.Fields{"caller": caller, "shutdown": shutdown}, err)
	return err
}

// SetDepositLimits replaces the deposit bounds (admin only).
func (s *Service) SetDepositLimits(ctx context.Context, caller domain.Principal, min, max uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	err := s.ledger.SetDepositLimits(ctx, caller, min, max)
	s.record("set_deposit_limits", start, logrus.Fields{"caller": caller, "min": min, "max": max}, err)
	return err
}

// WhitelistToken approves a handler (admin only).
func (s *Service) WhitelistToken(ctx context.Context, caller, handler domain.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	err := s.ledger.WhitelistToken(ctx, caller, handler)
	s.record("whitelist_token", start, logrus.Fields{"caller": caller, "handler": handler}, err)
	return err
}

// Sync persists state left behind by a halted commit.
func (s *Service) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Sync(ctx)
}

// Queries.

func (s *Service) GetProtocol(id uint32) (domain.Strategy, domain.Allocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.GetProtocol(id)
}

func (s *Service) ListProtocols() []domain.Strategy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.ListProtocols()
}

func (s *Service) GetAllocation(id uint32) (domain.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.GetAllocation(id)
}

func (s *Service) GetUserDeposit(p domain.Principal) domain.UserAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.GetUserDeposit(p)
}

func (s *Service) GetRewardAccount(p domain.Principal) domain.RewardAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.GetRewardAccount(p)
}

func (s *Service) GetTotalTVL() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.GetTotalTVL()
}

func (s *Service) IsWhitelisted(handler domain.Principal) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.IsWhitelisted(handler)
}

func (s *Service) WeightedAPY() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.WeightedAPY()
}

func (s *Service) PendingReward(ctx context.Context, p domain.Principal) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.PendingReward(ctx, p)
}

func (s *Service) Snapshot() *domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Snapshot()
}

// Audit re-checks the committed state invariants.
func (s *Service) Audit() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.observer.SetTVL(s.ledger.GetTotalTVL())
	if err := s.ledger.view().CheckInvariants(s.ledger.params.MaxStrategyID); err != nil {
		return err
	}
	_, err := s.ledger.Rebalance()
	return err
}
