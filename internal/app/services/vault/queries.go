package vault

import (
	"context"
	"fmt"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
)

// Read-only queries. They never take the guard and read the in-flight view
// while an operation is calling out, so a handler observes staged effects.

// GetProtocol returns a registered strategy and its allocation.
func (l *Ledger) GetProtocol(id uint32) (domain.Strategy, domain.Allocation, bool) {
	st := l.view()
	strategy, ok := st.Strategies[id]
	if !ok {
		return domain.Strategy{}, domain.Allocation{}, false
	}
	return strategy, mustAllocation(st, id), true
}

// ListProtocols returns the strategies in registration order.
func (l *Ledger) ListProtocols() []domain.Strategy {
	st := l.view()
	out := make([]domain.Strategy, 0, len(st.StrategyOrder))
	for _, id := range st.StrategyOrder {
		out = append(out, st.Strategies[id])
	}
	return out
}

// GetAllocation returns the weight of a registered strategy.
func (l *Ledger) GetAllocation(id uint32) (domain.Allocation, error) {
	st := l.view()
	if _, ok := st.Strategies[id]; !ok {
		return domain.Allocation{}, fmt.Errorf("strategy %d is not registered: %w", id, domain.ErrInvalidStrategyID)
	}
	return mustAllocation(st, id), nil
}

// GetUserDeposit returns the participant's account; unknown principals get a
// zero account.
func (l *Ledger) GetUserDeposit(p domain.Principal) domain.UserAccount {
	return l.view().Account(p)
}

// GetRewardAccount returns the participant's reward record.
func (l *Ledger) GetRewardAccount(p domain.Principal) domain.RewardAccount {
	return l.view().RewardAccount(p)
}

// GetTotalTVL returns the sum of all balances.
func (l *Ledger) GetTotalTVL() uint64 {
	return l.view().TotalValueLocked
}

// IsWhitelisted reports whether the handler is approved.
func (l *Ledger) IsWhitelisted(handler domain.Principal) bool {
	return l.view().IsWhitelisted(handler)
}

// WeightedAPY returns the blended APY of the current allocation.
func (l *Ledger) WeightedAPY() uint64 {
	return WeightedAPY(l.view())
}

// PendingReward returns what ClaimRewards would pay at the current height.
func (l *Ledger) PendingReward(ctx context.Context, p domain.Principal) (uint64, error) {
	height, err := l.height(ctx)
	if err != nil {
		return 0, err
	}
	st := l.view()
	return pendingReward(st, st.Account(p), height), nil
}

// Snapshot returns a deep copy of the visible state.
func (l *Ledger) Snapshot() *domain.State {
	return l.view().Clone()
}
