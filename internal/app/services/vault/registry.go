package vault

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
)

const maxStrategyNameLen = 64

// AddProtocol registers a yield strategy. New strategies are active with a
// zero allocation weight; SetAllocation assigns their share.
func (l *Ledger) AddProtocol(ctx context.Context, caller domain.Principal, id uint32, name string, apy uint32) (domain.Strategy, error) {
	release, err := l.guard.Acquire()
	if err != nil {
		return domain.Strategy{}, err
	}
	defer release()

	if err := l.authorize(caller); err != nil {
		return domain.Strategy{}, err
	}
	op := l.begin()
	defer l.end()
	st := op.st

	if id == 0 || id > l.params.MaxStrategyID {
		return domain.Strategy{}, fmt.Errorf("strategy id %d outside [1, %d]: %w", id, l.params.MaxStrategyID, domain.ErrInvalidStrategyID)
	}
	if _, exists := st.Strategies[id]; exists {
		return domain.Strategy{}, fmt.Errorf("strategy %d: %w", id, domain.ErrStrategyExists)
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxStrategyNameLen {
		return domain.Strategy{}, fmt.Errorf("strategy name %q: %w", name, domain.ErrInvalidName)
	}
	if err := l.checkAPY(apy); err != nil {
		return domain.Strategy{}, err
	}

	strategy := domain.Strategy{ID: id, Name: name, Active: true, APY: apy}
	st.Strategies[id] = strategy
	st.Allocations[id] = domain.Allocation{StrategyID: id}
	st.StrategyOrder = append(st.StrategyOrder, id)

	if err := l.commit(ctx, op, 0); err != nil {
		return domain.Strategy{}, err
	}
	return strategy, nil
}

// UpdateProtocolStatus activates or deactivates a strategy. Inactive
// strategies keep their weight but contribute nothing to the weighted APY.
func (l *Ledger) UpdateProtocolStatus(ctx context.Context, caller domain.Principal, id uint32, active bool) (domain.Strategy, error) {
	return l.updateStrategy(ctx, caller, id, func(s *domain.Strategy) error {
		s.Active = active
		return nil
	})
}

// UpdateProtocolAPY changes a strategy's annual yield.
func (l *Ledger) UpdateProtocolAPY(ctx context.Context, caller domain.Principal, id uint32, apy uint32) (domain.Strategy, error) {
	return l.updateStrategy(ctx, caller, id, func(s *domain.Strategy) error {
		if err := l.checkAPY(apy); err != nil {
			return err
		}
		s.APY = apy
		return nil
	})
}

func (l *Ledger) updateStrategy(ctx context.Context, caller domain.Principal, id uint32, mutate func(*domain.Strategy) error) (domain.Strategy, error) {
	release, err := l.guard.Acquire()
	if err != nil {
		return domain.Strategy{}, err
	}
	defer release()

	if err := l.authorize(caller); err != nil {
		return domain.Strategy{}, err
	}
	op := l.begin()
	defer l.end()

	strategy, ok := op.st.Strategies[id]
	if !ok {
		return domain.Strategy{}, fmt.Errorf("strategy %d is not registered: %w", id, domain.ErrInvalidStrategyID)
	}
	if err := mutate(&strategy); err != nil {
		return domain.Strategy{}, err
	}
	op.st.Strategies[id] = strategy

	if err := l.commit(ctx, op, 0); err != nil {
		return domain.Strategy{}, err
	}
	return strategy, nil
}

// SetAllocation assigns weight basis points to a registered strategy. The
// change is rejected when the weights would sum past 100%.
func (l *Ledger) SetAllocation(ctx context.Context, caller domain.Principal, id uint32, weight uint32) (domain.Allocation, error) {
	release, err := l.guard.Acquire()
	if err != nil {
		return domain.Allocation{}, err
	}
	defer release()

	if err := l.authorize(caller); err != nil {
		return domain.Allocation{}, err
	}
	op := l.begin()
	defer l.end()
	st := op.st

	if _, ok := st.Strategies[id]; !ok {
		return domain.Allocation{}, fmt.Errorf("strategy %d is not registered: %w", id, domain.ErrInvalidStrategyID)
	}
	alloc := domain.Allocation{StrategyID: id, Weight: weight}
	st.Allocations[id] = alloc
	if _, err := rebalance(st); err != nil {
		return domain.Allocation{}, fmt.Errorf("allocate %d bps to strategy %d: %w", weight, id, err)
	}

	if err := l.commit(ctx, op, 0); err != nil {
		return domain.Allocation{}, err
	}
	return alloc, nil
}

// Rebalance checks the committed allocation table and returns the total
// weight in basis points.
func (l *Ledger) Rebalance() (uint64, error) {
	return rebalance(l.view())
}

// rebalance verifies that the weights of every registered strategy sum to at
// most 100%. Weights are never rescaled.
func rebalance(st *domain.State) (uint64, error) {
	var total uint64
	for _, id := range st.StrategyOrder {
		total += uint64(mustAllocation(st, id).Weight)
	}
	if total > domain.BasisPoints {
		return total, fmt.Errorf("weights sum to %d bps: %w", total, domain.ErrAllocationOverflow)
	}
	return total, nil
}

func (l *Ledger) checkAPY(apy uint32) error {
	if apy < l.params.MinAPY || apy > l.params.MaxAPY {
		return fmt.Errorf("apy %d outside [%d, %d]: %w", apy, l.params.MinAPY, l.params.MaxAPY, domain.ErrInvalidAPY)
	}
	return nil
}
