package vault

import (
	"fmt"
	"math"
	"math/big"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
)

// rewardDenominator is bps × blocks per day × days per year.
var rewardDenominator = big.NewInt(domain.BasisPoints * domain.BlocksPerDay * domain.DaysPerYear)

// WeightedAPY blends the APY of every active registered strategy by its
// allocation weight. Each term is truncated separately.
func WeightedAPY(st *domain.State) uint64 {
	var total uint64
	for _, id := range st.StrategyOrder {
		strategy, ok := st.Strategies[id]
		if !ok {
			panic(fmt.Sprintf("vault: strategy %d ordered but not registered", id))
		}
		if !strategy.Active {
			continue
		}
		total += uint64(strategy.APY) * uint64(mustAllocation(st, id).Weight) / domain.BasisPoints
	}
	return total
}

// Reward is floor(balance × weightedAPY × blocks / (10000 × 144 × 365)). The
// product is computed in arbitrary precision; a result that does not fit in
// 64 bits saturates.
func Reward(balance, weightedAPY, blocksElapsed uint64) uint64 {
	if balance == 0 || weightedAPY == 0 || blocksElapsed == 0 {
		return 0
	}
	n := new(big.Int).SetUint64(balance)
	n.Mul(n, new(big.Int).SetUint64(weightedAPY))
	n.Mul(n, new(big.Int).SetUint64(blocksElapsed))
	n.Quo(n, rewardDenominator)
	if !n.IsUint64() {
		return math.MaxUint64
	}
	return n.Uint64()
}

// pendingReward is the reward accrued by acct at height current.
func pendingReward(st *domain.State, acct domain.UserAccount, current uint64) uint64 {
	if current <= acct.Checkpoint {
		return 0
	}
	return Reward(acct.Balance, WeightedAPY(st), current-acct.Checkpoint)
}

func mustAllocation(st *domain.State, id uint32) domain.Allocation {
	alloc, ok := st.Allocations[id]
	if !ok {
		panic(fmt.Sprintf("vault: strategy %d has no allocation record", id))
	}
	return alloc
}
