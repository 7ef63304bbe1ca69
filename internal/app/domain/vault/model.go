// Package vault defines the data model of the yield ledger: participant
// accounts, yield strategies, allocation weights, the handler whitelist and the
// single versioned State object every operation reads and stages.
package vault

import (
	"fmt"
	"sort"
)

const (
	// BasisPoints is 100% expressed in basis points.
	BasisPoints = 10000
	// MaxPlatformFeeBps caps the platform fee at 10%.
	MaxPlatformFeeBps = 1000
	// BlocksPerDay and DaysPerYear annualise the per-block reward.
	BlocksPerDay = 144
	DaysPerYear  = 365
)

// Parameter defaults.
const (
	DefaultMaxStrategyID = 16
	DefaultMinAPY        = 1
	DefaultMaxAPY        = 5000
	DefaultMinDeposit    = 1000
	DefaultMaxDeposit    = 1_000_000_000_000
)

// Params are the deployment constants of a ledger instance.
type Params struct {
	Admin         Principal `json:"admin"`
	Self          Principal `json:"self"`
	MaxStrategyID uint32    `json:"max_strategy_id"`
	MinAPY        uint32    `json:"min_apy"`
	MaxAPY        uint32    `json:"max_apy"`
	MinDeposit    uint64    `json:"min_deposit"`
	MaxDeposit    uint64    `json:"max_deposit"`
}

// WithDefaults fills zero-valued numeric fields.
func (p Params) WithDefaults() Params {
	if p.MaxStrategyID == 0 {
		p.MaxStrategyID = DefaultMaxStrategyID
	}
	if p.MinAPY == 0 {
		p.MinAPY = DefaultMinAPY
	}
	if p.MaxAPY == 0 {
		p.MaxAPY = DefaultMaxAPY
	}
	if p.MinDeposit == 0 {
		p.MinDeposit = DefaultMinDeposit
	}
	if p.MaxDeposit == 0 {
		p.MaxDeposit = DefaultMaxDeposit
	}
	return p
}

// Validate checks internal consistency.
func (p Params) Validate() error {
	if p.Admin.IsZero() {
		return fmt.Errorf("admin principal is required")
	}
	if p.Self.IsZero() {
		return fmt.Errorf("ledger principal is required")
	}
	if p.Admin == p.Self {
		return fmt.Errorf("admin and ledger principals must differ")
	}
	if p.MinAPY > p.MaxAPY {
		return fmt.Errorf("min apy %d exceeds max apy %d", p.MinAPY, p.MaxAPY)
	}
	if p.MaxAPY > BasisPoints {
		return fmt.Errorf("max apy %d exceeds %d bps", p.MaxAPY, BasisPoints)
	}
	if p.MinDeposit == 0 || p.MinDeposit > p.MaxDeposit {
		return fmt.Errorf("invalid deposit bounds [%d, %d]", p.MinDeposit, p.MaxDeposit)
	}
	return nil
}

// UserAccount is a participant's deposited principal and accrual checkpoint.
type UserAccount struct {
	Principal  Principal `json:"principal"`
	Balance    uint64    `json:"balance"`
	Checkpoint uint64    `json:"checkpoint"`
}

// RewardAccount tracks distributed yield. Pending is reserved for a future
// accrual buffer and is never written by the reward path.
type RewardAccount struct {
	Principal Principal `json:"principal"`
	Pending   uint64    `json:"pending"`
	Claimed   uint64    `json:"claimed"`
}

// Strategy is a registered yield strategy.
type Strategy struct {
	ID     uint32 `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	APY    uint32 `json:"apy"`
}

// Allocation is the basis-point weight assigned to a strategy.
type Allocation struct {
	StrategyID uint32 `json:"strategy_id"`
	Weight     uint32 `json:"weight"`
}

// WhitelistEntry marks an asset handler as usable by the ledger.
type WhitelistEntry struct {
	Handler  Principal `json:"handler"`
	Approved bool      `json:"approved"`
}

// State is the complete ledger state. Operations never mutate the live State;
// they stage changes on a Clone and the clone replaces the live state on
// commit.
type State struct {
	Version           uint64                       `json:"version"`
	Accounts          map[Principal]UserAccount    `json:"accounts"`
	Rewards           map[Principal]RewardAccount  `json:"rewards"`
	Strategies        map[uint32]Strategy          `json:"strategies"`
	StrategyOrder     []uint32                     `json:"strategy_order"`
	Allocations       map[uint32]Allocation        `json:"allocations"`
	Whitelist         map[Principal]WhitelistEntry `json:"whitelist"`
	TotalValueLocked  uint64                       `json:"total_value_locked"`
	PlatformFeeBps    uint32                       `json:"platform_fee_bps"`
	MinDeposit        uint64                       `json:"min_deposit"`
	MaxDeposit        uint64                       `json:"max_deposit"`
	EmergencyShutdown bool                         `json:"emergency_shutdown"`
}

// NewState returns the initial state: empty maps, no shutdown, deposit bounds
// taken from params.
func NewState(p Params) *State {
	p = p.WithDefaults()
	return &State{
		Accounts:    make(map[Principal]UserAccount),
		Rewards:     make(map[Principal]RewardAccount),
		Strategies:  make(map[uint32]Strategy),
		Allocations: make(map[uint32]Allocation),
		Whitelist:   make(map[Principal]WhitelistEntry),
		MinDeposit:  p.MinDeposit,
		MaxDeposit:  p.MaxDeposit,
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	out := *s
	out.Accounts = make(map[Principal]UserAccount, len(s.Accounts))
	for k, v := range s.Accounts {
		out.Accounts[k] = v
	}
	out.Rewards = make(map[Principal]RewardAccount, len(s.Rewards))
	for k, v := range s.Rewards {
		out.Rewards[k] = v
	}
	out.Strategies = make(map[uint32]Strategy, len(s.Strategies))
	for k, v := range s.Strategies {
		out.Strategies[k] = v
	}
	out.Allocations = make(map[uint32]Allocation, len(s.Allocations))
	for k, v := range s.Allocations {
		out.Allocations[k] = v
	}
	out.Whitelist = make(map[Principal]WhitelistEntry, len(s.Whitelist))
	for k, v := range s.Whitelist {
		out.Whitelist[k] = v
	}
	out.StrategyOrder = append([]uint32(nil), s.StrategyOrder...)
	return &out
}

// Normalize replaces nil maps, which appear after decoding an empty snapshot.
func (s *State) Normalize() {
	if s.Accounts == nil {
		s.Accounts = make(map[Principal]UserAccount)
	}
	if s.Rewards == nil {
		s.Rewards = make(map[Principal]RewardAccount)
	}
	if s.Strategies == nil {
		s.Strategies = make(map[uint32]Strategy)
	}
	if s.Allocations == nil {
		s.Allocations = make(map[uint32]Allocation)
	}
	if s.Whitelist == nil {
		s.Whitelist = make(map[Principal]WhitelistEntry)
	}
}

// Account returns the participant's account or a zero account bound to p.
func (s *State) Account(p Principal) UserAccount {
	if acct, ok := s.Accounts[p]; ok {
		return acct
	}
	return UserAccount{Principal: p}
}

// RewardAccount returns the participant's reward record or a zero record.
func (s *State) RewardAccount(p Principal) RewardAccount {
	if r, ok := s.Rewards[p]; ok {
		return r
	}
	return RewardAccount{Principal: p}
}

// IsWhitelisted reports whether the handler is approved.
func (s *State) IsWhitelisted(handler Principal) bool {
	entry, ok := s.Whitelist[handler]
	return ok && entry.Approved
}

// SumBalances returns Σ balances and whether the sum overflowed.
func (s *State) SumBalances() (uint64, bool) {
	var total uint64
	for _, acct := range s.Accounts {
		next := total + acct.Balance
		if next < total {
			return 0, false
		}
		total = next
	}
	return total, true
}

// SortedPrincipals returns the account holders in a stable order.
func (s *State) SortedPrincipals() []Principal {
	out := make([]Principal, 0, len(s.Accounts))
	for p := range s.Accounts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CheckInvariants verifies the properties that must hold after every
// completed operation.
func (s *State) CheckInvariants(maxStrategyID uint32) error {
	sum, ok := s.SumBalances()
	if !ok {
		return fmt.Errorf("balance sum overflows")
	}
	if sum != s.TotalValueLocked {
		return fmt.Errorf("tvl %d != sum of balances %d", s.TotalValueLocked, sum)
	}

	if len(s.StrategyOrder) != len(s.Strategies) {
		return fmt.Errorf("strategy order has %d ids, registry has %d", len(s.StrategyOrder), len(s.Strategies))
	}
	seen := make(map[uint32]struct{}, len(s.StrategyOrder))
	var weights uint64
	for _, id := range s.StrategyOrder {
		if id == 0 || id > maxStrategyID {
			return fmt.Errorf("strategy id %d outside [1, %d]", id, maxStrategyID)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("strategy id %d registered twice", id)
		}
		seen[id] = struct{}{}
		if _, ok := s.Strategies[id]; !ok {
			return fmt.Errorf("strategy id %d ordered but not registered", id)
		}
		alloc, ok := s.Allocations[id]
		if !ok {
			return fmt.Errorf("strategy id %d has no allocation", id)
		}
		weights += uint64(alloc.Weight)
	}
	if weights > BasisPoints {
		return fmt.Errorf("allocation weights sum to %d bps", weights)
	}
	if s.PlatformFeeBps > MaxPlatformFeeBps {
		return fmt.Errorf("platform fee %d bps exceeds %d", s.PlatformFeeBps, MaxPlatformFeeBps)
	}
	return nil
}
