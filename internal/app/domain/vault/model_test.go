package vault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func principal(b byte) Principal {
	var u util.Uint160
	u[0] = b
	u[19] = 0xAA
	return PrincipalFromHash(u)
}

func TestParsePrincipal(t *testing.T) {
	var u util.Uint160
	u[0] = 0x01
	u[19] = 0xFE
	canonical := PrincipalFromHash(u)

	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"address", string(canonical), true},
		{"hash-0x", "0x" + u.StringLE(), true},
		{"hash-bare", u.StringLE(), true},
		{"padded", "  " + string(canonical) + " ", true},
		{"empty", "", false},
		{"garbage", "not-an-address", false},
		{"short-hash", "0x1234", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrincipal(tt.input)
			if !tt.ok {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidPrincipal))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, canonical, got)
			assert.Equal(t, "0x"+u.StringLE(), got.Hex())
		})
	}
}

func TestErrorsWrapAndMatch(t *testing.T) {
	wrapped := fmt.Errorf("deposit: %w", ErrMinDepositNotMet)
	assert.True(t, errors.Is(wrapped, ErrMinDepositNotMet))
	assert.False(t, errors.Is(wrapped, ErrMaxDepositReached))

	e, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, Code(106), e.Code)

	seen := map[Code]bool{}
	for i, e := range AllErrors {
		assert.Equal(t, Code(100+i), e.Code, e.Kind)
		assert.False(t, seen[e.Code])
		seen[e.Code] = true
	}
}

func TestParams_Validate(t *testing.T) {
	p := Params{Admin: principal(1), Self: principal(2)}.WithDefaults()
	require.NoError(t, p.Validate())

	bad := p
	bad.Self = bad.Admin
	assert.Error(t, bad.Validate())

	bad = p
	bad.MinAPY = 6000
	assert.Error(t, bad.Validate())

	bad = p
	bad.MinDeposit = bad.MaxDeposit + 1
	assert.Error(t, bad.Validate())

	assert.Error(t, Params{Self: principal(2)}.Validate())
}

func TestState_CloneIsDeep(t *testing.T) {
	s := NewState(Params{})
	user := principal(3)
	s.Accounts[user] = UserAccount{Principal: user, Balance: 10}
	s.Strategies[1] = Strategy{ID: 1, Name: "alpha", Active: true, APY: 500}
	s.StrategyOrder = []uint32{1}
	s.Allocations[1] = Allocation{StrategyID: 1}

	c := s.Clone()
	c.Accounts[user] = UserAccount{Principal: user, Balance: 99}
	c.StrategyOrder[0] = 7
	c.Allocations[1] = Allocation{StrategyID: 1, Weight: 10}

	assert.Equal(t, uint64(10), s.Accounts[user].Balance)
	assert.Equal(t, uint32(1), s.StrategyOrder[0])
	assert.Equal(t, uint32(0), s.Allocations[1].Weight)
}

func TestState_CheckInvariants(t *testing.T) {
	s := NewState(Params{})
	require.NoError(t, s.CheckInvariants(DefaultMaxStrategyID))

	user := principal(4)
	s.Accounts[user] = UserAccount{Principal: user, Balance: 50}
	assert.Error(t, s.CheckInvariants(DefaultMaxStrategyID), "tvl mismatch")
	s.TotalValueLocked = 50
	require.NoError(t, s.CheckInvariants(DefaultMaxStrategyID))

	s.Strategies[3] = Strategy{ID: 3, Name: "beta", APY: 100}
	s.StrategyOrder = []uint32{3}
	assert.Error(t, s.CheckInvariants(DefaultMaxStrategyID), "missing allocation")

	s.Allocations[3] = Allocation{StrategyID: 3, Weight: 10001}
	assert.Error(t, s.CheckInvariants(DefaultMaxStrategyID), "weights overflow")

	s.Allocations[3] = Allocation{StrategyID: 3, Weight: 10000}
	require.NoError(t, s.CheckInvariants(DefaultMaxStrategyID))
	assert.Error(t, s.CheckInvariants(2), "id out of range")
}

func TestState_Normalize(t *testing.T) {
	var s State
	s.Normalize()
	assert.NotNil(t, s.Accounts)
	assert.NotNil(t, s.Whitelist)
	assert.Equal(t, UserAccount{Principal: principal(9)}, s.Account(principal(9)))
	assert.False(t, s.IsWhitelisted(principal(9)))
}
