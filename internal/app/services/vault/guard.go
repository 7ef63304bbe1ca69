package vault

import (
	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
)

// Guard is the global reentrancy lock. It is advisory and binary: it rejects
// a call that re-enters the ledger from inside an in-flight operation (for
// example from a token's transfer hook). It does not provide mutual exclusion
// between goroutines; Service serializes top-level calls for that.
type Guard struct {
	held bool
}

// Acquire marks the guard held and returns the release function. Callers
// must defer the release immediately so it runs on every exit path.
func (g *Guard) Acquire() (release func(), err error) {
	if g.held {
		return nil, domain.ErrGuardAlreadyHeld
	}
	g.held = true
	return g.Release, nil
}

// Release clears the guard unconditionally.
func (g *Guard) Release() {
	g.held = false
}

// Held reports whether an operation is in flight.
func (g *Guard) Held() bool {
	return g.held
}
