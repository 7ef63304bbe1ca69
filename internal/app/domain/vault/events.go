package vault

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names an emitted ledger event.
type EventKind string

const (
	EventDeposit        EventKind = "deposit"
	EventWithdraw       EventKind = "withdraw"
	EventClaimRewards   EventKind = "claim-rewards"
	EventWhitelistToken EventKind = "whitelist-token"
)

// Event is the structured record delivered to off-chain observers after an
// operation commits.
type Event struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	User      Principal `json:"user,omitempty"`
	Handler   Principal `json:"handler"`
	Amount    uint64    `json:"amount,omitempty"`
	Block     uint64    `json:"block"`
	Version   uint64    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps an event with an id and the current time.
func NewEvent(kind EventKind, user, handler Principal, amount uint64) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		User:      user,
		Handler:   handler,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
	}
}
