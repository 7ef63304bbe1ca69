package vault

import (
	"errors"
	"fmt"
)

// Code is the numeric error code reported to callers. Codes are stable and
// part of the API.
type Code uint32

// Error is a typed ledger failure. Sentinels below are compared with
// errors.Is; call sites wrap them with context using %w.
type Error struct {
	Code Code
	Kind string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Kind, e.Code)
}

var (
	ErrNotAuthorized         = &Error{Code: 100, Kind: "not-authorized"}
	ErrInvalidAmount         = &Error{Code: 101, Kind: "invalid-amount"}
	ErrInsufficientBalance   = &Error{Code: 102, Kind: "insufficient-balance"}
	ErrHandlerNotWhitelisted = &Error{Code: 103, Kind: "handler-not-whitelisted"}
	ErrStrategyDisabled      = &Error{Code: 104, Kind: "strategy-disabled"}
	ErrMaxDepositReached     = &Error{Code: 105, Kind: "max-deposit-reached"}
	ErrMinDepositNotMet      = &Error{Code: 106, Kind: "min-deposit-not-met"}
	ErrInvalidStrategyID     = &Error{Code: 107, Kind: "invalid-strategy-id"}
	ErrStrategyExists        = &Error{Code: 108, Kind: "strategy-exists"}
	ErrInvalidAPY            = &Error{Code: 109, Kind: "invalid-apy"}
	ErrInvalidName           = &Error{Code: 110, Kind: "invalid-name"}
	ErrInvalidHandler        = &Error{Code: 111, Kind: "invalid-handler"}
	ErrAllocationOverflow    = &Error{Code: 112, Kind: "allocation-overflow"}
	ErrNoReward              = &Error{Code: 113, Kind: "no-reward"}
	ErrGuardAlreadyHeld      = &Error{Code: 114, Kind: "guard-already-held"}
)

// AllErrors lists every sentinel in code order.
var AllErrors = []*Error{
	ErrNotAuthorized,
	ErrInvalidAmount,
	ErrInsufficientBalance,
	ErrHandlerNotWhitelisted,
	ErrStrategyDisabled,
	ErrMaxDepositReached,
	ErrMinDepositNotMet,
	ErrInvalidStrategyID,
	ErrStrategyExists,
	ErrInvalidAPY,
	ErrInvalidName,
	ErrInvalidHandler,
	ErrAllocationOverflow,
	ErrNoReward,
	ErrGuardAlreadyHeld,
}

// AsError extracts the ledger error from a wrapped chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
