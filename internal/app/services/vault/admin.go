package vault

import (
	"context"
	"fmt"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
)

// SetPlatformFee records the platform fee in basis points (at most 10%).
func (l *Ledger) SetPlatformFee(ctx context.Context, caller domain.Principal, bps uint32) error {
	return l.adminUpdate(ctx, caller, func(st *domain.State) error {
		if bps > domain.MaxPlatformFeeBps {
			return fmt.Errorf("platform fee %d bps exceeds %d: %w", bps, domain.MaxPlatformFeeBps, domain.ErrInvalidAmount)
		}
		st.PlatformFeeBps = bps
		return nil
	})
}

// SetEmergencyShutdown toggles the shutdown flag. While it is set, deposits,
// withdrawals and claims fail; admin operations keep working.
func (l *Ledger) SetEmergencyShutdown(ctx context.Context, caller domain.Principal, shutdown bool) error {
	err := l.adminUpdate(ctx, caller, func(st *domain.State) error {
		st.EmergencyShutdown = shutdown
		return nil
	})
	if err == nil {
		l.log.WithField("shutdown", shutdown).Warn("emergency shutdown flag changed")
	}
	return err
}

// SetDepositLimits replaces the per-account deposit bounds.
func (l *Ledger) SetDepositLimits(ctx context.Context, caller domain.Principal, min, max uint64) error {
	return l.adminUpdate(ctx, caller, func(st *domain.State) error {
		if min == 0 || min > max {
			return fmt.Errorf("deposit limits [%d, %d]: %w", min, max, domain.ErrInvalidAmount)
		}
		st.MinDeposit = min
		st.MaxDeposit = max
		return nil
	})
}

// WhitelistToken approves a handler. Only deployed contracts can be approved;
// the metadata checks run on first use. Like the other admin operations it
// does not read the chain height.
func (l *Ledger) WhitelistToken(ctx context.Context, caller, handlerID domain.Principal) error {
	release, err := l.guard.Acquire()
	if err != nil {
		return err
	}
	defer release()

	if err := l.authorize(caller); err != nil {
		return err
	}
	if handlerID.IsZero() {
		return fmt.Errorf("empty handler: %w", domain.ErrInvalidHandler)
	}
	op := l.begin()
	defer l.end()

	if _, err := l.gw.resolve(ctx, handlerID); err != nil {
		return err
	}

	op.st.Whitelist[handlerID] = domain.WhitelistEntry{Handler: handlerID, Approved: true}
	op.emit(domain.EventWhitelistToken, "", handlerID, 0)
	return l.commit(ctx, op, 0)
}

func (l *Ledger) adminUpdate(ctx context.Context, caller domain.Principal, mutate func(*domain.State) error) error {
	release, err := l.guard.Acquire()
	if err != nil {
		return err
	}
	defer release()

	if err := l.authorize(caller); err != nil {
		return err
	}
	op := l.begin()
	defer l.end()

	if err := mutate(op.st); err != nil {
		return err
	}
	return l.commit(ctx, op, 0)
}
