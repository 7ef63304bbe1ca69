package vault

import (
	"context"
	"fmt"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
)

// Deposit credits amount to caller's balance and pulls the assets from caller
// through the handler. The balance is credited before the transfer runs, so a
// reentrant read observes the post-deposit balance and a reentrant write is
// rejected by the guard.
func (l *Ledger) Deposit(ctx context.Context, caller, handlerID domain.Principal, amount uint64) (domain.UserAccount, error) {
	release, err := l.guard.Acquire()
	if err != nil {
		return domain.UserAccount{}, err
	}
	defer release()

	op := l.begin()
	defer l.end()
	st := op.st

	if st.EmergencyShutdown {
		return domain.UserAccount{}, fmt.Errorf("deposit: %w", domain.ErrStrategyDisabled)
	}
	if amount == 0 {
		return domain.UserAccount{}, fmt.Errorf("deposit: %w", domain.ErrInvalidAmount)
	}
	if amount < st.MinDeposit {
		return domain.UserAccount{}, fmt.Errorf("deposit %d below minimum %d: %w", amount, st.MinDeposit, domain.ErrMinDepositNotMet)
	}
	acct := st.Account(caller)
	balance := acct.Balance + amount
	if balance < acct.Balance || balance > st.MaxDeposit {
		return domain.UserAccount{}, fmt.Errorf("deposit would raise balance above %d: %w", st.MaxDeposit, domain.ErrMaxDepositReached)
	}
	tvl := st.TotalValueLocked + amount
	if tvl < st.TotalValueLocked {
		return domain.UserAccount{}, fmt.Errorf("deposit overflows total value locked: %w", domain.ErrInvalidAmount)
	}

	handler, err := l.gw.validate(ctx, st, op.cache, handlerID)
	if err != nil {
		return domain.UserAccount{}, err
	}
	height, err := l.height(ctx)
	if err != nil {
		return domain.UserAccount{}, err
	}

	acct.Balance = balance
	acct.Checkpoint = height
	st.Accounts[caller] = acct
	st.TotalValueLocked = tvl
	l.expose(op)

	op.emit(domain.EventDeposit, caller, handlerID, amount)
	if err := handler.Transfer(ctx, amount, caller, l.params.Self, nil); err != nil {
		return domain.UserAccount{}, l.settle(ctx, op, height, fmt.Errorf("deposit transfer from %s: %w", caller, err))
	}
	if _, err := rebalance(st); err != nil {
		// the assets are already in; keep the credit and halt
		return domain.UserAccount{}, l.halt(ctx, op, height, fmt.Errorf("deposit: %w", err))
	}
	if err := l.settle(ctx, op, height, nil); err != nil {
		return domain.UserAccount{}, err
	}
	return acct, nil
}

// Withdraw debits amount from caller's balance and pushes the assets back
// through the handler. Emergency shutdown blocks withdrawals exactly like
// deposits.
func (l *Ledger) Withdraw(ctx context.Context, caller, handlerID domain.Principal, amount uint64) (domain.UserAccount, error) {
	release, err := l.guard.Acquire()
	if err != nil {
		return domain.UserAccount{}, err
	}
	defer release()

	op := l.begin()
	defer l.end()
	st := op.st

	if amount == 0 {
		return domain.UserAccount{}, fmt.Errorf("withdraw: %w", domain.ErrInvalidAmount)
	}
	acct := st.Account(caller)
	if amount > acct.Balance {
		return domain.UserAccount{}, fmt.Errorf("withdraw %d exceeds balance %d: %w", amount, acct.Balance, domain.ErrInsufficientBalance)
	}
	if st.EmergencyShutdown {
		return domain.UserAccount{}, fmt.Errorf("withdraw: %w", domain.ErrStrategyDisabled)
	}

	handler, err := l.gw.validate(ctx, st, op.cache, handlerID)
	if err != nil {
		return domain.UserAccount{}, err
	}
	height, err := l.height(ctx)
	if err != nil {
		return domain.UserAccount{}, err
	}

	acct.Balance -= amount
	st.Accounts[caller] = acct
	st.TotalValueLocked -= amount
	l.expose(op)

	op.emit(domain.EventWithdraw, caller, handlerID, amount)
	if err := handler.Transfer(ctx, amount, l.params.Self, caller, nil); err != nil {
		return domain.UserAccount{}, l.settle(ctx, op, height, fmt.Errorf("withdraw transfer to %s: %w", caller, err))
	}
	if err := l.settle(ctx, op, height, nil); err != nil {
		return domain.UserAccount{}, err
	}
	return acct, nil
}

// ClaimRewards pays out the yield accrued since caller's checkpoint and
// restarts the accrual window at the current block.
func (l *Ledger) ClaimRewards(ctx context.Context, caller, handlerID domain.Principal) (uint64, error) {
	release, err := l.guard.Acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	op := l.begin()
	defer l.end()
	st := op.st

	if st.EmergencyShutdown {
		return 0, fmt.Errorf("claim: %w", domain.ErrStrategyDisabled)
	}
	handler, err := l.gw.validate(ctx, st, op.cache, handlerID)
	if err != nil {
		return 0, err
	}
	height, err := l.height(ctx)
	if err != nil {
		return 0, err
	}

	acct := st.Account(caller)
	reward := pendingReward(st, acct, height)
	if reward == 0 {
		return 0, fmt.Errorf("claim at block %d: %w", height, domain.ErrNoReward)
	}

	rewards := st.RewardAccount(caller)
	claimed := rewards.Claimed + reward
	if claimed < rewards.Claimed {
		return 0, fmt.Errorf("claimed rewards overflow: %w", domain.ErrInvalidAmount)
	}
	rewards.Claimed = claimed
	st.Rewards[caller] = rewards
	acct.Checkpoint = height
	st.Accounts[caller] = acct
	l.expose(op)

	op.emit(domain.EventClaimRewards, caller, handlerID, reward)
	if err := handler.Transfer(ctx, reward, l.params.Self, caller, nil); err != nil {
		return 0, l.settle(ctx, op, height, fmt.Errorf("reward transfer to %s: %w", caller, err))
	}
	if err := l.settle(ctx, op, height, nil); err != nil {
		return 0, err
	}
	return reward, nil
}
