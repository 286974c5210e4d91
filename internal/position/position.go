// Package position holds token balances and total supply.
//
// Every balance change goes through a Hooks implementation before it is
// applied, so dividend accounting and balances never drift apart. New values
// are computed first; nothing is assigned unless the hook and all checked
// arithmetic succeed.
package position

import (
	"errors"
	"fmt"

	"github.com/atmx/dividend-exchange/internal/model"
	"github.com/atmx/dividend-exchange/internal/num"
)

var (
	ErrZeroAmount          = errors.New("position: amount must be positive")
	ErrInsufficientBalance = errors.New("position: amount exceeds balance")
	ErrSameAccount         = errors.New("position: move to the same account")
)

// Hooks is notified before an account's balance changes.
type Hooks interface {
	OnBalanceIncrease(st *model.GlobalState, a *model.Account, delta num.Uint) error
	OnBalanceDecrease(st *model.GlobalState, a *model.Account, delta num.Uint) error
}

// Ledger applies mints, burns and moves against a GlobalState.
type Ledger struct {
	hooks Hooks
}

// NewLedger creates a ledger that calls hooks on every balance change.
func NewLedger(hooks Hooks) *Ledger {
	return &Ledger{hooks: hooks}
}

// Mint creates amount tokens for a.
func (l *Ledger) Mint(st *model.GlobalState, a *model.Account, amount num.Uint) error {
	if amount.IsZero() {
		return ErrZeroAmount
	}
	supply, err := st.TotalSupply.Add(amount)
	if err != nil {
		return fmt.Errorf("position: mint: %w", err)
	}
	bal, err := a.Balance.Add(amount)
	if err != nil {
		return fmt.Errorf("position: mint: %w", err)
	}
	if err := l.hooks.OnBalanceIncrease(st, a, amount); err != nil {
		return err
	}
	st.TotalSupply, a.Balance = supply, bal
	return nil
}

// Burn destroys amount of a's tokens.
func (l *Ledger) Burn(st *model.GlobalState, a *model.Account, amount num.Uint) error {
	if amount.IsZero() {
		return ErrZeroAmount
	}
	bal, err := a.Balance.Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: %s > %s", ErrInsufficientBalance, amount, a.Balance)
	}
	supply, err := st.TotalSupply.Sub(amount)
	if err != nil {
		return fmt.Errorf("position: burn below zero supply: %w", err)
	}
	if err := l.hooks.OnBalanceDecrease(st, a, amount); err != nil {
		return err
	}
	st.TotalSupply, a.Balance = supply, bal
	return nil
}

// Move transfers amount from one account to another. Supply is unchanged.
func (l *Ledger) Move(st *model.GlobalState, from, to *model.Account, amount num.Uint) error {
	if amount.IsZero() {
		return ErrZeroAmount
	}
	if from.ID == to.ID {
		return ErrSameAccount
	}
	fromBal, err := from.Balance.Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: %s > %s", ErrInsufficientBalance, amount, from.Balance)
	}
	toBal, err := to.Balance.Add(amount)
	if err != nil {
		return fmt.Errorf("position: move: %w", err)
	}
	savedFrom := *from
	if err := l.hooks.OnBalanceDecrease(st, from, amount); err != nil {
		return err
	}
	if err := l.hooks.OnBalanceIncrease(st, to, amount); err != nil {
		*from = savedFrom
		return err
	}
	from.Balance, to.Balance = fromBal, toBal
	return nil
}
