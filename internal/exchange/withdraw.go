package exchange

import (
	"fmt"

	"github.com/atmx/dividend-exchange/internal/model"
	"github.com/atmx/dividend-exchange/internal/num"
)

// claimable is what a may withdraw now, capped at the pool when the policy
// says so.
func (b *book) claimable(a *model.Account) (num.Uint, error) {
	c, err := b.ex.div.Claimable(b.state, a)
	if err != nil {
		return num.Zero, err
	}
	if b.ex.policy.CapWithdrawals {
		c = c.Min(b.state.DividendPool)
	}
	return c, nil
}

// withdraw releases amount of dividends. Ledger state is final before the
// payout is queued; the send itself happens at commit.
func (b *book) withdraw(id model.AccountID, amount num.Uint) error {
	if amount.IsZero() {
		return ErrZeroAmount
	}
	a, err := b.account(id)
	if err != nil {
		return err
	}
	claimable, err := b.claimable(a)
	if err != nil {
		return err
	}
	if claimable.IsZero() {
		return ErrNothingToWithdraw
	}
	if amount.GT(claimable) {
		return fmt.Errorf("%w: withdrawing %s, claimable %s", ErrInsufficientReserve, amount, claimable)
	}
	if err := b.ex.div.Withdraw(b.state, a, amount); err != nil {
		return err
	}
	if a.Withdrawn, err = a.Withdrawn.Add(amount); err != nil {
		return err
	}
	if err := b.pay(id, amount); err != nil {
		return err
	}
	b.emit(model.Event{
		Kind:    model.EventWithdrawal,
		Account: id,
		Value:   amount,
	})
	return nil
}

func (b *book) withdrawAll(id model.AccountID) error {
	a, err := b.account(id)
	if err != nil {
		return err
	}
	claimable, err := b.claimable(a)
	if err != nil {
		return err
	}
	if claimable.IsZero() {
		return ErrNothingToWithdraw
	}
	return b.withdraw(id, claimable)
}
