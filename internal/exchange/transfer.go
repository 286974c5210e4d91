package exchange

import (
	"fmt"

	"github.com/atmx/dividend-exchange/internal/fee"
	"github.com/atmx/dividend-exchange/internal/model"
	"github.com/atmx/dividend-exchange/internal/num"
)

// transfer moves tokens between accounts. The transfer fee is taken in
// tokens, which are burnt at curve value; that value becomes dividends for
// the holders that remain.
func (b *book) transfer(from, to model.AccountID, tokens num.Uint, lotID uint64) error {
	if tokens.IsZero() {
		return ErrZeroAmount
	}
	if to == "" {
		return ErrMissingRecipient
	}
	if from == to {
		return ErrSelfTransfer
	}
	sender, err := b.account(from)
	if err != nil {
		return err
	}
	if tokens.GT(sender.Balance) {
		return fmt.Errorf("%w: sending %s, holding %s", ErrInsufficientBalance, tokens, sender.Balance)
	}

	if b.ex.policy.ForceWithdrawOnTransfer {
		claimable, err := b.claimable(sender)
		if err != nil {
			return err
		}
		if !claimable.IsZero() {
			if err := b.withdraw(from, claimable); err != nil {
				return err
			}
		}
	}

	taxed, feeTokens, err := fee.Split(tokens, b.ex.fees.Transfer)
	if err != nil {
		return err
	}
	feeValue := num.Zero
	if !feeTokens.IsZero() {
		if feeValue, err = b.ex.curve.TokensToValue(b.state.TotalSupply, feeTokens); err != nil {
			return err
		}
		if err := b.ex.pos.Burn(b.state, sender, feeTokens); err != nil {
			return err
		}
		if b.state.CurveReserve, err = b.state.CurveReserve.Sub(feeValue); err != nil {
			return fmt.Errorf("%w: curve reserve cannot cover transfer fee %s", ErrInsufficientReserve, feeValue)
		}
	}

	receiver, err := b.account(to)
	if err != nil {
		return err
	}
	if err := b.ex.limiter.CheckHolding(receiver.Balance, taxed); err != nil {
		return err
	}
	if err := b.ex.pos.Move(b.state, sender, receiver, taxed); err != nil {
		return err
	}
	worth, err := b.ex.curve.TokensToValue(b.state.TotalSupply, taxed)
	if err != nil {
		return err
	}
	if b.ex.policy.Lots == LotsExclusive {
		// The receiver's lot is booked at what the tokens are worth now.
		lb, err := b.lots(to)
		if err != nil {
			return err
		}
		if _, err := lb.Append(receiver, taxed, worth, b.ex.curve.Unit(), b.now); err != nil {
			return err
		}
	}

	credit, err := b.ex.div.CreditFee(b.state, feeValue, nil, num.Zero)
	if err != nil {
		return err
	}

	b.emit(model.Event{
		Kind:         model.EventTransfer,
		Account:      from,
		Counterparty: to,
		Value:        worth,
		Tokens:       taxed,
		Fee:          feeValue,
		Dividends:    credit.Distributed,
		LotID:        lotID,
	})
	return nil
}

// transferLot moves a whole lot. The sender's lot is tombstoned and the
// receiver gets a fresh one.
func (b *book) transferLot(from, to model.AccountID, lotID uint64) error {
	if from == to {
		return ErrSelfTransfer
	}
	sender, err := b.account(from)
	if err != nil {
		return err
	}
	lb, err := b.lots(from)
	if err != nil {
		return err
	}
	l, err := lb.MarkSold(sender, lotID, b.now)
	if err != nil {
		return err
	}
	return b.transfer(from, to, l.Tokens, lotID)
}
