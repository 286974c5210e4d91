package exchange

import (
	"fmt"

	"github.com/atmx/dividend-exchange/internal/fee"
	"github.com/atmx/dividend-exchange/internal/model"
	"github.com/atmx/dividend-exchange/internal/num"
)

// sell burns tokens at the top of the curve. The exit fee comes off the
// curve value and is distributed over the supply that remains.
func (b *book) sell(id model.AccountID, tokens num.Uint, lotID uint64) (model.Event, error) {
	if tokens.IsZero() {
		return model.Event{}, ErrZeroAmount
	}
	a, err := b.account(id)
	if err != nil {
		return model.Event{}, err
	}
	if tokens.GT(a.Balance) {
		return model.Event{}, fmt.Errorf("%w: selling %s, holding %s", ErrInsufficientBalance, tokens, a.Balance)
	}

	gross, err := b.ex.curve.TokensToValue(b.state.TotalSupply, tokens)
	if err != nil {
		return model.Event{}, err
	}
	net, exitFee, err := fee.Split(gross, b.ex.fees.Exit)
	if err != nil {
		return model.Event{}, err
	}

	// Burn realizes the seller's dividends before the balance drops.
	if err := b.ex.pos.Burn(b.state, a, tokens); err != nil {
		return model.Event{}, err
	}
	if b.state.CurveReserve, err = b.state.CurveReserve.Sub(gross); err != nil {
		return model.Event{}, fmt.Errorf("%w: curve reserve %s cannot cover %s", ErrInsufficientReserve, b.state.CurveReserve, gross)
	}
	credit, err := b.ex.div.CreditFee(b.state, exitFee, nil, num.Zero)
	if err != nil {
		return model.Event{}, err
	}

	switch b.ex.policy.Proceeds {
	case ProceedsToDividends:
		err = b.ex.div.CreditProceeds(b.state, a, net)
	default:
		err = b.pay(id, net)
	}
	if err != nil {
		return model.Event{}, err
	}

	return b.emit(model.Event{
		Kind:      model.EventSale,
		Account:   id,
		Value:     net,
		Tokens:    tokens,
		Fee:       exitFee,
		Dividends: credit.Distributed,
		LotID:     lotID,
	}), nil
}

// sellLot sells a whole lot and tombstones it.
func (b *book) sellLot(id model.AccountID, lotID uint64) error {
	a, err := b.account(id)
	if err != nil {
		return err
	}
	lb, err := b.lots(id)
	if err != nil {
		return err
	}
	l, err := lb.MarkSold(a, lotID, b.now)
	if err != nil {
		return err
	}
	_, err = b.sell(id, l.Tokens, lotID)
	return err
}

// exit sells everything caller holds and withdraws what it can claim.
func (b *book) exit(id model.AccountID) error {
	a, err := b.account(id)
	if err != nil {
		return err
	}
	if b.ex.policy.Lots == LotsExclusive {
		lb, err := b.lots(id)
		if err != nil {
			return err
		}
		for _, l := range lb.Open() {
			if err := b.sellLot(id, l.ID); err != nil {
				return err
			}
		}
	} else if !a.Balance.IsZero() {
		if _, err := b.sell(id, a.Balance, 0); err != nil {
			return err
		}
	}

	claimable, err := b.claimable(a)
	if err != nil {
		return err
	}
	if claimable.IsZero() {
		if len(b.events) == 0 {
			return ErrNothingToWithdraw
		}
		return nil
	}
	return b.withdraw(id, claimable)
}
