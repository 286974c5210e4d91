package exchange

import (
	"fmt"

	"github.com/atmx/dividend-exchange/internal/fee"
	"github.com/atmx/dividend-exchange/internal/model"
	"github.com/atmx/dividend-exchange/internal/num"
)

// buy mints tokens for value. The entry fee comes off before the curve
// prices the principal and is distributed to the holders that existed
// before this purchase.
func (b *book) buy(id model.AccountID, value num.Uint, kind model.EventKind) (model.Event, error) {
	if value.IsZero() {
		return model.Event{}, ErrZeroAmount
	}
	if err := b.ex.limiter.CheckPurchase(value); err != nil {
		return model.Event{}, err
	}
	principal, entryFee, err := fee.Split(value, b.ex.fees.Entry)
	if err != nil {
		return model.Event{}, err
	}
	tokens, err := b.ex.curve.ValueToTokens(b.state.TotalSupply, principal)
	if err != nil {
		return model.Event{}, err
	}
	if tokens.IsZero() {
		return model.Event{}, fmt.Errorf("%w: %s buys nothing at supply %s", ErrPurchaseTooSmall, value, b.state.TotalSupply)
	}

	a, err := b.account(id)
	if err != nil {
		return model.Event{}, err
	}
	if err := b.ex.limiter.CheckHolding(a.Balance, tokens); err != nil {
		return model.Event{}, err
	}
	if err := b.mint(a, tokens, value); err != nil {
		return model.Event{}, err
	}
	if b.state.CurveReserve, err = b.state.CurveReserve.Add(principal); err != nil {
		return model.Event{}, err
	}

	// The buyer's own tokens are excluded: the fee goes to prior holders.
	credit, err := b.ex.div.CreditFee(b.state, entryFee, a, tokens)
	if err != nil {
		return model.Event{}, err
	}
	if kind == model.EventPurchase {
		if a.Invested, err = a.Invested.Add(value); err != nil {
			return model.Event{}, err
		}
	}

	return b.emit(model.Event{
		Kind:      kind,
		Account:   id,
		Value:     value,
		Tokens:    tokens,
		Fee:       entryFee,
		Dividends: credit.Distributed,
		LotID:     b.lastLot(a),
	}), nil
}

// mint raises a's balance and, in exclusive lot mode, records the lot.
func (b *book) mint(a *model.Account, tokens, valueCost num.Uint) error {
	if err := b.ex.pos.Mint(b.state, a, tokens); err != nil {
		return err
	}
	if b.ex.policy.Lots != LotsExclusive {
		return nil
	}
	lb, err := b.lots(a.ID)
	if err != nil {
		return err
	}
	_, err = lb.Append(a, tokens, valueCost, b.ex.curve.Unit(), b.now)
	return err
}

func (b *book) lastLot(a *model.Account) uint64 {
	if b.ex.policy.Lots != LotsExclusive {
		return 0
	}
	return a.LastLotID
}

// reinvest converts all claimable dividends into a purchase without paying
// anything out.
func (b *book) reinvest(id model.AccountID) error {
	a, err := b.account(id)
	if err != nil {
		return err
	}
	amount, err := b.claimable(a)
	if err != nil {
		return err
	}
	if amount.IsZero() {
		return ErrNothingToWithdraw
	}
	if err := b.ex.div.Withdraw(b.state, a, amount); err != nil {
		return err
	}
	_, err = b.buy(id, amount, model.EventReinvestment)
	return err
}
