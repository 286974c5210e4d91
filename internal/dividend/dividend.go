// Package dividend implements the profit-per-share accumulator that gives
// every holder an O(1) claim on fees without iterating the holder set.
//
// A fee credit raises the global scaled ProfitPerShare by fee*Magnitude /
// eligibleSupply. Each account keeps a signed PayoutsTo so that its
// outstanding share is
//
//	share = ProfitPerShare*Balance - PayoutsTo      (scaled by Magnitude)
//	claimable = floor(share / Magnitude) + Unclaimed
//
// Any balance change moves PayoutsTo by ProfitPerShare*delta, which leaves
// the share untouched: minting does not buy into past fees and burning does
// not forfeit earned ones.
package dividend

import (
	"errors"
	"fmt"

	"github.com/atmx/dividend-exchange/internal/model"
	"github.com/atmx/dividend-exchange/internal/num"
)

// Magnitude is the fixed-point scale of ProfitPerShare, 2^64.
var Magnitude = num.Pow2(64)

var (
	// ErrInsufficientDividends is returned when a withdrawal exceeds the
	// account's claimable dividends.
	ErrInsufficientDividends = errors.New("dividend: amount exceeds claimable dividends")

	// ErrPoolExhausted is returned when a withdrawal exceeds the value the
	// pool actually holds.
	ErrPoolExhausted = errors.New("dividend: amount exceeds custodied dividend pool")

	// ErrNegativeShare flags an account whose PayoutsTo exceeds its
	// theoretical share. It indicates a bookkeeping defect.
	ErrNegativeShare = errors.New("dividend: negative dividend share")

	// ErrExcludedExceedsSupply is returned when a credit excludes more
	// tokens than the supply holds.
	ErrExcludedExceedsSupply = errors.New("dividend: excluded tokens exceed supply")
)

// Distributor credits fees to holders and reports claims.
type Distributor interface {
	// CreditFee distributes amount over the supply minus excluded tokens held
	// by exclude (which may be nil when excluded is zero).
	CreditFee(st *model.GlobalState, amount num.Uint, exclude *model.Account, excluded num.Uint) (Credit, error)

	// Claimable returns the dividends the account may withdraw now.
	Claimable(st *model.GlobalState, a *model.Account) (num.Uint, error)
}

// Credit describes the effect of one CreditFee call.
type Credit struct {
	// Distributed is the value spread to holders, including any pending
	// fees folded in. Zero when no eligible holder existed.
	Distributed num.Uint
	// Increment is the rise in ProfitPerShare.
	Increment num.Uint
}

// Ledger is the accumulator implementation. It is stateless; all state lives
// in the GlobalState and Account values passed in. Methods compute every new
// value before assigning any, so a failed call leaves its inputs unchanged.
type Ledger struct{}

// NewLedger returns a Ledger.
func NewLedger() *Ledger { return &Ledger{} }

var _ Distributor = (*Ledger)(nil)

// CreditFee implements Distributor. Fees arriving with no eligible holder
// accumulate in PendingFees and are folded into the next distribution. The
// scaled remainder of each division carries forward in ProfitRemainder.
func (l *Ledger) CreditFee(st *model.GlobalState, amount num.Uint, exclude *model.Account, excluded num.Uint) (Credit, error) {
	if amount.IsZero() {
		return Credit{}, nil
	}
	collected, err := st.FeesCollected.Add(amount)
	if err != nil {
		return Credit{}, err
	}
	pool, err := st.DividendPool.Add(amount)
	if err != nil {
		return Credit{}, err
	}
	eligible, err := st.TotalSupply.Sub(excluded)
	if err != nil {
		return Credit{}, fmt.Errorf("%w: %s > %s", ErrExcludedExceedsSupply, excluded, st.TotalSupply)
	}

	if eligible.IsZero() {
		pending, err := st.PendingFees.Add(amount)
		if err != nil {
			return Credit{}, err
		}
		st.FeesCollected, st.DividendPool, st.PendingFees = collected, pool, pending
		return Credit{}, nil
	}

	total, err := amount.Add(st.PendingFees)
	if err != nil {
		return Credit{}, err
	}
	scaled, err := total.Mul(Magnitude)
	if err != nil {
		return Credit{}, err
	}
	scaled, err = scaled.Add(st.ProfitRemainder)
	if err != nil {
		return Credit{}, err
	}
	inc, rem, _ := scaled.DivMod(eligible)
	pps, err := st.ProfitPerShare.Add(inc)
	if err != nil {
		return Credit{}, err
	}

	// The excluded tokens were already priced in at the old ProfitPerShare;
	// move their payouts up by the increment so they gain nothing here.
	var payouts num.Int
	if exclude != nil && !excluded.IsZero() {
		payouts, err = shift(exclude.PayoutsTo, inc, excluded, true)
		if err != nil {
			return Credit{}, err
		}
	}

	st.FeesCollected, st.DividendPool = collected, pool
	st.PendingFees = num.Zero
	st.ProfitPerShare, st.ProfitRemainder = pps, rem
	if exclude != nil && !excluded.IsZero() {
		exclude.PayoutsTo = payouts
	}
	return Credit{Distributed: total, Increment: inc}, nil
}

// Share returns the account's outstanding scaled share. It fails with
// ErrNegativeShare if PayoutsTo exceeds ProfitPerShare*Balance.
func (l *Ledger) Share(st *model.GlobalState, a *model.Account) (num.Uint, error) {
	theoretical, err := scaledBalance(st.ProfitPerShare, a.Balance)
	if err != nil {
		return num.Zero, err
	}
	share, err := theoretical.Sub(a.PayoutsTo)
	if err != nil {
		return num.Zero, err
	}
	if share.Sign() < 0 {
		return num.Zero, fmt.Errorf("%w: account %s share %s", ErrNegativeShare, a.ID, share)
	}
	return share.Uint()
}

// Claimable implements Distributor: floor(share / Magnitude) + Unclaimed.
func (l *Ledger) Claimable(st *model.GlobalState, a *model.Account) (num.Uint, error) {
	share, err := l.Share(st, a)
	if err != nil {
		return num.Zero, err
	}
	whole, _ := share.Div(Magnitude)
	return whole.Add(a.Unclaimed)
}

// Settle moves the whole-unit part of the account's share into Unclaimed,
// keeping the sub-unit fraction in the accumulator.
func (l *Ledger) Settle(st *model.GlobalState, a *model.Account) error {
	share, err := l.Share(st, a)
	if err != nil {
		return err
	}
	whole, frac, _ := share.DivMod(Magnitude)
	if whole.IsZero() {
		return nil
	}
	unclaimed, err := a.Unclaimed.Add(whole)
	if err != nil {
		return err
	}
	realized, _ := share.Sub(frac)
	delta, err := num.IntFrom(realized)
	if err != nil {
		return err
	}
	payouts, err := a.PayoutsTo.Add(delta)
	if err != nil {
		return err
	}
	a.Unclaimed, a.PayoutsTo = unclaimed, payouts
	return nil
}

// OnBalanceIncrease prices new tokens in at the current ProfitPerShare.
// Call before the balance is raised.
func (l *Ledger) OnBalanceIncrease(st *model.GlobalState, a *model.Account, delta num.Uint) error {
	payouts, err := shift(a.PayoutsTo, st.ProfitPerShare, delta, true)
	if err != nil {
		return err
	}
	a.PayoutsTo = payouts
	return nil
}

// OnBalanceDecrease realizes the account's earned dividends and then prices
// the departing tokens out. Call before the balance is lowered.
func (l *Ledger) OnBalanceDecrease(st *model.GlobalState, a *model.Account, delta num.Uint) error {
	if delta.GT(a.Balance) {
		return fmt.Errorf("dividend: decrease %s exceeds balance %s", delta, a.Balance)
	}
	saved := *a
	if err := l.Settle(st, a); err != nil {
		return err
	}
	payouts, err := shift(a.PayoutsTo, st.ProfitPerShare, delta, false)
	if err != nil {
		*a = saved
		return err
	}
	a.PayoutsTo = payouts
	return nil
}

// Withdraw releases amount of the account's dividends from the pool.
func (l *Ledger) Withdraw(st *model.GlobalState, a *model.Account, amount num.Uint) error {
	claimable, err := l.Claimable(st, a)
	if err != nil {
		return err
	}
	if amount.GT(claimable) {
		return fmt.Errorf("%w: %s > %s", ErrInsufficientDividends, amount, claimable)
	}
	pool, err := st.DividendPool.Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: %s > %s", ErrPoolExhausted, amount, st.DividendPool)
	}
	paid, err := st.DividendsPaid.Add(amount)
	if err != nil {
		return err
	}
	saved := *a
	if err := l.Settle(st, a); err != nil {
		return err
	}
	unclaimed, err := a.Unclaimed.Sub(amount)
	if err != nil {
		// Settle left less than Claimable promised: a bookkeeping defect.
		*a = saved
		return fmt.Errorf("%w: unclaimed %s after settle, want %s", ErrNegativeShare, a.Unclaimed, amount)
	}
	a.Unclaimed = unclaimed
	st.DividendPool, st.DividendsPaid = pool, paid
	return nil
}

// CreditProceeds books value owed to a seller as unclaimed dividends.
func (l *Ledger) CreditProceeds(st *model.GlobalState, a *model.Account, amount num.Uint) error {
	unclaimed, err := a.Unclaimed.Add(amount)
	if err != nil {
		return err
	}
	pool, err := st.DividendPool.Add(amount)
	if err != nil {
		return err
	}
	a.Unclaimed, st.DividendPool = unclaimed, pool
	return nil
}

// scaledBalance returns pps*balance as a signed value.
func scaledBalance(pps, balance num.Uint) (num.Int, error) {
	p, err := pps.Mul(balance)
	if err != nil {
		return num.Int{}, fmt.Errorf("dividend: pps * balance: %w", err)
	}
	return num.IntFrom(p)
}

// shift returns payouts ± pps*delta.
func shift(payouts num.Int, pps, delta num.Uint, up bool) (num.Int, error) {
	d, err := scaledBalance(pps, delta)
	if err != nil {
		return num.Int{}, err
	}
	if up {
		return payouts.Add(d)
	}
	return payouts.Sub(d)
}
