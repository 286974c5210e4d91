package exchange

import (
	"context"
	"fmt"

	"github.com/atmx/dividend-exchange/internal/fee"
	"github.com/atmx/dividend-exchange/internal/lots"
	"github.com/atmx/dividend-exchange/internal/model"
	"github.com/atmx/dividend-exchange/internal/num"
)

// AccountView is an account with its derived figures.
type AccountView struct {
	model.Account
	Claimable num.Uint `json:"claimable"`
	// Value is what the balance would fetch on the curve before the exit fee.
	Value num.Uint `json:"value"`
}

// Quote is a priced but unexecuted trade.
type Quote struct {
	// Value is what the caller pays (buy) or receives (sell).
	Value num.Uint `json:"value"`
	// CurveValue is the amount the curve prices: principal on a buy, gross
	// value on a sell.
	CurveValue num.Uint `json:"curve_value"`
	Tokens     num.Uint `json:"tokens"`
	Fee        num.Uint `json:"fee"`
}

// State returns the global ledger state.
func (e *Exchange) State(ctx context.Context) (*model.GlobalState, error) {
	if err := e.rlock(ctx); err != nil {
		return nil, err
	}
	defer e.mu.RUnlock()
	return e.store.LoadState(ctx)
}

// Account returns an account with its claimable dividends.
func (e *Exchange) Account(ctx context.Context, id model.AccountID) (*AccountView, error) {
	if err := e.rlock(ctx); err != nil {
		return nil, err
	}
	defer e.mu.RUnlock()

	st, a, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	claimable, err := e.claimable(st, a)
	if err != nil {
		return nil, classify(err)
	}
	value, err := e.curve.TokensToValue(st.TotalSupply, a.Balance)
	if err != nil {
		return nil, classify(err)
	}
	return &AccountView{Account: *a, Claimable: claimable, Value: value}, nil
}

// Claimable returns the dividends id may withdraw now.
func (e *Exchange) Claimable(ctx context.Context, id model.AccountID) (num.Uint, error) {
	if err := e.rlock(ctx); err != nil {
		return num.Zero, err
	}
	defer e.mu.RUnlock()

	st, a, err := e.load(ctx, id)
	if err != nil {
		return num.Zero, err
	}
	c, err := e.claimable(st, a)
	return c, classify(err)
}

// BuyPrice is the value needed, entry fee included, to mint one more whole
// token.
func (e *Exchange) BuyPrice(ctx context.Context) (num.Uint, error) {
	st, err := e.State(ctx)
	if err != nil {
		return num.Zero, err
	}
	cost, err := e.curve.NextTokenCost(st.TotalSupply)
	if err != nil {
		return num.Zero, classify(err)
	}
	price, err := fee.GrossUp(cost, e.fees.Entry)
	return price, classify(err)
}

// SellPrice is the value, net of exit fee, released by burning the top whole
// token.
func (e *Exchange) SellPrice(ctx context.Context) (num.Uint, error) {
	st, err := e.State(ctx)
	if err != nil {
		return num.Zero, err
	}
	gross, err := e.curve.LastTokenValue(st.TotalSupply)
	if err != nil {
		return num.Zero, classify(err)
	}
	net, _, err := fee.Split(gross, e.fees.Exit)
	return net, classify(err)
}

// QuoteBuy prices a purchase of value without executing it.
func (e *Exchange) QuoteBuy(ctx context.Context, value num.Uint) (*Quote, error) {
	st, err := e.State(ctx)
	if err != nil {
		return nil, err
	}
	principal, entryFee, err := fee.Split(value, e.fees.Entry)
	if err != nil {
		return nil, classify(err)
	}
	tokens, err := e.curve.ValueToTokens(st.TotalSupply, principal)
	if err != nil {
		return nil, classify(err)
	}
	return &Quote{Value: value, CurveValue: principal, Tokens: tokens, Fee: entryFee}, nil
}

// QuoteSell prices a sale of tokens without executing it.
func (e *Exchange) QuoteSell(ctx context.Context, tokens num.Uint) (*Quote, error) {
	st, err := e.State(ctx)
	if err != nil {
		return nil, err
	}
	gross, err := e.curve.TokensToValue(st.TotalSupply, tokens)
	if err != nil {
		return nil, classify(err)
	}
	net, exitFee, err := fee.Split(gross, e.fees.Exit)
	if err != nil {
		return nil, classify(err)
	}
	return &Quote{Value: net, CurveValue: gross, Tokens: tokens, Fee: exitFee}, nil
}

// Lots returns every lot of an account, sold ones included.
func (e *Exchange) Lots(ctx context.Context, id model.AccountID) ([]model.Lot, error) {
	if err := e.rlock(ctx); err != nil {
		return nil, err
	}
	defer e.mu.RUnlock()

	lb, err := e.lotBook(ctx, id)
	if err != nil {
		return nil, err
	}
	return lb.All(), nil
}

// Lot returns one unsold lot. A sold lot answers ErrLotSold.
func (e *Exchange) Lot(ctx context.Context, id model.AccountID, lotID uint64) (*model.Lot, error) {
	if err := e.rlock(ctx); err != nil {
		return nil, err
	}
	defer e.mu.RUnlock()
	return e.openLot(ctx, id, lotID)
}

// LotReport computes the profit or loss of an unsold lot at current supply.
func (e *Exchange) LotReport(ctx context.Context, id model.AccountID, lotID uint64) (*lots.Report, error) {
	if err := e.rlock(ctx); err != nil {
		return nil, err
	}
	defer e.mu.RUnlock()

	l, err := e.openLot(ctx, id, lotID)
	if err != nil {
		return nil, err
	}
	st, err := e.store.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	r, err := lots.Evaluate(e.curve, st.TotalSupply, *l)
	if err != nil {
		return nil, classify(err)
	}
	return &r, nil
}

// History returns the events an account took part in.
func (e *Exchange) History(ctx context.Context, id model.AccountID) ([]model.Event, error) {
	if err := e.rlock(ctx); err != nil {
		return nil, err
	}
	defer e.mu.RUnlock()
	return e.store.EventsByAccount(ctx, id)
}

// rlock takes the read side of the trade lock. Every query holds it, so a
// query's loads all come from between the same two commits.
func (e *Exchange) rlock(ctx context.Context) error {
	if err := guard(ctx); err != nil {
		return err
	}
	e.mu.RLock()
	return nil
}

func (e *Exchange) openLot(ctx context.Context, id model.AccountID, lotID uint64) (*model.Lot, error) {
	lb, err := e.lotBook(ctx, id)
	if err != nil {
		return nil, err
	}
	l, err := lb.Get(lotID)
	if err != nil {
		return nil, classify(err)
	}
	return &l, nil
}

func (e *Exchange) load(ctx context.Context, id model.AccountID) (*model.GlobalState, *model.Account, error) {
	st, err := e.store.LoadState(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load state: %w", err)
	}
	a, err := e.store.LoadAccount(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load account %s: %w", id, err)
	}
	return st, a, nil
}

func (e *Exchange) claimable(st *model.GlobalState, a *model.Account) (num.Uint, error) {
	c, err := e.div.Claimable(st, a)
	if err != nil {
		return num.Zero, err
	}
	if e.policy.CapWithdrawals {
		c = c.Min(st.DividendPool)
	}
	return c, nil
}

func (e *Exchange) lotBook(ctx context.Context, id model.AccountID) (*lots.Book, error) {
	existing, err := e.store.LoadLots(ctx, id)
	if err != nil {
		return nil, err
	}
	lb, err := lots.NewBook(id, existing)
	return lb, classify(err)
}
