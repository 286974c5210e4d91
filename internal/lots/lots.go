// Package lots tracks individual purchases per account.
//
// A Book is an append-only arena: lot N lives at index N-1 and sold lots stay
// in place as tombstones, so an identifier never refers to anything but the
// purchase it was issued for.
package lots

import (
	"errors"
	"fmt"
	"time"

	"github.com/atmx/dividend-exchange/internal/model"
	"github.com/atmx/dividend-exchange/internal/num"
)

var (
	ErrLotNotFound = errors.New("lots: lot not found")
	ErrLotSold     = errors.New("lots: lot already sold")
	ErrZeroTokens  = errors.New("lots: lot must hold tokens")
	ErrCorrupt     = errors.New("lots: book out of sequence")
)

// Valuer prices tokens at the current supply. curve.Curve satisfies it.
type Valuer interface {
	TokensToValue(supply, tokens num.Uint) (num.Uint, error)
}

// Book is one account's lots.
type Book struct {
	account model.AccountID
	lots    []model.Lot
	dirty   map[uint64]struct{}
}

// NewBook wraps an account's persisted lots. They must be ordered by ID and
// contiguous from 1.
func NewBook(account model.AccountID, existing []model.Lot) (*Book, error) {
	for i, l := range existing {
		if l.ID != uint64(i+1) || l.Account != account {
			return nil, fmt.Errorf("%w: index %d holds lot %s/%d", ErrCorrupt, i, l.Account, l.ID)
		}
	}
	lots := make([]model.Lot, len(existing))
	copy(lots, existing)
	return &Book{account: account, lots: lots, dirty: make(map[uint64]struct{})}, nil
}

// Len returns the number of lots ever issued, sold ones included.
func (b *Book) Len() int { return len(b.lots) }

// Append records a purchase of tokens for valueCost and returns the new lot.
// The account's LastLotID and OpenLots are advanced to match.
func (b *Book) Append(a *model.Account, tokens, valueCost, unit num.Uint, now time.Time) (model.Lot, error) {
	if tokens.IsZero() {
		return model.Lot{}, ErrZeroTokens
	}
	if a.ID != b.account || a.LastLotID != uint64(len(b.lots)) {
		return model.Lot{}, fmt.Errorf("%w: account %s last lot %d, book holds %d",
			ErrCorrupt, a.ID, a.LastLotID, len(b.lots))
	}
	price, err := AveragePrice(valueCost, tokens, unit)
	if err != nil {
		return model.Lot{}, err
	}
	l := model.Lot{
		Account:       b.account,
		ID:            uint64(len(b.lots) + 1),
		PurchasePrice: price,
		ValueCost:     valueCost,
		Tokens:        tokens,
		CreatedAt:     now,
	}
	b.lots = append(b.lots, l)
	b.dirty[l.ID] = struct{}{}
	a.LastLotID = l.ID
	a.OpenLots++
	return l, nil
}

// Get returns an unsold lot.
func (b *Book) Get(id uint64) (model.Lot, error) {
	if id == 0 || id > uint64(len(b.lots)) {
		return model.Lot{}, fmt.Errorf("%w: %s/%d", ErrLotNotFound, b.account, id)
	}
	l := b.lots[id-1]
	if l.Sold {
		return l, fmt.Errorf("%w: %s/%d", ErrLotSold, b.account, id)
	}
	return l, nil
}

// MarkSold tombstones a lot and returns it as it was before the sale.
func (b *Book) MarkSold(a *model.Account, id uint64, now time.Time) (model.Lot, error) {
	l, err := b.Get(id)
	if err != nil {
		return model.Lot{}, err
	}
	if a.OpenLots == 0 {
		return model.Lot{}, fmt.Errorf("%w: account %s has no open lots", ErrCorrupt, a.ID)
	}
	sold := l
	sold.Sold = true
	sold.SoldAt = &now
	b.lots[id-1] = sold
	b.dirty[id] = struct{}{}
	a.OpenLots--
	return l, nil
}

// All returns every lot, sold ones included.
func (b *Book) All() []model.Lot {
	out := make([]model.Lot, len(b.lots))
	copy(out, b.lots)
	return out
}

// Open returns the unsold lots.
func (b *Book) Open() []model.Lot {
	var out []model.Lot
	for _, l := range b.lots {
		if !l.Sold {
			out = append(out, l)
		}
	}
	return out
}

// OpenTokens sums the tokens in unsold lots.
func (b *Book) OpenTokens() (num.Uint, error) {
	total := num.Zero
	for _, l := range b.lots {
		if l.Sold {
			continue
		}
		var err error
		if total, err = total.Add(l.Tokens); err != nil {
			return num.Zero, err
		}
	}
	return total, nil
}

// Dirty returns the lots changed since the book was loaded, in ID order.
func (b *Book) Dirty() []model.Lot {
	var out []model.Lot
	for i, l := range b.lots {
		if _, ok := b.dirty[uint64(i+1)]; ok {
			out = append(out, l)
		}
	}
	return out
}

// AveragePrice is valueCost per whole token, floored.
func AveragePrice(valueCost, tokens, unit num.Uint) (num.Uint, error) {
	scaled, err := valueCost.Mul(unit)
	if err != nil {
		return num.Zero, fmt.Errorf("lots: purchase price: %w", err)
	}
	return scaled.Div(tokens)
}

// Report is the on-demand profit/loss of one lot.
type Report struct {
	Lot          model.Lot `json:"lot"`
	CurrentValue num.Uint  `json:"current_value"`
	ProfitLoss   num.Int   `json:"profit_loss"`
}

// Evaluate prices a lot against the current supply. Sold lots are reported
// with zero current value.
func Evaluate(v Valuer, supply num.Uint, l model.Lot) (Report, error) {
	r := Report{Lot: l}
	if !l.Sold {
		value, err := v.TokensToValue(supply, l.Tokens)
		if err != nil {
			return Report{}, err
		}
		r.CurrentValue = value
	}
	cur, err := num.IntFrom(r.CurrentValue)
	if err != nil {
		return Report{}, err
	}
	cost, err := num.IntFrom(l.ValueCost)
	if err != nil {
		return Report{}, err
	}
	if r.ProfitLoss, err = cur.Sub(cost); err != nil {
		return Report{}, err
	}
	return r, nil
}
