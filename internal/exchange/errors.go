package exchange

import (
	"errors"
	"fmt"

	"github.com/atmx/dividend-exchange/internal/curve"
	"github.com/atmx/dividend-exchange/internal/dividend"
	"github.com/atmx/dividend-exchange/internal/fee"
	"github.com/atmx/dividend-exchange/internal/limits"
	"github.com/atmx/dividend-exchange/internal/lots"
	"github.com/atmx/dividend-exchange/internal/num"
	"github.com/atmx/dividend-exchange/internal/position"
	"github.com/atmx/dividend-exchange/internal/store"
)

// Error classes. Every error an operation returns matches exactly one of
// these with errors.Is, except infrastructure failures from the store.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrCurve               = errors.New("curve error")
	ErrInsufficientReserve = errors.New("insufficient reserve")
	ErrTransferFailed      = errors.New("transfer failed")
	ErrInvariant           = errors.New("invariant violation")
	ErrPaused              = errors.New("exchange is paused")
	ErrReentrant           = errors.New("reentrant call during settlement")
	ErrLimitExceeded       = errors.New("limit exceeded")
	ErrConflict            = errors.New("concurrent update")
)

// Leaf errors.
var (
	ErrZeroAmount          = fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	ErrInsufficientBalance = fmt.Errorf("%w: amount exceeds balance", ErrInvalidInput)
	ErrSelfTransfer        = fmt.Errorf("%w: cannot transfer to self", ErrInvalidInput)
	ErrMissingRecipient    = fmt.Errorf("%w: recipient required", ErrInvalidInput)
	ErrPurchaseTooSmall    = fmt.Errorf("%w: purchase too small to mint a token unit", ErrInvalidInput)
	ErrLotNotFound         = fmt.Errorf("%w: lot not found", ErrInvalidInput)
	ErrLotSold             = fmt.Errorf("%w: lot already sold", ErrInvalidInput)
	ErrLotRequired         = fmt.Errorf("%w: balance moves only by lot", ErrInvalidInput)
	ErrNothingToWithdraw   = fmt.Errorf("%w: no dividends to withdraw", ErrInsufficientReserve)
)

var classes = []struct {
	err  error
	name string
}{
	{ErrInvalidInput, "input"},
	{ErrCurve, "curve"},
	{ErrInsufficientReserve, "reserve"},
	{ErrTransferFailed, "transfer"},
	{ErrInvariant, "invariant"},
	{ErrPaused, "paused"},
	{ErrReentrant, "reentrant"},
	{ErrLimitExceeded, "limit"},
	{ErrConflict, "conflict"},
}

// Class names the class an error belongs to, or "internal".
func Class(err error) string {
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.name
		}
	}
	return "internal"
}

// classified attaches an exchange error to a lower-layer error without
// changing its message.
type classified struct {
	kind error
	err  error
}

func (c *classified) Error() string   { return c.err.Error() }
func (c *classified) Unwrap() []error { return []error{c.kind, c.err} }

// leaves maps lower-package sentinels onto the taxonomy. Order matters:
// the first match wins.
var leaves = []struct {
	from, to error
}{
	{position.ErrZeroAmount, ErrZeroAmount},
	{position.ErrInsufficientBalance, ErrInsufficientBalance},
	{position.ErrSameAccount, ErrSelfTransfer},
	{lots.ErrLotNotFound, ErrLotNotFound},
	{lots.ErrLotSold, ErrLotSold},
	{lots.ErrZeroTokens, ErrZeroAmount},
	{lots.ErrCorrupt, ErrInvariant},
	{curve.ErrBelowMinimum, ErrPurchaseTooSmall},
	{curve.ErrExceedsSupply, ErrInvalidInput},
	{curve.ErrOverflow, ErrCurve},
	{dividend.ErrInsufficientDividends, ErrInsufficientReserve},
	{dividend.ErrPoolExhausted, ErrInsufficientReserve},
	{dividend.ErrNegativeShare, ErrInvariant},
	{dividend.ErrExcludedExceedsSupply, ErrInvariant},
	{limits.ErrPurchaseLimitExceeded, ErrLimitExceeded},
	{limits.ErrHoldingLimitExceeded, ErrLimitExceeded},
	{fee.ErrInvalidPercent, ErrInvalidInput},
	{store.ErrVersionConflict, ErrConflict},
	{store.ErrLotSequence, ErrInvariant},
	{num.ErrOverflow, ErrCurve},
	{num.ErrUnderflow, ErrInvariant},
	{num.ErrNegative, ErrInvariant},
	{num.ErrDivisionByZero, ErrCurve},
}

// classify returns err tagged with its exchange class. Already-classified
// errors and unknown infrastructure errors pass through unchanged.
func classify(err error) error {
	if err == nil || Class(err) != "internal" {
		return err
	}
	for _, l := range leaves {
		if errors.Is(err, l.from) {
			return &classified{kind: l.to, err: err}
		}
	}
	return err
}

// invariant reports a bookkeeping defect.
func invariant(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}
