// Package fee splits trade value into a taxed principal and a dividend fee.
//
// Buys take the fee from the incoming value before the curve prices the
// principal; sells take it from the curve value after pricing. Transfers take
// it in tokens.
package fee

import (
	"errors"
	"fmt"

	"github.com/atmx/dividend-exchange/internal/num"
)

// ErrInvalidPercent is returned for percentages of 100 or more.
var ErrInvalidPercent = errors.New("fee: percent must be below 100")

var hundred = num.NewUint(100)

// Percent is a whole-number fee percentage in [0, 100).
type Percent uint8

// Validate checks the percentage range.
func (p Percent) Validate() error {
	if p >= 100 {
		return fmt.Errorf("%w: %d", ErrInvalidPercent, p)
	}
	return nil
}

// Split returns principal and fee where fee = floor(amount*p/100) and
// principal = amount - fee.
func Split(amount num.Uint, p Percent) (principal, fee num.Uint, err error) {
	if err := p.Validate(); err != nil {
		return num.Zero, num.Zero, err
	}
	scaled, err := amount.Mul(num.NewUint(uint64(p)))
	if err != nil {
		return num.Zero, num.Zero, fmt.Errorf("fee: split %s: %w", amount, err)
	}
	fee, _ = scaled.Div(hundred)
	principal, _ = amount.Sub(fee)
	return principal, fee, nil
}

// GrossUp returns the smallest amount whose Split principal is at least net.
func GrossUp(net num.Uint, p Percent) (num.Uint, error) {
	if err := p.Validate(); err != nil {
		return num.Zero, err
	}
	if p == 0 || net.IsZero() {
		return net, nil
	}
	scaled, err := net.Mul(hundred)
	if err != nil {
		return num.Zero, fmt.Errorf("fee: gross up %s: %w", net, err)
	}
	keep := num.NewUint(uint64(100 - p))
	q, r, _ := scaled.DivMod(keep)
	if !r.IsZero() {
		q, _ = q.Add(num.NewUint(1))
	}
	return q, nil
}

// Schedule holds the fee for each trade kind.
type Schedule struct {
	Entry    Percent `json:"entry"`
	Exit     Percent `json:"exit"`
	Transfer Percent `json:"transfer"`
}

// Validate checks every percentage.
func (s Schedule) Validate() error {
	for _, p := range []Percent{s.Entry, s.Exit, s.Transfer} {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}
