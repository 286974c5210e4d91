// Package units converts between base-unit integers and display decimals.
//
// A display amount such as "0.0000001" with 18 decimals is 10^11 base units.
// Conversion is exact: display strings with more fractional digits than the
// unit supports are rejected, never rounded.
package units

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/dividend-exchange/internal/num"
)

var (
	ErrNegative  = errors.New("units: amount must not be negative")
	ErrPrecision = errors.New("units: more fractional digits than the unit holds")
	ErrRange     = errors.New("units: amount does not fit in 256 bits")
)

// ToBase parses a display decimal into base units.
func ToBase(display string, decimals uint) (num.Uint, error) {
	d, err := decimal.NewFromString(display)
	if err != nil {
		return num.Zero, fmt.Errorf("units: parse %q: %w", display, err)
	}
	return FromDecimal(d, decimals)
}

// FromDecimal converts a display decimal into base units.
func FromDecimal(d decimal.Decimal, decimals uint) (num.Uint, error) {
	if d.IsNegative() {
		return num.Zero, fmt.Errorf("%w: %s", ErrNegative, d)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return num.Zero, fmt.Errorf("%w: %s at %d decimals", ErrPrecision, d, decimals)
	}
	u, err := num.FromBig(scaled.BigInt())
	if err != nil {
		return num.Zero, fmt.Errorf("%w: %s", ErrRange, d)
	}
	return u, nil
}

// ToDisplay converts base units into a display decimal.
func ToDisplay(u num.Uint, decimals uint) decimal.Decimal {
	return decimal.NewFromBigInt(u.Big(), -int32(decimals))
}

// Format renders base units as a display string without trailing zeros.
func Format(u num.Uint, decimals uint) string {
	return ToDisplay(u, decimals).String()
}
