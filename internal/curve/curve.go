// Package curve implements the linear bonding curve that prices minting and
// burning of the position token against the current supply.
//
// The marginal price of one whole token at supply s (in whole tokens) is
//
//	price(s) = BasePrice + Slope * s
//
// Minting Δ base units starting at supply S costs the integral of price over
// [S, S+Δ]. With U = 10^Decimals base units per whole token:
//
//	C(S, Δ) = (2*BasePrice*U*Δ + Slope*(2*S*Δ + Δ²)) / (2*U²)
//
// All arithmetic is 256-bit integer with checked multiplies. Every division
// floors, so a buyer never receives more tokens than the payment covers and a
// seller never receives more value than the tokens are worth.
//
// The curve is stateless; supply is passed in, never stored.
package curve

import (
	"errors"
	"fmt"

	"github.com/atmx/dividend-exchange/internal/num"
)

var (
	// ErrInvalidCurve is returned when BasePrice is zero.
	ErrInvalidCurve = errors.New("curve: base price must be positive")

	// ErrInvalidDecimals is returned when Decimals exceeds MaxDecimals.
	ErrInvalidDecimals = errors.New("curve: too many token decimals")

	// ErrExceedsSupply is returned when selling more tokens than exist.
	ErrExceedsSupply = errors.New("curve: token amount exceeds supply")

	// ErrBelowMinimum is returned when the first purchase is smaller than
	// MinFirstPurchase.
	ErrBelowMinimum = errors.New("curve: first purchase below minimum")

	// ErrOverflow is returned when an intermediate exceeds 256 bits.
	ErrOverflow = errors.New("curve: arithmetic overflow")
)

// MaxDecimals bounds token decimals so that U² stays well inside 256 bits.
const MaxDecimals = 30

// Params configures a Curve. Prices are in value base units per whole token.
type Params struct {
	BasePrice num.Uint
	Slope     num.Uint
	Decimals  uint

	// LinearBelow enables the linear approximation for purchases strictly
	// below this value. Zero disables it.
	LinearBelow num.Uint

	// MinFirstPurchase rejects purchases below this value while supply is
	// zero. Zero disables it.
	MinFirstPurchase num.Uint
}

// Curve converts between value and tokens.
type Curve struct {
	p        Params
	unit     num.Uint // U
	baseUnit num.Uint // BasePrice * U
	den      num.Uint // 2 * U²
}

// New validates p and precomputes the curve constants.
func New(p Params) (*Curve, error) {
	if p.BasePrice.IsZero() {
		return nil, ErrInvalidCurve
	}
	if p.Decimals > MaxDecimals {
		return nil, fmt.Errorf("%w: %d > %d", ErrInvalidDecimals, p.Decimals, MaxDecimals)
	}
	unit, err := num.Pow10(p.Decimals)
	if err != nil {
		return nil, err
	}
	baseUnit, err := p.BasePrice.Mul(unit)
	if err != nil {
		return nil, fmt.Errorf("%w: base price * unit", ErrOverflow)
	}
	unitSq, _ := unit.Mul(unit)
	den, _ := unitSq.Mul(num.NewUint(2))
	return &Curve{p: p, unit: unit, baseUnit: baseUnit, den: den}, nil
}

// Params returns the configuration the curve was built with.
func (c *Curve) Params() Params { return c.p }

// Unit returns the number of base units in one whole token.
func (c *Curve) Unit() num.Uint { return c.unit }

// PriceAt returns the marginal price of one whole token at supply,
// floor(BasePrice + Slope*supply/U).
func (c *Curve) PriceAt(supply num.Uint) (num.Uint, error) {
	b, err := c.linearTerm(supply)
	if err != nil {
		return num.Zero, err
	}
	return b.Div(c.unit)
}

// Cost returns floor(C(supply, tokens)), the value needed to mint tokens.
func (c *Curve) Cost(supply, tokens num.Uint) (num.Uint, error) {
	n, err := c.costNumerator(supply, tokens)
	if err != nil {
		return num.Zero, err
	}
	return n.Div(c.den)
}

// ValueToTokens returns the largest token amount whose cost at supply does
// not exceed value. A zero value yields zero tokens.
//
// The closed form solves Slope*Δ² + 2bΔ - 2U²V = 0 for Δ with
// b = BasePrice*U + Slope*S:
//
//	Δ = (isqrt(b² + 2*Slope*U²*V) - b) / Slope
//
// isqrt and the final floor can each lose strictly less than one base unit
// together, so a single exactness check (not a search) lifts Δ to the exact
// maximum.
func (c *Curve) ValueToTokens(supply, value num.Uint) (num.Uint, error) {
	if value.IsZero() {
		return num.Zero, nil
	}
	if supply.IsZero() && !c.p.MinFirstPurchase.IsZero() && value.LT(c.p.MinFirstPurchase) {
		return num.Zero, fmt.Errorf("%w: %s < %s", ErrBelowMinimum, value, c.p.MinFirstPurchase)
	}
	if !c.p.LinearBelow.IsZero() && value.LT(c.p.LinearBelow) {
		return c.LinearTokens(supply, value)
	}
	if c.p.Slope.IsZero() {
		return c.flatTokens(value)
	}

	b, err := c.linearTerm(supply)
	if err != nil {
		return num.Zero, err
	}
	disc, err := c.discriminant(b, value)
	if err != nil {
		return num.Zero, err
	}
	root := disc.Sqrt()
	// root >= b because disc >= b².
	span, _ := root.Sub(b)
	tokens, _ := span.Div(c.p.Slope)

	next, err := tokens.Add(num.NewUint(1))
	if err != nil {
		return tokens, nil
	}
	fits, err := c.affordable(supply, next, value)
	if err != nil {
		// next is past the representable range; tokens is already maximal.
		return tokens, nil
	}
	if fits {
		return next, nil
	}
	return tokens, nil
}

// LinearTokens prices the whole purchase at the current marginal price,
// floor(value*U / PriceAt(supply)). It ignores the price rise across the
// purchase and therefore overstates the token count compared with
// ValueToTokens; the gap grows with purchase size relative to supply.
func (c *Curve) LinearTokens(supply, value num.Uint) (num.Uint, error) {
	b, err := c.linearTerm(supply)
	if err != nil {
		return num.Zero, err
	}
	// value*U/(b/U) computed as value*U²/b to keep the price fraction.
	scaled, err := value.Mul(c.unit)
	if err != nil {
		return num.Zero, overflow("linear tokens", err)
	}
	scaled, err = scaled.Mul(c.unit)
	if err != nil {
		return num.Zero, overflow("linear tokens", err)
	}
	return scaled.Div(b)
}

// TokensToValue returns floor(C(supply-tokens, tokens)), the value released
// by burning tokens at the top of the curve.
func (c *Curve) TokensToValue(supply, tokens num.Uint) (num.Uint, error) {
	if tokens.IsZero() {
		return num.Zero, nil
	}
	start, err := supply.Sub(tokens)
	if err != nil {
		return num.Zero, fmt.Errorf("%w: %s > %s", ErrExceedsSupply, tokens, supply)
	}
	return c.Cost(start, tokens)
}

// NextTokenCost is the cost of minting one whole token at supply.
func (c *Curve) NextTokenCost(supply num.Uint) (num.Uint, error) {
	return c.Cost(supply, c.unit)
}

// LastTokenValue is the value of burning the top whole token at supply. Below
// one whole token of supply it is the base price.
func (c *Curve) LastTokenValue(supply num.Uint) (num.Uint, error) {
	if supply.LT(c.unit) {
		return c.p.BasePrice, nil
	}
	return c.TokensToValue(supply, c.unit)
}

func (c *Curve) flatTokens(value num.Uint) (num.Uint, error) {
	scaled, err := value.Mul(c.unit)
	if err != nil {
		return num.Zero, overflow("flat tokens", err)
	}
	return scaled.Div(c.p.BasePrice)
}

// linearTerm returns b = BasePrice*U + Slope*supply.
func (c *Curve) linearTerm(supply num.Uint) (num.Uint, error) {
	ss, err := c.p.Slope.Mul(supply)
	if err != nil {
		return num.Zero, overflow("slope * supply", err)
	}
	b, err := c.baseUnit.Add(ss)
	if err != nil {
		return num.Zero, overflow("linear term", err)
	}
	return b, nil
}

// discriminant returns b² + 2*Slope*U²*value, i.e. b² + Slope*den*value.
func (c *Curve) discriminant(b, value num.Uint) (num.Uint, error) {
	bb, err := b.Mul(b)
	if err != nil {
		return num.Zero, overflow("b²", err)
	}
	t, err := c.p.Slope.Mul(c.den)
	if err != nil {
		return num.Zero, overflow("slope * 2U²", err)
	}
	t, err = t.Mul(value)
	if err != nil {
		return num.Zero, overflow("discriminant", err)
	}
	d, err := bb.Add(t)
	if err != nil {
		return num.Zero, overflow("discriminant", err)
	}
	return d, nil
}

// costNumerator returns 2*BasePrice*U*Δ + Slope*(2*S*Δ + Δ²), which equals
// Δ*(2b + Slope*Δ).
func (c *Curve) costNumerator(supply, tokens num.Uint) (num.Uint, error) {
	if tokens.IsZero() {
		return num.Zero, nil
	}
	b, err := c.linearTerm(supply)
	if err != nil {
		return num.Zero, err
	}
	twoB, err := b.Add(b)
	if err != nil {
		return num.Zero, overflow("2b", err)
	}
	sd, err := c.p.Slope.Mul(tokens)
	if err != nil {
		return num.Zero, overflow("slope * tokens", err)
	}
	f, err := twoB.Add(sd)
	if err != nil {
		return num.Zero, overflow("cost factor", err)
	}
	n, err := f.Mul(tokens)
	if err != nil {
		return num.Zero, overflow("cost numerator", err)
	}
	return n, nil
}

// affordable reports whether the exact cost of tokens at supply is <= value.
func (c *Curve) affordable(supply, tokens, value num.Uint) (bool, error) {
	n, err := c.costNumerator(supply, tokens)
	if err != nil {
		return false, err
	}
	limit, err := value.Mul(c.den)
	if err != nil {
		return false, overflow("value * 2U²", err)
	}
	return n.LTE(limit), nil
}

func overflow(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrOverflow, what, err)
}
