// Package limits caps single purchases and per-account holdings.
package limits

import (
	"errors"
	"fmt"

	"github.com/atmx/dividend-exchange/internal/num"
)

var (
	// ErrPurchaseLimitExceeded is returned when one buy spends more value
	// than MaxPurchase.
	ErrPurchaseLimitExceeded = errors.New("limits: purchase limit exceeded")

	// ErrHoldingLimitExceeded is returned when a trade would push an
	// account's balance beyond MaxHolding.
	ErrHoldingLimitExceeded = errors.New("limits: holding limit exceeded")
)

// PositionLimiter enforces purchase and holding caps. A zero cap disables
// the check.
type PositionLimiter struct {
	// MaxPurchase is the most value a single buy may spend, fee included.
	MaxPurchase num.Uint

	// MaxHolding is the largest token balance any account may reach.
	MaxHolding num.Uint
}

// NewPositionLimiter creates a limiter with the given caps.
func NewPositionLimiter(maxPurchase, maxHolding num.Uint) *PositionLimiter {
	return &PositionLimiter{MaxPurchase: maxPurchase, MaxHolding: maxHolding}
}

// CheckPurchase validates the value of one buy.
func (l *PositionLimiter) CheckPurchase(value num.Uint) error {
	if l == nil || l.MaxPurchase.IsZero() {
		return nil
	}
	if value.GT(l.MaxPurchase) {
		return fmt.Errorf("%w: %s > %s", ErrPurchaseLimitExceeded, value, l.MaxPurchase)
	}
	return nil
}

// CheckHolding validates the balance an account would hold after receiving
// delta more tokens.
func (l *PositionLimiter) CheckHolding(balance, delta num.Uint) error {
	if l == nil || l.MaxHolding.IsZero() {
		return nil
	}
	next, err := balance.Add(delta)
	if err != nil || next.GT(l.MaxHolding) {
		return fmt.Errorf("%w: %s + %s > %s", ErrHoldingLimitExceeded, balance, delta, l.MaxHolding)
	}
	return nil
}
