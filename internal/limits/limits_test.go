package limits

import (
	"errors"
	"testing"

	"github.com/atmx/dividend-exchange/internal/num"
)

func u(x uint64) num.Uint {
	return num.NewUint(x)
}

func TestCheckPurchase_WithinLimit(t *testing.T) {
	limiter := NewPositionLimiter(u(1000), num.Zero)

	if err := limiter.CheckPurchase(u(1000)); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckPurchase_Exceeded(t *testing.T) {
	limiter := NewPositionLimiter(u(1000), num.Zero)

	err := limiter.CheckPurchase(u(1001))
	if !errors.Is(err, ErrPurchaseLimitExceeded) {
		t.Errorf("expected ErrPurchaseLimitExceeded, got %v", err)
	}
}

func TestCheckHolding_Exceeded(t *testing.T) {
	limiter := NewPositionLimiter(num.Zero, u(100))

	// Existing balance of 95 + 10 = 105 > 100.
	err := limiter.CheckHolding(u(95), u(10))
	if !errors.Is(err, ErrHoldingLimitExceeded) {
		t.Errorf("expected ErrHoldingLimitExceeded, got %v", err)
	}
}

func TestCheckHolding_AtLimit(t *testing.T) {
	limiter := NewPositionLimiter(num.Zero, u(100))

	// 90 + 10 lands exactly on the cap, which is allowed.
	if err := limiter.CheckHolding(u(90), u(10)); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestZeroCapsDisableChecks(t *testing.T) {
	limiter := NewPositionLimiter(num.Zero, num.Zero)

	if err := limiter.CheckPurchase(num.Pow2(200)); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := limiter.CheckHolding(num.Pow2(200), num.Pow2(200)); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestNilLimiter(t *testing.T) {
	var limiter *PositionLimiter
	if err := limiter.CheckPurchase(u(1)); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}
