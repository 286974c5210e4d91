package position

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/dividend-exchange/internal/dividend"
	"github.com/atmx/dividend-exchange/internal/model"
	"github.com/atmx/dividend-exchange/internal/num"
)

type recordingHooks struct {
	inc, dec []string
	fail     error
}

func (h *recordingHooks) OnBalanceIncrease(_ *model.GlobalState, a *model.Account, d num.Uint) error {
	if h.fail != nil {
		return h.fail
	}
	h.inc = append(h.inc, string(a.ID)+":"+d.String())
	return nil
}

func (h *recordingHooks) OnBalanceDecrease(_ *model.GlobalState, a *model.Account, d num.Uint) error {
	if h.fail != nil {
		return h.fail
	}
	h.dec = append(h.dec, string(a.ID)+":"+d.String())
	return nil
}

func TestMintBurn(t *testing.T) {
	h := &recordingHooks{}
	l := NewLedger(h)
	st := &model.GlobalState{}
	a := &model.Account{ID: "a"}

	require.NoError(t, l.Mint(st, a, num.NewUint(10)))
	require.NoError(t, l.Burn(st, a, num.NewUint(4)))
	assert.Equal(t, "6", st.TotalSupply.String())
	assert.Equal(t, "6", a.Balance.String())
	assert.Equal(t, []string{"a:10"}, h.inc)
	assert.Equal(t, []string{"a:4"}, h.dec)
}

func TestBurn_ExceedsBalance(t *testing.T) {
	l := NewLedger(&recordingHooks{})
	st := &model.GlobalState{TotalSupply: num.NewUint(5)}
	a := &model.Account{ID: "a", Balance: num.NewUint(5)}

	err := l.Burn(st, a, num.NewUint(6))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, "5", a.Balance.String())
	assert.Equal(t, "5", st.TotalSupply.String())
}

func TestZeroAmount(t *testing.T) {
	l := NewLedger(&recordingHooks{})
	st := &model.GlobalState{}
	a := &model.Account{ID: "a"}
	b := &model.Account{ID: "b"}
	assert.ErrorIs(t, l.Mint(st, a, num.Zero), ErrZeroAmount)
	assert.ErrorIs(t, l.Burn(st, a, num.Zero), ErrZeroAmount)
	assert.ErrorIs(t, l.Move(st, a, b, num.Zero), ErrZeroAmount)
}

func TestMove(t *testing.T) {
	h := &recordingHooks{}
	l := NewLedger(h)
	st := &model.GlobalState{TotalSupply: num.NewUint(10)}
	a := &model.Account{ID: "a", Balance: num.NewUint(10)}
	b := &model.Account{ID: "b"}

	require.NoError(t, l.Move(st, a, b, num.NewUint(3)))
	assert.Equal(t, "7", a.Balance.String())
	assert.Equal(t, "3", b.Balance.String())
	assert.Equal(t, "10", st.TotalSupply.String())

	assert.ErrorIs(t, l.Move(st, a, a, num.NewUint(1)), ErrSameAccount)
	assert.ErrorIs(t, l.Move(st, b, a, num.NewUint(4)), ErrInsufficientBalance)
}

func TestHookFailureLeavesStateUnchanged(t *testing.T) {
	boom := errors.New("boom")
	l := NewLedger(&recordingHooks{fail: boom})
	st := &model.GlobalState{TotalSupply: num.NewUint(10)}
	a := &model.Account{ID: "a", Balance: num.NewUint(10)}
	b := &model.Account{ID: "b"}

	require.ErrorIs(t, l.Mint(st, a, num.NewUint(1)), boom)
	require.ErrorIs(t, l.Move(st, a, b, num.NewUint(1)), boom)
	assert.Equal(t, "10", a.Balance.String())
	assert.True(t, b.Balance.IsZero())
	assert.Equal(t, "10", st.TotalSupply.String())
}

// Moving tokens carries no dividends with them.
func TestMove_WithDividendLedger(t *testing.T) {
	div := dividend.NewLedger()
	l := NewLedger(div)
	st := &model.GlobalState{}
	a := &model.Account{ID: "a"}
	b := &model.Account{ID: "b"}

	require.NoError(t, l.Mint(st, a, num.NewUint(10)))
	_, err := div.CreditFee(st, num.NewUint(100), nil, num.Zero)
	require.NoError(t, err)
	require.NoError(t, l.Move(st, a, b, num.NewUint(5)))

	ca, err := div.Claimable(st, a)
	require.NoError(t, err)
	cb, err := div.Claimable(st, b)
	require.NoError(t, err)
	assert.Equal(t, "100", ca.String())
	assert.Equal(t, "0", cb.String())
}
