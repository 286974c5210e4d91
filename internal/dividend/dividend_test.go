package dividend

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/dividend-exchange/internal/model"
	"github.com/atmx/dividend-exchange/internal/num"
)

func u(x uint64) num.Uint { return num.NewUint(x) }

// mint raises a balance the way the position ledger does.
func mint(t *testing.T, l *Ledger, st *model.GlobalState, a *model.Account, n uint64) {
	t.Helper()
	require.NoError(t, l.OnBalanceIncrease(st, a, u(n)))
	a.Balance, _ = a.Balance.Add(u(n))
	st.TotalSupply, _ = st.TotalSupply.Add(u(n))
}

func burn(t *testing.T, l *Ledger, st *model.GlobalState, a *model.Account, n uint64) {
	t.Helper()
	require.NoError(t, l.OnBalanceDecrease(st, a, u(n)))
	a.Balance, _ = a.Balance.Sub(u(n))
	st.TotalSupply, _ = st.TotalSupply.Sub(u(n))
}

func claimable(t *testing.T, l *Ledger, st *model.GlobalState, a *model.Account) uint64 {
	t.Helper()
	c, err := l.Claimable(st, a)
	require.NoError(t, err)
	v, ok := c.Uint64()
	require.True(t, ok)
	return v
}

func TestCreditFee_NoHoldersGoesPending(t *testing.T) {
	l := NewLedger()
	st := &model.GlobalState{}

	c, err := l.CreditFee(st, u(100), nil, num.Zero)
	require.NoError(t, err)
	assert.True(t, c.Distributed.IsZero())
	assert.True(t, st.ProfitPerShare.IsZero())
	assert.Equal(t, "100", st.PendingFees.String())
	assert.Equal(t, "100", st.FeesCollected.String())
	assert.Equal(t, "100", st.DividendPool.String())
}

func TestCreditFee_ExcludesBuyer(t *testing.T) {
	l := NewLedger()
	st := &model.GlobalState{}
	a := &model.Account{ID: "a"}
	b := &model.Account{ID: "b"}

	mint(t, l, st, a, 6)
	_, err := l.CreditFee(st, u(100), a, u(6))
	require.NoError(t, err)
	assert.Equal(t, "100", st.PendingFees.String())

	mint(t, l, st, b, 4)
	c, err := l.CreditFee(st, u(100), b, u(4))
	require.NoError(t, err)
	assert.Equal(t, "200", c.Distributed.String())
	assert.True(t, st.PendingFees.IsZero())

	assert.EqualValues(t, 199, claimable(t, l, st, a)) // 200*2^64/6 floors
	assert.EqualValues(t, 0, claimable(t, l, st, b))
}

func TestCreditFee_ProRata(t *testing.T) {
	l := NewLedger()
	st := &model.GlobalState{}
	a := &model.Account{ID: "a"}
	b := &model.Account{ID: "b"}
	mint(t, l, st, a, 30)
	mint(t, l, st, b, 10)

	_, err := l.CreditFee(st, u(400), nil, num.Zero)
	require.NoError(t, err)
	assert.EqualValues(t, 300, claimable(t, l, st, a))
	assert.EqualValues(t, 100, claimable(t, l, st, b))
}

func TestCreditFee_RemainderCarries(t *testing.T) {
	l := NewLedger()
	st := &model.GlobalState{}
	a := &model.Account{ID: "a"}
	mint(t, l, st, a, 3)

	// 1/3 per credit; three credits must add up to exactly one unit.
	for i := 0; i < 3; i++ {
		_, err := l.CreditFee(st, u(1), nil, num.Zero)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, claimable(t, l, st, a))
}

func TestCreditFee_ExcludedExceedsSupply(t *testing.T) {
	l := NewLedger()
	st := &model.GlobalState{TotalSupply: u(5)}
	before := *st
	_, err := l.CreditFee(st, u(10), &model.Account{}, u(6))
	require.ErrorIs(t, err, ErrExcludedExceedsSupply)
	assert.Equal(t, before, *st)
}

func TestBalanceChangesPreserveShare(t *testing.T) {
	l := NewLedger()
	st := &model.GlobalState{}
	a := &model.Account{ID: "a"}
	b := &model.Account{ID: "b"}
	mint(t, l, st, a, 10)
	_, err := l.CreditFee(st, u(50), nil, num.Zero)
	require.NoError(t, err)

	// Late buyer does not share past fees.
	mint(t, l, st, b, 10)
	assert.EqualValues(t, 0, claimable(t, l, st, b))
	assert.EqualValues(t, 50, claimable(t, l, st, a))

	// Selling does not forfeit earned fees.
	burn(t, l, st, a, 10)
	assert.EqualValues(t, 50, claimable(t, l, st, a))
	assert.Equal(t, "50", a.Unclaimed.String())
}

func TestWithdraw(t *testing.T) {
	l := NewLedger()
	st := &model.GlobalState{}
	a := &model.Account{ID: "a"}
	mint(t, l, st, a, 4)
	_, err := l.CreditFee(st, u(10), nil, num.Zero)
	require.NoError(t, err)

	require.NoError(t, l.Withdraw(st, a, u(6)))
	assert.EqualValues(t, 4, claimable(t, l, st, a))
	assert.Equal(t, "4", st.DividendPool.String())
	assert.Equal(t, "6", st.DividendsPaid.String())

	before := *a
	err = l.Withdraw(st, a, u(5))
	require.ErrorIs(t, err, ErrInsufficientDividends)
	assert.Equal(t, before, *a)
}

func TestWithdraw_PoolExhausted(t *testing.T) {
	l := NewLedger()
	st := &model.GlobalState{}
	a := &model.Account{ID: "a", Unclaimed: u(10)}
	err := l.Withdraw(st, a, u(10))
	require.ErrorIs(t, err, ErrPoolExhausted)
}

func TestCreditProceeds(t *testing.T) {
	l := NewLedger()
	st := &model.GlobalState{}
	a := &model.Account{ID: "a"}
	require.NoError(t, l.CreditProceeds(st, a, u(70)))
	assert.EqualValues(t, 70, claimable(t, l, st, a))
	assert.Equal(t, "70", st.DividendPool.String())
	assert.True(t, st.FeesCollected.IsZero())
}

func TestShare_Negative(t *testing.T) {
	l := NewLedger()
	st := &model.GlobalState{ProfitPerShare: u(1)}
	a := &model.Account{ID: "a", Balance: u(1), PayoutsTo: num.NewInt(2)}
	_, err := l.Share(st, a)
	require.ErrorIs(t, err, ErrNegativeShare)
}

// TestRandomSequence checks that claims never exceed what was credited and
// that nothing beyond rounding dust is lost.
func TestRandomSequence(t *testing.T) {
	l := NewLedger()
	st := &model.GlobalState{}
	accts := make([]*model.Account, 5)
	for i := range accts {
		accts[i] = &model.Account{ID: model.AccountID(rune('a' + i))}
	}
	rng := rand.New(rand.NewSource(7))
	var credits int

	for step := 0; step < 2000; step++ {
		a := accts[rng.Intn(len(accts))]
		switch rng.Intn(4) {
		case 0:
			mint(t, l, st, a, uint64(rng.Intn(1000)+1))
		case 1:
			if bal, _ := a.Balance.Uint64(); bal > 0 {
				burn(t, l, st, a, uint64(rng.Int63n(int64(bal)))+1)
			}
		case 2:
			_, err := l.CreditFee(st, u(uint64(rng.Intn(10_000))), nil, num.Zero)
			require.NoError(t, err)
			credits++
		case 3:
			c := claimable(t, l, st, a)
			if c > 0 {
				require.NoError(t, l.Withdraw(st, a, u(uint64(rng.Int63n(int64(c)))+1)))
			}
		}
	}

	var owed uint64
	for _, a := range accts {
		owed += claimable(t, l, st, a)
	}
	pool, _ := st.DividendPool.Uint64()
	pending, _ := st.PendingFees.Uint64()
	require.LessOrEqual(t, owed+pending, pool)
	// Each credit can strand at most one unit per account to flooring.
	assert.LessOrEqual(t, pool-owed-pending, uint64(credits*len(accts)+len(accts)))
}
