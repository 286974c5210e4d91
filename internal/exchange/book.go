package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/atmx/dividend-exchange/internal/lots"
	"github.com/atmx/dividend-exchange/internal/model"
	"github.com/atmx/dividend-exchange/internal/num"
)

// book is the working copy of one transition. Accounts and lot books are
// loaded on first use and written back as one change set.
type book struct {
	ctx   context.Context
	ex    *Exchange
	now   time.Time
	state *model.GlobalState

	accounts map[model.AccountID]*model.Account
	order    []model.AccountID
	lotBooks map[model.AccountID]*lots.Book
	events   []model.Event
	payouts  []outbound
}

type outbound struct {
	to     model.AccountID
	amount num.Uint
}

func newBook(ctx context.Context, ex *Exchange, st *model.GlobalState) *book {
	return &book{
		ctx:      ctx,
		ex:       ex,
		now:      ex.now(),
		state:    st,
		accounts: make(map[model.AccountID]*model.Account),
		lotBooks: make(map[model.AccountID]*lots.Book),
	}
}

func (b *book) account(id model.AccountID) (*model.Account, error) {
	if a, ok := b.accounts[id]; ok {
		return a, nil
	}
	a, err := b.ex.ledger.LoadAccount(b.ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", id, err)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = b.now
	}
	b.accounts[id] = a
	b.order = append(b.order, id)
	return a, nil
}

func (b *book) lots(id model.AccountID) (*lots.Book, error) {
	if lb, ok := b.lotBooks[id]; ok {
		return lb, nil
	}
	existing, err := b.ex.ledger.LoadLots(b.ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load lots %s: %w", id, err)
	}
	lb, err := lots.NewBook(id, existing)
	if err != nil {
		return nil, err
	}
	b.lotBooks[id] = lb
	return lb, nil
}

// emit records an event stamped with the supply after the leg.
func (b *book) emit(e model.Event) model.Event {
	e.ID = newEventID()
	e.Supply = b.state.TotalSupply
	e.Timestamp = b.now
	b.events = append(b.events, e)
	return e
}

// pay queues an outbound transfer. Transfers to the same account coalesce so
// that one operation makes at most one send per recipient.
func (b *book) pay(to model.AccountID, amount num.Uint) error {
	if amount.IsZero() {
		return nil
	}
	for i := range b.payouts {
		if b.payouts[i].to == to {
			sum, err := b.payouts[i].amount.Add(amount)
			if err != nil {
				return err
			}
			b.payouts[i].amount = sum
			return nil
		}
	}
	b.payouts = append(b.payouts, outbound{to: to, amount: amount})
	return nil
}

func (b *book) paidTo(id model.AccountID) num.Uint {
	for _, p := range b.payouts {
		if p.to == id {
			return p.amount
		}
	}
	return num.Zero
}

// settle performs the queued transfers. It runs inside the store commit with
// the reentrancy marker set.
func (b *book) settle(ctx context.Context) error {
	ctx = context.WithValue(ctx, settlingKey{}, true)
	for _, p := range b.payouts {
		if err := b.ex.sender.Send(ctx, p.to, p.amount); err != nil {
			return fmt.Errorf("%w: send %s to %s: %w", ErrTransferFailed, p.amount, p.to, err)
		}
	}
	return nil
}

func (b *book) changeSet() *model.ChangeSet {
	st := *b.state
	st.Version++
	st.UpdatedAt = b.now

	cs := &model.ChangeSet{State: st, Events: b.events}
	for _, id := range b.order {
		a := *b.accounts[id]
		a.UpdatedAt = b.now
		cs.Accounts = append(cs.Accounts, a)
	}
	for _, id := range b.order {
		if lb, ok := b.lotBooks[id]; ok {
			cs.Lots = append(cs.Lots, lb.Dirty()...)
		}
	}
	return cs
}

// audit checks the invariants every touched account must hold after a
// transition.
func (b *book) audit() error {
	for _, id := range b.order {
		a := b.accounts[id]
		if _, err := b.ex.div.Share(b.state, a); err != nil {
			return err
		}
		if b.ex.policy.Lots != LotsExclusive {
			continue
		}
		lb, err := b.lots(id)
		if err != nil {
			return err
		}
		open, err := lb.OpenTokens()
		if err != nil {
			return err
		}
		if !open.Eq(a.Balance) {
			return invariant("account %s holds %s tokens but %s in open lots", id, a.Balance, open)
		}
		if n := uint64(len(lb.Open())); n != a.OpenLots {
			return invariant("account %s counts %d open lots, book has %d", id, a.OpenLots, n)
		}
	}
	return nil
}
