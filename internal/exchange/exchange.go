// Package exchange is the trade orchestrator. It composes the curve, fee
// splitter, position ledger, dividend ledger and lot tracker into atomic
// buy, sell, transfer and withdraw transitions over a Store.
//
// Every mutating operation holds the write side of one process-wide lock
// from loading its snapshot to committing its change set together with its
// outbound value transfers. Queries hold the read side, so they see either
// all of a trade or none of it. A failed transfer aborts the commit, so the
// ledger never shows a payout that did not happen.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/dividend-exchange/internal/curve"
	"github.com/atmx/dividend-exchange/internal/dividend"
	"github.com/atmx/dividend-exchange/internal/events"
	"github.com/atmx/dividend-exchange/internal/fee"
	"github.com/atmx/dividend-exchange/internal/limits"
	"github.com/atmx/dividend-exchange/internal/metrics"
	"github.com/atmx/dividend-exchange/internal/model"
	"github.com/atmx/dividend-exchange/internal/num"
	"github.com/atmx/dividend-exchange/internal/payout"
	"github.com/atmx/dividend-exchange/internal/position"
	"github.com/atmx/dividend-exchange/internal/store"
)

// LotMode selects how purchases are tracked.
type LotMode int

const (
	// LotsDisabled trades by amount only.
	LotsDisabled LotMode = iota
	// LotsExclusive records a lot for every balance increase and allows
	// balance decreases only by lot.
	LotsExclusive
)

// ProceedsPolicy selects where sale proceeds go.
type ProceedsPolicy int

const (
	// ProceedsDirect sends net sale value to the seller in the same trade.
	ProceedsDirect ProceedsPolicy = iota
	// ProceedsToDividends books net sale value as the seller's unclaimed
	// dividends, to be withdrawn later.
	ProceedsToDividends
)

// Policy holds the composable behavior switches.
type Policy struct {
	Lots     LotMode
	Proceeds ProceedsPolicy

	// CapWithdrawals caps reported claims at the custodied dividend pool.
	CapWithdrawals bool

	// ForceWithdrawOnTransfer pays out the sender's dividends before a
	// transfer, inside the same trade.
	ForceWithdrawOnTransfer bool
}

// Limits caps purchases and holdings. Zero disables a cap.
type Limits struct {
	MaxPurchase num.Uint
	MaxHolding  num.Uint
}

// Config is the static exchange configuration.
type Config struct {
	Curve  curve.Params
	Fees   fee.Schedule
	Policy Policy
	Limits Limits
}

// Exchange serializes all trades against the ledger. Safe for concurrent use.
type Exchange struct {
	mu sync.RWMutex

	// store takes commits and serves queries; ledger is the same store
	// without any cache in front and serves the loads a trade builds on.
	store   store.Store
	ledger  store.Store
	curve   *curve.Curve
	fees    fee.Schedule
	policy  Policy
	limiter *limits.PositionLimiter
	div     *dividend.Ledger
	pos     *position.Ledger
	sender  payout.Sender
	pub     events.Publisher
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures an Exchange.
type Option func(*Exchange)

// WithPublisher sets where committed events go.
func WithPublisher(p events.Publisher) Option {
	return func(e *Exchange) { e.pub = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Exchange) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exchange) { e.logger = l }
}

// New creates an exchange over st. sender delivers withdrawals and direct
// sale proceeds.
func New(st store.Store, cfg Config, sender payout.Sender, opts ...Option) (*Exchange, error) {
	c, err := curve.New(cfg.Curve)
	if err != nil {
		return nil, err
	}
	if err := cfg.Fees.Validate(); err != nil {
		return nil, err
	}
	if sender == nil {
		return nil, fmt.Errorf("exchange: payout sender required")
	}
	div := dividend.NewLedger()
	e := &Exchange{
		store:   st,
		ledger:  store.Uncached(st),
		curve:   c,
		fees:    cfg.Fees,
		policy:  cfg.Policy,
		limiter: limits.NewPositionLimiter(cfg.Limits.MaxPurchase, cfg.Limits.MaxHolding),
		div:     div,
		pos:     position.NewLedger(div),
		sender:  sender,
		pub:     events.Discard{},
		now:     func() time.Time { return time.Now().UTC() },
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Curve returns the pricing curve.
func (e *Exchange) Curve() *curve.Curve { return e.curve }

// Receipt is the outcome of a settled operation.
type Receipt struct {
	Events  []model.Event     `json:"events"`
	State   model.GlobalState `json:"state"`
	Account model.Account     `json:"account"`
	// Paid is the value sent to the caller by this operation.
	Paid num.Uint `json:"paid"`
}

type settlingKey struct{}

// guard rejects calls made from inside a payout. Detection relies on the
// sender passing on the context it was given; a call started from an
// unrelated context blocks on the trade lock instead.
func guard(ctx context.Context) error {
	if ctx.Value(settlingKey{}) != nil {
		return ErrReentrant
	}
	return nil
}

// run executes one atomic transition for caller.
func (e *Exchange) run(ctx context.Context, op string, caller model.AccountID, ignorePause bool, fn func(*book) error) (*Receipt, error) {
	start := time.Now()
	receipt, err := e.execute(ctx, caller, ignorePause, fn)
	metrics.TradeLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Rejections.WithLabelValues(op, Class(err)).Inc()
		e.logger.Warn("trade rejected", "op", op, "account", string(caller), "class", Class(err), "err", err)
		return nil, err
	}
	for _, ev := range receipt.Events {
		metrics.TradesTotal.WithLabelValues(string(ev.Kind)).Inc()
		e.logger.Info("trade executed",
			"op", op,
			"event_id", ev.ID,
			"kind", string(ev.Kind),
			"account", string(ev.Account),
			"counterparty", string(ev.Counterparty),
			"value", ev.Value.String(),
			"tokens", ev.Tokens.String(),
			"fee", ev.Fee.String(),
			"dividends", ev.Dividends.String(),
			"lot_id", ev.LotID,
			"supply", ev.Supply.String(),
		)
	}
	metrics.ObserveState(&receipt.State)
	return receipt, nil
}

func (e *Exchange) execute(ctx context.Context, caller model.AccountID, ignorePause bool, fn func(*book) error) (*Receipt, error) {
	if err := guard(ctx); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.ledger.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if st.Paused && !ignorePause {
		return nil, ErrPaused
	}

	b := newBook(ctx, e, st)
	if err := fn(b); err != nil {
		return nil, classify(err)
	}
	if err := b.audit(); err != nil {
		return nil, classify(err)
	}

	cs := b.changeSet()
	if err := e.store.Commit(ctx, cs, b.settle); err != nil {
		return nil, classify(err)
	}

	e.pub.Publish(ctx, cs.Events)

	receipt := &Receipt{Events: cs.Events, State: cs.State, Paid: b.paidTo(caller)}
	if a, ok := b.accounts[caller]; ok {
		receipt.Account = *a
	}
	return receipt, nil
}

// --- Mutating operations ---

// Buy spends value on new tokens for caller.
func (e *Exchange) Buy(ctx context.Context, caller model.AccountID, value num.Uint) (*Receipt, error) {
	return e.run(ctx, "buy", caller, false, func(b *book) error {
		_, err := b.buy(caller, value, model.EventPurchase)
		return err
	})
}

// Reinvest spends all of caller's claimable dividends on new tokens.
func (e *Exchange) Reinvest(ctx context.Context, caller model.AccountID) (*Receipt, error) {
	return e.run(ctx, "reinvest", caller, false, func(b *book) error {
		return b.reinvest(caller)
	})
}

// Sell burns tokens from caller's balance. Not available in exclusive lot
// mode.
func (e *Exchange) Sell(ctx context.Context, caller model.AccountID, tokens num.Uint) (*Receipt, error) {
	return e.run(ctx, "sell", caller, false, func(b *book) error {
		if e.policy.Lots == LotsExclusive {
			return ErrLotRequired
		}
		_, err := b.sell(caller, tokens, 0)
		return err
	})
}

// SellLot sells exactly the tokens recorded in one of caller's lots.
func (e *Exchange) SellLot(ctx context.Context, caller model.AccountID, lotID uint64) (*Receipt, error) {
	return e.run(ctx, "sell_lot", caller, false, func(b *book) error {
		return b.sellLot(caller, lotID)
	})
}

// Transfer moves tokens from caller to another account, less the transfer
// fee. Not available in exclusive lot mode.
func (e *Exchange) Transfer(ctx context.Context, caller, to model.AccountID, tokens num.Uint) (*Receipt, error) {
	return e.run(ctx, "transfer", caller, false, func(b *book) error {
		if e.policy.Lots == LotsExclusive {
			return ErrLotRequired
		}
		return b.transfer(caller, to, tokens, 0)
	})
}

// TransferLot moves one of caller's lots to another account.
func (e *Exchange) TransferLot(ctx context.Context, caller, to model.AccountID, lotID uint64) (*Receipt, error) {
	return e.run(ctx, "transfer_lot", caller, false, func(b *book) error {
		return b.transferLot(caller, to, lotID)
	})
}

// Withdraw pays amount of caller's claimable dividends out.
func (e *Exchange) Withdraw(ctx context.Context, caller model.AccountID, amount num.Uint) (*Receipt, error) {
	return e.run(ctx, "withdraw", caller, false, func(b *book) error {
		return b.withdraw(caller, amount)
	})
}

// WithdrawAll pays out everything caller can claim.
func (e *Exchange) WithdrawAll(ctx context.Context, caller model.AccountID) (*Receipt, error) {
	return e.run(ctx, "withdraw", caller, false, func(b *book) error {
		return b.withdrawAll(caller)
	})
}

// Exit sells caller's whole position and withdraws everything claimable.
func (e *Exchange) Exit(ctx context.Context, caller model.AccountID) (*Receipt, error) {
	return e.run(ctx, "exit", caller, false, func(b *book) error {
		return b.exit(caller)
	})
}

// SetPaused sets or clears the pause flag. It is the only mutation allowed
// while paused.
func (e *Exchange) SetPaused(ctx context.Context, paused bool) (*Receipt, error) {
	return e.run(ctx, "pause", "", true, func(b *book) error {
		b.state.Paused = paused
		return nil
	})
}

func newEventID() string { return uuid.NewString() }
