// Package payout moves native value out of the exchange.
package payout

import (
	"context"
	"errors"
	"log/slog"

	"github.com/atmx/dividend-exchange/internal/model"
	"github.com/atmx/dividend-exchange/internal/num"
)

// ErrRejected is a generic send refusal.
var ErrRejected = errors.New("payout: transfer rejected")

// Sender delivers amount to an account. A returned error means nothing was
// delivered; the exchange rolls the whole trade back.
type Sender interface {
	Send(ctx context.Context, to model.AccountID, amount num.Uint) error
}

// Func adapts a function to Sender.
type Func func(ctx context.Context, to model.AccountID, amount num.Uint) error

func (f Func) Send(ctx context.Context, to model.AccountID, amount num.Uint) error {
	return f(ctx, to, amount)
}

// LogSender records payouts in the log and always succeeds. It stands in
// for a settlement rail in development.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, to model.AccountID, amount num.Uint) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "payout sent", "to", string(to), "amount", amount.String())
	return nil
}
