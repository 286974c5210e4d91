// Package events fans settled trade records out to subscribers after they
// are committed. Publishing is best effort: the ledger is already durable
// when a publisher runs, so failures are logged and counted, not returned.
package events

import (
	"context"

	"github.com/atmx/dividend-exchange/internal/model"
)

// Publisher receives committed events in order.
type Publisher interface {
	Publish(ctx context.Context, events []model.Event)
}

// Fanout publishes to every publisher in turn.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, events []model.Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(ctx, events)
		}
	}
}

// Discard drops everything.
type Discard struct{}

func (Discard) Publish(context.Context, []model.Event) {}
