package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/atmx/dividend-exchange/internal/metrics"
	"github.com/atmx/dividend-exchange/internal/model"
)

// StreamName is the JetStream stream holding exchange events.
const StreamName = "EXCHANGE_EVENTS"

// SubjectPrefix precedes the event kind: exchange.events.{kind}.
const SubjectPrefix = "exchange.events"

// NATSPublisher publishes committed events to JetStream. The event ID is
// sent as the message ID so broker-side deduplication drops replays.
type NATSPublisher struct {
	js     jetstream.JetStream
	logger *slog.Logger
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher creates a publisher on js.
func NewNATSPublisher(js jetstream.JetStream, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{js: js, logger: logger}
}

// Subject returns the subject an event kind is published on.
func Subject(kind model.EventKind) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, kind)
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, events []model.Event) {
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			p.fail(e, fmt.Errorf("marshal event: %w", err))
			continue
		}
		if _, err := p.js.Publish(ctx, Subject(e.Kind), data, jetstream.WithMsgID(e.ID)); err != nil {
			p.fail(e, err)
		}
	}
}

func (p *NATSPublisher) fail(e model.Event, err error) {
	metrics.PublishFailures.Inc()
	// Non-fatal: consumers can replay history from the store.
	p.logger.Warn("event publish failed", "event_id", e.ID, "kind", string(e.Kind), "err", err)
}

// EnsureStream creates or updates the events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{SubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 10 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create events stream: %w", err)
	}
	return nil
}
