// Package publisher delivers transfer results downstream: lifecycle events to
// NATS and collections to the distribution channels.
package publisher

import (
	"context"
	"time"

	"github.com/blockedby/relaybot/internal/logger"
	"github.com/blockedby/relaybot/internal/nats"
	"github.com/blockedby/relaybot/internal/transfer"
)

const publishTimeout = 5 * time.Second

// NATSClient is the part of the nats client used to publish.
type NATSClient interface {
	Publish(ctx context.Context, subject string, data any) error
}

// EventPublisher implements transfer.EventSink over NATS. Each event goes to
// relay.<type>, e.g. relay.task.paused.
type EventPublisher struct {
	js  NATSClient
	log *logger.Logger
}

// NewEventPublisher creates a publisher over client.
func NewEventPublisher(client NATSClient) *EventPublisher {
	return &EventPublisher{js: client, log: logger.With("events")}
}

// Subject returns the subject an event type is published to.
func Subject(eventType string) string {
	return nats.SubjectPrefix + eventType
}

// Emit publishes ev. Failures are logged; the caller never waits on a slow
// broker for longer than publishTimeout.
func (p *EventPublisher) Emit(ctx context.Context, ev transfer.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.js.Publish(ctx, Subject(ev.Type), ev); err != nil {
		p.log.Warn().Err(err).Str("type", ev.Type).Uint("task_id", ev.TaskID).Msg("events: publish failed")
	}
}
