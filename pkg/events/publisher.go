package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/pkg/dapr"
)

// Publisher publishes typed event envelopes through the pub/sub sidecar.
//
// Each public method accepts one envelope type and routes it to its topic.
// Missing correlation ids and timestamps are filled in before publishing.
// Publishing is single-try with a short timeout; the write path treats
// failures as non-blocking (logged, never aborting the originating request).
type Publisher struct {
	sidecar    *dapr.Client
	pubsubName string
}

// NewPublisher creates a Publisher over the given sidecar client.
func NewPublisher(sidecar *dapr.Client) *Publisher {
	return &Publisher{
		sidecar:    sidecar,
		pubsubName: PubSubName,
	}
}

// PublishTaskEvent publishes a durable domain event to task-events.
func (p *Publisher) PublishTaskEvent(ctx context.Context, event TaskEvent) error {
	event.CorrelationID = orNewID(event.CorrelationID)
	event.Timestamp = orNow(event.Timestamp)
	if err := p.sidecar.Publish(ctx, p.pubsubName, TopicTaskEvents, event); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.EventType, err)
	}
	return nil
}

// PublishReminderEvent publishes a reminder lifecycle event to reminder-events.
func (p *Publisher) PublishReminderEvent(ctx context.Context, event ReminderEvent) error {
	event.CorrelationID = orNewID(event.CorrelationID)
	event.Timestamp = orNow(event.Timestamp)
	if err := p.sidecar.Publish(ctx, p.pubsubName, TopicReminderEvents, event); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.EventType, err)
	}
	return nil
}

// PublishTaskUpdate publishes a real-time sync event to task-updates.
func (p *Publisher) PublishTaskUpdate(ctx context.Context, event TaskUpdateEvent) error {
	event.CorrelationID = orNewID(event.CorrelationID)
	event.Timestamp = orNow(event.Timestamp)
	if err := p.sidecar.Publish(ctx, p.pubsubName, TopicTaskUpdates, event); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.EventType, err)
	}
	return nil
}

func orNewID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}

func orNow(ts string) string {
	if ts != "" {
		return ts
	}
	return time.Now().UTC().Format(time.RFC3339)
}
