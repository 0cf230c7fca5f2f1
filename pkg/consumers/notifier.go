package consumers

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	echo "github.com/labstack/echo/v5"

	"github.com/taskhive/taskhive/pkg/events"
)

// UpdatePublisher publishes task-update events. Implemented by
// events.Publisher.
type UpdatePublisher interface {
	PublishTaskUpdate(ctx context.Context, event events.TaskUpdateEvent) error
}

// Notifier consumes reminder-events and turns due reminders into
// user-facing task-update notifications for the WebSocket broadcaster.
// Other reminder lifecycle events are logged and acknowledged.
type Notifier struct {
	publisher UpdatePublisher
	logger    *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(publisher UpdatePublisher) *Notifier {
	return &Notifier{
		publisher: publisher,
		logger:    slog.Default(),
	}
}

// Subscriptions returns the consumer's Dapr subscription table.
func (n *Notifier) Subscriptions() []events.Subscription {
	return []events.Subscription{events.NewSubscription(events.TopicReminderEvents)}
}

// Handle processes one delivered reminder event.
func (n *Notifier) Handle(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return events.AckRetry(c)
	}

	var event events.ReminderEvent
	if err := events.Decode(body, &event); err != nil {
		n.logger.Warn("Dropping malformed reminder event", "error", err)
		return events.AckDrop(c)
	}

	if event.EventType != events.ReminderDue {
		n.logger.Info("Ignoring non-due reminder event",
			"event_type", event.EventType,
			"correlation_id", event.CorrelationID)
		return events.AckSuccess(c)
	}

	update := events.TaskUpdateEvent{
		EventType: events.TaskReminderSync,
		TaskID:    event.TaskID,
		UserID:    event.UserID,
		Action:    events.ActionReminder,
		Changes: map[string]any{
			"reminder_id": event.ReminderID,
			"title":       event.Title,
			"message":     ReminderMessage(event),
		},
		CorrelationID: event.CorrelationID,
	}
	if err := n.publisher.PublishTaskUpdate(c.Request().Context(), update); err != nil {
		n.logger.Error("Failed to publish reminder notification",
			"correlation_id", event.CorrelationID,
			"reminder_id", event.ReminderID, "error", err)
		return events.AckRetry(c)
	}

	n.logger.Info("Reminder notification published",
		"correlation_id", event.CorrelationID,
		"reminder_id", event.ReminderID, "user_id", event.UserID)
	return events.AckSuccess(c)
}

// ReminderMessage renders the user-facing notification text. The task's
// due date is preferred; reminders on tasks without one fall back to the
// fire time.
func ReminderMessage(event events.ReminderEvent) string {
	when := event.RemindAt
	if event.DueAt != nil && *event.DueAt != "" {
		when = *event.DueAt
	}
	return fmt.Sprintf("Reminder: '%s' is due at %s", event.Title, when)
}
