package consumers

import (
	"context"
	"io"
	"log/slog"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/taskhive/taskhive/pkg/events"
	"github.com/taskhive/taskhive/pkg/models"
	"github.com/taskhive/taskhive/pkg/recurrence"
)

// ServiceInvoker calls another app through the sidecar. Implemented by
// dapr.Client.
type ServiceInvoker interface {
	InvokeMethod(ctx context.Context, appID, method string, payload any, headers map[string]string) ([]byte, error)
}

// NextTaskRequest is the create payload the materializer sends to the core
// server. Tags ride as names; the write path resolves or creates them.
type NextTaskRequest struct {
	Title             string   `json:"title"`
	Description       *string  `json:"description,omitempty"`
	Priority          string   `json:"priority"`
	DueDate           string   `json:"due_date"`
	IsRecurring       bool     `json:"is_recurring"`
	RecurrencePattern string   `json:"recurrence_pattern"`
	Tags              []string `json:"tags,omitempty"`
}

// Materializer consumes task-events and creates the next occurrence of a
// recurring task when its current occurrence completes. Creation goes
// through the core server's REST write path via sidecar service
// invocation, so the new task emits its own task.created events.
//
// Redelivery creates a duplicate task; this is the documented trade-off
// of the fire-and-forget event design.
type Materializer struct {
	invoker      ServiceInvoker
	backendAppID string
	now          func() time.Time
	logger       *slog.Logger
}

// NewMaterializer creates a Materializer targeting the given core app id.
func NewMaterializer(invoker ServiceInvoker, backendAppID string) *Materializer {
	return &Materializer{
		invoker:      invoker,
		backendAppID: backendAppID,
		now:          time.Now,
		logger:       slog.Default(),
	}
}

// Subscriptions returns the consumer's Dapr subscription table.
func (m *Materializer) Subscriptions() []events.Subscription {
	return []events.Subscription{events.NewSubscription(events.TopicTaskEvents)}
}

// Handle processes one delivered task event. Only completions of recurring
// tasks are actioned; everything else is acknowledged untouched.
func (m *Materializer) Handle(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return events.AckRetry(c)
	}

	var event events.TaskEvent
	if err := events.Decode(body, &event); err != nil {
		m.logger.Warn("Dropping malformed task event", "error", err)
		return events.AckDrop(c)
	}

	if event.EventType != events.TaskCompleted ||
		event.TaskData.RecurringPattern == nil || *event.TaskData.RecurringPattern == "" {
		return events.AckSuccess(c)
	}

	req, err := m.nextOccurrence(event)
	if err != nil {
		// A bad pattern will not improve on redelivery.
		m.logger.Error("Cannot compute next occurrence",
			"correlation_id", event.CorrelationID,
			"task_id", event.TaskID, "error", err)
		return events.AckDrop(c)
	}

	if _, err := m.invoker.InvokeMethod(c.Request().Context(), m.backendAppID,
		"api/tasks", req, map[string]string{"X-User-ID": event.UserID}); err != nil {
		m.logger.Error("Failed to create next occurrence",
			"correlation_id", event.CorrelationID,
			"task_id", event.TaskID, "error", err)
		return events.AckRetry(c)
	}

	m.logger.Info("Next occurrence created",
		"correlation_id", event.CorrelationID,
		"completed_task_id", event.TaskID,
		"title", event.TaskData.Title,
		"due_date", req.DueDate)
	return events.AckSuccess(c)
}

// nextOccurrence builds the create payload for the task following the
// completed one. The anchor is the completed task's due date; tasks
// without one recur from the completion instant.
func (m *Materializer) nextOccurrence(event events.TaskEvent) (*NextTaskRequest, error) {
	pattern := *event.TaskData.RecurringPattern

	anchor := m.now().UTC()
	if event.TaskData.DueDate != nil && *event.TaskData.DueDate != "" {
		parsed, err := models.ParseTime(*event.TaskData.DueDate)
		if err != nil {
			return nil, err
		}
		anchor = parsed
	}

	next, err := recurrence.Next(anchor, pattern, nil)
	if err != nil {
		return nil, err
	}

	priority := event.TaskData.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	return &NextTaskRequest{
		Title:             event.TaskData.Title,
		Description:       event.TaskData.Description,
		Priority:          priority,
		DueDate:           models.FormatTime(next),
		IsRecurring:       true,
		RecurrencePattern: pattern,
		Tags:              event.TaskData.Tags,
	}, nil
}
