// Package consumers holds the pub/sub consumers: the audit writer, the
// reminder notifier, and the recurring-task materializer. Each consumer
// subscribes to exactly one topic and exposes an echo handler the sidecar
// delivers events to. Delivery is at-least-once, so every handler is
// idempotent or documents its duplicate behavior.
package consumers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/taskhive/taskhive/pkg/events"
	"github.com/taskhive/taskhive/pkg/models"
)

// AuditInserter persists audit rows. Implemented by store.AuditStore.
type AuditInserter interface {
	Insert(ctx context.Context, log *models.AuditLog) (bool, error)
}

// AuditWriter consumes task-events and writes one audit row per event.
// Redelivered events dedupe on a stable event id derived from
// (correlation_id, event_type), so the row count stays at one.
type AuditWriter struct {
	store  AuditInserter
	logger *slog.Logger
}

// NewAuditWriter creates an AuditWriter.
func NewAuditWriter(store AuditInserter) *AuditWriter {
	return &AuditWriter{
		store:  store,
		logger: slog.Default(),
	}
}

// Subscriptions returns the consumer's Dapr subscription table.
func (w *AuditWriter) Subscriptions() []events.Subscription {
	return []events.Subscription{events.NewSubscription(events.TopicTaskEvents)}
}

// Handle processes one delivered task event. Malformed payloads are
// dropped; store failures ask the sidecar to redeliver.
func (w *AuditWriter) Handle(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return events.AckRetry(c)
	}

	var event events.TaskEvent
	if err := events.Decode(body, &event); err != nil {
		w.logger.Warn("Dropping malformed task event", "error", err)
		return events.AckDrop(c)
	}
	if event.EventType == "" || event.TaskID == 0 {
		w.logger.Warn("Dropping task event without type or task id",
			"correlation_id", event.CorrelationID)
		return events.AckDrop(c)
	}

	written, err := w.store.Insert(c.Request().Context(), auditRow(event))
	if err != nil {
		w.logger.Error("Failed to write audit log",
			"correlation_id", event.CorrelationID,
			"event_type", event.EventType, "error", err)
		return events.AckRetry(c)
	}

	if !written {
		w.logger.Info("Duplicate task event, audit row already present",
			"correlation_id", event.CorrelationID, "event_type", event.EventType)
	} else {
		w.logger.Info("Audit log written",
			"correlation_id", event.CorrelationID,
			"event_type", event.EventType, "task_id", event.TaskID)
	}
	return events.AckSuccess(c)
}

// auditRow projects a task event onto an audit row.
func auditRow(event events.TaskEvent) *models.AuditLog {
	details := map[string]any{
		"title":     event.TaskData.Title,
		"completed": event.TaskData.Completed,
		"priority":  event.TaskData.Priority,
	}
	if event.TaskData.DueDate != nil {
		details["due_date"] = *event.TaskData.DueDate
	}
	if event.TaskData.RecurringPattern != nil {
		details["recurring_pattern"] = *event.TaskData.RecurringPattern
	}
	if len(event.TaskData.Tags) > 0 {
		details["tags"] = event.TaskData.Tags
	}

	requestID := event.CorrelationID
	return &models.AuditLog{
		EventID:      EventID(event.CorrelationID, event.EventType),
		UserID:       event.UserID,
		Action:       event.EventType,
		ResourceType: "task",
		ResourceID:   strconv.FormatInt(event.TaskID, 10),
		RequestID:    &requestID,
		Details:      details,
		Status:       "success",
	}
}

// EventID derives the stable dedup key for one delivery of one event.
func EventID(correlationID, eventType string) string {
	sum := sha256.Sum256([]byte(correlationID + eventType))
	return hex.EncodeToString(sum[:])[:32]
}
