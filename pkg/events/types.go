// Package events defines the pub/sub event envelopes and the topic-typed
// publisher used by the write path, the reminder engine, and the consumers.
//
// Three topic families flow through the broker:
//
//	task-events     : durable domain events (task.created/updated/completed/deleted)
//	reminder-events : reminder lifecycle (reminder.scheduled/due/cancelled)
//	task-updates    : real-time sync events fanned out to WebSocket clients
//
// Delivery is at-least-once. Every envelope carries a correlation_id for
// tracing and a timestamp; consumers dedupe (or tolerate duplicates) on
// (correlation_id, event_type, resource id).
package events

// PubSubName is the broker component name the sidecar routes publishes through.
const PubSubName = "pubsub-kafka"

// Topics.
const (
	TopicTaskEvents     = "task-events"
	TopicReminderEvents = "reminder-events"
	TopicTaskUpdates    = "task-updates"
)

// TaskEvent event types.
const (
	TaskCreated   = "task.created"
	TaskUpdated   = "task.updated"
	TaskCompleted = "task.completed"
	TaskDeleted   = "task.deleted"
)

// ReminderEvent event types.
const (
	ReminderScheduled = "reminder.scheduled"
	ReminderDue       = "reminder.due"
	ReminderCancelled = "reminder.cancelled"
)

// TaskUpdateEvent event types and actions.
const (
	TaskSync         = "task.sync"
	TaskReminderSync = "task.reminder"

	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionCompleted = "completed"
	ActionDeleted   = "deleted"
	ActionReminder  = "reminder"
)

// TaskData is the task snapshot embedded in TaskEvent envelopes.
// Timestamps are pre-rendered RFC 3339 Z strings.
type TaskData struct {
	Title            string   `json:"title"`
	Description      *string  `json:"description,omitempty"`
	Completed        bool     `json:"completed"`
	Priority         string   `json:"priority"`
	DueDate          *string  `json:"due_date,omitempty"`
	Tags             []string `json:"tags"`
	RecurringPattern *string  `json:"recurring_pattern,omitempty"`
	NextOccurrence   *string  `json:"next_occurrence,omitempty"`
}

// TaskEvent is the durable domain event published to task-events.
type TaskEvent struct {
	EventType     string   `json:"event_type"`
	TaskID        int64    `json:"task_id"`
	UserID        string   `json:"user_id"`
	TaskData      TaskData `json:"task_data"`
	Timestamp     string   `json:"timestamp"`
	CorrelationID string   `json:"correlation_id"`
}

// ReminderEvent is published to reminder-events across the reminder lifecycle.
type ReminderEvent struct {
	EventType     string  `json:"event_type"`
	ReminderID    int64   `json:"reminder_id"`
	TaskID        int64   `json:"task_id"`
	UserID        string  `json:"user_id"`
	Title         string  `json:"title"`
	DueAt         *string `json:"due_at,omitempty"`
	RemindAt      string  `json:"remind_at"`
	Timestamp     string  `json:"timestamp"`
	CorrelationID string  `json:"correlation_id"`
}

// TaskUpdateEvent is the real-time sync event published to task-updates.
// SourceClient identifies the originating client connection; the broadcaster
// currently always sends and lets clients filter their own echoes.
type TaskUpdateEvent struct {
	EventType     string         `json:"event_type"`
	TaskID        int64          `json:"task_id"`
	UserID        string         `json:"user_id"`
	Action        string         `json:"action"`
	Changes       map[string]any `json:"changes"`
	SourceClient  string         `json:"source_client,omitempty"`
	Timestamp     string         `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
}
