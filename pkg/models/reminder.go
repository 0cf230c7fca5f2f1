package models

import "time"

// Reminder statuses. pending -> sent | failed is terminal.
const (
	ReminderPending = "pending"
	ReminderSent    = "sent"
	ReminderFailed  = "failed"
)

// ValidReminderStatus reports whether s is a known reminder status.
func ValidReminderStatus(s string) bool {
	return s == ReminderPending || s == ReminderSent || s == ReminderFailed
}

// Reminder schedules a one-shot notification for a task.
// Invariants: at most one pending reminder per task; Status == sent iff
// SentAt != nil; DaprJobName is non-nil only while an external job is live.
type Reminder struct {
	ID          int64      `json:"id"`
	TaskID      int64      `json:"task_id"`
	UserID      string     `json:"user_id"`
	RemindAt    time.Time  `json:"remind_at"`
	Status      string     `json:"status"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	DaprJobName *string    `json:"dapr_job_name,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
