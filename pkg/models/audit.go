package models

import "time"

// Audit row statuses.
const (
	AuditSuccess = "success"
	AuditFailure = "failure"
)

// AuditLog is an append-only record of a domain action.
type AuditLog struct {
	ID           int64          `json:"id"`
	EventID      string         `json:"event_id"`
	UserID       string         `json:"user_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	RequestID    *string        `json:"request_id,omitempty"`
	ClientIP     *string        `json:"client_ip,omitempty"`
	UserAgent    *string        `json:"user_agent,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	Status       string         `json:"status"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
