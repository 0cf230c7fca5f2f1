// Package models defines the domain entities and request/response types
// shared by the store, API, tool server, and consumers.
package models

import (
	"slices"
	"time"
)

// Priority levels for tasks.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Recurrence patterns for recurring tasks.
const (
	PatternDaily   = "daily"
	PatternWeekly  = "weekly"
	PatternMonthly = "monthly"
	PatternYearly  = "yearly"
)

// Priorities lists the valid task priorities.
var Priorities = []string{PriorityLow, PriorityMedium, PriorityHigh}

// RecurrencePatterns lists the valid recurrence patterns.
var RecurrencePatterns = []string{PatternDaily, PatternWeekly, PatternMonthly, PatternYearly}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p string) bool {
	return slices.Contains(Priorities, p)
}

// ValidRecurrencePattern reports whether p is a known recurrence pattern.
func ValidRecurrencePattern(p string) bool {
	return slices.Contains(RecurrencePatterns, p)
}

// Task is a user-owned todo item.
// Invariant: IsRecurring implies RecurrencePattern != nil.
type Task struct {
	ID                int64          `json:"id"`
	UserID            string         `json:"user_id"`
	Title             string         `json:"title"`
	Description       *string        `json:"description,omitempty"`
	Completed         bool           `json:"completed"`
	Priority          string         `json:"priority"`
	DueDate           *time.Time     `json:"due_date,omitempty"`
	IsRecurring       bool           `json:"is_recurring"`
	RecurrencePattern *string        `json:"recurrence_pattern,omitempty"`
	RecurrenceData    map[string]any `json:"recurrence_data,omitempty"`
	NextOccurrence    *time.Time     `json:"next_occurrence,omitempty"`
	Tags              []Tag          `json:"tags"`
	CategoryIDs       []int64        `json:"category_ids"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// CreateTaskRequest is the write-path input for a new task.
type CreateTaskRequest struct {
	Title             string         `json:"title"`
	Description       *string        `json:"description,omitempty"`
	Priority          string         `json:"priority,omitempty"`
	DueDate           *time.Time     `json:"-"`
	IsRecurring       bool           `json:"is_recurring,omitempty"`
	RecurrencePattern *string        `json:"recurrence_pattern,omitempty"`
	RecurrenceData    map[string]any `json:"recurrence_data,omitempty"`
	TagIDs            []int64        `json:"tag_ids,omitempty"`
	CategoryIDs       []int64        `json:"category_ids,omitempty"`
}

// UpdateTaskRequest carries partial task updates. Nil fields are untouched.
// ClearDueDate / ClearRecurrence distinguish "unset" from "absent".
type UpdateTaskRequest struct {
	Title             *string
	Description       *string
	Priority          *string
	DueDate           *time.Time
	ClearDueDate      bool
	IsRecurring       *bool
	RecurrencePattern *string
	RecurrenceData    map[string]any
	ClearRecurrence   bool
	TagIDs            []int64
}

// Task list filters shared by the REST surface and the list_tasks tool.
const (
	StatusAll       = "all"
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// SortFields lists the valid list_tasks sort keys.
var SortFields = []string{"due_date", "priority", "created_at", "title", "updated_at"}

// TaskFilter selects and orders a user's tasks.
type TaskFilter struct {
	Status    string  // all | pending | completed
	Priority  string  // optional
	TagIDs    []int64 // tasks carrying any of these tags
	Search    string  // substring match on title/description
	SortBy    string  // one of SortFields
	SortOrder string  // asc | desc
}
