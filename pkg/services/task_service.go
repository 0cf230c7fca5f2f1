// Package services holds the domain services shared by the REST handlers
// and the MCP tool server: validation, persistence orchestration, and
// event emission live here so both surfaces behave identically.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/taskhive/taskhive/pkg/events"
	"github.com/taskhive/taskhive/pkg/models"
	"github.com/taskhive/taskhive/pkg/recurrence"
	"github.com/taskhive/taskhive/pkg/store"
)

const (
	titleMaxLen       = 200
	descriptionMaxLen = 1000
)

// TaskStore is the task persistence surface. Implemented by store.TaskStore.
type TaskStore interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, userID string, id int64) (*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, userID string, id int64) error
	List(ctx context.Context, userID string, f models.TaskFilter) ([]*models.Task, error)
	ListRecurring(ctx context.Context, userID, pattern string) ([]*models.Task, error)
}

// TagStore is the tag persistence surface. Implemented by store.TagStore.
type TagStore interface {
	Create(ctx context.Context, tag *models.Tag) error
	GetByID(ctx context.Context, userID string, id int64) (*models.Tag, error)
	List(ctx context.Context, userID string) ([]models.Tag, error)
	Delete(ctx context.Context, userID string, id int64) error
	Link(ctx context.Context, taskID, tagID int64) error
	Unlink(ctx context.Context, taskID, tagID int64) error
}

var (
	_ TaskStore = (*store.TaskStore)(nil)
	_ TagStore  = (*store.TagStore)(nil)
)

// TaskService implements the task write and read operations.
// Every mutation emits a durable domain event to task-events and a
// real-time sync event to task-updates. Publishing is non-blocking:
// a failed publish is logged and the request still succeeds.
type TaskService struct {
	tasks     TaskStore
	tags      TagStore
	publisher *events.Publisher
	logger    *slog.Logger
}

// NewTaskService creates a TaskService.
func NewTaskService(tasks TaskStore, tags TagStore, publisher *events.Publisher) *TaskService {
	return &TaskService{
		tasks:     tasks,
		tags:      tags,
		publisher: publisher,
		logger:    slog.Default(),
	}
}

// Create validates and persists a new task, then emits task.created.
func (s *TaskService) Create(ctx context.Context, userID string, req models.CreateTaskRequest) (*models.Task, error) {
	if err := validateTitle(req.Title); err != nil {
		return nil, err
	}
	if err := validateDescription(req.Description); err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !models.ValidPriority(priority) {
		return nil, models.NewValidationError("priority",
			fmt.Sprintf("must be one of low, medium, high (got %q)", priority))
	}

	task := &models.Task{
		UserID:            userID,
		Title:             req.Title,
		Description:       req.Description,
		Priority:          priority,
		DueDate:           req.DueDate,
		IsRecurring:       req.IsRecurring,
		RecurrencePattern: req.RecurrencePattern,
		RecurrenceData:    req.RecurrenceData,
		CategoryIDs:       req.CategoryIDs,
	}

	if err := s.applyRecurrence(task); err != nil {
		return nil, err
	}

	tags, err := s.resolveTags(ctx, userID, req.TagIDs)
	if err != nil {
		return nil, err
	}
	task.Tags = tags

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}

	s.emit(ctx, events.TaskCreated, events.ActionCreated, task, changesFor(task), "")
	return task, nil
}

// Get loads a task owned by userID.
func (s *TaskService) Get(ctx context.Context, userID string, id int64) (*models.Task, error) {
	return s.tasks.GetByID(ctx, userID, id)
}

// List returns a user's tasks matching the filter.
func (s *TaskService) List(ctx context.Context, userID string, f models.TaskFilter) ([]*models.Task, error) {
	if f.SortBy != "" && !validSortField(f.SortBy) {
		return nil, models.NewValidationError("sort_by",
			fmt.Sprintf("unknown sort field %q", f.SortBy))
	}
	if f.Priority != "" && !models.ValidPriority(f.Priority) {
		return nil, models.NewValidationError("priority",
			fmt.Sprintf("must be one of low, medium, high (got %q)", f.Priority))
	}
	return s.tasks.List(ctx, userID, f)
}

// ListRecurring returns a user's recurring tasks, optionally by pattern.
func (s *TaskService) ListRecurring(ctx context.Context, userID, pattern string) ([]*models.Task, error) {
	if pattern != "" && !models.ValidRecurrencePattern(pattern) {
		return nil, models.NewValidationError("pattern",
			fmt.Sprintf("unknown recurrence pattern %q", pattern))
	}
	return s.tasks.ListRecurring(ctx, userID, pattern)
}

// Update applies a partial update and emits task.updated with the changed
// fields. A nil field leaves the stored value untouched.
func (s *TaskService) Update(ctx context.Context, userID string, id int64, req models.UpdateTaskRequest, sourceClient string) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}

	if req.Title != nil {
		if err := validateTitle(*req.Title); err != nil {
			return nil, err
		}
		task.Title = *req.Title
		changes["title"] = task.Title
	}
	if req.Description != nil {
		if err := validateDescription(req.Description); err != nil {
			return nil, err
		}
		task.Description = req.Description
		changes["description"] = *req.Description
	}
	if req.Priority != nil {
		if !models.ValidPriority(*req.Priority) {
			return nil, models.NewValidationError("priority",
				fmt.Sprintf("must be one of low, medium, high (got %q)", *req.Priority))
		}
		task.Priority = *req.Priority
		changes["priority"] = task.Priority
	}

	recurrenceTouched := false
	if req.ClearDueDate {
		task.DueDate = nil
		changes["due_date"] = nil
		recurrenceTouched = true
	} else if req.DueDate != nil {
		task.DueDate = req.DueDate
		changes["due_date"] = models.FormatTime(*req.DueDate)
		recurrenceTouched = true
	}

	if req.ClearRecurrence {
		task.IsRecurring = false
		task.RecurrencePattern = nil
		task.RecurrenceData = nil
		task.NextOccurrence = nil
		changes["is_recurring"] = false
		recurrenceTouched = false
	} else {
		if req.IsRecurring != nil {
			task.IsRecurring = *req.IsRecurring
			changes["is_recurring"] = task.IsRecurring
			recurrenceTouched = true
		}
		if req.RecurrencePattern != nil {
			task.RecurrencePattern = req.RecurrencePattern
			changes["recurrence_pattern"] = *req.RecurrencePattern
			recurrenceTouched = true
		}
		if req.RecurrenceData != nil {
			task.RecurrenceData = req.RecurrenceData
			recurrenceTouched = true
		}
		if recurrenceTouched {
			if err := s.applyRecurrence(task); err != nil {
				return nil, err
			}
		}
	}

	if req.TagIDs != nil {
		tags, err := s.resolveTags(ctx, userID, req.TagIDs)
		if err != nil {
			return nil, err
		}
		task.Tags = tags
		changes["tag_ids"] = req.TagIDs
	}

	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}

	s.emit(ctx, events.TaskUpdated, events.ActionUpdated, task, changes, sourceClient)
	return task, nil
}

// Complete marks a task done and emits task.completed. The event snapshot
// carries the recurrence pattern so the materializer can create the next
// occurrence.
func (s *TaskService) Complete(ctx context.Context, userID string, id int64, sourceClient string) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if task.Completed {
		return task, nil
	}

	task.Completed = true
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}

	s.emit(ctx, events.TaskCompleted, events.ActionCompleted, task,
		map[string]any{"completed": true}, sourceClient)
	return task, nil
}

// Delete removes a task and emits task.deleted.
func (s *TaskService) Delete(ctx context.Context, userID string, id int64, sourceClient string) error {
	task, err := s.tasks.GetByID(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, userID, id); err != nil {
		return err
	}

	s.emit(ctx, events.TaskDeleted, events.ActionDeleted, task,
		map[string]any{"deleted": true}, sourceClient)
	return nil
}

// SkipOccurrence advances a recurring task's next occurrence by one
// interval without creating a task. The task is reopened so the skipped
// occurrence does not count as done.
func (s *TaskService) SkipOccurrence(ctx context.Context, userID string, id int64) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !task.IsRecurring || task.RecurrencePattern == nil {
		return nil, models.NewValidationError("task_id", "task is not recurring")
	}

	anchor := time.Now().UTC()
	if task.NextOccurrence != nil {
		anchor = *task.NextOccurrence
	}
	next, err := recurrence.Next(anchor, *task.RecurrencePattern, task.RecurrenceData)
	if err != nil {
		return nil, err
	}
	task.NextOccurrence = &next
	task.Completed = false

	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}

	s.emit(ctx, events.TaskUpdated, events.ActionUpdated, task,
		map[string]any{"next_occurrence": models.FormatTime(next), "completed": false}, "")
	return task, nil
}

// StopRecurrence clears a task's recurrence entirely.
func (s *TaskService) StopRecurrence(ctx context.Context, userID string, id int64) (*models.Task, error) {
	return s.Update(ctx, userID, id, models.UpdateTaskRequest{ClearRecurrence: true}, "")
}

// applyRecurrence validates the recurrence fields and computes the next
// occurrence. Non-recurring tasks get their recurrence fields cleared.
func (s *TaskService) applyRecurrence(task *models.Task) error {
	if !task.IsRecurring {
		task.RecurrencePattern = nil
		task.RecurrenceData = nil
		task.NextOccurrence = nil
		return nil
	}
	if task.RecurrencePattern == nil {
		return models.NewValidationError("recurrence_pattern",
			"required when is_recurring is true")
	}
	if !models.ValidRecurrencePattern(*task.RecurrencePattern) {
		return models.NewValidationError("recurrence_pattern",
			fmt.Sprintf("unknown recurrence pattern %q", *task.RecurrencePattern))
	}

	next, err := recurrence.NextFrom(task, time.Now().UTC())
	if err != nil {
		return err
	}
	task.NextOccurrence = &next
	return nil
}

// resolveTags loads and ownership-checks the requested tags.
func (s *TaskService) resolveTags(ctx context.Context, userID string, tagIDs []int64) ([]models.Tag, error) {
	tags := make([]models.Tag, 0, len(tagIDs))
	for _, tagID := range tagIDs {
		tag, err := s.tags.GetByID(ctx, userID, tagID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, models.NewValidationError("tag_ids",
					fmt.Sprintf("tag %d not found", tagID))
			}
			return nil, err
		}
		tags = append(tags, *tag)
	}
	return tags, nil
}

// emit publishes the dual event pair for a mutation. Failures never abort
// the originating request.
func (s *TaskService) emit(ctx context.Context, eventType, action string, task *models.Task, changes map[string]any, sourceClient string) {
	correlationID := ""

	taskEvent := events.TaskEvent{
		EventType: eventType,
		TaskID:    task.ID,
		UserID:    task.UserID,
		TaskData:  snapshotTask(task),
	}
	if err := s.publisher.PublishTaskEvent(ctx, taskEvent); err != nil {
		s.logger.Warn("Failed to publish task event",
			"event_type", eventType, "task_id", task.ID, "error", err)
	} else {
		correlationID = taskEvent.CorrelationID
	}

	if err := s.publisher.PublishTaskUpdate(ctx, events.TaskUpdateEvent{
		EventType:     events.TaskSync,
		TaskID:        task.ID,
		UserID:        task.UserID,
		Action:        action,
		Changes:       changes,
		SourceClient:  sourceClient,
		CorrelationID: correlationID,
	}); err != nil {
		s.logger.Warn("Failed to publish task update",
			"action", action, "task_id", task.ID, "error", err)
	}
}

// snapshotTask renders the event-embedded task snapshot.
func snapshotTask(task *models.Task) events.TaskData {
	tagNames := make([]string, len(task.Tags))
	for i, tag := range task.Tags {
		tagNames[i] = tag.Name
	}
	return events.TaskData{
		Title:            task.Title,
		Description:      task.Description,
		Completed:        task.Completed,
		Priority:         task.Priority,
		DueDate:          models.FormatTimePtr(task.DueDate),
		Tags:             tagNames,
		RecurringPattern: task.RecurrencePattern,
		NextOccurrence:   models.FormatTimePtr(task.NextOccurrence),
	}
}

// changesFor renders the full-field change set used for create events.
func changesFor(task *models.Task) map[string]any {
	changes := map[string]any{
		"title":    task.Title,
		"priority": task.Priority,
	}
	if task.DueDate != nil {
		changes["due_date"] = models.FormatTime(*task.DueDate)
	}
	if task.IsRecurring {
		changes["is_recurring"] = true
	}
	return changes
}

func validateTitle(title string) error {
	if title == "" {
		return models.NewValidationError("title", "must not be empty")
	}
	if utf8.RuneCountInString(title) > titleMaxLen {
		return models.NewValidationError("title",
			fmt.Sprintf("must be at most %d characters", titleMaxLen))
	}
	return nil
}

func validateDescription(description *string) error {
	if description != nil && utf8.RuneCountInString(*description) > descriptionMaxLen {
		return models.NewValidationError("description",
			fmt.Sprintf("must be at most %d characters", descriptionMaxLen))
	}
	return nil
}

func validSortField(field string) bool {
	for _, f := range models.SortFields {
		if f == field {
			return true
		}
	}
	return false
}
