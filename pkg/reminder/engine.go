// Package reminder implements the scheduled-reminder engine: reminder
// lifecycle, sidecar job scheduling, and the job-trigger callback.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskhive/taskhive/pkg/dapr"
	"github.com/taskhive/taskhive/pkg/events"
	"github.com/taskhive/taskhive/pkg/models"
	"github.com/taskhive/taskhive/pkg/store"
)

// Upcoming-window bounds for get_upcoming_reminders, in hours.
const (
	UpcomingHoursMin = 1
	UpcomingHoursMax = 168
)

// JobPayload rides inside the sidecar job and comes back verbatim on the
// trigger callback.
type JobPayload struct {
	ReminderID int64  `json:"reminder_id"`
	TaskID     int64  `json:"task_id"`
	UserID     string `json:"user_id"`
}

// ReminderStore is the persistence surface the engine drives.
// Implemented by store.ReminderStore.
type ReminderStore interface {
	Create(ctx context.Context, reminder *models.Reminder) error
	GetByID(ctx context.Context, id int64) (*models.Reminder, error)
	GetOwned(ctx context.Context, userID string, id int64) (*models.Reminder, error)
	List(ctx context.Context, userID, status string, taskID int64) ([]*models.Reminder, error)
	ListUpcoming(ctx context.Context, userID string, until time.Time) ([]*models.Reminder, error)
	UpdateSchedule(ctx context.Context, id int64, remindAt time.Time, jobName *string) error
	SetJobName(ctx context.Context, id int64, jobName *string) error
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
	MarkFailed(ctx context.Context, id int64) error
	Delete(ctx context.Context, userID string, id int64) error
}

// TaskGetter loads owned tasks for event enrichment and ownership checks.
// Implemented by store.TaskStore.
type TaskGetter interface {
	GetByID(ctx context.Context, userID string, id int64) (*models.Task, error)
}

var (
	_ ReminderStore = (*store.ReminderStore)(nil)
	_ TaskGetter    = (*store.TaskStore)(nil)
)

// Engine drives the reminder state machine (pending -> sent | failed).
//
// Reminders in the future get a one-shot sidecar job named after the
// reminder; past-due reminders fire synchronously on the create path and
// never touch the jobs API.
type Engine struct {
	reminders ReminderStore
	tasks     TaskGetter
	sidecar   *dapr.Client
	publisher *events.Publisher
	logger    *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(reminders ReminderStore, tasks TaskGetter, sidecar *dapr.Client, publisher *events.Publisher) *Engine {
	return &Engine{
		reminders: reminders,
		tasks:     tasks,
		sidecar:   sidecar,
		publisher: publisher,
		logger:    slog.Default(),
	}
}

// Create schedules a reminder for a task the user owns. A remind_at that
// is not in the future fires immediately instead of scheduling a job.
// A second pending reminder for the same task maps to ErrAlreadyExists.
func (e *Engine) Create(ctx context.Context, userID string, taskID int64, remindAt time.Time) (*models.Reminder, error) {
	task, err := e.tasks.GetByID(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	reminder := &models.Reminder{
		TaskID:   taskID,
		UserID:   userID,
		RemindAt: remindAt.UTC(),
	}
	if err := e.reminders.Create(ctx, reminder); err != nil {
		return nil, err
	}

	if !reminder.RemindAt.After(time.Now().UTC()) {
		if err := e.fire(ctx, reminder, task); err != nil {
			return nil, err
		}
		return reminder, nil
	}

	e.schedule(ctx, reminder)

	e.emitLifecycle(ctx, events.ReminderScheduled, reminder, task)
	return reminder, nil
}

// Update reschedules a pending reminder. Sent and failed reminders are
// immutable, and the new time must be in the future.
func (e *Engine) Update(ctx context.Context, userID string, id int64, remindAt time.Time) (*models.Reminder, error) {
	if !remindAt.UTC().After(time.Now().UTC()) {
		return nil, models.NewValidationError("remind_at", "must be in the future")
	}

	reminder, err := e.reminders.GetOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if reminder.Status != models.ReminderPending {
		return nil, models.ErrNotPending
	}

	task, err := e.tasks.GetByID(ctx, userID, reminder.TaskID)
	if err != nil {
		return nil, err
	}

	e.dropJob(ctx, reminder)

	reminder.RemindAt = remindAt.UTC()
	if err := e.reminders.UpdateSchedule(ctx, id, reminder.RemindAt, nil); err != nil {
		return nil, err
	}
	reminder.DaprJobName = nil
	e.schedule(ctx, reminder)

	e.emitLifecycle(ctx, events.ReminderScheduled, reminder, task)
	return reminder, nil
}

// Cancel deletes a reminder, removing its sidecar job when one is live.
func (e *Engine) Cancel(ctx context.Context, userID string, id int64) error {
	reminder, err := e.reminders.GetOwned(ctx, userID, id)
	if err != nil {
		return err
	}

	e.dropJob(ctx, reminder)

	if err := e.reminders.Delete(ctx, userID, id); err != nil {
		return err
	}

	var task *models.Task
	if t, err := e.tasks.GetByID(ctx, userID, reminder.TaskID); err == nil {
		task = t
	}
	e.emitLifecycle(ctx, events.ReminderCancelled, reminder, task)
	return nil
}

// Get loads a reminder the user owns.
func (e *Engine) Get(ctx context.Context, userID string, id int64) (*models.Reminder, error) {
	return e.reminders.GetOwned(ctx, userID, id)
}

// List returns a user's reminders, optionally filtered by status and task.
func (e *Engine) List(ctx context.Context, userID, status string, taskID int64) ([]*models.Reminder, error) {
	if status != "" && status != models.ReminderPending &&
		status != models.ReminderSent && status != models.ReminderFailed {
		return nil, models.NewValidationError("status",
			fmt.Sprintf("unknown reminder status %q", status))
	}
	return e.reminders.List(ctx, userID, status, taskID)
}

// ListUpcoming returns pending reminders due within the next N hours.
func (e *Engine) ListUpcoming(ctx context.Context, userID string, hours int) ([]*models.Reminder, error) {
	if hours < UpcomingHoursMin || hours > UpcomingHoursMax {
		return nil, models.NewValidationError("hours",
			fmt.Sprintf("must be between %d and %d", UpcomingHoursMin, UpcomingHoursMax))
	}
	until := time.Now().UTC().Add(time.Duration(hours) * time.Hour)
	return e.reminders.ListUpcoming(ctx, userID, until)
}

// HandleTrigger processes a sidecar job callback. A reminder that was
// deleted or already resolved since the job was scheduled is skipped
// silently; redelivery must not resurrect it.
func (e *Engine) HandleTrigger(ctx context.Context, payload JobPayload) error {
	reminder, err := e.reminders.GetByID(ctx, payload.ReminderID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			e.logger.Info("Job fired for missing reminder, skipping",
				"reminder_id", payload.ReminderID)
			return nil
		}
		return err
	}
	if reminder.Status != models.ReminderPending {
		e.logger.Info("Job fired for resolved reminder, skipping",
			"reminder_id", reminder.ID, "status", reminder.Status)
		return nil
	}

	var task *models.Task
	if t, err := e.tasks.GetByID(ctx, reminder.UserID, reminder.TaskID); err == nil {
		task = t
	}

	return e.fire(ctx, reminder, task)
}

// fire publishes reminder.due and resolves the reminder's terminal state:
// sent when the publish succeeded, failed otherwise.
func (e *Engine) fire(ctx context.Context, reminder *models.Reminder, task *models.Task) error {
	event := e.lifecycleEvent(events.ReminderDue, reminder, task)
	if err := e.publisher.PublishReminderEvent(ctx, event); err != nil {
		e.logger.Error("Failed to publish reminder.due",
			"reminder_id", reminder.ID, "error", err)
		if markErr := e.reminders.MarkFailed(ctx, reminder.ID); markErr != nil {
			e.logger.Error("Failed to mark reminder failed",
				"reminder_id", reminder.ID, "error", markErr)
		}
		reminder.Status = models.ReminderFailed
		return fmt.Errorf("reminder %d could not be delivered: %w", reminder.ID, err)
	}

	sentAt := time.Now().UTC()
	if err := e.reminders.MarkSent(ctx, reminder.ID, sentAt); err != nil {
		if errors.Is(err, models.ErrNotPending) {
			// Lost a race with a concurrent delivery; the reminder is
			// already resolved.
			return nil
		}
		return err
	}
	reminder.Status = models.ReminderSent
	reminder.SentAt = &sentAt
	reminder.DaprJobName = nil
	return nil
}

// schedule registers the one-shot sidecar job for a future reminder. On
// failure the row stays pending with no job name: the reminder is dormant
// and only a synchronous path can still fire it.
func (e *Engine) schedule(ctx context.Context, reminder *models.Reminder) {
	name := JobName(reminder.ID)
	payload := JobPayload{
		ReminderID: reminder.ID,
		TaskID:     reminder.TaskID,
		UserID:     reminder.UserID,
	}

	if err := e.sidecar.ScheduleJob(ctx, name, reminder.RemindAt, payload); err != nil {
		e.logger.Error("Failed to schedule reminder job, leaving reminder dormant",
			"reminder_id", reminder.ID, "job", name, "error", err)
		reminder.DaprJobName = nil
		return
	}

	if err := e.reminders.SetJobName(ctx, reminder.ID, &name); err != nil {
		e.logger.Error("Failed to record job name",
			"reminder_id", reminder.ID, "job", name, "error", err)
		return
	}
	reminder.DaprJobName = &name
}

// dropJob best-effort deletes the reminder's sidecar job. A missing job is
// fine; the trigger path skips resolved reminders anyway.
func (e *Engine) dropJob(ctx context.Context, reminder *models.Reminder) {
	if reminder.DaprJobName == nil {
		return
	}
	if err := e.sidecar.DeleteJob(ctx, *reminder.DaprJobName); err != nil {
		e.logger.Warn("Failed to delete reminder job",
			"reminder_id", reminder.ID, "job", *reminder.DaprJobName, "error", err)
	}
}

// emitLifecycle publishes a scheduled/cancelled event. Non-blocking.
func (e *Engine) emitLifecycle(ctx context.Context, eventType string, reminder *models.Reminder, task *models.Task) {
	if err := e.publisher.PublishReminderEvent(ctx, e.lifecycleEvent(eventType, reminder, task)); err != nil {
		e.logger.Warn("Failed to publish reminder event",
			"event_type", eventType, "reminder_id", reminder.ID, "error", err)
	}
}

func (e *Engine) lifecycleEvent(eventType string, reminder *models.Reminder, task *models.Task) events.ReminderEvent {
	event := events.ReminderEvent{
		EventType:  eventType,
		ReminderID: reminder.ID,
		TaskID:     reminder.TaskID,
		UserID:     reminder.UserID,
		RemindAt:   models.FormatTime(reminder.RemindAt),
	}
	if task != nil {
		event.Title = task.Title
		event.DueAt = models.FormatTimePtr(task.DueDate)
	}
	return event
}

// JobName renders the sidecar job name for a reminder.
func JobName(reminderID int64) string {
	return fmt.Sprintf("reminder-%d", reminderID)
}
