package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/taskhive/taskhive/pkg/models"
)

// ReminderStore persists reminders. The pending-per-task invariant is
// enforced by a partial unique index; violations map to ErrAlreadyExists.
type ReminderStore struct {
	db *sql.DB
}

// NewReminderStore creates a ReminderStore.
func NewReminderStore(db *sql.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

const reminderColumns = `id, task_id, user_id, remind_at, status, sent_at, dapr_job_name, created_at, updated_at`

// Create inserts a pending reminder.
func (s *ReminderStore) Create(ctx context.Context, reminder *models.Reminder) error {
	now := utc(time.Now())
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO reminders (task_id, user_id, remind_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id, created_at, updated_at`,
		reminder.TaskID, reminder.UserID, utc(reminder.RemindAt), models.ReminderPending, now,
	).Scan(&reminder.ID, &reminder.CreatedAt, &reminder.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert reminder: %w", err)
	}
	reminder.Status = models.ReminderPending
	return nil
}

// GetByID loads a reminder by id alone, used by the job callback, where
// the sidecar (not a user) is the caller.
func (s *ReminderStore) GetByID(ctx context.Context, id int64) (*models.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id)
	return scanReminder(row)
}

// GetOwned loads a reminder owned by userID.
func (s *ReminderStore) GetOwned(ctx context.Context, userID string, id int64) (*models.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = $1 AND user_id = $2`, id, userID)
	return scanReminder(row)
}

// List returns a user's reminders, optionally filtered by status and task.
func (s *ReminderStore) List(ctx context.Context, userID, status string, taskID int64) ([]*models.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if taskID != 0 {
		args = append(args, taskID)
		query += fmt.Sprintf(` AND task_id = $%d`, len(args))
	}
	query += ` ORDER BY remind_at ASC, id ASC`

	return s.queryReminders(ctx, query, args...)
}

// ListUpcoming returns pending reminders firing within the window [now, until].
func (s *ReminderStore) ListUpcoming(ctx context.Context, userID string, until time.Time) ([]*models.Reminder, error) {
	return s.queryReminders(ctx, `
		SELECT `+reminderColumns+` FROM reminders
		WHERE user_id = $1 AND status = $2 AND remind_at >= $3 AND remind_at <= $4
		ORDER BY remind_at ASC, id ASC`,
		userID, models.ReminderPending, utc(time.Now()), utc(until))
}

// UpdateSchedule rewrites remind_at and the external job handle while the
// reminder is still pending.
func (s *ReminderStore) UpdateSchedule(ctx context.Context, id int64, remindAt time.Time, jobName *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET remind_at = $1, dapr_job_name = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		utc(remindAt), jobName, utc(time.Now()), id, models.ReminderPending)
	if err != nil {
		return fmt.Errorf("failed to update reminder %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotPending
	}
	return nil
}

// SetJobName records (or clears) the external job handle.
func (s *ReminderStore) SetJobName(ctx context.Context, id int64, jobName *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET dapr_job_name = $1, updated_at = $2 WHERE id = $3`,
		jobName, utc(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to set job name for reminder %d: %w", id, err)
	}
	return nil
}

// MarkSent transitions pending -> sent, recording sent_at and dropping the
// job handle. The status guard keeps the transition terminal.
func (s *ReminderStore) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET status = $1, sent_at = $2, dapr_job_name = NULL, updated_at = $3
		WHERE id = $4 AND status = $5`,
		models.ReminderSent, utc(sentAt), utc(time.Now()), id, models.ReminderPending)
	if err != nil {
		return fmt.Errorf("failed to mark reminder %d sent: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotPending
	}
	return nil
}

// MarkFailed transitions pending -> failed and drops the job handle.
func (s *ReminderStore) MarkFailed(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET status = $1, dapr_job_name = NULL, updated_at = $2
		WHERE id = $3 AND status = $4`,
		models.ReminderFailed, utc(time.Now()), id, models.ReminderPending)
	if err != nil {
		return fmt.Errorf("failed to mark reminder %d failed: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotPending
	}
	return nil
}

// Delete removes a reminder owned by userID.
func (s *ReminderStore) Delete(ctx context.Context, userID string, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reminders WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete reminder %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *ReminderStore) queryReminders(ctx context.Context, query string, args ...any) ([]*models.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reminders []*models.Reminder
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, reminder)
	}
	return reminders, rows.Err()
}

func scanReminder(row scanner) (*models.Reminder, error) {
	var r models.Reminder
	err := row.Scan(&r.ID, &r.TaskID, &r.UserID, &r.RemindAt, &r.Status, &r.SentAt,
		&r.DaprJobName, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	r.RemindAt = asUTC(r.RemindAt)
	r.CreatedAt = asUTC(r.CreatedAt)
	r.UpdatedAt = asUTC(r.UpdatedAt)
	if r.SentAt != nil {
		v := asUTC(*r.SentAt)
		r.SentAt = &v
	}
	return &r, nil
}
