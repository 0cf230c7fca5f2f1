package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskhive/taskhive/pkg/models"
)

// TaskStore persists tasks and their tag/category links.
type TaskStore struct {
	db *sql.DB
}

// NewTaskStore creates a TaskStore.
func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

const taskColumns = `id, user_id, title, description, completed, priority, due_date,
	is_recurring, recurrence_pattern, recurrence_data, next_occurrence, created_at, updated_at`

// Create inserts a task and its tag/category links. The task's ID and
// timestamps are filled in from the database.
func (s *TaskStore) Create(ctx context.Context, task *models.Task) error {
	recurrenceJSON, err := marshalRecurrence(task.RecurrenceData)
	if err != nil {
		return err
	}

	now := utc(time.Now())
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO tasks (user_id, title, description, completed, priority, due_date,
			is_recurring, recurrence_pattern, recurrence_data, next_occurrence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING id, created_at, updated_at`,
		task.UserID, task.Title, task.Description, task.Completed, task.Priority,
		utcPtr(task.DueDate), task.IsRecurring, task.RecurrencePattern, recurrenceJSON,
		utcPtr(task.NextOccurrence), now,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	if err := s.replaceLinks(ctx, task.ID, "task_tags", "tag_id", tagIDs(task.Tags)); err != nil {
		return err
	}
	if err := s.replaceLinks(ctx, task.ID, "task_categories", "category_id", task.CategoryIDs); err != nil {
		return err
	}
	return nil
}

// GetByID loads a task owned by userID, with its tags and category links.
func (s *TaskStore) GetByID(ctx context.Context, userID string, id int64) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
	task, err := scanTask(row)
	if err != nil {
		return nil, mapRowErr(err)
	}
	if err := s.loadRelations(ctx, []*models.Task{task}); err != nil {
		return nil, err
	}
	return task, nil
}

// Update writes all mutable columns of a task and replaces its tag links.
// The caller owns partial-update semantics; the store persists the final state.
func (s *TaskStore) Update(ctx context.Context, task *models.Task) error {
	recurrenceJSON, err := marshalRecurrence(task.RecurrenceData)
	if err != nil {
		return err
	}

	now := utc(time.Now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET title = $1, description = $2, completed = $3, priority = $4,
			due_date = $5, is_recurring = $6, recurrence_pattern = $7, recurrence_data = $8,
			next_occurrence = $9, updated_at = $10
		WHERE id = $11 AND user_id = $12`,
		task.Title, task.Description, task.Completed, task.Priority,
		utcPtr(task.DueDate), task.IsRecurring, task.RecurrencePattern, recurrenceJSON,
		utcPtr(task.NextOccurrence), now, task.ID, task.UserID)
	if err != nil {
		return fmt.Errorf("failed to update task %d: %w", task.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	task.UpdatedAt = now

	return s.replaceLinks(ctx, task.ID, "task_tags", "tag_id", tagIDs(task.Tags))
}

// Delete removes a task owned by userID. Links cascade at the DB level.
func (s *TaskStore) Delete(ctx context.Context, userID string, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete task %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// List returns a user's tasks matching the filter, with tags loaded.
func (s *TaskStore) List(ctx context.Context, userID string, f models.TaskFilter) ([]*models.Task, error) {
	query, args := buildTaskListQuery(userID, f)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	if err := s.loadRelations(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListRecurring returns a user's recurring tasks, optionally filtered by
// pattern, ordered by next occurrence.
func (s *TaskStore) ListRecurring(ctx context.Context, userID, pattern string) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 AND is_recurring = TRUE`
	args := []any{userID}
	if pattern != "" {
		query += ` AND recurrence_pattern = $2`
		args = append(args, pattern)
	}
	query += ` ORDER BY next_occurrence ASC NULLS LAST, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recurring tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recurring tasks: %w", err)
	}

	if err := s.loadRelations(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// buildTaskListQuery renders the filtered, ordered SELECT for List.
// Split out so ordering and filter composition can be tested without a DB.
func buildTaskListQuery(userID string, f models.TaskFilter) (string, []any) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1`
	args := []any{userID}

	switch f.Status {
	case models.StatusPending:
		query += ` AND completed = FALSE`
	case models.StatusCompleted:
		query += ` AND completed = TRUE`
	}

	if f.Priority != "" {
		args = append(args, f.Priority)
		query += fmt.Sprintf(` AND priority = $%d`, len(args))
	}

	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		query += fmt.Sprintf(` AND (title ILIKE $%d OR description ILIKE $%d)`, len(args), len(args))
	}

	if len(f.TagIDs) > 0 {
		start := len(args) + 1
		for _, id := range f.TagIDs {
			args = append(args, id)
		}
		query += fmt.Sprintf(
			` AND id IN (SELECT task_id FROM task_tags WHERE tag_id IN (%s))`,
			placeholders(start, len(f.TagIDs)))
	}

	query += ` ORDER BY ` + taskOrderClause(f.SortBy, f.SortOrder)
	return query, args
}

// taskOrderClause maps a sort field to SQL. Priority sorts by rank, not
// lexically; nullable columns sort nulls last on ascending order.
func taskOrderClause(sortBy, sortOrder string) string {
	dir := "ASC"
	if sortOrder == "desc" {
		dir = "DESC"
	}

	switch sortBy {
	case "due_date":
		return fmt.Sprintf("due_date %s NULLS LAST, id ASC", dir)
	case "priority":
		return fmt.Sprintf(
			"CASE priority WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END %s, id ASC", dir)
	case "title":
		return fmt.Sprintf("LOWER(title) %s, id ASC", dir)
	case "updated_at":
		return fmt.Sprintf("updated_at %s, id ASC", dir)
	default:
		return fmt.Sprintf("created_at %s, id ASC", dir)
	}
}

// replaceLinks rewrites a task's link rows in a join table.
func (s *TaskStore) replaceLinks(ctx context.Context, taskID int64, table, column string, ids []int64) error {
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE task_id = $1`, table), taskID); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (task_id, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING`, table, column),
			taskID, id); err != nil {
			return fmt.Errorf("failed to link %s %d: %w", column, id, err)
		}
	}
	return nil
}

// loadRelations populates Tags and CategoryIDs for the given tasks.
func (s *TaskStore) loadRelations(ctx context.Context, tasks []*models.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	byID := make(map[int64]*models.Task, len(tasks))
	ids := make([]int64, 0, len(tasks))
	for _, task := range tasks {
		task.Tags = []models.Tag{}
		task.CategoryIDs = []int64{}
		byID[task.ID] = task
		ids = append(ids, task.ID)
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	in := placeholders(1, len(ids))

	rows, err := s.db.QueryContext(ctx, `
		SELECT tt.task_id, t.id, t.user_id, t.name, t.color, t.created_at
		FROM task_tags tt JOIN tags t ON t.id = tt.tag_id
		WHERE tt.task_id IN (`+in+`) ORDER BY t.name ASC`, args...)
	if err != nil {
		return fmt.Errorf("failed to load task tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var taskID int64
		var tag models.Tag
		if err := rows.Scan(&taskID, &tag.ID, &tag.UserID, &tag.Name, &tag.Color, &tag.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan task tag: %w", err)
		}
		if task, ok := byID[taskID]; ok {
			task.Tags = append(task.Tags, tag)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate task tags: %w", err)
	}

	catRows, err := s.db.QueryContext(ctx, `
		SELECT task_id, category_id FROM task_categories
		WHERE task_id IN (`+in+`) ORDER BY category_id ASC`, args...)
	if err != nil {
		return fmt.Errorf("failed to load task categories: %w", err)
	}
	defer func() { _ = catRows.Close() }()

	for catRows.Next() {
		var taskID, categoryID int64
		if err := catRows.Scan(&taskID, &categoryID); err != nil {
			return fmt.Errorf("failed to scan task category: %w", err)
		}
		if task, ok := byID[taskID]; ok {
			task.CategoryIDs = append(task.CategoryIDs, categoryID)
		}
	}
	return catRows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*models.Task, error) {
	var task models.Task
	var recurrenceJSON []byte
	err := row.Scan(&task.ID, &task.UserID, &task.Title, &task.Description, &task.Completed,
		&task.Priority, &task.DueDate, &task.IsRecurring, &task.RecurrencePattern,
		&recurrenceJSON, &task.NextOccurrence, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(recurrenceJSON) > 0 {
		if err := json.Unmarshal(recurrenceJSON, &task.RecurrenceData); err != nil {
			return nil, fmt.Errorf("failed to decode recurrence_data for task %d: %w", task.ID, err)
		}
	}
	normalizeTaskTimes(&task)
	return &task, nil
}

// normalizeTaskTimes pins scanned timestamps to UTC. TIMESTAMP columns come
// back in the session zone; storage convention is naive UTC.
func normalizeTaskTimes(task *models.Task) {
	task.CreatedAt = asUTC(task.CreatedAt)
	task.UpdatedAt = asUTC(task.UpdatedAt)
	if task.DueDate != nil {
		v := asUTC(*task.DueDate)
		task.DueDate = &v
	}
	if task.NextOccurrence != nil {
		v := asUTC(*task.NextOccurrence)
		task.NextOccurrence = &v
	}
}

// asUTC reinterprets a wall-clock reading as UTC without shifting it.
func asUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func marshalRecurrence(data map[string]any) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode recurrence_data: %w", err)
	}
	return raw, nil
}

func tagIDs(tags []models.Tag) []int64 {
	ids := make([]int64, len(tags))
	for i, tag := range tags {
		ids[i] = tag.ID
	}
	return ids
}
