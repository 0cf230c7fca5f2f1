package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/taskhive/taskhive/pkg/models"
)

// TagStore persists user-owned tags and task-tag links.
type TagStore struct {
	db *sql.DB
}

// NewTagStore creates a TagStore.
func NewTagStore(db *sql.DB) *TagStore {
	return &TagStore{db: db}
}

// Create inserts a tag. (user_id, name) uniqueness maps to ErrAlreadyExists.
func (s *TagStore) Create(ctx context.Context, tag *models.Tag) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tags (user_id, name, color)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		tag.UserID, tag.Name, tag.Color,
	).Scan(&tag.ID, &tag.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert tag: %w", err)
	}
	tag.CreatedAt = asUTC(tag.CreatedAt)
	return nil
}

// GetByID loads a tag owned by userID.
func (s *TagStore) GetByID(ctx context.Context, userID string, id int64) (*models.Tag, error) {
	var tag models.Tag
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, color, created_at FROM tags
		WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&tag.ID, &tag.UserID, &tag.Name, &tag.Color, &tag.CreatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	tag.CreatedAt = asUTC(tag.CreatedAt)
	return &tag, nil
}

// List returns all tags owned by userID ordered by name.
func (s *TagStore) List(ctx context.Context, userID string) ([]models.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, color, created_at FROM tags
		WHERE user_id = $1 ORDER BY name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tags := []models.Tag{}
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.UserID, &tag.Name, &tag.Color, &tag.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tag.CreatedAt = asUTC(tag.CreatedAt)
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// Delete removes a tag owned by userID. Task links cascade at the DB level.
func (s *TagStore) Delete(ctx context.Context, userID string, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tags WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete tag %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Link attaches a tag to a task. Idempotent.
func (s *TagStore) Link(ctx context.Context, taskID, tagID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_tags (task_id, tag_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, taskID, tagID)
	if err != nil {
		return fmt.Errorf("failed to link tag %d to task %d: %w", tagID, taskID, err)
	}
	return nil
}

// Unlink detaches a tag from a task. Missing links are not an error.
func (s *TagStore) Unlink(ctx context.Context, taskID, tagID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM task_tags WHERE task_id = $1 AND tag_id = $2`, taskID, tagID)
	if err != nil {
		return fmt.Errorf("failed to unlink tag %d from task %d: %w", tagID, taskID, err)
	}
	return nil
}
