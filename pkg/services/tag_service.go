package services

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/taskhive/taskhive/pkg/models"
)

const tagNameMaxLen = 50

// TagService implements tag CRUD and task-tag linking.
type TagService struct {
	tags  TagStore
	tasks TaskStore
}

// NewTagService creates a TagService.
func NewTagService(tags TagStore, tasks TaskStore) *TagService {
	return &TagService{tags: tags, tasks: tasks}
}

// Create validates and persists a new tag. Duplicate names per user map to
// models.ErrAlreadyExists.
func (s *TagService) Create(ctx context.Context, userID, name, color string) (*models.Tag, error) {
	if name == "" {
		return nil, models.NewValidationError("name", "must not be empty")
	}
	if utf8.RuneCountInString(name) > tagNameMaxLen {
		return nil, models.NewValidationError("name",
			fmt.Sprintf("must be at most %d characters", tagNameMaxLen))
	}
	if color == "" {
		color = models.DefaultTagColor
	}
	if !models.ValidHexColor(color) {
		return nil, models.NewValidationError("color",
			fmt.Sprintf("must be a #rrggbb hex color (got %q)", color))
	}

	tag := &models.Tag{UserID: userID, Name: name, Color: color}
	if err := s.tags.Create(ctx, tag); err != nil {
		return nil, err
	}
	return tag, nil
}

// List returns a user's tags ordered by name.
func (s *TagService) List(ctx context.Context, userID string) ([]models.Tag, error) {
	return s.tags.List(ctx, userID)
}

// Delete removes a tag; task links cascade.
func (s *TagService) Delete(ctx context.Context, userID string, id int64) error {
	return s.tags.Delete(ctx, userID, id)
}

// EnsureByName resolves tag names to ids, creating missing tags with the
// default color. Used by the write path when a caller (the recurring
// materializer) carries tags by name instead of id.
func (s *TagService) EnsureByName(ctx context.Context, userID string, names []string) ([]int64, error) {
	if len(names) == 0 {
		return nil, nil
	}

	existing, err := s.tags.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]int64, len(existing))
	for _, tag := range existing {
		byName[tag.Name] = tag.ID
	}

	ids := make([]int64, 0, len(names))
	for _, name := range names {
		if id, ok := byName[name]; ok {
			ids = append(ids, id)
			continue
		}
		tag, err := s.Create(ctx, userID, name, "")
		if err != nil {
			return nil, err
		}
		byName[name] = tag.ID
		ids = append(ids, tag.ID)
	}
	return ids, nil
}

// TagTask links a tag to a task after ownership-checking both.
func (s *TagService) TagTask(ctx context.Context, userID string, taskID, tagID int64) error {
	if _, err := s.tasks.GetByID(ctx, userID, taskID); err != nil {
		return err
	}
	if _, err := s.tags.GetByID(ctx, userID, tagID); err != nil {
		return err
	}
	return s.tags.Link(ctx, taskID, tagID)
}

// UntagTask removes a tag link from a task.
func (s *TagService) UntagTask(ctx context.Context, userID string, taskID, tagID int64) error {
	if _, err := s.tasks.GetByID(ctx, userID, taskID); err != nil {
		return err
	}
	return s.tags.Unlink(ctx, taskID, tagID)
}
