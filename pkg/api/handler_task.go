package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/taskhive/taskhive/pkg/models"
)

// TaskAPI is the task surface the handlers call. Implemented by
// services.TaskService.
type TaskAPI interface {
	Create(ctx context.Context, userID string, req models.CreateTaskRequest) (*models.Task, error)
	Get(ctx context.Context, userID string, id int64) (*models.Task, error)
	Update(ctx context.Context, userID string, id int64, req models.UpdateTaskRequest, sourceClient string) (*models.Task, error)
	Complete(ctx context.Context, userID string, id int64, sourceClient string) (*models.Task, error)
	Delete(ctx context.Context, userID string, id int64, sourceClient string) error
	List(ctx context.Context, userID string, f models.TaskFilter) ([]*models.Task, error)
}

// TagResolver maps tag names to ids, creating missing tags. Implemented by
// services.TagService.
type TagResolver interface {
	EnsureByName(ctx context.Context, userID string, names []string) ([]int64, error)
}

// createTaskRequest is the wire form of POST /api/tasks. Dates arrive as
// ISO 8601 strings (offset optional); tags may ride as ids or as names;
// the materializer only knows names.
type createTaskRequest struct {
	Title             string         `json:"title"`
	Description       *string        `json:"description,omitempty"`
	Priority          string         `json:"priority,omitempty"`
	DueDate           *string        `json:"due_date,omitempty"`
	IsRecurring       bool           `json:"is_recurring,omitempty"`
	RecurrencePattern *string        `json:"recurrence_pattern,omitempty"`
	RecurrenceData    map[string]any `json:"recurrence_data,omitempty"`
	TagIDs            []int64        `json:"tag_ids,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	CategoryIDs       []int64        `json:"category_ids,omitempty"`
}

// updateTaskRequest is the wire form of PATCH /api/tasks/:id. Null due_date
// or recurrence_pattern clears the field; absence leaves it alone.
type updateTaskRequest struct {
	Title             *string        `json:"title,omitempty"`
	Description       *string        `json:"description,omitempty"`
	Priority          *string        `json:"priority,omitempty"`
	DueDate           *string        `json:"due_date,omitempty"`
	ClearDueDate      bool           `json:"clear_due_date,omitempty"`
	IsRecurring       *bool          `json:"is_recurring,omitempty"`
	RecurrencePattern *string        `json:"recurrence_pattern,omitempty"`
	RecurrenceData    map[string]any `json:"recurrence_data,omitempty"`
	ClearRecurrence   bool           `json:"clear_recurrence,omitempty"`
	TagIDs            []int64        `json:"tag_ids,omitempty"`
}

// createTaskHandler handles POST /api/tasks.
func (s *Server) createTaskHandler(c *echo.Context) error {
	var req createTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	userID := currentUser(c)

	create := models.CreateTaskRequest{
		Title:             req.Title,
		Description:       req.Description,
		Priority:          req.Priority,
		IsRecurring:       req.IsRecurring,
		RecurrencePattern: req.RecurrencePattern,
		RecurrenceData:    req.RecurrenceData,
		TagIDs:            req.TagIDs,
		CategoryIDs:       req.CategoryIDs,
	}

	if req.DueDate != nil && *req.DueDate != "" {
		due, err := models.ParseTime(*req.DueDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid due_date: must be ISO 8601")
		}
		create.DueDate = &due
	}

	if len(req.Tags) > 0 {
		ids, err := s.tags.EnsureByName(c.Request().Context(), userID, req.Tags)
		if err != nil {
			return mapServiceError(err)
		}
		create.TagIDs = mergeIDs(create.TagIDs, ids)
	}

	task, err := s.tasks.Create(c.Request().Context(), userID, create)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, task)
}

// listTasksHandler handles GET /api/tasks.
func (s *Server) listTasksHandler(c *echo.Context) error {
	filter := models.TaskFilter{
		Status:    c.QueryParam("status"),
		Priority:  c.QueryParam("priority"),
		Search:    c.QueryParam("search"),
		SortBy:    c.QueryParam("sort_by"),
		SortOrder: c.QueryParam("sort_order"),
	}
	if raw := c.QueryParam("tag_ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid tag_ids: must be comma-separated integers")
			}
			filter.TagIDs = append(filter.TagIDs, id)
		}
	}

	tasks, err := s.tasks.List(c.Request().Context(), currentUser(c), filter)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

// getTaskHandler handles GET /api/tasks/:id.
func (s *Server) getTaskHandler(c *echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	task, err := s.tasks.Get(c.Request().Context(), currentUser(c), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, task)
}

// updateTaskHandler handles PATCH /api/tasks/:id.
func (s *Server) updateTaskHandler(c *echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req updateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	update := models.UpdateTaskRequest{
		Title:             req.Title,
		Description:       req.Description,
		Priority:          req.Priority,
		ClearDueDate:      req.ClearDueDate,
		IsRecurring:       req.IsRecurring,
		RecurrencePattern: req.RecurrencePattern,
		RecurrenceData:    req.RecurrenceData,
		ClearRecurrence:   req.ClearRecurrence,
		TagIDs:            req.TagIDs,
	}
	if req.DueDate != nil && *req.DueDate != "" {
		due, err := models.ParseTime(*req.DueDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid due_date: must be ISO 8601")
		}
		update.DueDate = &due
	}

	task, err := s.tasks.Update(c.Request().Context(), currentUser(c), id, update, sourceClient(c))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, task)
}

// completeTaskHandler handles PATCH /api/tasks/:id/complete.
func (s *Server) completeTaskHandler(c *echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	task, err := s.tasks.Complete(c.Request().Context(), currentUser(c), id, sourceClient(c))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, task)
}

// deleteTaskHandler handles DELETE /api/tasks/:id.
func (s *Server) deleteTaskHandler(c *echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.tasks.Delete(c.Request().Context(), currentUser(c), id, sourceClient(c)); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// pathID parses an integer path parameter.
func pathID(c *echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be a positive integer")
	}
	return id, nil
}

// sourceClient identifies the originating client connection for echo
// filtering on the WebSocket side.
func sourceClient(c *echo.Context) string {
	return c.Request().Header.Get("X-Client-ID")
}

func mergeIDs(a, b []int64) []int64 {
	seen := make(map[int64]bool, len(a)+len(b))
	merged := make([]int64, 0, len(a)+len(b))
	for _, id := range append(a, b...) {
		if !seen[id] {
			seen[id] = true
			merged = append(merged, id)
		}
	}
	return merged
}
