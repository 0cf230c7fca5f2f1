package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/taskhive/taskhive/pkg/models"
	"github.com/taskhive/taskhive/pkg/reminder"
)

// ReminderAPI is the reminder surface the handlers call. Implemented by
// reminder.Engine.
type ReminderAPI interface {
	Create(ctx context.Context, userID string, taskID int64, remindAt time.Time) (*models.Reminder, error)
	Update(ctx context.Context, userID string, id int64, remindAt time.Time) (*models.Reminder, error)
	Cancel(ctx context.Context, userID string, id int64) error
	Get(ctx context.Context, userID string, id int64) (*models.Reminder, error)
	List(ctx context.Context, userID, status string, taskID int64) ([]*models.Reminder, error)
	ListUpcoming(ctx context.Context, userID string, hours int) ([]*models.Reminder, error)
	HandleTrigger(ctx context.Context, payload reminder.JobPayload) error
}

type createReminderRequest struct {
	TaskID   int64  `json:"task_id"`
	RemindAt string `json:"remind_at"`
}

type updateReminderRequest struct {
	RemindAt string `json:"remind_at"`
}

// createReminderHandler handles POST /api/reminders. A remind_at at or
// before now fires synchronously: the response already carries the
// terminal sent/failed status.
func (s *Server) createReminderHandler(c *echo.Context) error {
	var req createReminderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TaskID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "task_id must be a positive integer")
	}
	remindAt, err := models.ParseTime(req.RemindAt)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid remind_at: must be ISO 8601")
	}

	created, err := s.reminders.Create(c.Request().Context(), currentUser(c), req.TaskID, remindAt)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

// listRemindersHandler handles GET /api/reminders with optional status and
// task_id filters, plus GET /api/reminders/upcoming?hours=N.
func (s *Server) listRemindersHandler(c *echo.Context) error {
	var taskID int64
	if raw := c.QueryParam("task_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "task_id must be a positive integer")
		}
		taskID = parsed
	}
	if status := c.QueryParam("status"); status != "" && !models.ValidReminderStatus(status) {
		return echo.NewHTTPError(http.StatusBadRequest, "status must be pending, sent, or failed")
	}

	reminders, err := s.reminders.List(c.Request().Context(), currentUser(c), c.QueryParam("status"), taskID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"reminders": reminders, "count": len(reminders)})
}

// upcomingRemindersHandler handles GET /api/reminders/upcoming.
func (s *Server) upcomingRemindersHandler(c *echo.Context) error {
	hours := 24
	if raw := c.QueryParam("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "hours must be an integer")
		}
		hours = parsed
	}

	reminders, err := s.reminders.ListUpcoming(c.Request().Context(), currentUser(c), hours)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"reminders": reminders, "count": len(reminders)})
}

// getReminderHandler handles GET /api/reminders/:id.
func (s *Server) getReminderHandler(c *echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	found, err := s.reminders.Get(c.Request().Context(), currentUser(c), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, found)
}

// updateReminderHandler handles PATCH /api/reminders/:id. Only pending
// reminders can move; the engine rejects past fire times.
func (s *Server) updateReminderHandler(c *echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req updateReminderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	remindAt, err := models.ParseTime(req.RemindAt)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid remind_at: must be ISO 8601")
	}

	updated, err := s.reminders.Update(c.Request().Context(), currentUser(c), id, remindAt)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

// deleteReminderHandler handles DELETE /api/reminders/:id.
func (s *Server) deleteReminderHandler(c *echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.reminders.Cancel(c.Request().Context(), currentUser(c), id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// jobTriggerHandler handles POST /api/dapr/jobs/trigger: the sidecar's
// callback when a reminder job fires. The sidecar is the only caller, so
// outcomes are acknowledged rather than surfaced: a reminder deleted
// between schedule and fire is a skip, not an error.
func (s *Server) jobTriggerHandler(c *echo.Context) error {
	var body struct {
		Data reminder.JobPayload `json:"data"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid job payload")
	}

	if err := s.reminders.HandleTrigger(c.Request().Context(), body.Data); err != nil {
		// Logged by the engine; the job is one-shot either way.
		return c.JSON(http.StatusOK, map[string]string{"status": "error"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}
