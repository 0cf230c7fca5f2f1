// Package toolserver implements the MCP tool server exposing the task,
// tag, and reminder catalog to the chat agent. One MCP server instance is
// built per connection with the user identity bound from the connection
// URL, so tool handlers never see or accept a user id argument.
package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/taskhive/taskhive/pkg/models"
	"github.com/taskhive/taskhive/pkg/reminder"
	"github.com/taskhive/taskhive/pkg/services"
	"github.com/taskhive/taskhive/pkg/version"
)

// TaskAPI is the task surface the tools call. Implemented by
// services.TaskService.
type TaskAPI interface {
	Create(ctx context.Context, userID string, req models.CreateTaskRequest) (*models.Task, error)
	Get(ctx context.Context, userID string, id int64) (*models.Task, error)
	Update(ctx context.Context, userID string, id int64, req models.UpdateTaskRequest, sourceClient string) (*models.Task, error)
	Complete(ctx context.Context, userID string, id int64, sourceClient string) (*models.Task, error)
	Delete(ctx context.Context, userID string, id int64, sourceClient string) error
	List(ctx context.Context, userID string, f models.TaskFilter) ([]*models.Task, error)
	ListRecurring(ctx context.Context, userID, pattern string) ([]*models.Task, error)
	SkipOccurrence(ctx context.Context, userID string, id int64) (*models.Task, error)
	StopRecurrence(ctx context.Context, userID string, id int64) (*models.Task, error)
}

// TagAPI is the tag surface the tools call. Implemented by
// services.TagService.
type TagAPI interface {
	Create(ctx context.Context, userID, name, color string) (*models.Tag, error)
	List(ctx context.Context, userID string) ([]models.Tag, error)
	Delete(ctx context.Context, userID string, id int64) error
	TagTask(ctx context.Context, userID string, taskID, tagID int64) error
	UntagTask(ctx context.Context, userID string, taskID, tagID int64) error
}

// ReminderAPI is the reminder surface the tools call. Implemented by
// reminder.Engine.
type ReminderAPI interface {
	Create(ctx context.Context, userID string, taskID int64, remindAt time.Time) (*models.Reminder, error)
	Cancel(ctx context.Context, userID string, id int64) error
	List(ctx context.Context, userID, status string, taskID int64) ([]*models.Reminder, error)
	ListUpcoming(ctx context.Context, userID string, hours int) ([]*models.Reminder, error)
}

var (
	_ TaskAPI     = (*services.TaskService)(nil)
	_ TagAPI      = (*services.TagService)(nil)
	_ ReminderAPI = (*reminder.Engine)(nil)
)

// Server builds per-connection MCP servers over the shared services.
type Server struct {
	tasks     TaskAPI
	tags      TagAPI
	reminders ReminderAPI
	logger    *slog.Logger
}

// NewServer creates a Server.
func NewServer(tasks TaskAPI, tags TagAPI, reminders ReminderAPI) *Server {
	return &Server{
		tasks:     tasks,
		tags:      tags,
		reminders: reminders,
		logger:    slog.Default(),
	}
}

// Handler serves the streamable HTTP MCP endpoint. Connections without a
// user_id query parameter are rejected before the protocol starts.
func (s *Server) Handler() http.Handler {
	mcpHandler := mcpsdk.NewStreamableHTTPHandler(func(r *http.Request) *mcpsdk.Server {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			return nil
		}
		return s.Build(userID)
	}, nil)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user_id") == "" {
			http.Error(w, `{"error":"user_id query parameter is required"}`, http.StatusBadRequest)
			return
		}
		mcpHandler.ServeHTTP(w, r)
	})
}

// Build assembles the full tool catalog bound to one user.
func (s *Server) Build(userID string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    version.AppName + "-tools",
		Version: version.GitCommit,
	}, nil)

	s.registerTaskTools(server, userID)
	s.registerTagTools(server, userID)
	s.registerReminderTools(server, userID)
	return server
}

// handlerFor adapts a typed argument handler to the SDK signature.
// Service errors become error results the model can read; only transport
// level failures surface as Go errors.
func handlerFor[A any](s *Server, tool string, fn func(ctx context.Context, args A) (any, error)) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args A
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return errorResult(fmt.Sprintf("invalid arguments: %s", err)), nil
			}
		}

		out, err := fn(ctx, args)
		if err != nil {
			s.logger.Info("Tool call failed", "tool", tool, "error", err)
			return errorResult(userFacing(err)), nil
		}
		return jsonResult(out)
	}
}

// userFacing renders a service error for the model.
func userFacing(err error) string {
	var validation *models.ValidationError
	switch {
	case errors.As(err, &validation):
		return fmt.Sprintf("%s: %s", validation.Field, validation.Message)
	case errors.Is(err, models.ErrNotFound):
		return "not found"
	case errors.Is(err, models.ErrAlreadyExists):
		return "already exists"
	case errors.Is(err, models.ErrNotPending):
		return "reminder is no longer pending"
	default:
		return err.Error()
	}
}

func jsonResult(v any) (*mcpsdk.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, nil
}

func errorResult(message string) *mcpsdk.CallToolResult {
	data, _ := json.Marshal(map[string]string{
		"status":  "error",
		"message": message,
	})
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
		IsError: true,
	}
}

// parseWhen parses an ISO 8601 timestamp argument.
func parseWhen(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, models.NewValidationError(field, "must not be empty")
	}
	t, err := models.ParseTime(value)
	if err != nil {
		return time.Time{}, models.NewValidationError(field,
			fmt.Sprintf("must be an ISO 8601 timestamp (got %q)", value))
	}
	return t, nil
}
