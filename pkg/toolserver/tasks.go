package toolserver

import (
	"context"
	"encoding/json"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/taskhive/taskhive/pkg/models"
)

type addTaskArgs struct {
	Title              string  `json:"title"`
	Description        *string `json:"description,omitempty"`
	Priority           string  `json:"priority,omitempty"`
	DueDate            string  `json:"due_date,omitempty"`
	IsRecurring        bool    `json:"is_recurring,omitempty"`
	RecurrencePattern  *string `json:"recurrence_pattern,omitempty"`
	RecurrenceInterval int     `json:"recurrence_interval,omitempty"`
	TagIDs             []int64 `json:"tag_ids,omitempty"`
}

type updateTaskArgs struct {
	TaskID            int64   `json:"task_id"`
	Title             *string `json:"title,omitempty"`
	Description       *string `json:"description,omitempty"`
	Priority          *string `json:"priority,omitempty"`
	DueDate           *string `json:"due_date,omitempty"`
	ClearDueDate      bool    `json:"clear_due_date,omitempty"`
	IsRecurring       *bool   `json:"is_recurring,omitempty"`
	RecurrencePattern *string `json:"recurrence_pattern,omitempty"`
	TagIDs            []int64 `json:"tag_ids,omitempty"`
}

type taskIDArgs struct {
	TaskID int64 `json:"task_id"`
}

type listTasksArgs struct {
	Status    string  `json:"status,omitempty"`
	Priority  string  `json:"priority,omitempty"`
	TagIDs    []int64 `json:"tag_ids,omitempty"`
	Search    string  `json:"search,omitempty"`
	SortBy    string  `json:"sort_by,omitempty"`
	SortOrder string  `json:"sort_order,omitempty"`
}

type listRecurringArgs struct {
	Pattern string `json:"pattern,omitempty"`
}

func (s *Server) registerTaskTools(server *mcpsdk.Server, userID string) {
	server.AddTool(&mcpsdk.Tool{
		Name:        "add_task",
		Description: "Create a task. Supports priority, due date, recurrence, and tags.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string", "description": "Task title, 1-200 characters"},
				"description": {"type": "string", "description": "Optional details, up to 1000 characters"},
				"priority": {"type": "string", "enum": ["low", "medium", "high"]},
				"due_date": {"type": "string", "description": "ISO 8601 due timestamp"},
				"is_recurring": {"type": "boolean"},
				"recurrence_pattern": {"type": "string", "enum": ["daily", "weekly", "monthly", "yearly"]},
				"recurrence_interval": {"type": "integer", "description": "Repeat every N periods, default 1"},
				"tag_ids": {"type": "array", "items": {"type": "integer"}}
			},
			"required": ["title"]
		}`),
	}, handlerFor(s, "add_task", func(ctx context.Context, args addTaskArgs) (any, error) {
		req := models.CreateTaskRequest{
			Title:             args.Title,
			Description:       args.Description,
			Priority:          args.Priority,
			IsRecurring:       args.IsRecurring,
			RecurrencePattern: args.RecurrencePattern,
			TagIDs:            args.TagIDs,
		}
		if args.DueDate != "" {
			due, err := parseWhen("due_date", args.DueDate)
			if err != nil {
				return nil, err
			}
			req.DueDate = &due
		}
		if args.RecurrenceInterval > 0 {
			req.RecurrenceData = map[string]any{"every": args.RecurrenceInterval}
		}

		task, err := s.tasks.Create(ctx, userID, req)
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": "created", "task": task}, nil
	}))

	server.AddTool(&mcpsdk.Tool{
		Name:        "update_task",
		Description: "Update fields of an existing task. Only provided fields change.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"task_id": {"type": "integer"},
				"title": {"type": "string"},
				"description": {"type": "string"},
				"priority": {"type": "string", "enum": ["low", "medium", "high"]},
				"due_date": {"type": "string", "description": "ISO 8601 due timestamp"},
				"clear_due_date": {"type": "boolean", "description": "Remove the due date"},
				"is_recurring": {"type": "boolean"},
				"recurrence_pattern": {"type": "string", "enum": ["daily", "weekly", "monthly", "yearly"]},
				"tag_ids": {"type": "array", "items": {"type": "integer"}, "description": "Replaces the task's tags"}
			},
			"required": ["task_id"]
		}`),
	}, handlerFor(s, "update_task", func(ctx context.Context, args updateTaskArgs) (any, error) {
		req := models.UpdateTaskRequest{
			Title:             args.Title,
			Description:       args.Description,
			Priority:          args.Priority,
			ClearDueDate:      args.ClearDueDate,
			IsRecurring:       args.IsRecurring,
			RecurrencePattern: args.RecurrencePattern,
			TagIDs:            args.TagIDs,
		}
		if args.DueDate != nil && !args.ClearDueDate {
			due, err := parseWhen("due_date", *args.DueDate)
			if err != nil {
				return nil, err
			}
			req.DueDate = &due
		}

		task, err := s.tasks.Update(ctx, userID, args.TaskID, req, "")
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": "updated", "task": task}, nil
	}))

	server.AddTool(&mcpsdk.Tool{
		Name:        "complete_task",
		Description: "Mark a task as completed.",
		InputSchema: taskIDSchema,
	}, handlerFor(s, "complete_task", func(ctx context.Context, args taskIDArgs) (any, error) {
		task, err := s.tasks.Complete(ctx, userID, args.TaskID, "")
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": "completed", "task": task}, nil
	}))

	server.AddTool(&mcpsdk.Tool{
		Name:        "delete_task",
		Description: "Delete a task permanently.",
		InputSchema: taskIDSchema,
	}, handlerFor(s, "delete_task", func(ctx context.Context, args taskIDArgs) (any, error) {
		if err := s.tasks.Delete(ctx, userID, args.TaskID, ""); err != nil {
			return nil, err
		}
		return map[string]any{"status": "deleted", "task_id": args.TaskID}, nil
	}))

	server.AddTool(&mcpsdk.Tool{
		Name: "list_tasks",
		Description: "List the user's tasks with optional filters and sorting. " +
			"Returns full task objects including their tags.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"status": {"type": "string", "enum": ["all", "pending", "completed"]},
				"priority": {"type": "string", "enum": ["low", "medium", "high"]},
				"tag_ids": {"type": "array", "items": {"type": "integer"}},
				"search": {"type": "string", "description": "Substring match on title and description"},
				"sort_by": {"type": "string", "enum": ["due_date", "priority", "created_at", "title", "updated_at"]},
				"sort_order": {"type": "string", "enum": ["asc", "desc"]}
			}
		}`),
	}, handlerFor(s, "list_tasks", func(ctx context.Context, args listTasksArgs) (any, error) {
		tasks, err := s.tasks.List(ctx, userID, models.TaskFilter{
			Status:    args.Status,
			Priority:  args.Priority,
			TagIDs:    args.TagIDs,
			Search:    args.Search,
			SortBy:    args.SortBy,
			SortOrder: args.SortOrder,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": "success", "count": len(tasks), "tasks": emptyIfNil(tasks)}, nil
	}))

	server.AddTool(&mcpsdk.Tool{
		Name:        "list_recurring",
		Description: "List the user's recurring tasks, optionally filtered by pattern.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"pattern": {"type": "string", "enum": ["daily", "weekly", "monthly", "yearly"]}
			}
		}`),
	}, handlerFor(s, "list_recurring", func(ctx context.Context, args listRecurringArgs) (any, error) {
		tasks, err := s.tasks.ListRecurring(ctx, userID, args.Pattern)
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": "success", "count": len(tasks), "tasks": emptyIfNil(tasks)}, nil
	}))

	server.AddTool(&mcpsdk.Tool{
		Name:        "skip_occurrence",
		Description: "Skip a recurring task's next occurrence without completing it.",
		InputSchema: taskIDSchema,
	}, handlerFor(s, "skip_occurrence", func(ctx context.Context, args taskIDArgs) (any, error) {
		task, err := s.tasks.SkipOccurrence(ctx, userID, args.TaskID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": "updated", "task": task}, nil
	}))

	server.AddTool(&mcpsdk.Tool{
		Name:        "stop_recurrence",
		Description: "Stop a task from recurring. The task itself remains.",
		InputSchema: taskIDSchema,
	}, handlerFor(s, "stop_recurrence", func(ctx context.Context, args taskIDArgs) (any, error) {
		task, err := s.tasks.StopRecurrence(ctx, userID, args.TaskID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": "updated", "task": task}, nil
	}))
}

var taskIDSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"task_id": {"type": "integer"}
	},
	"required": ["task_id"]
}`)

// emptyIfNil keeps list results as [] rather than null in JSON.
func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
