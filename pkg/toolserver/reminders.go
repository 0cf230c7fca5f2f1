package toolserver

import (
	"context"
	"encoding/json"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/taskhive/taskhive/pkg/models"
	"github.com/taskhive/taskhive/pkg/reminder"
)

type scheduleReminderArgs struct {
	TaskID   int64  `json:"task_id"`
	RemindAt string `json:"remind_at"`
}

type listRemindersArgs struct {
	Status string `json:"status,omitempty"`
	TaskID int64  `json:"task_id,omitempty"`
}

type cancelReminderArgs struct {
	ReminderID int64 `json:"reminder_id"`
}

// Hours is a pointer so an explicit 0 is rejected instead of being
// mistaken for an absent argument.
type upcomingRemindersArgs struct {
	Hours *int `json:"hours,omitempty"`
}

func (s *Server) registerReminderTools(server *mcpsdk.Server, userID string) {
	server.AddTool(&mcpsdk.Tool{
		Name: "schedule_reminder",
		Description: "Schedule a reminder for a task at a specific time. " +
			"A time in the past fires the reminder immediately. " +
			"Each task can have at most one pending reminder.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"task_id": {"type": "integer"},
				"remind_at": {"type": "string", "description": "ISO 8601 timestamp"}
			},
			"required": ["task_id", "remind_at"]
		}`),
	}, handlerFor(s, "schedule_reminder", func(ctx context.Context, args scheduleReminderArgs) (any, error) {
		remindAt, err := parseWhen("remind_at", args.RemindAt)
		if err != nil {
			return nil, err
		}
		rem, err := s.reminders.Create(ctx, userID, args.TaskID, remindAt)
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": "created", "reminder": rem}, nil
	}))

	server.AddTool(&mcpsdk.Tool{
		Name:        "list_reminders",
		Description: "List the user's reminders, optionally filtered by status or task.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"status": {"type": "string", "enum": ["pending", "sent", "failed"]},
				"task_id": {"type": "integer"}
			}
		}`),
	}, handlerFor(s, "list_reminders", func(ctx context.Context, args listRemindersArgs) (any, error) {
		reminders, err := s.reminders.List(ctx, userID, args.Status, args.TaskID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": "success", "count": len(reminders), "reminders": emptyIfNil(reminders)}, nil
	}))

	server.AddTool(&mcpsdk.Tool{
		Name:        "cancel_reminder",
		Description: "Cancel a reminder. Its scheduled delivery is removed.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"reminder_id": {"type": "integer"}
			},
			"required": ["reminder_id"]
		}`),
	}, handlerFor(s, "cancel_reminder", func(ctx context.Context, args cancelReminderArgs) (any, error) {
		if err := s.reminders.Cancel(ctx, userID, args.ReminderID); err != nil {
			return nil, err
		}
		return map[string]any{"status": "deleted", "reminder_id": args.ReminderID}, nil
	}))

	server.AddTool(&mcpsdk.Tool{
		Name: "get_upcoming_reminders",
		Description: "List pending reminders due within the next N hours " +
			"(1 to 168, default 24).",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"hours": {"type": "integer", "minimum": 1, "maximum": 168}
			}
		}`),
	}, handlerFor(s, "get_upcoming_reminders", func(ctx context.Context, args upcomingRemindersArgs) (any, error) {
		hours := 24
		if args.Hours != nil {
			hours = *args.Hours
		}
		if hours < reminder.UpcomingHoursMin || hours > reminder.UpcomingHoursMax {
			return nil, models.NewValidationError("hours",
				fmt.Sprintf("must be between %d and %d", reminder.UpcomingHoursMin, reminder.UpcomingHoursMax))
		}
		reminders, err := s.reminders.ListUpcoming(ctx, userID, hours)
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": "success", "count": len(reminders), "reminders": emptyIfNil(reminders)}, nil
	}))
}
