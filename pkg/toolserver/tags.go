package toolserver

import (
	"context"
	"encoding/json"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type addTagArgs struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type tagIDArgs struct {
	TagID int64 `json:"tag_id"`
}

type taskTagArgs struct {
	TaskID int64 `json:"task_id"`
	TagID  int64 `json:"tag_id"`
}

func (s *Server) registerTagTools(server *mcpsdk.Server, userID string) {
	server.AddTool(&mcpsdk.Tool{
		Name:        "add_tag",
		Description: "Create a tag. Names are unique per user.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string", "description": "Tag name, 1-50 characters"},
				"color": {"type": "string", "description": "Hex color like #ff8800, defaults to gray"}
			},
			"required": ["name"]
		}`),
	}, handlerFor(s, "add_tag", func(ctx context.Context, args addTagArgs) (any, error) {
		tag, err := s.tags.Create(ctx, userID, args.Name, args.Color)
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": "created", "tag": tag}, nil
	}))

	server.AddTool(&mcpsdk.Tool{
		Name:        "list_tags",
		Description: "List the user's tags.",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	}, handlerFor(s, "list_tags", func(ctx context.Context, _ struct{}) (any, error) {
		tags, err := s.tags.List(ctx, userID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": "success", "count": len(tags), "tags": emptyIfNil(tags)}, nil
	}))

	server.AddTool(&mcpsdk.Tool{
		Name:        "delete_tag",
		Description: "Delete a tag. It is removed from all tasks that carry it.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"tag_id": {"type": "integer"}
			},
			"required": ["tag_id"]
		}`),
	}, handlerFor(s, "delete_tag", func(ctx context.Context, args tagIDArgs) (any, error) {
		if err := s.tags.Delete(ctx, userID, args.TagID); err != nil {
			return nil, err
		}
		return map[string]any{"status": "deleted", "tag_id": args.TagID}, nil
	}))

	server.AddTool(&mcpsdk.Tool{
		Name:        "tag_task",
		Description: "Attach a tag to a task.",
		InputSchema: taskTagSchema,
	}, handlerFor(s, "tag_task", func(ctx context.Context, args taskTagArgs) (any, error) {
		if err := s.tags.TagTask(ctx, userID, args.TaskID, args.TagID); err != nil {
			return nil, err
		}
		return map[string]any{"status": "success", "task_id": args.TaskID, "tag_id": args.TagID}, nil
	}))

	server.AddTool(&mcpsdk.Tool{
		Name:        "untag_task",
		Description: "Remove a tag from a task.",
		InputSchema: taskTagSchema,
	}, handlerFor(s, "untag_task", func(ctx context.Context, args taskTagArgs) (any, error) {
		if err := s.tags.UntagTask(ctx, userID, args.TaskID, args.TagID); err != nil {
			return nil, err
		}
		return map[string]any{"status": "success", "task_id": args.TaskID, "tag_id": args.TagID}, nil
	}))
}

var taskTagSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"task_id": {"type": "integer"},
		"tag_id": {"type": "integer"}
	},
	"required": ["task_id", "tag_id"]
}`)
