// Package agent implements the tool-using chat agent loop: it drives the
// model, relays tool calls to the tool server, and normalizes everything
// into an ordered stream of events with a single terminal done or error.
package agent

import (
	"context"
	"encoding/json"
)

// Message roles in the model conversation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of model context. Exactly one of Content, ToolCall,
// or ToolResult is meaningful depending on the role.
type Message struct {
	Role       string
	Content    string
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

// ToolDefinition describes one tool from the dynamically discovered catalog.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToolCall is a model-requested tool invocation. Arguments is the raw JSON
// argument blob exactly as the model produced it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolResult is the opaque output of a tool invocation. The agent never
// interprets Content; it relays it and lets the model re-read it.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// ToolExecutor is the per-run session to the tool server.
// Implementations are scoped to one user and one agent run.
type ToolExecutor interface {
	// ListTools discovers the tool catalog. Tool names are never hard-coded.
	ListTools(ctx context.Context) ([]ToolDefinition, error)
	// Execute runs one tool call. Tool-level failures come back as a
	// ToolResult with IsError set; a Go error means the call itself failed.
	Execute(ctx context.Context, call ToolCall) (*ToolResult, error)
	// Close releases the session. Guaranteed to be called on all run exits.
	Close() error
}

// Chunk types normalized from the model's streamed response.
const (
	ChunkTextDelta     = "text_delta"
	ChunkReasoning     = "reasoning_item"
	ChunkToolCall      = "tool_call_item"
	ChunkMessageOutput = "message_output_item"
	ChunkHandoff       = "handoff_call_item"
	ChunkFinished      = "finished"
)

// StreamChunk is one normalized unit from the model stream.
type StreamChunk struct {
	Type     string
	Text     string    // text_delta, reasoning_item, message_output_item
	ToolCall *ToolCall // tool_call_item
	Agent    string    // handoff_call_item
}

// ModelRequest is one model invocation: instructions, context, and catalog.
type ModelRequest struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
}

// ModelClient abstracts the LLM provider. Implemented by pkg/llm.
type ModelClient interface {
	// GenerateStream invokes the model and streams normalized chunks.
	// The chunk channel closes on completion; a value on the error channel
	// terminates the stream.
	GenerateStream(ctx context.Context, req ModelRequest) (<-chan StreamChunk, <-chan error)
}
