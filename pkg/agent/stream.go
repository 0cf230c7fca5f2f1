package agent

// SSE event names emitted by the chat stream. The sequence is finite and
// non-restartable; the terminal event is always done or error.
const (
	EventThinking     = "thinking"
	EventToken        = "token"
	EventToolCall     = "tool_call"
	EventToolResult   = "tool_result"
	EventAgentUpdated = "agent_updated"
	EventDone         = "done"
	EventError        = "error"
)

// StreamEvent is one frame of the chat stream: an event name plus its JSON
// payload.
type StreamEvent struct {
	Type string
	Data map[string]any
}

// EmitFunc receives stream events in the order the loop produces them.
// Implementations must not block longer than one client write.
type EmitFunc func(StreamEvent)

// ThinkingEvent signals that an agent started working on the request.
func ThinkingEvent(agentName, content string) StreamEvent {
	return StreamEvent{Type: EventThinking, Data: map[string]any{
		"content": content,
		"agent":   agentName,
	}}
}

// TokenEvent carries one plain-text delta of the assistant reply.
func TokenEvent(content string) StreamEvent {
	return StreamEvent{Type: EventToken, Data: map[string]any{
		"content": content,
	}}
}

// ToolCallEvent announces a tool invocation requested by the model.
func ToolCallEvent(call ToolCall) StreamEvent {
	return StreamEvent{Type: EventToolCall, Data: map[string]any{
		"tool":    call.Name,
		"args":    call.Arguments,
		"call_id": call.ID,
	}}
}

// ToolResultEvent carries the opaque output of a completed tool call.
func ToolResultEvent(result ToolResult) StreamEvent {
	return StreamEvent{Type: EventToolResult, Data: map[string]any{
		"call_id": result.CallID,
		"output":  result.Content,
	}}
}

// AgentUpdatedEvent signals a handoff to a different agent. Reserved for
// the multi-agent extension; emitted verbatim when the model hands off.
func AgentUpdatedEvent(agentName, content string) StreamEvent {
	return StreamEvent{Type: EventAgentUpdated, Data: map[string]any{
		"agent":   agentName,
		"content": content,
	}}
}

// DoneEvent terminates a successful stream.
func DoneEvent(conversationID, messageID int64) StreamEvent {
	return StreamEvent{Type: EventDone, Data: map[string]any{
		"conversation_id": conversationID,
		"message_id":      messageID,
	}}
}

// ErrorEvent terminates a failed stream with a stable code and safe message.
func ErrorEvent(agentErr *Error) StreamEvent {
	return StreamEvent{Type: EventError, Data: map[string]any{
		"message": agentErr.Message,
		"code":    string(agentErr.Code),
	}}
}
