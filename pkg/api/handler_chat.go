package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/taskhive/taskhive/pkg/agent"
	"github.com/taskhive/taskhive/pkg/services"
)

// ChatAPI runs one chat turn. Implemented by services.ChatService.
type ChatAPI interface {
	Send(ctx context.Context, userID string, conversationID *int64, message string, emit agent.EmitFunc) (*services.ChatResult, error)
}

// chatRequest is the body of POST /api/chat and /api/chat/stream.
type chatRequest struct {
	ConversationID *int64 `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

// chatResponse is the buffered chat reply.
type chatResponse struct {
	ConversationID int64            `json:"conversation_id"`
	MessageID      int64            `json:"message_id"`
	Response       string           `json:"response"`
	ToolCalls      []map[string]any `json:"tool_calls,omitempty"`
}

// chatHandler handles POST /api/chat: the buffered variant. The agent run
// is identical to the streaming one; frames are collected instead of
// written, and tool-call frames surface in the response body.
func (s *Server) chatHandler(c *echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	var toolCalls []map[string]any
	collect := func(event agent.StreamEvent) {
		if event.Type == agent.EventToolCall || event.Type == agent.EventToolResult {
			frame := map[string]any{"type": event.Type}
			for k, v := range event.Data {
				frame[k] = v
			}
			toolCalls = append(toolCalls, frame)
		}
	}

	result, err := s.chat.Send(c.Request().Context(), currentUser(c), req.ConversationID, req.Message, collect)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, chatResponse{
		ConversationID: result.ConversationID,
		MessageID:      result.MessageID,
		Response:       result.Response,
		ToolCalls:      toolCalls,
	})
}

// chatStreamHandler handles POST /api/chat/stream: the SSE variant. Every
// outcome ends the stream with a terminal done or error frame; once
// streaming starts, errors are frames rather than HTTP statuses.
func (s *Server) chatStreamHandler(c *echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	// Input validation happens before the stream opens so bad requests get
	// a real HTTP status instead of an error frame.
	if err := services.ValidateChatMessage(req.Message); err != nil {
		return mapServiceError(err)
	}

	stream, err := newSSEWriter(c)
	if err != nil {
		return err
	}

	emit := func(event agent.StreamEvent) {
		if err := stream.WriteEvent(event); err != nil {
			// Client gone; the request context cancels the run.
			slog.Debug("SSE write failed", "event", event.Type, "error", err)
		}
	}

	result, err := s.chat.Send(c.Request().Context(), currentUser(c), req.ConversationID, req.Message, emit)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Disconnected client; nothing left to write to.
			return nil
		}
		emit(agent.ErrorEvent(classifyChatError(err)))
		return nil
	}

	emit(agent.DoneEvent(result.ConversationID, result.MessageID))
	return nil
}

// classifyChatError renders any chat failure as a stable-coded agent error.
func classifyChatError(err error) *agent.Error {
	var agentErr *agent.Error
	if errors.As(err, &agentErr) {
		return agentErr
	}
	return agent.Classify(err)
}
