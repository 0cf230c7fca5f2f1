package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/pkg/agent"
	"github.com/taskhive/taskhive/pkg/services"
)

// fakeChat scripts one chat turn: it emits the configured events and
// returns the configured result or error.
type fakeChat struct {
	events []agent.StreamEvent
	result *services.ChatResult
	err    error

	gotUserID  string
	gotMessage string
	gotConvID  *int64
}

func (f *fakeChat) Send(_ context.Context, userID string, conversationID *int64, message string, emit agent.EmitFunc) (*services.ChatResult, error) {
	f.gotUserID = userID
	f.gotMessage = message
	f.gotConvID = conversationID
	for _, event := range f.events {
		emit(event)
	}
	return f.result, f.err
}

func chatContext(t *testing.T, target, body string) (*echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(userIDKey, "user-1")
	return c, rec
}

// sseFrames splits a raw SSE body into "event: X\ndata: Y" frames.
func sseFrames(body string) []string {
	var frames []string
	for _, frame := range strings.Split(body, "\n\n") {
		if strings.TrimSpace(frame) != "" {
			frames = append(frames, frame)
		}
	}
	return frames
}

func TestChatHandlerCollectsToolCalls(t *testing.T) {
	chat := &fakeChat{
		events: []agent.StreamEvent{
			agent.ThinkingEvent("TaskHive Assistant", "Working on your request..."),
			agent.ToolCallEvent(agent.ToolCall{ID: "call-1", Name: "create_task", Arguments: `{"title": "buy milk"}`}),
			agent.ToolResultEvent(agent.ToolResult{CallID: "call-1", Name: "create_task", Content: `{"id": 7}`}),
			agent.TokenEvent("Done, I created the task."),
		},
		result: &services.ChatResult{ConversationID: 3, MessageID: 12, Response: "Done, I created the task."},
	}
	s := &Server{chat: chat}

	c, rec := chatContext(t, "/api/chat", `{"message": "add buy milk to my list"}`)
	require.NoError(t, s.chatHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.ConversationID)
	assert.Equal(t, int64(12), resp.MessageID)
	assert.Equal(t, "Done, I created the task.", resp.Response)

	// Only tool activity surfaces in the buffered body; thinking and token
	// frames are streaming-only.
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, agent.EventToolCall, resp.ToolCalls[0]["type"])
	assert.Equal(t, "create_task", resp.ToolCalls[0]["tool"])
	assert.Equal(t, agent.EventToolResult, resp.ToolCalls[1]["type"])

	assert.Equal(t, "user-1", chat.gotUserID)
	assert.Equal(t, "add buy milk to my list", chat.gotMessage)
	assert.Nil(t, chat.gotConvID)
}

func TestChatHandlerContinuesConversation(t *testing.T) {
	chat := &fakeChat{result: &services.ChatResult{ConversationID: 9, MessageID: 4, Response: "ok"}}
	s := &Server{chat: chat}

	c, _ := chatContext(t, "/api/chat", `{"conversation_id": 9, "message": "and what about tomorrow?"}`)
	require.NoError(t, s.chatHandler(c))

	require.NotNil(t, chat.gotConvID)
	assert.Equal(t, int64(9), *chat.gotConvID)
}

func TestChatStreamValidation(t *testing.T) {
	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{"empty message rejected", "", true},
		{"single character accepted", "a", false},
		{"max length accepted", strings.Repeat("x", 4000), false},
		{"over max length rejected", strings.Repeat("x", 4001), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &fakeChat{result: &services.ChatResult{ConversationID: 1, MessageID: 1, Response: "ok"}}
			s := &Server{chat: chat}

			body, err := json.Marshal(map[string]string{"message": tt.message})
			require.NoError(t, err)
			c, rec := chatContext(t, "/api/chat/stream", string(body))

			err = s.chatStreamHandler(c)
			if tt.wantErr {
				require.Error(t, err)
				he, ok := err.(*echo.HTTPError)
				require.True(t, ok, "expected echo.HTTPError")
				assert.Equal(t, http.StatusBadRequest, he.Code)
				assert.Empty(t, rec.Body.String(), "no frames before validation passes")
			} else {
				require.NoError(t, err)
				assert.Contains(t, rec.Body.String(), "event: done")
			}
		})
	}
}

func TestChatStreamFrameSequence(t *testing.T) {
	chat := &fakeChat{
		events: []agent.StreamEvent{
			agent.ThinkingEvent("TaskHive Assistant", "Working on your request..."),
			agent.TokenEvent("You have "),
			agent.TokenEvent("3 tasks today."),
		},
		result: &services.ChatResult{ConversationID: 5, MessageID: 21, Response: "You have 3 tasks today."},
	}
	s := &Server{chat: chat}

	c, rec := chatContext(t, "/api/chat/stream", `{"message": "what is on my plate?"}`)
	require.NoError(t, s.chatStreamHandler(c))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	frames := sseFrames(rec.Body.String())
	require.Len(t, frames, 4)
	assert.True(t, strings.HasPrefix(frames[0], "event: thinking\n"))
	assert.True(t, strings.HasPrefix(frames[1], "event: token\n"))
	assert.Contains(t, frames[1], `"content":"You have "`)
	assert.True(t, strings.HasPrefix(frames[2], "event: token\n"))

	require.True(t, strings.HasPrefix(frames[3], "event: done\n"))
	var done map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.SplitN(frames[3], "\n", 2)[1], "data: ")), &done))
	assert.Equal(t, float64(5), done["conversation_id"])
	assert.Equal(t, float64(21), done["message_id"])
}

func TestChatStreamErrorFrame(t *testing.T) {
	chat := &fakeChat{
		events: []agent.StreamEvent{agent.ThinkingEvent("TaskHive Assistant", "Working on your request...")},
		err:    errors.New("googleapi: Error 429: Too Many Requests"),
	}
	s := &Server{chat: chat}

	c, rec := chatContext(t, "/api/chat/stream", `{"message": "hello"}`)
	require.NoError(t, s.chatStreamHandler(c), "stream errors are frames, not HTTP errors")

	frames := sseFrames(rec.Body.String())
	require.Len(t, frames, 2)
	last := frames[len(frames)-1]
	require.True(t, strings.HasPrefix(last, "event: error\n"))
	assert.Contains(t, last, `"code":"rate_limit"`)
	assert.NotContains(t, last, "googleapi", "internal detail stays out of client frames")
}

func TestChatStreamClientDisconnect(t *testing.T) {
	chat := &fakeChat{err: context.Canceled}
	s := &Server{chat: chat}

	c, rec := chatContext(t, "/api/chat/stream", `{"message": "hello"}`)
	require.NoError(t, s.chatStreamHandler(c))
	assert.NotContains(t, rec.Body.String(), "event: error")
}
