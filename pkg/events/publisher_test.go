package events

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/pkg/dapr"
)

// capturedPublish records one publish request received by the fake sidecar.
type capturedPublish struct {
	path string
	body map[string]any
}

func newFakeSidecar(t *testing.T, status int) (*httptest.Server, *[]capturedPublish) {
	t.Helper()
	var captured []capturedPublish
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(body, &m))
		captured = append(captured, capturedPublish{path: r.URL.Path, body: m})
		w.WriteHeader(status)
	}))
	t.Cleanup(ts.Close)
	return ts, &captured
}

func TestPublishTaskEventRoutesToTopic(t *testing.T) {
	ts, captured := newFakeSidecar(t, http.StatusNoContent)
	pub := NewPublisher(dapr.NewClient(ts.URL))

	err := pub.PublishTaskEvent(context.Background(), TaskEvent{
		EventType: TaskCreated,
		TaskID:    1,
		UserID:    "u1",
		TaskData:  TaskData{Title: "buy milk", Priority: "medium", Tags: []string{}},
	})
	require.NoError(t, err)

	require.Len(t, *captured, 1)
	got := (*captured)[0]
	assert.Equal(t, "/v1.0/publish/pubsub-kafka/task-events", got.path)
	assert.Equal(t, "task.created", got.body["event_type"])
}

func TestPublisherMintsCorrelationIDAndTimestamp(t *testing.T) {
	ts, captured := newFakeSidecar(t, http.StatusNoContent)
	pub := NewPublisher(dapr.NewClient(ts.URL))

	err := pub.PublishTaskUpdate(context.Background(), TaskUpdateEvent{
		EventType: TaskSync,
		TaskID:    5,
		UserID:    "u1",
		Action:    ActionUpdated,
	})
	require.NoError(t, err)

	require.Len(t, *captured, 1)
	got := (*captured)[0].body
	assert.NotEmpty(t, got["correlation_id"])
	assert.NotEmpty(t, got["timestamp"])
}

func TestPublisherPreservesCallerCorrelationID(t *testing.T) {
	ts, captured := newFakeSidecar(t, http.StatusNoContent)
	pub := NewPublisher(dapr.NewClient(ts.URL))

	err := pub.PublishReminderEvent(context.Background(), ReminderEvent{
		EventType:     ReminderDue,
		ReminderID:    7,
		TaskID:        1,
		UserID:        "u1",
		Title:         "buy milk",
		RemindAt:      "2026-01-15T09:45:00Z",
		CorrelationID: "caller-supplied",
	})
	require.NoError(t, err)

	require.Len(t, *captured, 1)
	got := (*captured)[0]
	assert.Equal(t, "/v1.0/publish/pubsub-kafka/reminder-events", got.path)
	assert.Equal(t, "caller-supplied", got.body["correlation_id"])
}

func TestPublishSurfacesSidecarFailure(t *testing.T) {
	ts, _ := newFakeSidecar(t, http.StatusInternalServerError)
	pub := NewPublisher(dapr.NewClient(ts.URL))

	err := pub.PublishTaskEvent(context.Background(), TaskEvent{
		EventType: TaskDeleted,
		TaskID:    2,
		UserID:    "u1",
	})
	assert.Error(t, err)
}
