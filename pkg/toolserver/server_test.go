package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/pkg/models"
)

// fakeTasks records calls and serves canned tasks keyed by id.
type fakeTasks struct {
	nextID     int64
	rows       map[int64]*models.Task
	lastUserID string
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{nextID: 1, rows: map[int64]*models.Task{}}
}

func (f *fakeTasks) Create(ctx context.Context, userID string, req models.CreateTaskRequest) (*models.Task, error) {
	f.lastUserID = userID
	if req.Title == "" {
		return nil, models.NewValidationError("title", "must not be empty")
	}
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	task := &models.Task{
		ID: f.nextID, UserID: userID, Title: req.Title, Priority: priority,
		DueDate: req.DueDate, Tags: []models.Tag{},
	}
	f.nextID++
	f.rows[task.ID] = task
	return task, nil
}

func (f *fakeTasks) Get(ctx context.Context, userID string, id int64) (*models.Task, error) {
	task, ok := f.rows[id]
	if !ok || task.UserID != userID {
		return nil, models.ErrNotFound
	}
	return task, nil
}

func (f *fakeTasks) Update(ctx context.Context, userID string, id int64, req models.UpdateTaskRequest, sourceClient string) (*models.Task, error) {
	task, err := f.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		task.Title = *req.Title
	}
	return task, nil
}

func (f *fakeTasks) Complete(ctx context.Context, userID string, id int64, sourceClient string) (*models.Task, error) {
	task, err := f.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	task.Completed = true
	return task, nil
}

func (f *fakeTasks) Delete(ctx context.Context, userID string, id int64, sourceClient string) error {
	if _, err := f.Get(ctx, userID, id); err != nil {
		return err
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeTasks) List(ctx context.Context, userID string, filter models.TaskFilter) ([]*models.Task, error) {
	f.lastUserID = userID
	var out []*models.Task
	for _, task := range f.rows {
		if task.UserID == userID {
			out = append(out, task)
		}
	}
	return out, nil
}

func (f *fakeTasks) ListRecurring(ctx context.Context, userID, pattern string) ([]*models.Task, error) {
	return nil, nil
}

func (f *fakeTasks) SkipOccurrence(ctx context.Context, userID string, id int64) (*models.Task, error) {
	return nil, models.NewValidationError("task_id", "task is not recurring")
}

func (f *fakeTasks) StopRecurrence(ctx context.Context, userID string, id int64) (*models.Task, error) {
	return f.Get(ctx, userID, id)
}

type fakeTags struct{}

func (fakeTags) Create(ctx context.Context, userID, name, color string) (*models.Tag, error) {
	if name == "" {
		return nil, models.NewValidationError("name", "must not be empty")
	}
	return &models.Tag{ID: 1, UserID: userID, Name: name, Color: models.DefaultTagColor}, nil
}
func (fakeTags) List(ctx context.Context, userID string) ([]models.Tag, error) { return nil, nil }
func (fakeTags) Delete(ctx context.Context, userID string, id int64) error     { return nil }
func (fakeTags) TagTask(ctx context.Context, userID string, taskID, tagID int64) error {
	return nil
}
func (fakeTags) UntagTask(ctx context.Context, userID string, taskID, tagID int64) error {
	return nil
}

type fakeReminders struct {
	lastHours int
}

func (f *fakeReminders) Create(ctx context.Context, userID string, taskID int64, remindAt time.Time) (*models.Reminder, error) {
	if taskID == 99 {
		return nil, models.ErrAlreadyExists
	}
	return &models.Reminder{ID: 1, TaskID: taskID, UserID: userID, RemindAt: remindAt,
		Status: models.ReminderPending}, nil
}
func (f *fakeReminders) Cancel(ctx context.Context, userID string, id int64) error { return nil }
func (f *fakeReminders) List(ctx context.Context, userID, status string, taskID int64) ([]*models.Reminder, error) {
	return nil, nil
}
func (f *fakeReminders) ListUpcoming(ctx context.Context, userID string, hours int) ([]*models.Reminder, error) {
	f.lastHours = hours
	return []*models.Reminder{}, nil
}

// connect wires a client session to the catalog for one user.
func connect(t *testing.T, server *Server, userID string) (*mcpsdk.ClientSession, *fakeTasks, *fakeReminders) {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mcpServer := server.Build(userID)
	go func() { _ = mcpServer.Run(ctx, serverTransport) }()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session, server.tasks.(*fakeTasks), server.reminders.(*fakeReminders)
}

func newTestServer() *Server {
	return NewServer(newFakeTasks(), fakeTags{}, &fakeReminders{})
}

func callTool(t *testing.T, session *mcpsdk.ClientSession, name string, args map[string]any) map[string]any {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name: name, Arguments: args,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func TestCatalogComplete(t *testing.T) {
	session, _, _ := connect(t, newTestServer(), "user-1")

	result, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, tool := range result.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{
		"add_task", "update_task", "delete_task", "complete_task", "list_tasks",
		"list_recurring", "skip_occurrence", "stop_recurrence",
		"add_tag", "list_tags", "delete_tag", "tag_task", "untag_task",
		"schedule_reminder", "list_reminders", "cancel_reminder", "get_upcoming_reminders",
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}
	assert.Len(t, result.Tools, 17)
}

func TestAddTaskBoundToConnectionUser(t *testing.T) {
	session, tasks, _ := connect(t, newTestServer(), "user-42")

	out := callTool(t, session, "add_task", map[string]any{"title": "Water plants"})
	assert.Equal(t, "created", out["status"])
	assert.Equal(t, "user-42", tasks.lastUserID)

	task := out["task"].(map[string]any)
	assert.Equal(t, "Water plants", task["title"])
	assert.Equal(t, models.PriorityMedium, task["priority"])
}

func TestValidationFailureIsErrorResultNotProtocolError(t *testing.T) {
	session, _, _ := connect(t, newTestServer(), "user-1")

	out := callTool(t, session, "add_task", map[string]any{"title": ""})
	assert.Equal(t, "error", out["status"])
	assert.Contains(t, out["message"], "title")
}

func TestScheduleReminderBadTimestamp(t *testing.T) {
	session, _, _ := connect(t, newTestServer(), "user-1")

	out := callTool(t, session, "schedule_reminder", map[string]any{
		"task_id": 1, "remind_at": "next tuesday",
	})
	assert.Equal(t, "error", out["status"])
	assert.Contains(t, out["message"], "remind_at")
}

func TestScheduleReminderConflict(t *testing.T) {
	session, _, _ := connect(t, newTestServer(), "user-1")

	out := callTool(t, session, "schedule_reminder", map[string]any{
		"task_id": 99, "remind_at": "2026-09-01T09:00:00Z",
	})
	assert.Equal(t, "error", out["status"])
	assert.Contains(t, out["message"], "already exists")
}

func TestUpcomingRemindersHourBounds(t *testing.T) {
	session, _, reminders := connect(t, newTestServer(), "user-1")

	tests := []struct {
		hours     int
		wantError bool
		effective int
	}{
		{0, true, 0}, // an explicit zero is out of range, not the default
		{1, false, 1},
		{168, false, 168},
		{169, true, 0},
		{-1, true, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("hours=%d", tt.hours), func(t *testing.T) {
			out := callTool(t, session, "get_upcoming_reminders", map[string]any{"hours": tt.hours})
			if tt.wantError {
				assert.Equal(t, "error", out["status"])
			} else {
				assert.Equal(t, "success", out["status"])
				assert.Equal(t, tt.effective, reminders.lastHours)
			}
		})
	}

	t.Run("hours omitted", func(t *testing.T) {
		out := callTool(t, session, "get_upcoming_reminders", map[string]any{})
		assert.Equal(t, "success", out["status"])
		assert.Equal(t, 24, reminders.lastHours)
	})
}

func TestDeleteMissingTask(t *testing.T) {
	session, _, _ := connect(t, newTestServer(), "user-1")

	out := callTool(t, session, "delete_task", map[string]any{"task_id": 12345})
	assert.Equal(t, "error", out["status"])
	assert.Equal(t, "not found", out["message"])
}

func TestHandlerRejectsMissingUserID(t *testing.T) {
	handler := newTestServer().Handler()

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest("POST", "/mcp", nil))
	assert.Equal(t, 400, recorder.Code)
}
