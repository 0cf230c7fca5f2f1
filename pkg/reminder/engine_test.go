package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/pkg/dapr"
	"github.com/taskhive/taskhive/pkg/events"
	"github.com/taskhive/taskhive/pkg/models"
)

// memReminderStore is an in-memory ReminderStore.
type memReminderStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.Reminder
}

func newMemReminderStore() *memReminderStore {
	return &memReminderStore{nextID: 1, rows: map[int64]*models.Reminder{}}
}

func (m *memReminderStore) Create(ctx context.Context, reminder *models.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.TaskID == reminder.TaskID && row.Status == models.ReminderPending {
			return models.ErrAlreadyExists
		}
	}
	reminder.ID = m.nextID
	m.nextID++
	reminder.Status = models.ReminderPending
	reminder.CreatedAt = time.Now().UTC()
	reminder.UpdatedAt = reminder.CreatedAt
	copied := *reminder
	m.rows[reminder.ID] = &copied
	return nil
}

func (m *memReminderStore) GetByID(ctx context.Context, id int64) (*models.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *row
	return &copied, nil
}

func (m *memReminderStore) GetOwned(ctx context.Context, userID string, id int64) (*models.Reminder, error) {
	row, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.UserID != userID {
		return nil, models.ErrNotFound
	}
	return row, nil
}

func (m *memReminderStore) List(ctx context.Context, userID, status string, taskID int64) ([]*models.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Reminder
	for _, row := range m.rows {
		if row.UserID != userID {
			continue
		}
		if status != "" && row.Status != status {
			continue
		}
		if taskID != 0 && row.TaskID != taskID {
			continue
		}
		copied := *row
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memReminderStore) ListUpcoming(ctx context.Context, userID string, until time.Time) ([]*models.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var out []*models.Reminder
	for _, row := range m.rows {
		if row.UserID == userID && row.Status == models.ReminderPending &&
			!row.RemindAt.Before(now) && !row.RemindAt.After(until) {
			copied := *row
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memReminderStore) UpdateSchedule(ctx context.Context, id int64, remindAt time.Time, jobName *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return models.ErrNotFound
	}
	if row.Status != models.ReminderPending {
		return models.ErrNotPending
	}
	row.RemindAt = remindAt
	row.DaprJobName = jobName
	return nil
}

func (m *memReminderStore) SetJobName(ctx context.Context, id int64, jobName *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return models.ErrNotFound
	}
	row.DaprJobName = jobName
	return nil
}

func (m *memReminderStore) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return models.ErrNotFound
	}
	if row.Status != models.ReminderPending {
		return models.ErrNotPending
	}
	row.Status = models.ReminderSent
	row.SentAt = &sentAt
	row.DaprJobName = nil
	return nil
}

func (m *memReminderStore) MarkFailed(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return models.ErrNotFound
	}
	if row.Status != models.ReminderPending {
		return models.ErrNotPending
	}
	row.Status = models.ReminderFailed
	return nil
}

func (m *memReminderStore) Delete(ctx context.Context, userID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.UserID != userID {
		return models.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

// memTasks serves a fixed task set.
type memTasks struct {
	tasks map[int64]*models.Task
}

func (m *memTasks) GetByID(ctx context.Context, userID string, id int64) (*models.Task, error) {
	task, ok := m.tasks[id]
	if !ok || task.UserID != userID {
		return nil, models.ErrNotFound
	}
	return task, nil
}

// fakeSidecar records publishes and job calls.
type fakeSidecar struct {
	mu        sync.Mutex
	published []publishedEvent
	jobs      map[string]json.RawMessage
	deleted   []string
	failPub   bool
	failJobs  bool
	server    *httptest.Server
}

type publishedEvent struct {
	Topic string
	Body  json.RawMessage
}

func newFakeSidecar(t *testing.T) *fakeSidecar {
	t.Helper()
	f := &fakeSidecar{jobs: map[string]json.RawMessage{}}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case strings.HasPrefix(r.URL.Path, "/v1.0/publish/"):
			if f.failPub {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			var body json.RawMessage
			_ = json.NewDecoder(r.Body).Decode(&body)
			parts := strings.Split(r.URL.Path, "/")
			f.published = append(f.published, publishedEvent{
				Topic: parts[len(parts)-1],
				Body:  body,
			})
			w.WriteHeader(http.StatusNoContent)
		case strings.HasPrefix(r.URL.Path, "/v1.0-alpha1/jobs/") && r.Method == http.MethodPost:
			if f.failJobs {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			var body json.RawMessage
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.jobs[strings.TrimPrefix(r.URL.Path, "/v1.0-alpha1/jobs/")] = body
			w.WriteHeader(http.StatusNoContent)
		case strings.HasPrefix(r.URL.Path, "/v1.0-alpha1/jobs/") && r.Method == http.MethodDelete:
			f.deleted = append(f.deleted, strings.TrimPrefix(r.URL.Path, "/v1.0-alpha1/jobs/"))
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeSidecar) publishedTo(topic string) []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []json.RawMessage
	for _, p := range f.published {
		if p.Topic == topic {
			out = append(out, p.Body)
		}
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *memReminderStore, *fakeSidecar) {
	t.Helper()
	sidecar := newFakeSidecar(t)
	client := dapr.NewClient(sidecar.server.URL)
	reminders := newMemReminderStore()
	due := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	tasks := &memTasks{tasks: map[int64]*models.Task{
		10: {ID: 10, UserID: "user-1", Title: "Ship release", DueDate: &due},
	}}
	engine := NewEngine(reminders, tasks, client, events.NewPublisher(client))
	return engine, reminders, sidecar
}

func TestCreateFutureSchedulesJob(t *testing.T) {
	engine, _, sidecar := newTestEngine(t)
	remindAt := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Second)

	reminder, err := engine.Create(context.Background(), "user-1", 10, remindAt)
	require.NoError(t, err)

	assert.Equal(t, models.ReminderPending, reminder.Status)
	require.NotNil(t, reminder.DaprJobName)
	assert.Equal(t, fmt.Sprintf("reminder-%d", reminder.ID), *reminder.DaprJobName)

	job, ok := sidecar.jobs[*reminder.DaprJobName]
	require.True(t, ok, "job must be registered with the sidecar")

	var req struct {
		DueTime string `json:"dueTime"`
		Repeats int    `json:"repeats"`
		Data    JobPayload
	}
	require.NoError(t, json.Unmarshal(job, &req))
	assert.Equal(t, remindAt.Format(time.RFC3339), req.DueTime)
	assert.Equal(t, 0, req.Repeats)
	assert.Equal(t, reminder.ID, req.Data.ReminderID)
	assert.Equal(t, "user-1", req.Data.UserID)

	// Lifecycle event announced.
	lifecycle := sidecar.publishedTo("reminder-events")
	require.Len(t, lifecycle, 1)
	var event events.ReminderEvent
	require.NoError(t, json.Unmarshal(lifecycle[0], &event))
	assert.Equal(t, events.ReminderScheduled, event.EventType)
	assert.Equal(t, "Ship release", event.Title)
}

func TestCreatePastDueFiresSynchronously(t *testing.T) {
	engine, _, sidecar := newTestEngine(t)
	remindAt := time.Now().UTC().Add(-time.Minute)

	reminder, err := engine.Create(context.Background(), "user-1", 10, remindAt)
	require.NoError(t, err)

	assert.Equal(t, models.ReminderSent, reminder.Status)
	require.NotNil(t, reminder.SentAt)
	assert.Nil(t, reminder.DaprJobName)
	assert.Empty(t, sidecar.jobs, "past-due path must not schedule a job")

	published := sidecar.publishedTo("reminder-events")
	require.Len(t, published, 1)
	var event events.ReminderEvent
	require.NoError(t, json.Unmarshal(published[0], &event))
	assert.Equal(t, events.ReminderDue, event.EventType)
	assert.Equal(t, reminder.ID, event.ReminderID)
}

func TestCreatePastDuePublishFailureMarksFailed(t *testing.T) {
	engine, reminders, sidecar := newTestEngine(t)
	sidecar.failPub = true

	_, err := engine.Create(context.Background(), "user-1", 10, time.Now().UTC().Add(-time.Minute))
	require.Error(t, err)

	stored, err := reminders.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.ReminderFailed, stored.Status)
}

func TestCreateDuplicatePendingConflicts(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	remindAt := time.Now().UTC().Add(time.Hour)

	_, err := engine.Create(context.Background(), "user-1", 10, remindAt)
	require.NoError(t, err)

	_, err = engine.Create(context.Background(), "user-1", 10, remindAt.Add(time.Hour))
	assert.ErrorIs(t, err, models.ErrAlreadyExists)
}

func TestCreateUnknownTask(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	_, err := engine.Create(context.Background(), "user-1", 999, time.Now().UTC().Add(time.Hour))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateSchedulingFailureLeavesDormant(t *testing.T) {
	engine, reminders, sidecar := newTestEngine(t)
	sidecar.failJobs = true

	reminder, err := engine.Create(context.Background(), "user-1", 10, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err, "a job scheduling failure must not fail the create")

	assert.Equal(t, models.ReminderPending, reminder.Status)
	assert.Nil(t, reminder.DaprJobName)

	stored, err := reminders.GetByID(context.Background(), reminder.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReminderPending, stored.Status)
	assert.Nil(t, stored.DaprJobName)
}

func TestUpdatePastTimeRejected(t *testing.T) {
	engine, _, sidecar := newTestEngine(t)
	reminder, err := engine.Create(context.Background(), "user-1", 10, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)

	_, err = engine.Update(context.Background(), "user-1", reminder.ID, time.Now().UTC().Add(-time.Minute))
	assert.True(t, models.IsValidationError(err))
	assert.Empty(t, sidecar.deleted, "rejected update must not touch the existing job")
}

func TestUpdateReschedules(t *testing.T) {
	engine, _, sidecar := newTestEngine(t)
	reminder, err := engine.Create(context.Background(), "user-1", 10, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	oldJob := *reminder.DaprJobName

	newAt := time.Now().UTC().Add(3 * time.Hour).Truncate(time.Second)
	updated, err := engine.Update(context.Background(), "user-1", reminder.ID, newAt)
	require.NoError(t, err)

	assert.Equal(t, newAt, updated.RemindAt)
	assert.Contains(t, sidecar.deleted, oldJob)
	_, ok := sidecar.jobs[JobName(reminder.ID)]
	assert.True(t, ok)
}

func TestUpdateResolvedReminderRejected(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	reminder, err := engine.Create(context.Background(), "user-1", 10, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, models.ReminderSent, reminder.Status)

	_, err = engine.Update(context.Background(), "user-1", reminder.ID, time.Now().UTC().Add(time.Hour))
	assert.ErrorIs(t, err, models.ErrNotPending)
}

func TestCancelDeletesJobAndRow(t *testing.T) {
	engine, reminders, sidecar := newTestEngine(t)
	reminder, err := engine.Create(context.Background(), "user-1", 10, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, engine.Cancel(context.Background(), "user-1", reminder.ID))

	assert.Contains(t, sidecar.deleted, JobName(reminder.ID))
	_, err = reminders.GetByID(context.Background(), reminder.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	lifecycle := sidecar.publishedTo("reminder-events")
	var last events.ReminderEvent
	require.NoError(t, json.Unmarshal(lifecycle[len(lifecycle)-1], &last))
	assert.Equal(t, events.ReminderCancelled, last.EventType)
}

func TestHandleTriggerFiresPending(t *testing.T) {
	engine, reminders, sidecar := newTestEngine(t)
	reminder, err := engine.Create(context.Background(), "user-1", 10, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)

	err = engine.HandleTrigger(context.Background(), JobPayload{
		ReminderID: reminder.ID, TaskID: 10, UserID: "user-1",
	})
	require.NoError(t, err)

	stored, err := reminders.GetByID(context.Background(), reminder.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReminderSent, stored.Status)

	var due int
	for _, body := range sidecar.publishedTo("reminder-events") {
		var event events.ReminderEvent
		require.NoError(t, json.Unmarshal(body, &event))
		if event.EventType == events.ReminderDue {
			due++
		}
	}
	assert.Equal(t, 1, due)
}

func TestHandleTriggerMissingReminderSkips(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	err := engine.HandleTrigger(context.Background(), JobPayload{ReminderID: 42})
	assert.NoError(t, err)
}

func TestHandleTriggerResolvedReminderSkips(t *testing.T) {
	engine, _, sidecar := newTestEngine(t)
	reminder, err := engine.Create(context.Background(), "user-1", 10, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	before := len(sidecar.publishedTo("reminder-events"))

	err = engine.HandleTrigger(context.Background(), JobPayload{
		ReminderID: reminder.ID, TaskID: 10, UserID: "user-1",
	})
	require.NoError(t, err)
	assert.Len(t, sidecar.publishedTo("reminder-events"), before, "resolved reminder must not fire again")
}

func TestListUpcomingHourBounds(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	for _, hours := range []int{0, 169, -5} {
		t.Run(fmt.Sprintf("hours=%d", hours), func(t *testing.T) {
			_, err := engine.ListUpcoming(context.Background(), "user-1", hours)
			assert.True(t, models.IsValidationError(err))
		})
	}

	for _, hours := range []int{1, 168} {
		t.Run(fmt.Sprintf("hours=%d", hours), func(t *testing.T) {
			_, err := engine.ListUpcoming(context.Background(), "user-1", hours)
			assert.NoError(t, err)
		})
	}
}
