package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer() *Server {
	verifier := &stubVerifier{subjects: map[string]string{"good-token": "alice"}}
	return NewServer(
		verifier,
		&fakeChat{},
		&fakeTaskAPI{},
		&fakeTags{},
		&fakeConversationAPI{},
		&fakeReminderAPI{},
	)
}

func TestServerRouting(t *testing.T) {
	s := newTestServer()

	t.Run("health is open", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		s.Echo().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("job trigger is open", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/dapr/jobs/trigger", nil)
		rec := httptest.NewRecorder()
		s.Echo().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("api routes require identity", func(t *testing.T) {
		for _, target := range []string{"/api/tasks", "/api/tags", "/api/conversations", "/api/reminders"} {
			req := httptest.NewRequest(http.MethodGet, target, nil)
			rec := httptest.NewRecorder()
			s.Echo().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
		}
	})

	t.Run("api routes accept a verified token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()
		s.Echo().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("security headers are applied everywhere", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		s.Echo().ServeHTTP(rec, req)
		assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	})
}
