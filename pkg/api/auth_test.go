package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	subjects map[string]string
}

func (v *stubVerifier) VerifySubject(_ context.Context, token string) (string, error) {
	if subject, ok := v.subjects[token]; ok {
		return subject, nil
	}
	return "", errors.New("token signature mismatch")
}

func authTestEcho(verifier SubjectVerifier) *echo.Echo {
	e := echo.New()
	e.GET("/whoami", func(c *echo.Context) error {
		return c.String(http.StatusOK, currentUser(c))
	}, requireUser(verifier))
	return e
}

func TestRequireUser(t *testing.T) {
	verifier := &stubVerifier{subjects: map[string]string{"good-token": "alice"}}
	e := authTestEcho(verifier)

	t.Run("valid bearer token resolves subject", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", rec.Body.String())
	})

	t.Run("invalid bearer token is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer forged")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token does not fall through to header identity", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer forged")
		req.Header.Set("X-User-ID", "mallory")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("sidecar invocation uses X-User-ID over loopback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("X-User-ID", "bob")
		req.RemoteAddr = "127.0.0.1:52044"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "bob", rec.Body.String())
	})

	t.Run("X-User-ID from a remote peer is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("X-User-ID", "mallory")
		req.RemoteAddr = "10.0.4.7:40112"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("no credentials is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
