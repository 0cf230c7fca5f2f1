package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/pkg/agent"
	"github.com/taskhive/taskhive/pkg/models"
)

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectCode int
		expectMsg  string
	}{
		{
			name:       "validation error maps to 400",
			err:        models.NewValidationError("title", "must not be empty"),
			expectCode: http.StatusBadRequest,
			expectMsg:  "must not be empty",
		},
		{
			name:       "wrapped not found maps to 404",
			err:        fmt.Errorf("loading task: %w", models.ErrNotFound),
			expectCode: http.StatusNotFound,
			expectMsg:  "resource not found",
		},
		{
			name:       "already exists maps to 409",
			err:        fmt.Errorf("creating reminder: %w", models.ErrAlreadyExists),
			expectCode: http.StatusConflict,
			expectMsg:  "resource already exists",
		},
		{
			name:       "not pending maps to 409",
			err:        models.ErrNotPending,
			expectCode: http.StatusConflict,
			expectMsg:  "no longer pending",
		},
		{
			name:       "unknown error maps to 500",
			err:        errors.New("something unexpected happened"),
			expectCode: http.StatusInternalServerError,
			expectMsg:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := mapServiceError(tt.err)
			assert.IsType(t, &echo.HTTPError{}, he)
			assert.Equal(t, tt.expectCode, he.Code)
			assert.Contains(t, he.Error(), tt.expectMsg)
		})
	}
}

func TestMapServiceErrorAgentCodes(t *testing.T) {
	tests := []struct {
		name       string
		code       agent.ErrorCode
		expectCode int
	}{
		{"timeout maps to 504", agent.CodeTimeout, http.StatusGatewayTimeout},
		{"model unavailable maps to 503", agent.CodeModelUnavailable, http.StatusServiceUnavailable},
		{"connection error maps to 503", agent.CodeConnectionError, http.StatusServiceUnavailable},
		{"rate limit maps to 500", agent.CodeRateLimit, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := mapServiceError(agent.NewError(tt.code, errors.New("upstream detail")))
			assert.Equal(t, tt.expectCode, he.Code)

			body, ok := he.Message.(map[string]string)
			require.True(t, ok, "agent errors carry a structured body")
			assert.Equal(t, string(tt.code), body["code"])
			assert.NotContains(t, body["message"], "upstream detail")
		})
	}
}
