package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/taskhive/taskhive/pkg/agent"
	"github.com/taskhive/taskhive/pkg/models"
)

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *models.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, models.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, models.ErrAlreadyExists) {
		return echo.NewHTTPError(http.StatusConflict, "resource already exists")
	}
	if errors.Is(err, models.ErrNotPending) {
		return echo.NewHTTPError(http.StatusConflict, "reminder is no longer pending")
	}

	var agentErr *agent.Error
	if errors.As(err, &agentErr) {
		return echo.NewHTTPError(agentErr.Code.HTTPStatus(), map[string]string{
			"message": agentErr.Message,
			"code":    string(agentErr.Code),
		})
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
