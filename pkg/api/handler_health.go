package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/taskhive/taskhive/pkg/database"
	"github.com/taskhive/taskhive/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// HealthCheck is a single component entry in the health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Service string                 `json:"service"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// SidecarHealth probes the Dapr sidecar. Implemented by dapr.Client.
type SidecarHealth interface {
	Healthz(ctx context.Context) error
}

// healthHandler handles GET /health.
// The database is the only hard dependency: without it every request
// fails, so a dead database reports unhealthy with 503. A missing
// sidecar only degrades event publishing and reminder scheduling, so it
// reports degraded with 200: restart loops against a slow sidecar help
// nobody.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if s.db != nil {
		if _, err := database.Health(reqCtx, s.db.DB()); err != nil {
			status = healthStatusUnhealthy
			checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["database"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	if s.sidecar != nil {
		if err := s.sidecar.Healthz(reqCtx); err != nil {
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			checks["sidecar"] = HealthCheck{Status: healthStatusDegraded, Message: err.Error()}
		} else {
			checks["sidecar"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Service: version.AppName,
		Version: version.GitCommit,
		Checks:  checks,
	})
}
