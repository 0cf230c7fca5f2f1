package consumers

import (
	"context"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/taskhive/taskhive/pkg/models"
)

// AuditReader is the query surface of the audit store. Implemented by
// store.AuditStore.
type AuditReader interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.AuditLog, error)
	CountByAction(ctx context.Context) (map[string]int64, error)
}

// AuditQuery serves the audit-service read endpoints. The service sits on
// the internal network behind the sidecar; callers pass the user id as a
// query parameter.
type AuditQuery struct {
	store AuditReader
}

// NewAuditQuery creates an AuditQuery.
func NewAuditQuery(store AuditReader) *AuditQuery {
	return &AuditQuery{store: store}
}

// LogsHandler handles GET /audit/logs?user_id=&limit=.
func (q *AuditQuery) LogsHandler(c *echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	logs, err := q.store.ListByUser(c.Request().Context(), userID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load audit logs")
	}
	return c.JSON(http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}

// StatsHandler handles GET /audit/stats: row counts per action.
func (q *AuditQuery) StatsHandler(c *echo.Context) error {
	counts, err := q.store.CountByAction(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load audit stats")
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	return c.JSON(http.StatusOK, map[string]any{"actions": counts, "total": total})
}
