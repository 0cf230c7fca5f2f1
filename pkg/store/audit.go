package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskhive/taskhive/pkg/models"
)

// AuditStore persists append-only audit rows. Inserts are idempotent on
// event_id so redelivered events do not duplicate rows.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore creates an AuditStore.
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Insert writes one audit row. A duplicate event_id is a no-op; the bool
// result reports whether a row was actually written.
func (s *AuditStore) Insert(ctx context.Context, log *models.AuditLog) (bool, error) {
	var detailsJSON []byte
	if log.Details != nil {
		raw, err := json.Marshal(log.Details)
		if err != nil {
			return false, fmt.Errorf("failed to encode audit details: %w", err)
		}
		detailsJSON = raw
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (event_id, user_id, action, resource_type, resource_id,
			request_id, client_ip, user_agent, details, status, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (event_id) DO NOTHING`,
		log.EventID, log.UserID, log.Action, log.ResourceType, log.ResourceID,
		log.RequestID, log.ClientIP, log.UserAgent, detailsJSON, log.Status,
		log.ErrorMessage, utc(time.Now()))
	if err != nil {
		return false, fmt.Errorf("failed to insert audit log: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListByUser returns a user's most recent audit rows.
func (s *AuditStore) ListByUser(ctx context.Context, userID string, limit int) ([]*models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, user_id, action, resource_type, resource_id,
			request_id, client_ip, user_agent, details, status, error_message, created_at
		FROM audit_logs WHERE user_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []*models.AuditLog
	for rows.Next() {
		var log models.AuditLog
		var detailsJSON []byte
		if err := rows.Scan(&log.ID, &log.EventID, &log.UserID, &log.Action,
			&log.ResourceType, &log.ResourceID, &log.RequestID, &log.ClientIP,
			&log.UserAgent, &detailsJSON, &log.Status, &log.ErrorMessage, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &log.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details for row %d: %w", log.ID, err)
			}
		}
		log.CreatedAt = asUTC(log.CreatedAt)
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}

// CountByAction returns per-action row counts for the stats endpoint.
func (s *AuditStore) CountByAction(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action, COUNT(*) FROM audit_logs GROUP BY action`)
	if err != nil {
		return nil, fmt.Errorf("failed to count audit logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int64)
	for rows.Next() {
		var action string
		var count int64
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("failed to scan audit count: %w", err)
		}
		counts[action] = count
	}
	return counts, rows.Err()
}
