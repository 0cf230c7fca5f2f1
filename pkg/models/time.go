package models

import (
	"fmt"
	"time"
)

// Accepted wire formats for datetime inputs. Offsets are honored during
// parsing; storage and comparisons always happen in naive UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999", // no offset, interpreted as UTC
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses an ISO 8601 timestamp, converting any offset to UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q: expected ISO 8601", s)
}

// FormatTime renders a timestamp as RFC 3339 with a Z suffix.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// FormatTimePtr renders an optional timestamp, returning nil for nil input.
func FormatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatTime(*t)
	return &s
}
