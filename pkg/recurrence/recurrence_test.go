package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/pkg/models"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestNext(t *testing.T) {
	tests := []struct {
		name    string
		current time.Time
		pattern string
		data    map[string]any
		want    time.Time
	}{
		{
			name:    "daily",
			current: date(2025, time.January, 15, 10, 0),
			pattern: "daily",
			want:    date(2025, time.January, 16, 10, 0),
		},
		{
			name:    "weekly",
			current: date(2025, time.January, 15, 10, 0),
			pattern: "weekly",
			want:    date(2025, time.January, 22, 10, 0),
		},
		{
			name:    "weekly every 2",
			current: date(2025, time.January, 15, 10, 0),
			pattern: "weekly",
			data:    map[string]any{"every": float64(2)},
			want:    date(2025, time.January, 29, 10, 0),
		},
		{
			name:    "monthly clamps Jan 31 to Feb 28",
			current: date(2025, time.January, 31, 9, 30),
			pattern: "monthly",
			want:    date(2025, time.February, 28, 9, 30),
		},
		{
			name:    "monthly clamps Jan 31 to Feb 29 in a leap year",
			current: date(2028, time.January, 31, 9, 30),
			pattern: "monthly",
			want:    date(2028, time.February, 29, 9, 30),
		},
		{
			name:    "monthly keeps day when it fits",
			current: date(2025, time.March, 15, 12, 0),
			pattern: "monthly",
			want:    date(2025, time.April, 15, 12, 0),
		},
		{
			name:    "monthly every 3 across year boundary",
			current: date(2025, time.November, 30, 8, 0),
			pattern: "monthly",
			data:    map[string]any{"every": float64(3)},
			want:    date(2026, time.February, 28, 8, 0),
		},
		{
			name:    "yearly",
			current: date(2025, time.June, 1, 0, 0),
			pattern: "yearly",
			want:    date(2026, time.June, 1, 0, 0),
		},
		{
			name:    "yearly clamps Feb 29 to Feb 28",
			current: date(2028, time.February, 29, 10, 0),
			pattern: "yearly",
			want:    date(2029, time.February, 28, 10, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.current, tt.pattern, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextRejectsInvalidInput(t *testing.T) {
	current := date(2025, time.January, 15, 10, 0)

	t.Run("unknown pattern", func(t *testing.T) {
		_, err := Next(current, "hourly", nil)
		assert.True(t, models.IsValidationError(err))
	})

	t.Run("zero interval", func(t *testing.T) {
		_, err := Next(current, "daily", map[string]any{"every": float64(0)})
		assert.True(t, models.IsValidationError(err))
	})

	t.Run("fractional interval", func(t *testing.T) {
		_, err := Next(current, "daily", map[string]any{"every": 1.5})
		assert.True(t, models.IsValidationError(err))
	})

	t.Run("non-numeric interval", func(t *testing.T) {
		_, err := Next(current, "daily", map[string]any{"every": "two"})
		assert.True(t, models.IsValidationError(err))
	})
}

func TestNextFrom(t *testing.T) {
	pattern := "weekly"
	now := date(2026, time.January, 10, 9, 0)

	t.Run("anchored on due date", func(t *testing.T) {
		due := date(2026, time.January, 15, 10, 0)
		task := &models.Task{DueDate: &due, RecurrencePattern: &pattern}
		got, err := NextFrom(task, now)
		require.NoError(t, err)
		assert.Equal(t, date(2026, time.January, 22, 10, 0), got)
	})

	t.Run("anchored on now without due date", func(t *testing.T) {
		task := &models.Task{RecurrencePattern: &pattern}
		got, err := NextFrom(task, now)
		require.NoError(t, err)
		assert.Equal(t, date(2026, time.January, 17, 9, 0), got)
	})

	t.Run("non-recurring task", func(t *testing.T) {
		_, err := NextFrom(&models.Task{}, now)
		assert.Error(t, err)
	})
}
