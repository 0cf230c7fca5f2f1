// Package recurrence computes next occurrences for recurring tasks.
//
// Patterns: daily, weekly, monthly, yearly, each with an optional
// {"every": N} interval multiplier in the task's recurrence data.
// Calendar arithmetic clamps instead of overflowing: monthly from Jan 31
// lands on Feb 28 (29 in a leap year), yearly from Feb 29 lands on Feb 28.
package recurrence

import (
	"fmt"
	"time"

	"github.com/taskhive/taskhive/pkg/models"
)

// Interval extracts the {"every": N} multiplier from recurrence data.
// Missing data means 1; N must be a positive integer.
func Interval(data map[string]any) (int, error) {
	if data == nil {
		return 1, nil
	}
	raw, ok := data["every"]
	if !ok {
		return 1, nil
	}

	var n int
	switch v := raw.(type) {
	case int:
		n = v
	case float64:
		// JSON numbers decode as float64; reject fractional values.
		if v != float64(int(v)) {
			return 0, models.NewValidationError("recurrence_data", "'every' must be a positive integer")
		}
		n = int(v)
	default:
		return 0, models.NewValidationError("recurrence_data", "'every' must be a positive integer")
	}

	if n < 1 {
		return 0, models.NewValidationError("recurrence_data", "'every' must be a positive integer")
	}
	return n, nil
}

// Next computes the occurrence after current for the given pattern and
// recurrence data. current is naive UTC.
func Next(current time.Time, pattern string, data map[string]any) (time.Time, error) {
	if !models.ValidRecurrencePattern(pattern) {
		return time.Time{}, models.NewValidationError("recurrence_pattern",
			fmt.Sprintf("invalid pattern %q: must be one of daily, weekly, monthly, yearly", pattern))
	}

	interval, err := Interval(data)
	if err != nil {
		return time.Time{}, err
	}

	switch pattern {
	case models.PatternDaily:
		return current.AddDate(0, 0, interval), nil
	case models.PatternWeekly:
		return current.AddDate(0, 0, 7*interval), nil
	case models.PatternMonthly:
		return addMonthsClamped(current, interval), nil
	default: // yearly
		return addMonthsClamped(current, 12*interval), nil
	}
}

// NextFrom picks the anchor for a task's next occurrence: the due date when
// set, otherwise now.
func NextFrom(task *models.Task, now time.Time) (time.Time, error) {
	if task.RecurrencePattern == nil {
		return time.Time{}, models.NewValidationError("recurrence_pattern", "task is not recurring")
	}
	anchor := now
	if task.DueDate != nil {
		anchor = *task.DueDate
	}
	return Next(anchor, *task.RecurrencePattern, task.RecurrenceData)
}

// addMonthsClamped advances by whole months, clamping the day to the target
// month's length. time.AddDate would overflow Jan 31 + 1 month into Mar 3.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	target := time.Date(year, month+time.Month(months), 1,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())

	if last := daysInMonth(target.Year(), target.Month()); day > last {
		day = last
	}
	return target.AddDate(0, 0, day-1)
}

// daysInMonth returns the number of days in the given month.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
