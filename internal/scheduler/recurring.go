package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var recurrenceParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateRecurrence parses a standard cron expression (seconds optional),
// returning an error if it is malformed. Reminders themselves are one-shot
// (spec §4.6), but a recurrence string accompanying a ReminderDetails
// (e.g. "remind me every Monday at 9am") is validated through this path
// before NextOccurrence computes the next one-shot fire_at from it.
func ValidateRecurrence(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return fmt.Errorf("recurrence expression is required")
	}
	if _, err := recurrenceParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid recurrence expression %q: %w", expr, err)
	}
	return nil
}

// NextOccurrence returns the next instant after `after` that expr selects.
// The scheduler only ever holds one-shot reminders; a recurring source
// re-derives and re-Schedules the next occurrence once the previous one
// fires successfully, rather than the scheduler tracking recurrence state
// itself.
func NextOccurrence(expr string, after time.Time) (time.Time, error) {
	schedule, err := recurrenceParser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse recurrence expression %q: %w", expr, err)
	}
	next := schedule.Next(after)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("recurrence expression %q has no future occurrence", expr)
	}
	return next, nil
}
