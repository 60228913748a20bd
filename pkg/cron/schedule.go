package cron

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule computes the next due instant after t, and enumerates all
// instants in (start, end]. Both operate in the schedule's configured
// timezone.
type Schedule struct {
	expr cron.Schedule
	loc  *time.Location
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule parses a standard five-field cron expression and binds
// it to the named IANA timezone (empty string means UTC).
func ParseSchedule(expr, timezone string) (Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return Schedule{}, err
	}
	loc := time.UTC
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return Schedule{}, err
		}
	}
	return Schedule{expr: sched, loc: loc}, nil
}

// NextAfter returns the first instant strictly after t that the
// schedule is due.
func (s Schedule) NextAfter(t time.Time) time.Time {
	return s.expr.Next(t.In(s.loc))
}

// Between enumerates every due instant in (start, end], bounded by
// limit to protect against unbounded catch-up windows.
func (s Schedule) Between(start, end time.Time, limit int) []time.Time {
	var out []time.Time
	cursor := start
	for len(out) < limit {
		next := s.NextAfter(cursor)
		if next.After(end) {
			break
		}
		out = append(out, next)
		cursor = next
	}
	return out
}
