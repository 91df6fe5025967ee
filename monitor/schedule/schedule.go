// Package schedule owns recurring monitoring schedules: recurrence
// computation, activation lifecycle, and failure-based auto-disable.
package schedule

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vigilhq/vigil/errors"
)

// Kind identifies the recurrence rule of a schedule. Exactly one kind is
// set per schedule; each kind has a strict parameter set (see Validate).
type Kind string

const (
	KindManual  Kind = "manual"
	KindHourly  Kind = "hourly"
	KindDaily   Kind = "daily"
	KindWeekly  Kind = "weekly"
	KindMonthly Kind = "monthly"
	KindCustom  Kind = "custom"
)

// AutoDisableThreshold is the number of consecutive failed runs after which
// a schedule is deactivated. Reactivation resets the counter.
const AutoDisableThreshold = 5

// Recurrence is the tagged variant describing when a schedule fires.
// Only the parameters belonging to Kind may be set.
type Recurrence struct {
	Kind         Kind
	MinuteOfHour int          // hourly: fire at this minute of every hour
	HourOfDay    int          // daily/weekly/monthly: fire at this hour
	DayOfWeek    time.Weekday // weekly: fire on this weekday
	DayOfMonth   int          // monthly: fire on this day (clamped to month length)
	Expression   string       // custom: standard 5-field cron expression
}

// Schedule is a recurrence definition over a set of target clients.
type Schedule struct {
	ID                  string
	TenantID            string
	Name                string
	TargetAll           bool     // monitor every client of the tenant
	TargetClientIDs     []string // explicit target set when TargetAll is false
	Recurrence          Recurrence
	Active              bool
	Deleted             bool // soft delete - historical runs keep their reference
	LastRunAt           *time.Time
	NextRunAt           *time.Time
	ConsecutiveFailures int
	LastError           string
	LastErrorAt         *time.Time
	LastRunID           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Validate checks that exactly one recurrence kind is set with a consistent
// parameter set. Returns ErrValidation on any inconsistency.
func (r Recurrence) Validate() error {
	switch r.Kind {
	case KindManual:
		if r.MinuteOfHour != 0 || r.HourOfDay != 0 || r.DayOfWeek != 0 || r.DayOfMonth != 0 || r.Expression != "" {
			return errors.NewValidationError("manual schedules take no recurrence parameters")
		}
	case KindHourly:
		if r.MinuteOfHour < 0 || r.MinuteOfHour > 59 {
			return errors.NewValidationError("hourly schedule requires minute in [0,59], got %d", r.MinuteOfHour)
		}
		if r.HourOfDay != 0 || r.DayOfWeek != 0 || r.DayOfMonth != 0 || r.Expression != "" {
			return errors.NewValidationError("hourly schedules only take minute_of_hour")
		}
	case KindDaily:
		if r.HourOfDay < 0 || r.HourOfDay > 23 {
			return errors.NewValidationError("daily schedule requires hour in [0,23], got %d", r.HourOfDay)
		}
		if r.MinuteOfHour != 0 || r.DayOfWeek != 0 || r.DayOfMonth != 0 || r.Expression != "" {
			return errors.NewValidationError("daily schedules only take hour_of_day")
		}
	case KindWeekly:
		if r.HourOfDay < 0 || r.HourOfDay > 23 {
			return errors.NewValidationError("weekly schedule requires hour in [0,23], got %d", r.HourOfDay)
		}
		if r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday {
			return errors.NewValidationError("weekly schedule requires day of week in [0,6], got %d", r.DayOfWeek)
		}
		if r.MinuteOfHour != 0 || r.DayOfMonth != 0 || r.Expression != "" {
			return errors.NewValidationError("weekly schedules only take hour_of_day and day_of_week")
		}
	case KindMonthly:
		if r.HourOfDay < 0 || r.HourOfDay > 23 {
			return errors.NewValidationError("monthly schedule requires hour in [0,23], got %d", r.HourOfDay)
		}
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return errors.NewValidationError("monthly schedule requires day of month in [1,31], got %d", r.DayOfMonth)
		}
		if r.MinuteOfHour != 0 || r.DayOfWeek != 0 || r.Expression != "" {
			return errors.NewValidationError("monthly schedules only take hour_of_day and day_of_month")
		}
	case KindCustom:
		if r.Expression == "" {
			return errors.NewValidationError("custom schedule requires an expression")
		}
		if _, err := cron.ParseStandard(r.Expression); err != nil {
			return errors.NewValidationError("invalid cron expression %q: %v", r.Expression, err)
		}
		if r.MinuteOfHour != 0 || r.HourOfDay != 0 || r.DayOfWeek != 0 || r.DayOfMonth != 0 {
			return errors.NewValidationError("custom schedules only take an expression")
		}
	default:
		return errors.NewValidationError("unknown recurrence kind %q", r.Kind)
	}
	return nil
}

// NextFire computes the next fire time strictly after now. Deterministic:
// recomputing from the same inputs yields the same result. Manual schedules
// never fire on their own and return the zero time.
// Fire times are kept in UTC: the due query compares stored RFC3339 strings
// lexically, which is only chronological under a single offset.
func (r Recurrence) NextFire(now time.Time) time.Time {
	now = now.UTC()
	switch r.Kind {
	case KindHourly:
		next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), r.MinuteOfHour, 0, 0, now.Location())
		if !next.After(now) {
			next = next.Add(time.Hour)
		}
		return next

	case KindDaily:
		next := time.Date(now.Year(), now.Month(), now.Day(), r.HourOfDay, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next

	case KindWeekly:
		daysAhead := (int(r.DayOfWeek) - int(now.Weekday()) + 7) % 7
		next := time.Date(now.Year(), now.Month(), now.Day(), r.HourOfDay, 0, 0, 0, now.Location()).AddDate(0, 0, daysAhead)
		if !next.After(now) {
			next = next.AddDate(0, 0, 7)
		}
		return next

	case KindMonthly:
		next := monthlyFire(now.Year(), now.Month(), r.DayOfMonth, r.HourOfDay, now.Location())
		if !next.After(now) {
			year, month := now.Year(), now.Month()+1
			next = monthlyFire(year, month, r.DayOfMonth, r.HourOfDay, now.Location())
		}
		return next

	case KindCustom:
		sched, err := cron.ParseStandard(r.Expression)
		if err != nil {
			// Validate() rejects unparseable expressions before storage
			return time.Time{}
		}
		return sched.Next(now)

	default: // KindManual
		return time.Time{}
	}
}

// monthlyFire builds the fire time for a given month, clamping the day to
// the last valid day when the month is short (e.g., 31 -> Feb 28).
func monthlyFire(year int, month time.Month, day, hour int, loc *time.Location) time.Time {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, hour, 0, 0, 0, loc)
}

// Validate checks the whole schedule definition.
func (s *Schedule) Validate() error {
	if s.Name == "" {
		return errors.NewValidationError("schedule requires a name")
	}
	if s.TenantID == "" {
		return errors.NewValidationError("schedule requires a tenant")
	}
	if !s.TargetAll && len(s.TargetClientIDs) == 0 {
		return errors.NewValidationError("schedule requires target clients or target_all")
	}
	return s.Recurrence.Validate()
}
