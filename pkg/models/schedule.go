package models

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleType selects the recurrence rule of a scheduled workflow.
type ScheduleType string

const (
	ScheduleTypeInterval ScheduleType = "interval"
	ScheduleTypeDaily    ScheduleType = "daily"
	ScheduleTypeWeekly   ScheduleType = "weekly"
	ScheduleTypeMonthly  ScheduleType = "monthly"

	// ScheduleTypeCron uses standard 5-field cron expressions
	// (minute hour day-of-month month day-of-week), parsed with robfig/cron.
	ScheduleTypeCron ScheduleType = "cron"
)

// IntervalUnit is the unit of an interval schedule.
type IntervalUnit string

const (
	IntervalUnitMinutes IntervalUnit = "minutes"
	IntervalUnitHours   IntervalUnit = "hours"
	IntervalUnitDays    IntervalUnit = "days"
)

var (
	// ErrInvalidSchedule is returned when schedule validation fails.
	ErrInvalidSchedule = errors.New("invalid schedule configuration")

	// ErrScheduleExpired is returned when the next occurrence would exceed
	// the schedule's end date.
	ErrScheduleExpired = errors.New("schedule end date reached")
)

// cronParser accepts the standard 5-field cron format.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ScheduledWorkflow is the persisted state of a recurring schedule attached
// to a workflow's schedule trigger node. The schedule runner mutates it after
// every firing: NextRunAt is recomputed, LastRunAt stamped, and Enabled is
// flipped to false once NextRunAt would exceed EndDate, terminating the
// self-chain without deleting the record.
type ScheduledWorkflow struct {
	ID             string       `json:"id"          validate:"required"`
	WorkflowID     string       `json:"workflow_id" validate:"required"`
	NodeID         string       `json:"node_id"     validate:"required"`
	ScheduleType   ScheduleType `json:"schedule_type" validate:"required"`
	Timezone       string       `json:"timezone,omitempty"`
	IntervalValue  int          `json:"interval_value,omitempty"`
	IntervalUnit   IntervalUnit `json:"interval_unit,omitempty"`
	Hour           int          `json:"hour,omitempty"`
	Minute         int          `json:"minute,omitempty"`
	DaysOfWeek     []int        `json:"days_of_week,omitempty"` // 0 = Sunday
	DayOfMonth     int          `json:"day_of_month,omitempty"`
	CronExpression string       `json:"cron_expression,omitempty"`
	Enabled        bool         `json:"enabled"`
	NextRunAt      *time.Time   `json:"next_run_at,omitempty"`
	LastRunAt      *time.Time   `json:"last_run_at,omitempty"`
	LastExecutionID string      `json:"last_execution_id,omitempty"`
	EndDate        *time.Time   `json:"end_date,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// NextOccurrence computes the next firing instant strictly derived from now
// and the recurrence rule. Hour and minute are interpreted in now's location;
// localization is the caller's concern.
func (s *ScheduledWorkflow) NextOccurrence(now time.Time) (time.Time, error) {
	switch s.ScheduleType {
	case ScheduleTypeInterval:
		return s.nextInterval(now)
	case ScheduleTypeDaily:
		return s.nextDaily(now), nil
	case ScheduleTypeWeekly:
		return s.nextWeekly(now)
	case ScheduleTypeMonthly:
		return s.nextMonthly(now), nil
	case ScheduleTypeCron:
		return s.nextCron(now)
	default:
		return time.Time{}, fmt.Errorf("%w: unknown schedule type %q", ErrInvalidSchedule, s.ScheduleType)
	}
}

func (s *ScheduledWorkflow) nextInterval(now time.Time) (time.Time, error) {
	if s.IntervalValue <= 0 {
		return time.Time{}, fmt.Errorf("%w: interval value must be positive", ErrInvalidSchedule)
	}

	switch s.IntervalUnit {
	case IntervalUnitMinutes:
		return now.Add(time.Duration(s.IntervalValue) * time.Minute), nil
	case IntervalUnitHours:
		return now.Add(time.Duration(s.IntervalValue) * time.Hour), nil
	case IntervalUnitDays:
		return now.AddDate(0, 0, s.IntervalValue), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown interval unit %q", ErrInvalidSchedule, s.IntervalUnit)
	}
}

func (s *ScheduledWorkflow) nextDaily(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.Hour, s.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}

	return next
}

func (s *ScheduledWorkflow) nextWeekly(now time.Time) (time.Time, error) {
	if len(s.DaysOfWeek) == 0 {
		return time.Time{}, fmt.Errorf("%w: weekly schedule requires days of week", ErrInvalidSchedule)
	}

	for offset := range 8 {
		day := now.AddDate(0, 0, offset)
		if !slices.Contains(s.DaysOfWeek, int(day.Weekday())) {
			continue
		}

		candidate := time.Date(day.Year(), day.Month(), day.Day(), s.Hour, s.Minute, 0, 0, now.Location())
		if candidate.After(now) {
			return candidate, nil
		}
	}

	// All configured days already passed this week at the target time.
	fallback := now.AddDate(0, 0, 7)

	return time.Date(fallback.Year(), fallback.Month(), fallback.Day(), s.Hour, s.Minute, 0, 0, now.Location()), nil
}

func (s *ScheduledWorkflow) nextMonthly(now time.Time) time.Time {
	next := monthlyInstant(now.Year(), now.Month(), s.DayOfMonth, s.Hour, s.Minute, now.Location())
	if !next.After(now) {
		year, month := now.Year(), now.Month()+1
		next = monthlyInstant(year, month, s.DayOfMonth, s.Hour, s.Minute, now.Location())
	}

	return next
}

func (s *ScheduledWorkflow) nextCron(now time.Time) (time.Time, error) {
	expr, err := cronParser.Parse(s.CronExpression)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}

	return expr.Next(now), nil
}

// monthlyInstant clamps day to the last day of the target month.
func monthlyInstant(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if day > last {
		day = last
	}

	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

// Expired reports whether the given occurrence exceeds the schedule's end date.
func (s *ScheduledWorkflow) Expired(next time.Time) bool {
	return s.EndDate != nil && next.After(*s.EndDate)
}

// Validate checks the schedule's recurrence configuration.
func (s *ScheduledWorkflow) Validate() error {
	if s.ID == "" || s.WorkflowID == "" || s.NodeID == "" {
		return ErrInvalidSchedule
	}

	switch s.ScheduleType {
	case ScheduleTypeInterval:
		if s.IntervalValue <= 0 {
			return ErrInvalidSchedule
		}

		switch s.IntervalUnit {
		case IntervalUnitMinutes, IntervalUnitHours, IntervalUnitDays:
		default:
			return ErrInvalidSchedule
		}
	case ScheduleTypeDaily, ScheduleTypeMonthly:
		if s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 {
			return ErrInvalidSchedule
		}
	case ScheduleTypeWeekly:
		if len(s.DaysOfWeek) == 0 {
			return ErrInvalidSchedule
		}

		for _, day := range s.DaysOfWeek {
			if day < 0 || day > 6 {
				return ErrInvalidSchedule
			}
		}
	case ScheduleTypeCron:
		if _, err := cronParser.Parse(s.CronExpression); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
	default:
		return ErrInvalidSchedule
	}

	return nil
}
