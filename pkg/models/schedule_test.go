package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseSchedule(scheduleType ScheduleType) *ScheduledWorkflow {
	return &ScheduledWorkflow{
		ID:           "sched-1",
		WorkflowID:   "wf-1",
		NodeID:       "node-1",
		ScheduleType: scheduleType,
		Enabled:      true,
	}
}

func TestNextOccurrenceDailyAfterTargetTime(t *testing.T) {
	schedule := baseSchedule(ScheduleTypeDaily)
	schedule.Hour = 9
	schedule.Minute = 0

	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	next, err := schedule.NextOccurrence(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceDailyBeforeTargetTime(t *testing.T) {
	schedule := baseSchedule(ScheduleTypeDaily)
	schedule.Hour = 9
	schedule.Minute = 0

	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	next, err := schedule.NextOccurrence(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceDailyExactlyAtTargetTime(t *testing.T) {
	schedule := baseSchedule(ScheduleTypeDaily)
	schedule.Hour = 9

	// Not strictly after now, so roll to tomorrow.
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	next, err := schedule.NextOccurrence(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceInterval(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value int
		unit  IntervalUnit
		want  time.Time
	}{
		{"minutes", 30, IntervalUnitMinutes, now.Add(30 * time.Minute)},
		{"hours", 2, IntervalUnitHours, now.Add(2 * time.Hour)},
		{"days", 3, IntervalUnitDays, now.AddDate(0, 0, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schedule := baseSchedule(ScheduleTypeInterval)
			schedule.IntervalValue = tt.value
			schedule.IntervalUnit = tt.unit

			next, err := schedule.NextOccurrence(now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, next)
		})
	}
}

func TestNextOccurrenceIntervalRejectsNonPositiveValue(t *testing.T) {
	schedule := baseSchedule(ScheduleTypeInterval)
	schedule.IntervalValue = 0
	schedule.IntervalUnit = IntervalUnitMinutes

	_, err := schedule.NextOccurrence(time.Now())
	require.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestNextOccurrenceWeekly(t *testing.T) {
	schedule := baseSchedule(ScheduleTypeWeekly)
	schedule.Hour = 9
	schedule.DaysOfWeek = []int{1, 3} // Monday, Wednesday

	// 2024-01-02 is a Tuesday; next match is Wednesday the 3rd.
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)

	next, err := schedule.NextOccurrence(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceWeeklySameDayLaterTime(t *testing.T) {
	schedule := baseSchedule(ScheduleTypeWeekly)
	schedule.Hour = 18
	schedule.DaysOfWeek = []int{2} // Tuesday

	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC) // Tuesday noon

	next, err := schedule.NextOccurrence(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 18, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceWeeklyWrapsToNextWeek(t *testing.T) {
	schedule := baseSchedule(ScheduleTypeWeekly)
	schedule.Hour = 9
	schedule.DaysOfWeek = []int{2} // Tuesday

	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC) // Tuesday after 9:00

	next, err := schedule.NextOccurrence(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceWeeklyRequiresDays(t *testing.T) {
	schedule := baseSchedule(ScheduleTypeWeekly)

	_, err := schedule.NextOccurrence(time.Now())
	require.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestNextOccurrenceMonthly(t *testing.T) {
	schedule := baseSchedule(ScheduleTypeMonthly)
	schedule.DayOfMonth = 15
	schedule.Hour = 9

	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	next, err := schedule.NextOccurrence(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceMonthlyClampsToLastDay(t *testing.T) {
	schedule := baseSchedule(ScheduleTypeMonthly)
	schedule.DayOfMonth = 31
	schedule.Hour = 9

	// February 2024 has 29 days.
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	next, err := schedule.NextOccurrence(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceMonthlyRollsToNextMonth(t *testing.T) {
	schedule := baseSchedule(ScheduleTypeMonthly)
	schedule.DayOfMonth = 5
	schedule.Hour = 9

	now := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)

	next, err := schedule.NextOccurrence(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 5, 9, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceCron(t *testing.T) {
	schedule := baseSchedule(ScheduleTypeCron)
	schedule.CronExpression = "30 14 * * *"

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	next, err := schedule.NextOccurrence(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 14, 30, 0, 0, time.UTC), next)
}

func TestNextOccurrenceCronInvalidExpression(t *testing.T) {
	schedule := baseSchedule(ScheduleTypeCron)
	schedule.CronExpression = "not a cron"

	_, err := schedule.NextOccurrence(time.Now())
	require.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestExpired(t *testing.T) {
	endDate := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	schedule := baseSchedule(ScheduleTypeDaily)
	schedule.EndDate = &endDate

	assert.False(t, schedule.Expired(endDate))
	assert.True(t, schedule.Expired(endDate.Add(time.Second)))

	schedule.EndDate = nil
	assert.False(t, schedule.Expired(endDate.AddDate(10, 0, 0)))
}

func TestValidate(t *testing.T) {
	valid := baseSchedule(ScheduleTypeInterval)
	valid.IntervalValue = 5
	valid.IntervalUnit = IntervalUnitMinutes
	require.NoError(t, valid.Validate())

	missing := baseSchedule(ScheduleTypeInterval)
	missing.ID = ""
	require.ErrorIs(t, missing.Validate(), ErrInvalidSchedule)

	badHour := baseSchedule(ScheduleTypeDaily)
	badHour.Hour = 24
	require.ErrorIs(t, badHour.Validate(), ErrInvalidSchedule)

	badDay := baseSchedule(ScheduleTypeWeekly)
	badDay.DaysOfWeek = []int{7}
	require.ErrorIs(t, badDay.Validate(), ErrInvalidSchedule)

	badType := baseSchedule(ScheduleType("yearly"))
	require.ErrorIs(t, badType.Validate(), ErrInvalidSchedule)
}
