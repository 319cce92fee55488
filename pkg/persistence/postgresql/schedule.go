package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
)

// ScheduleRepository stores recurring schedule state.
type ScheduleRepository struct {
	db *sql.DB
}

const scheduleColumns = `id, workflow_id, node_id, schedule_type, timezone, interval_value, interval_unit,
	hour, minute, days_of_week, day_of_month, cron_expression, enabled,
	next_run_at, last_run_at, last_execution_id, end_date, created_at, updated_at`

func (r *ScheduleRepository) GetAll(ctx context.Context) ([]*models.ScheduledWorkflow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY id`)
	if err != nil {
		return nil, persistence.NewStorageError("GetAll", "schedule", "", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*models.ScheduledWorkflow, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)

	schedule, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewStorageError("GetByID", "schedule", id, persistence.ErrScheduleNotFound)
	}

	if err != nil {
		return nil, persistence.NewStorageError("GetByID", "schedule", id, err)
	}

	return schedule, nil
}

func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.ScheduledWorkflow) error {
	daysOfWeek, err := json.Marshal(schedule.DaysOfWeek)
	if err != nil {
		return persistence.NewStorageError("Save", "schedule", schedule.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schedules (id, workflow_id, node_id, schedule_type, timezone, interval_value, interval_unit,
			hour, minute, days_of_week, day_of_month, cron_expression, enabled,
			next_run_at, last_run_at, last_execution_id, end_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			schedule_type = EXCLUDED.schedule_type,
			timezone = EXCLUDED.timezone,
			interval_value = EXCLUDED.interval_value,
			interval_unit = EXCLUDED.interval_unit,
			hour = EXCLUDED.hour,
			minute = EXCLUDED.minute,
			days_of_week = EXCLUDED.days_of_week,
			day_of_month = EXCLUDED.day_of_month,
			cron_expression = EXCLUDED.cron_expression,
			enabled = EXCLUDED.enabled,
			next_run_at = EXCLUDED.next_run_at,
			last_run_at = EXCLUDED.last_run_at,
			last_execution_id = EXCLUDED.last_execution_id,
			end_date = EXCLUDED.end_date,
			updated_at = EXCLUDED.updated_at`,
		schedule.ID, schedule.WorkflowID, schedule.NodeID, schedule.ScheduleType, schedule.Timezone,
		schedule.IntervalValue, schedule.IntervalUnit, schedule.Hour, schedule.Minute,
		daysOfWeek, schedule.DayOfMonth, schedule.CronExpression, schedule.Enabled,
		schedule.NextRunAt, schedule.LastRunAt, schedule.LastExecutionID, schedule.EndDate,
		schedule.CreatedAt, schedule.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStorageError("Save", "schedule", schedule.ID, err)
	}

	return nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return persistence.NewStorageError("Delete", "schedule", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStorageError("Delete", "schedule", id, err)
	}

	if affected == 0 {
		return persistence.NewStorageError("Delete", "schedule", id, persistence.ErrScheduleNotFound)
	}

	return nil
}

func (r *ScheduleRepository) DueSchedules(ctx context.Context, at time.Time) ([]*models.ScheduledWorkflow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE enabled AND next_run_at IS NOT NULL AND next_run_at <= $1 ORDER BY next_run_at`,
		at,
	)
	if err != nil {
		return nil, persistence.NewStorageError("DueSchedules", "schedule", "", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

func collectSchedules(rows *sql.Rows) ([]*models.ScheduledWorkflow, error) {
	var schedules []*models.ScheduledWorkflow

	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, persistence.NewStorageError("scan", "schedule", "", err)
		}

		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStorageError("scan", "schedule", "", err)
	}

	return schedules, nil
}

func scanSchedule(row rowScanner) (*models.ScheduledWorkflow, error) {
	var (
		schedule   models.ScheduledWorkflow
		daysOfWeek []byte
	)

	err := row.Scan(
		&schedule.ID, &schedule.WorkflowID, &schedule.NodeID, &schedule.ScheduleType, &schedule.Timezone,
		&schedule.IntervalValue, &schedule.IntervalUnit, &schedule.Hour, &schedule.Minute,
		&daysOfWeek, &schedule.DayOfMonth, &schedule.CronExpression, &schedule.Enabled,
		&schedule.NextRunAt, &schedule.LastRunAt, &schedule.LastExecutionID, &schedule.EndDate,
		&schedule.CreatedAt, &schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(daysOfWeek) > 0 {
		if err := json.Unmarshal(daysOfWeek, &schedule.DaysOfWeek); err != nil {
			return nil, err
		}
	}

	return &schedule, nil
}
