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

// ExecutionRepository stores execution records. Idempotent creation rides on
// the unique (trigger_event_id, workflow_id) constraint.
type ExecutionRepository struct {
	db *sql.DB
}

const executionColumns = `id, workflow_id, trigger_event_id, status, output, error, error_detail, started_at, completed_at`

func (r *ExecutionRepository) CreateOrGet(ctx context.Context, record *models.ExecutionRecord) (*models.ExecutionRecord, bool, error) {
	output, err := json.Marshal(record.Output)
	if err != nil {
		return nil, false, persistence.NewStorageError("CreateOrGet", "execution", record.ID, err)
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, trigger_event_id, status, output, error, error_detail, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (trigger_event_id, workflow_id) DO NOTHING`,
		record.ID, record.WorkflowID, record.TriggerEventID, record.Status,
		output, record.Error, record.ErrorDetail, record.StartedAt, record.CompletedAt,
	)
	if err != nil {
		return nil, false, persistence.NewStorageError("CreateOrGet", "execution", record.ID, err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, false, persistence.NewStorageError("CreateOrGet", "execution", record.ID, err)
	}

	if inserted > 0 {
		return record, true, nil
	}

	existing, err := r.GetByTriggerEvent(ctx, record.TriggerEventID, record.WorkflowID)
	if err != nil {
		return nil, false, err
	}

	return existing, false, nil
}

func (r *ExecutionRepository) Update(ctx context.Context, record *models.ExecutionRecord) error {
	output, err := json.Marshal(record.Output)
	if err != nil {
		return persistence.NewStorageError("Update", "execution", record.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE executions SET
			status = $2,
			output = $3,
			error = $4,
			error_detail = $5,
			completed_at = $6
		WHERE id = $1`,
		record.ID, record.Status, output, record.Error, record.ErrorDetail, record.CompletedAt,
	)
	if err != nil {
		return persistence.NewStorageError("Update", "execution", record.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)

	record, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewStorageError("GetByID", "execution", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewStorageError("GetByID", "execution", id, err)
	}

	return record, nil
}

func (r *ExecutionRepository) GetByTriggerEvent(ctx context.Context, triggerEventID, workflowID string) (*models.ExecutionRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE trigger_event_id = $1 AND workflow_id = $2`,
		triggerEventID, workflowID,
	)

	record, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewStorageError("GetByTriggerEvent", "execution", triggerEventID, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewStorageError("GetByTriggerEvent", "execution", triggerEventID, err)
	}

	return record, nil
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE workflow_id = $1 ORDER BY started_at DESC`,
		workflowID,
	)
	if err != nil {
		return nil, persistence.NewStorageError("ListByWorkflow", "execution", workflowID, err)
	}
	defer rows.Close()

	var records []*models.ExecutionRecord

	for rows.Next() {
		record, err := scanExecution(rows)
		if err != nil {
			return nil, persistence.NewStorageError("ListByWorkflow", "execution", workflowID, err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStorageError("ListByWorkflow", "execution", workflowID, err)
	}

	return records, nil
}

// MarkFailed upserts a failed record for the run key. A record that already
// reached a terminal status is left untouched.
func (r *ExecutionRepository) MarkFailed(ctx context.Context, triggerEventID, workflowID, message string) error {
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, trigger_event_id, status, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (trigger_event_id, workflow_id) DO UPDATE SET
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at
		WHERE executions.status NOT IN ($7, $8)`,
		triggerEventID+":"+workflowID, workflowID, triggerEventID,
		models.ExecutionStatusFailed, message, now,
		models.ExecutionStatusSuccess, models.ExecutionStatusFailed,
	)
	if err != nil {
		return persistence.NewStorageError("MarkFailed", "execution", triggerEventID, err)
	}

	return nil
}

func scanExecution(row rowScanner) (*models.ExecutionRecord, error) {
	var (
		record models.ExecutionRecord
		output []byte
	)

	err := row.Scan(
		&record.ID, &record.WorkflowID, &record.TriggerEventID, &record.Status,
		&output, &record.Error, &record.ErrorDetail, &record.StartedAt, &record.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(output) > 0 {
		if err := json.Unmarshal(output, &record.Output); err != nil {
			return nil, err
		}
	}

	return &record, nil
}
