// Package persistence provides the data storage abstraction layer for
// workflows, execution records, and schedules.
package persistence

import (
	"context"
	"time"

	"github.com/loomhq/loom/pkg/models"
)

// Persistence is the root storage handle. Implementations expose one
// repository per aggregate; repositories returned from the same handle share
// its underlying connection or directory.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	ScheduleRepository() ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores execution records. CreateOrGet is the idempotent
// entry point: given a record keyed by (TriggerEventID, WorkflowID) it either
// inserts it and reports created=true, or returns the existing record for the
// same key untouched.
type ExecutionRepository interface {
	CreateOrGet(ctx context.Context, record *models.ExecutionRecord) (existing *models.ExecutionRecord, created bool, err error)
	Update(ctx context.Context, record *models.ExecutionRecord) error
	GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error)
	GetByTriggerEvent(ctx context.Context, triggerEventID, workflowID string) (*models.ExecutionRecord, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionRecord, error)

	// MarkFailed records a failed run for the given key even when no record
	// was ever created, without overwriting a record that already finished.
	MarkFailed(ctx context.Context, triggerEventID, workflowID, message string) error
}

// ScheduleRepository stores recurring schedule state.
type ScheduleRepository interface {
	GetAll(ctx context.Context) ([]*models.ScheduledWorkflow, error)
	GetByID(ctx context.Context, id string) (*models.ScheduledWorkflow, error)
	Save(ctx context.Context, schedule *models.ScheduledWorkflow) error
	Delete(ctx context.Context, id string) error

	// DueSchedules returns enabled schedules whose NextRunAt is at or before
	// the given instant. The reconciler uses it to re-arm lost chains.
	DueSchedules(ctx context.Context, at time.Time) ([]*models.ScheduledWorkflow, error)
}
