package models

import (
	"maps"
	"time"
)

// ExecutionContext is the accumulating key-value state threaded through every
// executor call. Entries written by a node are visible to every node executed
// after it; there is no per-branch isolation, and fan-in merges are
// last-writer-wins.
type ExecutionContext map[string]any

// Clone returns a shallow copy. Executors receive a copy and return a
// replacement, so concurrent runs never share a mutable map.
func (c ExecutionContext) Clone() ExecutionContext {
	clone := make(ExecutionContext, len(c))
	maps.Copy(clone, c)

	return clone
}

// ExecutionStatus is the lifecycle status of a workflow run.
type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "pending"
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
)

// ExecutionRecord is the sole durable artifact of a workflow run. It is
// created idempotently keyed by (TriggerEventID, WorkflowID), updated in
// place as the run progresses, and finalized exactly once with success or
// failed. The engine never deletes it.
type ExecutionRecord struct {
	ID             string           `json:"id"`
	WorkflowID     string           `json:"workflow_id"      validate:"required"`
	TriggerEventID string           `json:"trigger_event_id" validate:"required"`
	Status         ExecutionStatus  `json:"status"`
	Output         ExecutionContext `json:"output,omitempty"`
	Error          string           `json:"error,omitempty"`
	ErrorDetail    string           `json:"error_detail,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}

// Finished reports whether the record has reached a terminal status.
func (r *ExecutionRecord) Finished() bool {
	return r.Status == ExecutionStatusSuccess || r.Status == ExecutionStatusFailed
}
