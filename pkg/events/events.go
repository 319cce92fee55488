// Package events defines event types and structures for workflow lifecycle
// notifications and schedule control signals.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/loomhq/loom/pkg/models"
)

type EventType string

// Topic is the single bus topic all engine events flow through.
const Topic = "loom.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowTriggeredEvent  EventType = "workflow.triggered"
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	NodeStatusEvent         EventType = "node.status"
	ScheduleStartEvent      EventType = "schedule.start"
	ScheduleCancelEvent     EventType = "schedule.cancel"
)

// Well-known trigger payload envelope keys. A trigger event's InitialData
// nests its payload under exactly one of these; the orchestrator uses the
// key to select the active trigger node.
const (
	ScheduleTriggerKey = "scheduleTrigger"
	ManualTriggerKey   = "manualTrigger"
	WebhookTriggerKey  = "webhookTrigger"
)

// TriggerKeys lists the recognized envelope keys in matching order.
var TriggerKeys = []string{ScheduleTriggerKey, ManualTriggerKey, WebhookTriggerKey}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// WorkflowTriggered asks the execution engine to run a workflow. Its event ID
// doubles as the trigger event id keying the execution record, which makes
// run creation idempotent under redelivery.
type WorkflowTriggered struct {
	BaseEvent

	InitialData map[string]any `json:"initial_data,omitempty"`
}

func (w WorkflowTriggered) GetType() EventType {
	return WorkflowTriggeredEvent
}

// ScheduleTriggerPayload is the payload nested under ScheduleTriggerKey.
type ScheduleTriggerPayload struct {
	ScheduleID   string              `json:"scheduleId"`
	NodeID       string              `json:"nodeId"`
	ScheduledAt  time.Time           `json:"scheduledAt"`
	TriggeredAt  time.Time           `json:"triggeredAt"`
	ScheduleType models.ScheduleType `json:"scheduleType"`
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID   string         `json:"execution_id"`
	DurationMs    int64          `json:"duration_ms"`
	NodesExecuted int            `json:"nodes_executed"`
	FinalContext  map[string]any `json:"final_context,omitempty"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id,omitempty"`
	Error       string `json:"error"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

// NodeStatus is the per-node, best-effort status publication consumed by the
// editor's live view.
type NodeStatus struct {
	BaseEvent

	ExecutionID string            `json:"execution_id"`
	NodeID      string            `json:"node_id"`
	Status      models.NodeStatus `json:"status"`
}

func (e NodeStatus) GetType() EventType {
	return NodeStatusEvent
}

// ScheduleStart begins or continues a schedule chain for the given id.
type ScheduleStart struct {
	BaseEvent

	ScheduleID string `json:"schedule_id"`
}

func (e ScheduleStart) GetType() EventType {
	return ScheduleStartEvent
}

// ScheduleCancel aborts a sleeping schedule chain, matched by exact
// schedule id correlation. Firings already in flight complete normally.
type ScheduleCancel struct {
	BaseEvent

	ScheduleID string `json:"schedule_id"`
}

func (e ScheduleCancel) GetType() EventType {
	return ScheduleCancelEvent
}
