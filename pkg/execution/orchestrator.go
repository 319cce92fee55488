// Package execution implements the workflow execution orchestrator: trigger
// selection, frontier-driven branch activation, context threading, per-node
// dispatch, and failure capture.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/events"
	"github.com/loomhq/loom/pkg/graph"
	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/otelhelper"
	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/protocol"
	"github.com/loomhq/loom/pkg/registry"
)

const tracerName = "github.com/loomhq/loom/pkg/execution"

// Orchestrator runs one workflow execution per triggering event. Nodes within
// a run execute strictly sequentially in topological order; the accumulating
// execution context is threaded value-in, value-out through every executor.
type Orchestrator struct {
	logger     *slog.Logger
	workflows  persistence.WorkflowRepository
	executions persistence.ExecutionRepository
	registry   *registry.Registry
	publisher  eventbus.EventPublisher
	status     protocol.StatusPublisher
	tracer     trace.Tracer
	workerID   string
}

func NewOrchestrator(
	logger *slog.Logger,
	store persistence.Persistence,
	reg *registry.Registry,
	publisher eventbus.EventPublisher,
	workerID string,
) *Orchestrator {
	return &Orchestrator{
		logger:     logger.With("module", "orchestrator", "worker_id", workerID),
		workflows:  store.WorkflowRepository(),
		executions: store.ExecutionRepository(),
		registry:   reg,
		publisher:  publisher,
		status:     NewEventStatusPublisher(logger, publisher),
		tracer:     otel.Tracer(tracerName),
		workerID:   workerID,
	}
}

// Execute handles one triggering event end to end and returns the finalized
// execution record. The record is created idempotently keyed by the event id
// and workflow id, so redelivered events of an already-finished run return the
// existing record without re-running any node.
func (o *Orchestrator) Execute(ctx context.Context, trigger *events.WorkflowTriggered, step protocol.StepRunner) (*models.ExecutionRecord, error) {
	ctx, span := o.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String(otelhelper.WorkflowIDKey, trigger.WorkflowID),
		attribute.String(otelhelper.EventIDKey, trigger.ID),
	))
	defer span.End()

	logger := o.logger.With("workflow_id", trigger.WorkflowID, "trigger_event_id", trigger.ID)

	record, created, err := o.createRecord(ctx, trigger)
	if err != nil {
		return nil, err
	}

	if !created && record.Finished() {
		logger.InfoContext(ctx, "Execution already finished, skipping replay", "execution_id", record.ID, "status", record.Status)

		return record, nil
	}

	o.publishStarted(ctx, record)

	workflow, err := o.workflows.GetByID(ctx, trigger.WorkflowID)
	if err != nil {
		return record, o.fail(ctx, record, "", fmt.Errorf("load workflow: %w", err))
	}

	sorted, err := graph.Sort(workflow.Nodes, workflow.Connections)
	if err != nil {
		return record, o.fail(ctx, record, "", err)
	}

	outgoing := make(map[string][]*models.Connection)
	incoming := make(map[string]int)

	for _, conn := range workflow.Connections {
		outgoing[conn.SourceNode] = append(outgoing[conn.SourceNode], conn)
		incoming[conn.TargetNode]++
	}

	activeTrigger := selectActiveTrigger(workflow, trigger.InitialData)

	frontier := make(map[string]struct{})
	if activeTrigger != "" {
		frontier[activeTrigger] = struct{}{}
	} else {
		// Legacy compatibility: no recognized trigger envelope, activate
		// every node with zero incoming connections.
		for _, node := range workflow.Nodes {
			if incoming[node.ID] == 0 {
				frontier[node.ID] = struct{}{}
			}
		}
	}

	execContext := models.ExecutionContext(trigger.InitialData).Clone()
	executed := 0

	for _, node := range sorted {
		if activeTrigger != "" && node.IsTriggerNode() && node.ID != activeTrigger {
			continue
		}

		if _, active := frontier[node.ID]; !active {
			continue
		}

		delete(frontier, node.ID)

		if !node.Enabled {
			// A disabled node passes through: context unchanged, every
			// outgoing connection activated.
			logger.DebugContext(ctx, "Skipping disabled node", "node_id", node.ID, "node_type", node.Type)

			for _, conn := range outgoing[node.ID] {
				frontier[conn.TargetNode] = struct{}{}
			}

			continue
		}

		result, err := o.executeNode(ctx, record, workflow, node, execContext, step)
		if err != nil {
			return record, o.fail(ctx, record, node.ID, err)
		}

		if result.Context != nil {
			execContext = result.Context
		}

		executed++

		record.Output = execContext
		if err := o.executions.Update(ctx, record); err != nil {
			logger.WarnContext(ctx, "Failed to persist context snapshot", "execution_id", record.ID, "error", err)
		}

		o.activateDownstream(ctx, logger, node, result, execContext, outgoing, frontier)
	}

	now := time.Now().UTC()
	record.Status = models.ExecutionStatusSuccess
	record.Output = execContext
	record.CompletedAt = &now

	if err := o.executions.Update(ctx, record); err != nil {
		return record, fmt.Errorf("finalize execution %s: %w", record.ID, err)
	}

	o.publishCompleted(ctx, record, executed)
	logger.InfoContext(ctx, "Execution completed", "execution_id", record.ID, "nodes_executed", executed)

	return record, nil
}

// MarkFailed is the last-resort failure hook invoked by the surrounding
// substrate when Execute itself could not persist the failure. It upserts a
// failed record for the run key without overwriting a finished record.
func (o *Orchestrator) MarkFailed(ctx context.Context, trigger *events.WorkflowTriggered, message string) error {
	return o.executions.MarkFailed(ctx, trigger.ID, trigger.WorkflowID, message)
}

func (o *Orchestrator) createRecord(ctx context.Context, trigger *events.WorkflowTriggered) (*models.ExecutionRecord, bool, error) {
	record := &models.ExecutionRecord{
		ID:             trigger.ID + ":" + trigger.WorkflowID,
		WorkflowID:     trigger.WorkflowID,
		TriggerEventID: trigger.ID,
		Status:         models.ExecutionStatusRunning,
		Output:         models.ExecutionContext(trigger.InitialData).Clone(),
		StartedAt:      time.Now().UTC(),
	}

	existing, created, err := o.executions.CreateOrGet(ctx, record)
	if err != nil {
		return nil, false, fmt.Errorf("create execution record: %w", err)
	}

	return existing, created, nil
}

// executeNode dispatches one node through the registry. Executor panics are
// recovered into an ExecutorError carrying the stack.
func (o *Orchestrator) executeNode(
	ctx context.Context,
	record *models.ExecutionRecord,
	workflow *models.Workflow,
	node *models.Node,
	execContext models.ExecutionContext,
	step protocol.StepRunner,
) (result protocol.ExecutionResult, err error) {
	ctx, span := o.tracer.Start(ctx, "node.execute", trace.WithAttributes(
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, node.Type),
	))
	defer span.End()

	o.status.PublishNodeStatus(ctx, record.ID, node.ID, models.NodeStatusLoading)

	defer func() {
		if recovered := recover(); recovered != nil {
			err = &ExecutorError{
				NodeID:   node.ID,
				NodeType: node.Type,
				Err:      fmt.Errorf("executor panic: %v", recovered),
				Stack:    string(debug.Stack()),
			}
		}

		if err != nil {
			otelhelper.SetError(span, err,
				attribute.String(otelhelper.NodeIDKey, node.ID),
				attribute.String(otelhelper.NodeTypeKey, node.Type))
			o.status.PublishNodeStatus(ctx, record.ID, node.ID, models.NodeStatusError)
		} else {
			o.status.PublishNodeStatus(ctx, record.ID, node.ID, models.NodeStatusSuccess)
		}
	}()

	executor, err := o.registry.ExecutorFor(ctx, node.Type, node.Config)
	if err != nil {
		return protocol.ExecutionResult{}, err
	}

	result, err = executor.Execute(ctx, protocol.ExecutionInput{
		NodeID:  node.ID,
		Data:    node.Config,
		UserID:  workflow.Owner,
		Context: execContext.Clone(),
		Step:    step,
		Publish: o.status,
	})
	if err != nil {
		return protocol.ExecutionResult{}, &ExecutorError{
			NodeID:   node.ID,
			NodeType: node.Type,
			Err:      err,
		}
	}

	return result, nil
}

// activateDownstream adds the successors of a completed node to the frontier.
// A branching node activates only the connections matching its fired port;
// everything else activates all outgoing connections. The legacy in-context
// branch signal is consumed and cleared here so it never reaches user context.
func (o *Orchestrator) activateDownstream(
	ctx context.Context,
	logger *slog.Logger,
	node *models.Node,
	result protocol.ExecutionResult,
	execContext models.ExecutionContext,
	outgoing map[string][]*models.Connection,
	frontier map[string]struct{},
) {
	port := result.ActivatedPort

	if raw, present := execContext[models.BranchResultKey]; present {
		delete(execContext, models.BranchResultKey)

		if port == "" {
			legacyPort, ok := legacyBranchPort(node.ID, raw)
			if !ok {
				// Fail open: activate every outgoing connection rather than
				// silently dropping the run.
				logger.WarnContext(ctx, "Branch result missing or for another node, activating all outputs",
					"node_id", node.ID, "branch_result", raw)
			}

			port = legacyPort
		}
	}

	for _, conn := range outgoing[node.ID] {
		if port != "" && conn.Output() != port {
			continue
		}

		frontier[conn.TargetNode] = struct{}{}
	}
}

// legacyBranchPort interprets the reserved context key written by executors
// predating the tagged result. Accepted shapes: a bare bool, or a map with
// "nodeId" and "passed" entries.
func legacyBranchPort(nodeID string, raw any) (string, bool) {
	switch value := raw.(type) {
	case bool:
		return branchPort(value), true
	case map[string]any:
		owner, _ := value["nodeId"].(string)
		if owner != nodeID {
			return "", false
		}

		passed, ok := value["passed"].(bool)
		if !ok {
			return "", false
		}

		return branchPort(passed), true
	default:
		return "", false
	}
}

func branchPort(passed bool) string {
	if passed {
		return models.OutputPortTrue
	}

	return models.OutputPortFalse
}

// selectActiveTrigger resolves which trigger node fired from the initial data
// envelope. Each trigger kind nests its payload under a well-known key; the
// payload's nodeId wins when it names a real node, otherwise the first trigger
// node of the matching kind is used. Empty means no recognized envelope.
func selectActiveTrigger(workflow *models.Workflow, initialData map[string]any) string {
	kinds := map[string]string{
		events.ScheduleTriggerKey: models.NodeTypeTriggerSchedule,
		events.ManualTriggerKey:   models.NodeTypeTriggerManual,
		events.WebhookTriggerKey:  models.NodeTypeTriggerWebhook,
	}

	for _, key := range events.TriggerKeys {
		payload, ok := initialData[key].(map[string]any)
		if !ok {
			continue
		}

		if nodeID, ok := payload["nodeId"].(string); ok && workflow.NodeByID(nodeID) != nil {
			return nodeID
		}

		for _, node := range workflow.TriggerNodes() {
			if node.Type == kinds[key] {
				return node.ID
			}
		}
	}

	return ""
}

// fail finalizes the record as failed and returns the causing error. The
// record write happens before the error propagates so the failure is never
// only logged.
func (o *Orchestrator) fail(ctx context.Context, record *models.ExecutionRecord, nodeID string, cause error) error {
	now := time.Now().UTC()
	record.Status = models.ExecutionStatusFailed
	record.Error = cause.Error()
	record.CompletedAt = &now

	var execErr *ExecutorError
	if errors.As(cause, &execErr) && execErr.Stack != "" {
		record.ErrorDetail = execErr.Stack
	}

	if err := o.executions.Update(ctx, record); err != nil {
		o.logger.ErrorContext(ctx, "Failed to persist failed execution record",
			"execution_id", record.ID, "error", err, "cause", cause)
	}

	o.publishFailed(ctx, record, nodeID, cause)

	return cause
}

func (o *Orchestrator) publishStarted(ctx context.Context, record *models.ExecutionRecord) {
	event := events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, record.WorkflowID),
		ExecutionID: record.ID,
	}
	event.WorkerID = o.workerID

	if err := o.publisher.Publish(ctx, record.WorkflowID, event); err != nil {
		o.logger.WarnContext(ctx, "Failed to publish execution started", "execution_id", record.ID, "error", err)
	}
}

func (o *Orchestrator) publishCompleted(ctx context.Context, record *models.ExecutionRecord, executed int) {
	event := events.ExecutionCompleted{
		BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, record.WorkflowID),
		ExecutionID:   record.ID,
		DurationMs:    durationMs(record),
		NodesExecuted: executed,
		FinalContext:  record.Output,
	}
	event.WorkerID = o.workerID

	if err := o.publisher.Publish(ctx, record.WorkflowID, event); err != nil {
		o.logger.WarnContext(ctx, "Failed to publish execution completed", "execution_id", record.ID, "error", err)
	}
}

func (o *Orchestrator) publishFailed(ctx context.Context, record *models.ExecutionRecord, nodeID string, cause error) {
	event := events.ExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, record.WorkflowID),
		ExecutionID: record.ID,
		NodeID:      nodeID,
		Error:       cause.Error(),
		DurationMs:  durationMs(record),
	}
	event.WorkerID = o.workerID

	if err := o.publisher.Publish(ctx, record.WorkflowID, event); err != nil {
		o.logger.WarnContext(ctx, "Failed to publish execution failed", "execution_id", record.ID, "error", err)
	}
}

func durationMs(record *models.ExecutionRecord) int64 {
	if record.CompletedAt == nil {
		return 0
	}

	return record.CompletedAt.Sub(record.StartedAt).Milliseconds()
}
