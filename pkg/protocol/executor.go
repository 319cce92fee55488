// Package protocol defines the interfaces and contracts for pluggable node
// executors and the substrate abstractions the engine consumes.
package protocol

import (
	"context"
	"time"

	"github.com/loomhq/loom/pkg/models"
)

// ExecutionInput carries everything an executor may use for a single node
// invocation. Context is the accumulated execution context; executors must
// treat it as immutable and return a replacement in ExecutionResult.
type ExecutionInput struct {
	NodeID  string
	Data    map[string]any
	UserID  string
	Context models.ExecutionContext
	Step    StepRunner
	Publish StatusPublisher
}

// ExecutionResult is the tagged result of a node invocation. ActivatedPort is
// empty for non-branching nodes; a branching executor sets it to the single
// output port that fired ("true"/"false" for filter).
type ExecutionResult struct {
	Context       models.ExecutionContext
	ActivatedPort string
}

// NodeExecutor is the polymorphic capability behind every node type: accepts
// prior context, node configuration, and identity; returns updated context or
// fails. Callers never branch on the concrete implementation. An executor may
// perform I/O or suspend via the step runner; the orchestrator treats each
// invocation as atomic.
type NodeExecutor interface {
	Execute(ctx context.Context, input ExecutionInput) (ExecutionResult, error)
}

// NodeExecutorFactory creates executor instances and provides metadata about
// the node type. ConfigSchema, when non-nil, is a JSON schema the registry
// validates node configuration against before dispatch.
type NodeExecutorFactory interface {
	ID() string
	Name() string
	Description() string
	ConfigSchema() map[string]any
	Create(ctx context.Context, config map[string]any) (NodeExecutor, error)
}

// StepRunner is the durable-step abstraction supplied by the execution
// substrate. Run guarantees at-least-once execution with replay-safe
// memoization per label; SleepUntil suspends durably and resumably until the
// given instant.
type StepRunner interface {
	Run(ctx context.Context, label string, fn func(ctx context.Context) (any, error)) (any, error)
	SleepUntil(ctx context.Context, label string, until time.Time) error
}

// StatusPublisher publishes best-effort, fire-and-forget node status updates.
// Implementations must never propagate publish failures into the run.
type StatusPublisher interface {
	PublishNodeStatus(ctx context.Context, executionID, nodeID string, status models.NodeStatus)
}
