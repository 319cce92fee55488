package execution

import (
	"context"
	"log/slog"

	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/events"
	"github.com/loomhq/loom/pkg/models"
)

// EventStatusPublisher publishes per-node status updates over the event bus.
// Publishes are fire-and-forget; a broker failure never fails the run.
type EventStatusPublisher struct {
	logger    *slog.Logger
	publisher eventbus.EventPublisher
}

func NewEventStatusPublisher(logger *slog.Logger, publisher eventbus.EventPublisher) *EventStatusPublisher {
	return &EventStatusPublisher{
		logger:    logger.With("module", "status_publisher"),
		publisher: publisher,
	}
}

func (p *EventStatusPublisher) PublishNodeStatus(ctx context.Context, executionID, nodeID string, status models.NodeStatus) {
	event := events.NodeStatus{
		BaseEvent:   events.NewBaseEvent(events.NodeStatusEvent, ""),
		ExecutionID: executionID,
		NodeID:      nodeID,
		Status:      status,
	}

	if err := p.publisher.Publish(ctx, executionID, event); err != nil {
		p.logger.WarnContext(ctx, "Failed to publish node status",
			"execution_id", executionID,
			"node_id", nodeID,
			"status", status,
			"error", err)
	}
}

// NopStatusPublisher discards all status updates.
type NopStatusPublisher struct{}

func (NopStatusPublisher) PublishNodeStatus(context.Context, string, string, models.NodeStatus) {}
