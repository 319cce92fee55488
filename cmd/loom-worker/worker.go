package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loomhq/loom/pkg/durable"
	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/events"
	"github.com/loomhq/loom/pkg/execution"
	"github.com/loomhq/loom/pkg/otelhelper"
	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/registry"
)

// Worker subscribes to workflow trigger events and runs the orchestrator for
// each. Failed runs are nacked so the bus redelivers them; the idempotent
// execution record keeps replays from re-running finished work.
type Worker struct {
	id           string
	logger       *slog.Logger
	orchestrator *execution.Orchestrator
	eventBus     eventbus.EventBus
	steps        durable.StepStore
}

func NewWorker(
	id string,
	logger *slog.Logger,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
	reg *registry.Registry,
	steps durable.StepStore,
) *Worker {
	return &Worker{
		id:           id,
		logger:       logger,
		orchestrator: execution.NewOrchestrator(logger, store, reg, eventBus, id),
		eventBus:     eventBus,
		steps:        steps,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if _, err := otelhelper.NewTracer(ctx, "loom-worker"); err != nil {
		w.logger.WarnContext(ctx, "Tracing disabled", "error", err)
	}

	if err := w.eventBus.Handle(events.WorkflowTriggeredEvent, w.handleWorkflowTriggered); err != nil {
		return err
	}

	if err := w.eventBus.Subscribe(ctx); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		w.logger.InfoContext(ctx, "Shutting down worker")
	case <-ctx.Done():
	}

	return nil
}

func (w *Worker) handleWorkflowTriggered(ctx context.Context, event any) error {
	triggered, ok := event.(*events.WorkflowTriggered)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	logger := w.logger.With("workflow_id", triggered.WorkflowID, "trigger_event_id", triggered.ID)
	logger.InfoContext(ctx, "Processing workflow trigger")

	step := durable.NewRunner(w.steps, triggered.ID, w.logger)

	record, err := w.orchestrator.Execute(ctx, triggered, step)
	if err != nil {
		logger.ErrorContext(ctx, "Workflow execution failed", "error", err)

		// Last resort: the record must reflect the failure even when the
		// orchestrator's own failure write did not complete.
		if markErr := w.orchestrator.MarkFailed(ctx, triggered, err.Error()); markErr != nil {
			logger.ErrorContext(ctx, "Failed to mark execution failed", "error", markErr)
		}

		return err
	}

	if err := step.Finish(ctx); err != nil {
		logger.WarnContext(ctx, "Failed to clear step state", "error", err)
	}

	logger.InfoContext(ctx, "Workflow trigger processed", "execution_id", record.ID, "status", record.Status)

	return nil
}
