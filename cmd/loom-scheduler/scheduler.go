package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loomhq/loom/pkg/durable"
	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/events"
	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/schedule"
)

// Scheduler wires the schedule chain manager to the event bus and runs the
// reconciler alongside it.
type Scheduler struct {
	logger     *slog.Logger
	manager    *schedule.Manager
	reconciler *schedule.Reconciler
	eventBus   eventbus.EventBus
}

func NewScheduler(
	logger *slog.Logger,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
	steps durable.StepStore,
	reconcileInterval time.Duration,
) *Scheduler {
	runner := schedule.NewRunner(logger, store.ScheduleRepository(), eventBus)

	return &Scheduler{
		logger:  logger,
		manager: schedule.NewManager(logger, runner, steps),
		reconciler: schedule.NewReconciler(logger, store.ScheduleRepository(), eventBus,
			schedule.WithInterval(reconcileInterval)),
		eventBus: eventBus,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.eventBus.Handle(events.ScheduleStartEvent, s.manager.HandleStart); err != nil {
		return err
	}

	if err := s.eventBus.Handle(events.ScheduleCancelEvent, s.manager.HandleCancel); err != nil {
		return err
	}

	if err := s.eventBus.Subscribe(ctx); err != nil {
		return err
	}

	go func() {
		if err := s.reconciler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.ErrorContext(ctx, "Reconciler stopped", "error", err)
		}
	}()

	s.logger.InfoContext(ctx, "Scheduler started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		s.logger.InfoContext(ctx, "Shutting down scheduler")
	case <-ctx.Done():
	}

	cancel()
	s.manager.Wait()

	return nil
}
