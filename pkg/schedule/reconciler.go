package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/events"
	"github.com/loomhq/loom/pkg/persistence"
)

const (
	defaultReconcileInterval = time.Minute
	defaultReconcileGrace    = time.Minute
)

// Reconciler is the safety net behind the self-chaining runner. On a fixed
// tick it scans for enabled schedules whose chain was lost (next run overdue
// by more than the grace period, e.g. after a crash with no pending sleep)
// and re-arms them by emitting a start signal. Chains that are merely
// sleeping are never touched because their next run is in the future.
type Reconciler struct {
	logger    *slog.Logger
	schedules persistence.ScheduleRepository
	publisher eventbus.EventPublisher
	interval  time.Duration
	grace     time.Duration
	now       func() time.Time
}

type ReconcilerOption func(*Reconciler)

func WithInterval(interval time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		r.interval = interval
	}
}

func WithGrace(grace time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		r.grace = grace
	}
}

func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		r.now = now
	}
}

func NewReconciler(logger *slog.Logger, schedules persistence.ScheduleRepository, publisher eventbus.EventPublisher, opts ...ReconcilerOption) *Reconciler {
	reconciler := &Reconciler{
		logger:    logger.With("module", "schedule_reconciler"),
		schedules: schedules,
		publisher: publisher,
		interval:  defaultReconcileInterval,
		grace:     defaultReconcileGrace,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(reconciler)
	}

	return reconciler
}

// Start runs the reconciliation loop until the context ends.
func (r *Reconciler) Start(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Starting schedule reconciler", "interval", r.interval, "grace", r.grace)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Schedule reconciler stopped")

			return ctx.Err()
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context) {
	cutoff := r.now().Add(-r.grace)

	lost, err := r.schedules.DueSchedules(ctx, cutoff)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to scan for lost schedule chains", "error", err)

		return
	}

	for _, schedule := range lost {
		event := events.ScheduleStart{
			BaseEvent:  events.NewBaseEvent(events.ScheduleStartEvent, schedule.WorkflowID),
			ScheduleID: schedule.ID,
		}

		if err := r.publisher.Publish(ctx, schedule.ID, event); err != nil {
			r.logger.ErrorContext(ctx, "Failed to re-arm schedule chain", "schedule_id", schedule.ID, "error", err)

			continue
		}

		r.logger.WarnContext(ctx, "Re-armed lost schedule chain",
			"schedule_id", schedule.ID,
			"workflow_id", schedule.WorkflowID,
			"overdue_since", schedule.NextRunAt)
	}
}
