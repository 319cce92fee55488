// Package schedule implements the recurring-schedule subsystem: a
// self-chaining durable runner that sleeps until the next occurrence, fires
// one workflow execution, recomputes, and re-enqueues itself, plus a
// reconciliation poller that re-arms lost chains.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loomhq/loom/pkg/durable"
	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/events"
	"github.com/loomhq/loom/pkg/execution"
	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/protocol"
)

// Runner drives one link of a schedule chain per invocation. Each invocation
// handles exactly one firing: sleep until due, emit the trigger event,
// persist the next occurrence, then either re-enqueue the chain or terminate
// it at the end date.
type Runner struct {
	logger    *slog.Logger
	schedules persistence.ScheduleRepository
	publisher eventbus.EventPublisher
	now       func() time.Time
}

type RunnerOption func(*Runner)

func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

func NewRunner(logger *slog.Logger, schedules persistence.ScheduleRepository, publisher eventbus.EventPublisher, opts ...RunnerOption) *Runner {
	runner := &Runner{
		logger:    logger.With("module", "schedule_runner"),
		schedules: schedules,
		publisher: publisher,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(runner)
	}

	return runner
}

// RunOnce executes a single chain link for the given schedule id. A missing
// or disabled schedule terminates the chain silently; a cancellation during
// the sleep aborts it without firing. Failures to emit the trigger event do
// not kill the chain, the next occurrence is still computed and persisted.
func (r *Runner) RunOnce(ctx context.Context, scheduleID string, step protocol.StepRunner) error {
	logger := r.logger.With("schedule_id", scheduleID)

	schedule, ok, err := r.load(ctx, scheduleID)
	if err != nil {
		return err
	}

	if !ok {
		logger.InfoContext(ctx, "Schedule missing or disabled, terminating chain")

		return nil
	}

	if schedule.NextRunAt != nil && schedule.NextRunAt.After(r.now()) {
		err := step.SleepUntil(ctx, "sleep:"+schedule.NextRunAt.UTC().Format(time.RFC3339), *schedule.NextRunAt)
		if errors.Is(err, durable.ErrSleepCancelled) {
			logger.InfoContext(ctx, "Schedule cancelled while sleeping, terminating chain")

			return nil
		}

		if err != nil {
			return fmt.Errorf("schedule sleep: %w", err)
		}
	}

	// The schedule may have been disabled or deleted while sleeping.
	schedule, ok, err = r.load(ctx, scheduleID)
	if err != nil {
		return err
	}

	if !ok {
		logger.InfoContext(ctx, "Schedule disabled while sleeping, terminating chain")

		return nil
	}

	firedAt := r.now()

	triggerEventID, fireErr := r.fire(ctx, schedule, firedAt, step)
	if fireErr != nil {
		// A transient failure to trigger never permanently kills a
		// recurring schedule; continue to reschedule.
		logger.ErrorContext(ctx, "Failed to emit trigger event, continuing chain", "error", fireErr)
	}

	next, err := schedule.NextOccurrence(firedAt)
	if err != nil {
		// The reconciler re-arms the chain once the rule is fixed.
		return &execution.SchedulingError{ScheduleID: scheduleID, Err: fmt.Errorf("compute next occurrence: %w", err)}
	}

	schedule.LastRunAt = &firedAt
	schedule.LastExecutionID = triggerEventID
	schedule.UpdatedAt = firedAt

	if schedule.Expired(next) {
		schedule.Enabled = false
		schedule.NextRunAt = nil

		if err := r.schedules.Save(ctx, schedule); err != nil {
			return &execution.SchedulingError{ScheduleID: scheduleID, Err: err}
		}

		logger.InfoContext(ctx, "Schedule reached end date, chain terminated")

		return nil
	}

	schedule.NextRunAt = &next

	if err := r.schedules.Save(ctx, schedule); err != nil {
		return &execution.SchedulingError{ScheduleID: scheduleID, Err: err}
	}

	if err := r.continueChain(ctx, schedule); err != nil {
		// The chain is lost until the reconciler picks the schedule up.
		logger.ErrorContext(ctx, "Failed to re-enqueue schedule chain", "error", err)
	}

	return nil
}

// load returns (schedule, true) only for an existing, enabled schedule.
func (r *Runner) load(ctx context.Context, scheduleID string) (*models.ScheduledWorkflow, bool, error) {
	schedule, err := r.schedules.GetByID(ctx, scheduleID)
	if persistence.IsScheduleNotFound(err) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("load schedule %s: %w", scheduleID, err)
	}

	if !schedule.Enabled {
		return nil, false, nil
	}

	return schedule, true, nil
}

// fire emits the workflow trigger event for one occurrence. The event id is
// memoized per chain link so a replayed link does not double-trigger.
func (r *Runner) fire(ctx context.Context, schedule *models.ScheduledWorkflow, firedAt time.Time, step protocol.StepRunner) (string, error) {
	scheduledAt := firedAt
	if schedule.NextRunAt != nil {
		scheduledAt = *schedule.NextRunAt
	}

	eventID, err := step.Run(ctx, "fire", func(ctx context.Context) (any, error) {
		event := events.WorkflowTriggered{
			BaseEvent: events.NewBaseEvent(events.WorkflowTriggeredEvent, schedule.WorkflowID),
			InitialData: map[string]any{
				events.ScheduleTriggerKey: map[string]any{
					"scheduleId":   schedule.ID,
					"nodeId":       schedule.NodeID,
					"scheduledAt":  scheduledAt.UTC().Format(time.RFC3339),
					"triggeredAt":  firedAt.UTC().Format(time.RFC3339),
					"scheduleType": string(schedule.ScheduleType),
				},
			},
		}

		if err := r.publisher.Publish(ctx, schedule.WorkflowID, event); err != nil {
			return nil, err
		}

		return event.ID, nil
	})
	if err != nil {
		return "", err
	}

	id, _ := eventID.(string)

	return id, nil
}

func (r *Runner) continueChain(ctx context.Context, schedule *models.ScheduledWorkflow) error {
	event := events.ScheduleStart{
		BaseEvent:  events.NewBaseEvent(events.ScheduleStartEvent, schedule.WorkflowID),
		ScheduleID: schedule.ID,
	}

	return r.publisher.Publish(ctx, schedule.ID, event)
}
