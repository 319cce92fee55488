package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loomhq/loom/pkg/durable"
	"github.com/loomhq/loom/pkg/events"
)

// Manager owns the in-process schedule chains: it reacts to start signals by
// launching one chain link, deduplicates concurrent starts for the same
// schedule, and correlates cancel signals to the chain's sleep by schedule
// id. A chain lost to a crash is re-armed by the reconciler, not by the
// manager.
type Manager struct {
	logger *slog.Logger
	runner *Runner
	steps  durable.StepStore

	mu     sync.Mutex
	active map[string]chan struct{}
	wg     sync.WaitGroup
}

func NewManager(logger *slog.Logger, runner *Runner, steps durable.StepStore) *Manager {
	return &Manager{
		logger: logger.With("module", "schedule_manager"),
		runner: runner,
		steps:  steps,
		active: make(map[string]chan struct{}),
	}
}

// HandleStart begins one chain link for the schedule named by the event. A
// start for a schedule whose chain is already running in this process is
// ignored, which makes reconciler re-arms safe while a chain sleeps.
func (m *Manager) HandleStart(ctx context.Context, event any) error {
	start, ok := event.(*events.ScheduleStart)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	m.mu.Lock()

	if _, running := m.active[start.ScheduleID]; running {
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "Chain already active, ignoring start", "schedule_id", start.ScheduleID)

		return nil
	}

	cancel := make(chan struct{})
	m.active[start.ScheduleID] = cancel
	m.mu.Unlock()

	step := durable.NewRunner(m.steps, start.ID, m.logger, durable.WithCancel(cancel))

	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		defer m.release(start.ScheduleID, cancel)

		if err := m.runner.RunOnce(ctx, start.ScheduleID, step); err != nil {
			m.logger.ErrorContext(ctx, "Schedule chain link failed",
				"schedule_id", start.ScheduleID, "error", err)

			return
		}

		if err := step.Finish(ctx); err != nil {
			m.logger.WarnContext(ctx, "Failed to clear chain step state",
				"schedule_id", start.ScheduleID, "error", err)
		}
	}()

	return nil
}

// HandleCancel aborts the sleeping chain for the schedule named by the event.
// A chain that is past its sleep completes the in-flight firing normally.
func (m *Manager) HandleCancel(ctx context.Context, event any) error {
	cancel, ok := event.(*events.ScheduleCancel)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ch, running := m.active[cancel.ScheduleID]
	if !running {
		m.logger.DebugContext(ctx, "No active chain to cancel", "schedule_id", cancel.ScheduleID)

		return nil
	}

	close(ch)
	delete(m.active, cancel.ScheduleID)
	m.logger.InfoContext(ctx, "Cancelled schedule chain", "schedule_id", cancel.ScheduleID)

	return nil
}

// Wait blocks until all in-flight chain links finish.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// release clears the chain's slot unless a newer chain already claimed it.
func (m *Manager) release(scheduleID string, ch chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[scheduleID]; ok && current == ch {
		delete(m.active, scheduleID)
	}
}
