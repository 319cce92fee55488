package schedule

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/pkg/durable"
	"github.com/loomhq/loom/pkg/events"
)

func newManagerFixture(t *testing.T) (*Manager, *runnerFixture) {
	t.Helper()

	f := newRunnerFixture(t)

	return NewManager(slog.Default(), f.runner, durable.NewMemoryStore()), f
}

func startEvent(scheduleID string) *events.ScheduleStart {
	event := events.ScheduleStart{
		BaseEvent:  events.NewBaseEvent(events.ScheduleStartEvent, "wf-1"),
		ScheduleID: scheduleID,
	}

	return &event
}

func cancelEvent(scheduleID string) *events.ScheduleCancel {
	event := events.ScheduleCancel{
		BaseEvent:  events.NewBaseEvent(events.ScheduleCancelEvent, "wf-1"),
		ScheduleID: scheduleID,
	}

	return &event
}

func TestManagerRunsChainLink(t *testing.T) {
	manager, f := newManagerFixture(t)

	schedule := intervalSchedule("sched-1")
	due := f.now.Add(-time.Minute)
	schedule.NextRunAt = &due
	f.save(t, schedule)

	require.NoError(t, manager.HandleStart(context.Background(), startEvent("sched-1")))
	manager.Wait()

	assert.Len(t, f.publisher.byType(events.WorkflowTriggeredEvent), 1)
	assert.Len(t, f.publisher.byType(events.ScheduleStartEvent), 1)
}

func TestManagerCancelAbortsSleepingChain(t *testing.T) {
	manager, f := newManagerFixture(t)

	schedule := intervalSchedule("sched-1")
	future := time.Now().Add(time.Hour)
	schedule.NextRunAt = &future
	f.save(t, schedule)

	// The manager's durable sleep uses the wall clock, so this chain will
	// block until cancelled.
	require.NoError(t, manager.HandleStart(context.Background(), startEvent("sched-1")))

	deadline := time.After(2 * time.Second)
	for {
		manager.mu.Lock()
		_, running := manager.active["sched-1"]
		manager.mu.Unlock()

		if running {
			break
		}

		select {
		case <-deadline:
			t.Fatal("chain never became active")
		case <-time.After(5 * time.Millisecond):
		}
	}

	require.NoError(t, manager.HandleCancel(context.Background(), cancelEvent("sched-1")))
	manager.Wait()

	assert.Empty(t, f.publisher.byType(events.WorkflowTriggeredEvent), "cancelled chain must not fire")
}

func TestManagerIgnoresDuplicateStarts(t *testing.T) {
	manager, f := newManagerFixture(t)

	schedule := intervalSchedule("sched-1")
	future := time.Now().Add(time.Hour)
	schedule.NextRunAt = &future
	f.save(t, schedule)

	require.NoError(t, manager.HandleStart(context.Background(), startEvent("sched-1")))
	require.NoError(t, manager.HandleStart(context.Background(), startEvent("sched-1")))

	manager.mu.Lock()
	active := len(manager.active)
	manager.mu.Unlock()

	assert.LessOrEqual(t, active, 1)

	require.NoError(t, manager.HandleCancel(context.Background(), cancelEvent("sched-1")))
	manager.Wait()
}

func TestManagerCancelWithoutActiveChainIsNoop(t *testing.T) {
	manager, _ := newManagerFixture(t)

	require.NoError(t, manager.HandleCancel(context.Background(), cancelEvent("ghost")))
}

func TestManagerRejectsWrongEventTypes(t *testing.T) {
	manager, _ := newManagerFixture(t)

	require.Error(t, manager.HandleStart(context.Background(), "not an event"))
	require.Error(t, manager.HandleCancel(context.Background(), "not an event"))
}
