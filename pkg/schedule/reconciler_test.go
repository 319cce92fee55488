package schedule

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/pkg/events"
)

func TestReconcilerReArmsLostChains(t *testing.T) {
	f := newRunnerFixture(t)

	lost := intervalSchedule("lost")
	overdue := f.now.Add(-10 * time.Minute)
	lost.NextRunAt = &overdue
	f.save(t, lost)

	sleeping := intervalSchedule("sleeping")
	future := f.now.Add(time.Hour)
	sleeping.NextRunAt = &future
	f.save(t, sleeping)

	disabled := intervalSchedule("disabled")
	disabled.NextRunAt = &overdue
	disabled.Enabled = false
	f.save(t, disabled)

	reconciler := NewReconciler(slog.Default(), f.schedules, f.publisher,
		WithGrace(time.Minute),
		WithReconcilerClock(func() time.Time { return f.now }))

	reconciler.reconcile(context.Background())

	starts := f.publisher.byType(events.ScheduleStartEvent)
	require.Len(t, starts, 1)

	start, ok := starts[0].(events.ScheduleStart)
	require.True(t, ok)
	assert.Equal(t, "lost", start.ScheduleID)
}

func TestReconcilerLeavesRecentlyDueChainsAlone(t *testing.T) {
	f := newRunnerFixture(t)

	// Due, but within the grace period: its chain is presumed healthy.
	recent := intervalSchedule("recent")
	justDue := f.now.Add(-10 * time.Second)
	recent.NextRunAt = &justDue
	f.save(t, recent)

	reconciler := NewReconciler(slog.Default(), f.schedules, f.publisher,
		WithGrace(time.Minute),
		WithReconcilerClock(func() time.Time { return f.now }))

	reconciler.reconcile(context.Background())

	assert.Empty(t, f.publisher.byType(events.ScheduleStartEvent))
}
