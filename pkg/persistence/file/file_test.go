package file_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/persistence/file"
)

func newStore(t *testing.T) *file.Persistence {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	return store
}

func TestWorkflowRoundTrip(t *testing.T) {
	store := newStore(t)
	repo := store.WorkflowRepository()

	workflow := &models.Workflow{
		ID:     "wf-1",
		Name:   "test workflow",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.Node{
			{ID: "n1", Type: "transform", Category: models.CategoryTypeAction, Name: "shape", Enabled: true},
		},
	}

	require.NoError(t, repo.Save(context.Background(), workflow))

	loaded, err := repo.GetByID(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, loaded.Name)
	require.Len(t, loaded.Nodes, 1)
	assert.Equal(t, "n1", loaded.Nodes[0].ID)
}

func TestWorkflowGetByIDNotFound(t *testing.T) {
	store := newStore(t)

	_, err := store.WorkflowRepository().GetByID(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowDeleteMissing(t *testing.T) {
	store := newStore(t)

	err := store.WorkflowRepository().Delete(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestExecutionCreateOrGetIsIdempotent(t *testing.T) {
	store := newStore(t)
	repo := store.ExecutionRepository()

	record := &models.ExecutionRecord{
		ID:             "ev-1:wf-1",
		WorkflowID:     "wf-1",
		TriggerEventID: "ev-1",
		Status:         models.ExecutionStatusRunning,
		StartedAt:      time.Now().UTC(),
	}

	created, wasNew, err := repo.CreateOrGet(context.Background(), record)
	require.NoError(t, err)
	assert.True(t, wasNew)
	assert.Equal(t, record.ID, created.ID)

	duplicate := &models.ExecutionRecord{
		ID:             "ev-1:wf-1",
		WorkflowID:     "wf-1",
		TriggerEventID: "ev-1",
		Status:         models.ExecutionStatusPending,
		StartedAt:      time.Now().UTC(),
	}

	existing, wasNew, err := repo.CreateOrGet(context.Background(), duplicate)
	require.NoError(t, err)
	assert.False(t, wasNew)
	assert.Equal(t, models.ExecutionStatusRunning, existing.Status, "original record wins")
}

func TestExecutionGetByTriggerEvent(t *testing.T) {
	store := newStore(t)
	repo := store.ExecutionRepository()

	record := &models.ExecutionRecord{
		ID:             "ev-1:wf-1",
		WorkflowID:     "wf-1",
		TriggerEventID: "ev-1",
		Status:         models.ExecutionStatusSuccess,
		StartedAt:      time.Now().UTC(),
	}

	_, _, err := repo.CreateOrGet(context.Background(), record)
	require.NoError(t, err)

	found, err := repo.GetByTriggerEvent(context.Background(), "ev-1", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "ev-1:wf-1", found.ID)

	_, err = repo.GetByTriggerEvent(context.Background(), "ev-1", "other-wf")
	require.Error(t, err)
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestExecutionMarkFailedCreatesRecordWhenAbsent(t *testing.T) {
	store := newStore(t)
	repo := store.ExecutionRepository()

	require.NoError(t, repo.MarkFailed(context.Background(), "ev-1", "wf-1", "boom"))

	record, err := repo.GetByID(context.Background(), "ev-1:wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, record.Status)
	assert.Equal(t, "boom", record.Error)
	require.NotNil(t, record.CompletedAt)
}

func TestExecutionMarkFailedNeverOverwritesFinishedRecord(t *testing.T) {
	store := newStore(t)
	repo := store.ExecutionRepository()

	completed := time.Now().UTC()
	record := &models.ExecutionRecord{
		ID:             "ev-1:wf-1",
		WorkflowID:     "wf-1",
		TriggerEventID: "ev-1",
		Status:         models.ExecutionStatusSuccess,
		StartedAt:      completed.Add(-time.Second),
		CompletedAt:    &completed,
	}

	_, _, err := repo.CreateOrGet(context.Background(), record)
	require.NoError(t, err)

	require.NoError(t, repo.MarkFailed(context.Background(), "ev-1", "wf-1", "late failure"))

	reloaded, err := repo.GetByID(context.Background(), "ev-1:wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, reloaded.Status)
	assert.Empty(t, reloaded.Error)
}

func TestExecutionListByWorkflowNewestFirst(t *testing.T) {
	store := newStore(t)
	repo := store.ExecutionRepository()

	base := time.Now().UTC()

	for i, id := range []string{"ev-1", "ev-2", "ev-3"} {
		record := &models.ExecutionRecord{
			ID:             id + ":wf-1",
			WorkflowID:     "wf-1",
			TriggerEventID: id,
			Status:         models.ExecutionStatusSuccess,
			StartedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		_, _, err := repo.CreateOrGet(context.Background(), record)
		require.NoError(t, err)
	}

	other := &models.ExecutionRecord{
		ID:             "ev-9:wf-2",
		WorkflowID:     "wf-2",
		TriggerEventID: "ev-9",
		StartedAt:      base,
	}
	_, _, err := repo.CreateOrGet(context.Background(), other)
	require.NoError(t, err)

	records, err := repo.ListByWorkflow(context.Background(), "wf-1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "ev-3:wf-1", records[0].ID)
	assert.Equal(t, "ev-1:wf-1", records[2].ID)
}

func TestScheduleDueSchedules(t *testing.T) {
	store := newStore(t)
	repo := store.ScheduleRepository()

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	save := func(id string, nextRunAt *time.Time, enabled bool) {
		require.NoError(t, repo.Save(context.Background(), &models.ScheduledWorkflow{
			ID:            id,
			WorkflowID:    "wf-1",
			ScheduleType:  models.ScheduleTypeInterval,
			IntervalValue: 5,
			IntervalUnit:  models.IntervalUnitMinutes,
			NextRunAt:     nextRunAt,
			Enabled:       enabled,
		}))
	}

	save("due", &past, true)
	save("future", &future, true)
	save("disabled", &past, false)
	save("unarmed", nil, true)

	due, err := repo.DueSchedules(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due", due[0].ID)
}

func TestScheduleGetByIDNotFound(t *testing.T) {
	store := newStore(t)

	_, err := store.ScheduleRepository().GetByID(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, persistence.IsScheduleNotFound(err))
}
