package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDB(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"executions", "schedules", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	require.NoError(t, db.Close())
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("loom_test"),
			postgres.WithUsername("loom"),
			postgres.WithPassword("loom"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDB(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDB(ctx, t, databaseURL)
		require.NoError(t, store.Close(ctx))
		cancel()
	})

	return store, ctx, databaseURL
}

func TestNewPersistenceMigrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, db.Close())
	}()

	var exists bool

	for _, table := range []string{"workflows", "executions", "schedules", "schema_migrations"} {
		err = db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table+" table should exist")
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestHealthCheck(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	assert.NoError(t, store.HealthCheck(ctx))
}

func TestWorkflowSaveAndRetrieve(t *testing.T) {
	store, ctx, _ := setupTestDB(t)
	repo := store.WorkflowRepository()

	workflow := &models.Workflow{
		ID:     "wf-1",
		Name:   "integration workflow",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.Node{
			{ID: "t", Type: models.NodeTypeTriggerManual, Category: models.CategoryTypeTrigger, Enabled: true},
			{ID: "a", Type: "transform", Category: models.CategoryTypeAction, Enabled: true,
				Config: map[string]any{"mapping": map[string]any{"k": "v"}}},
		},
		Connections: []*models.Connection{
			{SourceNode: "t", TargetNode: "a"},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	require.NoError(t, repo.Save(ctx, workflow))

	loaded, err := repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, loaded.Name)
	require.Len(t, loaded.Nodes, 2)
	require.Len(t, loaded.Connections, 1)
	assert.Equal(t, "a", loaded.Connections[0].TargetNode)

	_, err = repo.GetByID(ctx, "ghost")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestExecutionCreateOrGetIdempotent(t *testing.T) {
	store, ctx, _ := setupTestDB(t)
	repo := store.ExecutionRepository()

	record := &models.ExecutionRecord{
		ID:             "ev-1:wf-1",
		WorkflowID:     "wf-1",
		TriggerEventID: "ev-1",
		Status:         models.ExecutionStatusRunning,
		Output:         models.ExecutionContext{"seed": "payload"},
		StartedAt:      time.Now().UTC(),
	}

	created, wasNew, err := repo.CreateOrGet(ctx, record)
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

	existing, wasNew, err := repo.CreateOrGet(ctx, duplicate)
	require.NoError(t, err)
	assert.False(t, wasNew)
	assert.Equal(t, models.ExecutionStatusRunning, existing.Status, "original record wins")
	assert.Equal(t, "payload", existing.Output["seed"])
}

func TestExecutionMarkFailedCreatesRecordWhenAbsent(t *testing.T) {
	store, ctx, _ := setupTestDB(t)
	repo := store.ExecutionRepository()

	require.NoError(t, repo.MarkFailed(ctx, "ev-1", "wf-1", "boom"))

	record, err := repo.GetByID(ctx, "ev-1:wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, record.Status)
	assert.Equal(t, "boom", record.Error)
	require.NotNil(t, record.CompletedAt)
}

func TestExecutionMarkFailedNeverOverwritesFinishedRecord(t *testing.T) {
	store, ctx, _ := setupTestDB(t)
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

	_, _, err := repo.CreateOrGet(ctx, record)
	require.NoError(t, err)

	require.NoError(t, repo.MarkFailed(ctx, "ev-1", "wf-1", "late failure"))

	reloaded, err := repo.GetByID(ctx, "ev-1:wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, reloaded.Status)
	assert.Empty(t, reloaded.Error)
}

func TestExecutionMarkFailedOverwritesRunningRecord(t *testing.T) {
	store, ctx, _ := setupTestDB(t)
	repo := store.ExecutionRepository()

	record := &models.ExecutionRecord{
		ID:             "ev-1:wf-1",
		WorkflowID:     "wf-1",
		TriggerEventID: "ev-1",
		Status:         models.ExecutionStatusRunning,
		StartedAt:      time.Now().UTC(),
	}

	_, _, err := repo.CreateOrGet(ctx, record)
	require.NoError(t, err)

	require.NoError(t, repo.MarkFailed(ctx, "ev-1", "wf-1", "worker died"))

	reloaded, err := repo.GetByID(ctx, "ev-1:wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, reloaded.Status)
	assert.Equal(t, "worker died", reloaded.Error)
}

func TestScheduleDueSchedules(t *testing.T) {
	store, ctx, _ := setupTestDB(t)
	repo := store.ScheduleRepository()

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	save := func(id string, nextRunAt *time.Time, enabled bool) {
		require.NoError(t, repo.Save(ctx, &models.ScheduledWorkflow{
			ID:            id,
			WorkflowID:    "wf-1",
			NodeID:        "node-1",
			ScheduleType:  models.ScheduleTypeInterval,
			IntervalValue: 5,
			IntervalUnit:  models.IntervalUnitMinutes,
			NextRunAt:     nextRunAt,
			Enabled:       enabled,
			CreatedAt:     now,
			UpdatedAt:     now,
		}))
	}

	save("due", &past, true)
	save("future", &future, true)
	save("disabled", &past, false)
	save("unarmed", nil, true)

	due, err := repo.DueSchedules(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due", due[0].ID)
}

func TestScheduleSaveUpdatesExistingRow(t *testing.T) {
	store, ctx, _ := setupTestDB(t)
	repo := store.ScheduleRepository()

	now := time.Now().UTC()
	next := now.Add(30 * time.Minute)
	schedule := &models.ScheduledWorkflow{
		ID:            "sched-1",
		WorkflowID:    "wf-1",
		NodeID:        "node-1",
		ScheduleType:  models.ScheduleTypeInterval,
		IntervalValue: 30,
		IntervalUnit:  models.IntervalUnitMinutes,
		NextRunAt:     &next,
		Enabled:       true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	require.NoError(t, repo.Save(ctx, schedule))

	schedule.Enabled = false
	schedule.NextRunAt = nil
	require.NoError(t, repo.Save(ctx, schedule))

	reloaded, err := repo.GetByID(ctx, "sched-1")
	require.NoError(t, err)
	assert.False(t, reloaded.Enabled)
	assert.Nil(t, reloaded.NextRunAt)
}
