package postgresql

// migrations holds the schema by version. The unique index on
// (trigger_event_id, workflow_id) backs the idempotent run creation upsert.
var migrations = map[int]string{
	1: `
		CREATE TABLE IF NOT EXISTS workflows (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL,
			nodes       JSONB NOT NULL DEFAULT '[]',
			connections JSONB NOT NULL DEFAULT '[]',
			variables   JSONB,
			owner       TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS executions (
			id               TEXT PRIMARY KEY,
			workflow_id      TEXT NOT NULL,
			trigger_event_id TEXT NOT NULL,
			status           TEXT NOT NULL,
			output           JSONB,
			error            TEXT NOT NULL DEFAULT '',
			error_detail     TEXT NOT NULL DEFAULT '',
			started_at       TIMESTAMP WITH TIME ZONE NOT NULL,
			completed_at     TIMESTAMP WITH TIME ZONE,
			CONSTRAINT executions_trigger_event_unique UNIQUE (trigger_event_id, workflow_id)
		);

		CREATE INDEX IF NOT EXISTS idx_executions_workflow ON executions (workflow_id, started_at DESC);

		CREATE TABLE IF NOT EXISTS schedules (
			id                TEXT PRIMARY KEY,
			workflow_id       TEXT NOT NULL,
			node_id           TEXT NOT NULL,
			schedule_type     TEXT NOT NULL,
			timezone          TEXT NOT NULL DEFAULT '',
			interval_value    INTEGER NOT NULL DEFAULT 0,
			interval_unit     TEXT NOT NULL DEFAULT '',
			hour              INTEGER NOT NULL DEFAULT 0,
			minute            INTEGER NOT NULL DEFAULT 0,
			days_of_week      JSONB,
			day_of_month      INTEGER NOT NULL DEFAULT 0,
			cron_expression   TEXT NOT NULL DEFAULT '',
			enabled           BOOLEAN NOT NULL DEFAULT TRUE,
			next_run_at       TIMESTAMP WITH TIME ZONE,
			last_run_at       TIMESTAMP WITH TIME ZONE,
			last_execution_id TEXT NOT NULL DEFAULT '',
			end_date          TIMESTAMP WITH TIME ZONE,
			created_at        TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at        TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_schedules_due ON schedules (next_run_at) WHERE enabled;
	`,
}
