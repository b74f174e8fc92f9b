package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create runs",
		SQL: `
			CREATE TABLE runs (
				run_id       TEXT PRIMARY KEY,
				agent_id     TEXT NOT NULL,
				agent_name   TEXT NOT NULL DEFAULT '',
				agent_type   TEXT NOT NULL,
				status       TEXT NOT NULL,
				attempts     INTEGER NOT NULL,
				error_code   TEXT NOT NULL DEFAULT '',
				error        TEXT NOT NULL DEFAULT '',
				started_at   INTEGER NOT NULL,
				finished_at  INTEGER NOT NULL,
				duration_ms  INTEGER NOT NULL
			);

			CREATE INDEX idx_runs_agent ON runs (agent_id, started_at);
			CREATE INDEX idx_runs_finished ON runs (finished_at);
		`,
	},
	{
		Version: 2,
		Name:    "index runs by type",
		SQL: `
			CREATE INDEX idx_runs_type ON runs (agent_type, started_at);
		`,
	},
}
