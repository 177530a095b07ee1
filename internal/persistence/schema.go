package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		original_query TEXT NOT NULL,
		working_query TEXT NOT NULL,
		factors TEXT NOT NULL,
		pending_question TEXT NOT NULL DEFAULT '',
		rendered_output TEXT NOT NULL DEFAULT '',
		error_detail TEXT NOT NULL DEFAULT '',
		failure_kind TEXT NOT NULL DEFAULT '',
		rounds INTEGER NOT NULL DEFAULT 0,
		completeness REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);

	CREATE TABLE IF NOT EXISTS task_sources (
		task_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		source TEXT NOT NULL,
		PRIMARY KEY (task_id, position),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS task_records (
		task_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		subject_name TEXT NOT NULL,
		source_ref TEXT NOT NULL DEFAULT '',
		fields TEXT NOT NULL,
		PRIMARY KEY (task_id, position),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
