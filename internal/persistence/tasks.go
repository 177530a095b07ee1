package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/researcher/internal/research"
)

const timeLayout = time.RFC3339Nano

// SaveTask upserts the full snapshot of task. Sources and records are
// replaced wholesale, so the row always mirrors the latest snapshot.
func (s *SQLiteStore) SaveTask(ctx context.Context, task research.Task) error {
	factors, err := json.Marshal(nonNil(task.Factors))
	if err != nil {
		return fmt.Errorf("failed to encode factors: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, state, original_query, working_query, factors, pending_question,
			rendered_output, error_detail, failure_kind, rounds, completeness, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			working_query = excluded.working_query,
			factors = excluded.factors,
			pending_question = excluded.pending_question,
			rendered_output = excluded.rendered_output,
			error_detail = excluded.error_detail,
			failure_kind = excluded.failure_kind,
			rounds = excluded.rounds,
			completeness = excluded.completeness,
			updated_at = excluded.updated_at
	`, task.ID, task.State.String(), task.OriginalQuery, task.WorkingQuery, string(factors), task.PendingQuestion,
		task.RenderedOutput, task.ErrorDetail, task.FailureKind, task.Rounds, task.Completeness,
		task.CreatedAt.UTC().Format(timeLayout), task.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_sources WHERE task_id = ?`, task.ID); err != nil {
		return fmt.Errorf("failed to delete old sources: %w", err)
	}
	for i, src := range task.VisitedSources {
		if _, err := tx.ExecContext(ctx, `INSERT INTO task_sources (task_id, position, source) VALUES (?, ?, ?)`,
			task.ID, i, src); err != nil {
			return fmt.Errorf("failed to insert source %s: %w", src, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_records WHERE task_id = ?`, task.ID); err != nil {
		return fmt.Errorf("failed to delete old records: %w", err)
	}
	for i, rec := range task.Records {
		fields, err := json.Marshal(nonNil(rec.Fields))
		if err != nil {
			return fmt.Errorf("failed to encode record %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_records (task_id, position, subject_name, source_ref, fields)
			VALUES (?, ?, ?, ?, ?)
		`, task.ID, i, rec.SubjectName, rec.SourceRef, string(fields)); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetTask loads one task snapshot. Unknown ids return research.ErrNotFound.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (research.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, state, original_query, working_query, factors, pending_question, rendered_output,
			error_detail, failure_kind, rounds, completeness, created_at, updated_at
		FROM tasks WHERE id = ?
	`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return research.Task{}, fmt.Errorf("%w: %s", research.ErrNotFound, id)
	}
	if err != nil {
		return research.Task{}, err
	}

	if err := s.loadChildren(ctx, &task); err != nil {
		return research.Task{}, err
	}
	return task, nil
}

// ListTasks returns every archived task, oldest first.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]research.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, state, original_query, working_query, factors, pending_question, rendered_output,
			error_detail, failure_kind, rounds, completeness, created_at, updated_at
		FROM tasks ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	var tasks []research.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	rows.Close()

	// Children are loaded after the cursor is closed; the in-memory store
	// runs on a single connection.
	for i := range tasks {
		if err := s.loadChildren(ctx, &tasks[i]); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// DeleteTask removes a task and its sources and records.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", research.ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (research.Task, error) {
	var (
		task                 research.Task
		state, factors       string
		createdAt, updatedAt string
	)
	err := row.Scan(&task.ID, &state, &task.OriginalQuery, &task.WorkingQuery, &factors, &task.PendingQuestion,
		&task.RenderedOutput, &task.ErrorDetail, &task.FailureKind, &task.Rounds, &task.Completeness,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return research.Task{}, err
		}
		return research.Task{}, fmt.Errorf("failed to scan task: %w", err)
	}

	s, ok := research.ParseState(state)
	if !ok {
		return research.Task{}, fmt.Errorf("task %s: unknown state %q", task.ID, state)
	}
	task.State = s

	if err := json.Unmarshal([]byte(factors), &task.Factors); err != nil {
		return research.Task{}, fmt.Errorf("task %s: decode factors: %w", task.ID, err)
	}
	if task.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return research.Task{}, fmt.Errorf("task %s: created_at: %w", task.ID, err)
	}
	if task.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return research.Task{}, fmt.Errorf("task %s: updated_at: %w", task.ID, err)
	}
	return task, nil
}

func (s *SQLiteStore) loadChildren(ctx context.Context, task *research.Task) error {
	rows, err := s.db.QueryContext(ctx, `SELECT source FROM task_sources WHERE task_id = ? ORDER BY position`, task.ID)
	if err != nil {
		return fmt.Errorf("failed to query sources: %w", err)
	}
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan source: %w", err)
		}
		task.VisitedSources = append(task.VisitedSources, src)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to iterate sources: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `SELECT subject_name, source_ref, fields FROM task_records WHERE task_id = ? ORDER BY position`, task.ID)
	if err != nil {
		return fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			rec    research.Record
			fields string
		)
		if err := rows.Scan(&rec.SubjectName, &rec.SourceRef, &fields); err != nil {
			return fmt.Errorf("failed to scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
			return fmt.Errorf("task %s: decode record fields: %w", task.ID, err)
		}
		task.Records = append(task.Records, rec)
	}
	return rows.Err()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
