// Package persistence archives research task snapshots in SQLite.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aristath/researcher/internal/research"
)

// Archive is the read/write surface of the task archive.
type Archive interface {
	SaveTask(ctx context.Context, task research.Task) error
	GetTask(ctx context.Context, id string) (research.Task, error)
	ListTasks(ctx context.Context) ([]research.Task, error)
	DeleteTask(ctx context.Context, id string) error
	Close() error
}

// SQLiteStore implements Archive using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Archive = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the archive at dbPath with WAL
// journaling, a busy timeout and foreign keys enabled.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)", dbPath)
	return open(ctx, connStr, 2)
}

// NewMemoryStore creates an in-memory archive. Each call gets its own
// database, so tests never see each other's rows.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	// One connection keeps the shared in-memory database alive and
	// serializes writers.
	return open(ctx, connStr, 1)
}

func open(ctx context.Context, connStr string, maxConns int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(maxConns)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
