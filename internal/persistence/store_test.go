package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/researcher/internal/research"
)

// testStore creates an in-memory store for testing and registers cleanup.
func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewMemoryStore(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func sampleTask(id string, created time.Time) research.Task {
	return research.Task{
		ID:             id,
		State:          research.StateCompleted,
		OriginalQuery:  "CRM software",
		WorkingQuery:   "top CRM software for small businesses",
		Factors:        []string{"pricing", "integrations"},
		VisitedSources: []string{"https://a.example", "https://b.example"},
		Records: []research.Record{
			{
				SubjectName: "Acme",
				SourceRef:   "https://a.example",
				Fields: []research.Field{
					{Name: "pricing", Value: "$12/user"},
					{Name: "integrations", Value: "Slack"},
				},
			},
			{
				SubjectName: "Beta",
				SourceRef:   "https://b.example",
				Fields: []research.Field{
					{Name: "pricing", Value: "Free"},
					{Name: "integrations", Value: research.NotFound},
				},
			},
		},
		RenderedOutput: "Product Name,Pricing,Integrations\n",
		Rounds:         2,
		Completeness:   0.75,
		CreatedAt:      created,
		UpdatedAt:      created.Add(90 * time.Second),
	}
}

func assertSameTask(t *testing.T, want, got research.Task) {
	t.Helper()
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", want.CreatedAt, got.CreatedAt)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updated_at %v != %v", want.UpdatedAt, got.UpdatedAt)
	want.CreatedAt, got.CreatedAt = time.Time{}, time.Time{}
	want.UpdatedAt, got.UpdatedAt = time.Time{}, time.Time{}
	assert.Equal(t, want, got)
}

func TestSaveAndGetTask(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	task := sampleTask("task-1", time.Date(2025, 3, 1, 10, 0, 0, 123456789, time.UTC))
	require.NoError(t, store.SaveTask(ctx, task))

	got, err := store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assertSameTask(t, task, got)
}

func TestSaveTaskReplacesSnapshot(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	task := sampleTask("task-1", time.Now())
	task.State = research.StateExtracting
	task.RenderedOutput = ""
	task.Records = task.Records[:1]
	task.VisitedSources = task.VisitedSources[:1]
	require.NoError(t, store.SaveTask(ctx, task))

	task.State = research.StateFailed
	task.ErrorDetail = "insufficient data"
	task.FailureKind = research.KindInsufficientData
	task.Records = nil
	task.VisitedSources = []string{"https://a.example", "https://b.example", "https://c.example"}
	require.NoError(t, store.SaveTask(ctx, task))

	got, err := store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, research.StateFailed, got.State)
	assert.Equal(t, "insufficient data", got.ErrorDetail)
	assert.Equal(t, research.KindInsufficientData, got.FailureKind)
	assert.Empty(t, got.Records)
	assert.Equal(t, task.VisitedSources, got.VisitedSources)

	tasks, err := store.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1, "saving twice must not duplicate the task")
}

func TestSaveTaskKeepsOriginalQuery(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	task := sampleTask("task-1", time.Now())
	require.NoError(t, store.SaveTask(ctx, task))

	task.OriginalQuery = "changed"
	require.NoError(t, store.SaveTask(ctx, task))

	got, err := store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "CRM software", got.OriginalQuery)
}

func TestGetTaskNotFound(t *testing.T) {
	store := testStore(t)

	_, err := store.GetTask(context.Background(), "missing")
	assert.ErrorIs(t, err, research.ErrNotFound)
}

func TestListTasksOldestFirst(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveTask(ctx, sampleTask("late", base.Add(2*time.Hour))))
	require.NoError(t, store.SaveTask(ctx, sampleTask("early", base)))
	require.NoError(t, store.SaveTask(ctx, sampleTask("middle", base.Add(time.Hour))))

	tasks, err := store.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "early", tasks[0].ID)
	assert.Equal(t, "middle", tasks[1].ID)
	assert.Equal(t, "late", tasks[2].ID)
	assert.Len(t, tasks[2].Records, 2, "children are loaded for every listed task")
}

func TestDeleteTaskCascades(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTask(ctx, sampleTask("task-1", time.Now())))
	require.NoError(t, store.DeleteTask(ctx, "task-1"))

	_, err := store.GetTask(ctx, "task-1")
	assert.ErrorIs(t, err, research.ErrNotFound)
	assert.ErrorIs(t, store.DeleteTask(ctx, "task-1"), research.ErrNotFound)

	var orphans int
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_records`).Scan(&orphans))
	assert.Zero(t, orphans)
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_sources`).Scan(&orphans))
	assert.Zero(t, orphans)
}

func TestMemoryStoresAreIsolated(t *testing.T) {
	a := testStore(t)
	b := testStore(t)
	ctx := context.Background()

	require.NoError(t, a.SaveTask(ctx, sampleTask("only-in-a", time.Now())))

	tasks, err := b.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "archive.db")

	store, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	task := sampleTask("task-1", time.Now())
	require.NoError(t, store.SaveTask(ctx, task))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assertSameTask(t, task, got)
}
