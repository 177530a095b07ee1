package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aristath/researcher/internal/research"
)

type recordingArchive struct {
	mu    sync.Mutex
	saved []research.Task
	err   error
}

func (a *recordingArchive) SaveTask(_ context.Context, task research.Task) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved = append(a.saved, task)
	return a.err
}

func (a *recordingArchive) states() []research.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]research.State, len(a.saved))
	for i, t := range a.saved {
		out[i] = t.State
	}
	return out
}

func newTestStore(t *testing.T, archive Archive) *Store {
	t.Helper()
	n := 0
	return New(Options{
		Archive: archive,
		Logger:  zaptest.NewLogger(t),
		Now:     func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
		NewID: func() string {
			n++
			return fmt.Sprintf("task-%d", n)
		},
	})
}

// walk drives a task through states in order, failing the test on any error.
func walk(t *testing.T, s *Store, id string, states ...research.State) {
	t.Helper()
	for _, st := range states {
		_, err := s.Transition(id, st, nil)
		require.NoError(t, err, "transition to %s", st)
	}
}

func TestCreate(t *testing.T) {
	s := newTestStore(t, nil)

	task, err := s.Create("  CRM tools  ", []string{"Price", "price", "Seats"})
	require.NoError(t, err)
	assert.Equal(t, "task-1", task.ID)
	assert.Equal(t, research.StateCreated, task.State)
	assert.Equal(t, "CRM tools", task.OriginalQuery)
	assert.Equal(t, []string{"Price", "Seats"}, task.Factors)

	_, err = s.Create("   ", nil)
	assert.ErrorIs(t, err, research.ErrEmptyQuery)
}

func TestGetReturnsCopies(t *testing.T) {
	s := newTestStore(t, nil)
	task, err := s.Create("q", []string{"a"})
	require.NoError(t, err)

	got, ok := s.Get(task.ID)
	require.True(t, ok)
	got.Factors[0] = "mutated"

	again, _ := s.Get(task.ID)
	assert.Equal(t, "a", again.Factors[0])

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestUpdateUnknownTask(t *testing.T) {
	s := newTestStore(t, nil)
	_, err := s.Update("nope", func(*research.Task) error { return nil })
	assert.ErrorIs(t, err, research.ErrNotFound)
}

func TestUpdateRejectsIllegalTransition(t *testing.T) {
	s := newTestStore(t, nil)
	task, _ := s.Create("q", []string{"a"})

	_, err := s.Transition(task.ID, research.StateExtracting, nil)
	assert.ErrorIs(t, err, research.ErrInvalidState)

	got, _ := s.Get(task.ID)
	assert.Equal(t, research.StateCreated, got.State, "rejected write must not change the task")
}

func TestUpdateFnErrorDiscardsChanges(t *testing.T) {
	s := newTestStore(t, nil)
	task, _ := s.Create("q", []string{"a"})
	boom := errors.New("boom")

	_, err := s.Update(task.ID, func(t *research.Task) error {
		t.WorkingQuery = "changed"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, _ := s.Get(task.ID)
	assert.Equal(t, "q", got.WorkingQuery)
}

func TestTerminalTasksRejectWrites(t *testing.T) {
	s := newTestStore(t, nil)
	task, _ := s.Create("q", []string{"a"})
	_, err := s.Transition(task.ID, research.StateFailed, func(t *research.Task) {
		t.ErrorDetail = "search: upstream failure"
	})
	require.NoError(t, err)

	_, err = s.Update(task.ID, func(t *research.Task) error {
		t.WorkingQuery = "late"
		return nil
	})
	assert.ErrorIs(t, err, research.ErrInvalidState)
}

func TestExactlyOneOfRunningOutputError(t *testing.T) {
	s := newTestStore(t, nil)
	task, _ := s.Create("q", []string{"a"})
	walk(t, s, task.ID, research.StateClarifying, research.StateSearching, research.StateExtracting)

	_, err := s.Transition(task.ID, research.StateProcessing, func(t *research.Task) {
		t.RenderedOutput = "too early"
	})
	assert.ErrorIs(t, err, research.ErrInvalidState)

	_, err = s.Transition(task.ID, research.StateProcessing, func(t *research.Task) {
		t.ErrorDetail = "not failed"
	})
	assert.ErrorIs(t, err, research.ErrInvalidState)

	walk(t, s, task.ID, research.StateProcessing, research.StateFormatting)
	_, err = s.Transition(task.ID, research.StateCompleted, nil)
	assert.ErrorIs(t, err, research.ErrInvalidState, "completing without output")

	done, err := s.Transition(task.ID, research.StateCompleted, func(t *research.Task) {
		t.RenderedOutput = "Product Name,A\n"
	})
	require.NoError(t, err)
	assert.False(t, done.Running())
	assert.NotEmpty(t, done.RenderedOutput)
	assert.Empty(t, done.ErrorDetail)
}

func TestVisitedSourcesOnlyGrow(t *testing.T) {
	s := newTestStore(t, nil)
	task, _ := s.Create("q", []string{"a"})

	_, err := s.Update(task.ID, func(t *research.Task) error {
		t.VisitedSources = []string{"x", "y"}
		return nil
	})
	require.NoError(t, err)

	_, err = s.Update(task.ID, func(t *research.Task) error {
		t.VisitedSources = []string{"y"}
		return nil
	})
	assert.ErrorIs(t, err, research.ErrInvalidState)
}

func TestSearchingRequiresFactors(t *testing.T) {
	s := newTestStore(t, nil)
	task, _ := s.Create("q", nil)
	walk(t, s, task.ID, research.StateClarifying)

	_, err := s.Transition(task.ID, research.StateSearching, nil)
	assert.ErrorIs(t, err, research.ErrInvalidState)
}

func TestResume(t *testing.T) {
	s := newTestStore(t, nil)
	task, _ := s.Create("tools", nil)

	_, err := s.Resume(task.ID, "CRM tools for startups")
	assert.ErrorIs(t, err, research.ErrInvalidState, "resume before pausing")

	walk(t, s, task.ID, research.StateClarifying)
	_, err = s.Transition(task.ID, research.StateAwaitingClarification, func(t *research.Task) {
		t.PendingQuestion = "Which kind of tools?"
	})
	require.NoError(t, err)

	_, err = s.Resume("unknown", "x")
	assert.ErrorIs(t, err, research.ErrNotFound)

	_, err = s.Resume(task.ID, " ")
	assert.ErrorIs(t, err, research.ErrEmptyQuery)
	paused, _ := s.Get(task.ID)
	assert.Equal(t, research.StateAwaitingClarification, paused.State, "blank query keeps the pause")

	resumed, err := s.Resume(task.ID, "CRM tools for startups")
	require.NoError(t, err)
	assert.Equal(t, task.ID, resumed.ID)
	assert.Equal(t, research.StateClarifying, resumed.State)
	assert.Equal(t, "CRM tools for startups", resumed.WorkingQuery)
	assert.Equal(t, "tools", resumed.OriginalQuery)
	assert.Empty(t, resumed.PendingQuestion)

	_, err = s.Resume(task.ID, "again")
	assert.ErrorIs(t, err, research.ErrInvalidState, "double resume")
}

func TestResumeChecksTaskBeforeQuery(t *testing.T) {
	s := newTestStore(t, nil)
	task, _ := s.Create("tools", nil)

	_, err := s.Resume("unknown", "  ")
	assert.ErrorIs(t, err, research.ErrNotFound, "unknown id wins over a blank query")
	assert.NotErrorIs(t, err, research.ErrEmptyQuery)

	_, err = s.Resume(task.ID, "")
	assert.ErrorIs(t, err, research.ErrInvalidState, "non-paused task wins over a blank query")
	assert.NotErrorIs(t, err, research.ErrEmptyQuery)

	current, ok := s.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, research.StateCreated, current.State)
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	s := newTestStore(t, nil)
	task, _ := s.Create("q", []string{"a"})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(task.ID, func(t *research.Task) error {
				t.VisitedSources = append(t.VisitedSources, fmt.Sprintf("src-%d", i))
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, _ := s.Get(task.ID)
	assert.Len(t, got.VisitedSources, 50)
}

func TestArchiveReceivesEveryWrite(t *testing.T) {
	archive := &recordingArchive{}
	s := newTestStore(t, archive)
	task, _ := s.Create("q", []string{"a"})
	walk(t, s, task.ID, research.StateClarifying, research.StateSearching)

	assert.Equal(t, []research.State{
		research.StateCreated,
		research.StateClarifying,
		research.StateSearching,
	}, archive.states())
}

func TestArchiveFailureDoesNotFailWrite(t *testing.T) {
	archive := &recordingArchive{err: errors.New("disk full")}
	s := newTestStore(t, archive)
	task, err := s.Create("q", []string{"a"})
	require.NoError(t, err)

	_, err = s.Transition(task.ID, research.StateClarifying, nil)
	assert.NoError(t, err)
}

func TestListAndRecent(t *testing.T) {
	s := newTestStore(t, nil)
	for _, q := range []string{"one", "two", "three"} {
		_, err := s.Create(q, nil)
		require.NoError(t, err)
	}

	all := s.List()
	require.Len(t, all, 3)
	assert.Equal(t, "one", all[0].OriginalQuery)

	recent := s.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "three", recent[0].OriginalQuery)
	assert.Equal(t, "two", recent[1].OriginalQuery)
	assert.Len(t, s.Recent(0), 3)
}
