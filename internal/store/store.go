// Package store holds research tasks in memory and enforces their lifecycle
// invariants on every write.
package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aristath/researcher/internal/research"
)

// Archive receives a snapshot after every successful write.
type Archive interface {
	SaveTask(ctx context.Context, task research.Task) error
}

// Options configures a Store. Every field is optional.
type Options struct {
	Archive        Archive
	ArchiveTimeout time.Duration // Per snapshot, default 5s
	Logger         *zap.Logger
	Now            func() time.Time
	NewID          func() string
}

// Store is the in-memory task registry. Reads return deep copies; writes to a
// single task are serialized by a per-task lock.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*research.Task
	order []string // Creation order

	locks   *taskLocks
	archive Archive
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

// New creates an empty Store.
func New(opts Options) *Store {
	s := &Store{
		tasks:   make(map[string]*research.Task),
		locks:   newTaskLocks(),
		archive: opts.Archive,
		timeout: opts.ArchiveTimeout,
		logger:  opts.Logger,
		now:     opts.Now,
		newID:   opts.NewID,
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Create registers a new task in StateCreated.
func (s *Store) Create(query string, factors []string) (research.Task, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return research.Task{}, research.ErrEmptyQuery
	}

	task := research.NewTask(s.newID(), query, factors, s.now())

	s.mu.Lock()
	if _, exists := s.tasks[task.ID]; exists {
		s.mu.Unlock()
		return research.Task{}, fmt.Errorf("task with ID %q already exists", task.ID)
	}
	stored := task.Clone()
	s.tasks[task.ID] = &stored
	s.order = append(s.order, task.ID)
	s.mu.Unlock()

	s.save(task)
	return task, nil
}

// Get returns a snapshot of the task.
func (s *Store) Get(id string) (research.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return research.Task{}, false
	}
	return t.Clone(), true
}

// List returns snapshots of every task, oldest first.
func (s *Store) List() []research.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]research.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].Clone())
	}
	return out
}

// Recent returns up to limit snapshots, newest first. limit <= 0 returns all.
func (s *Store) Recent(limit int) []research.Task {
	all := s.List()
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]research.Task, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out
}

// Update applies fn to a copy of the task and commits it if fn succeeds and
// the result respects the task lifecycle. Terminal tasks reject every write.
func (s *Store) Update(id string, fn func(*research.Task) error) (research.Task, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	current, ok := s.Get(id)
	if !ok {
		return research.Task{}, fmt.Errorf("%w: %s", research.ErrNotFound, id)
	}
	if current.State.Terminal() {
		return current, fmt.Errorf("%w: task already %s", research.ErrInvalidState, current.State)
	}

	next := current.Clone()
	if err := fn(&next); err != nil {
		return current, err
	}
	if err := validate(current, next); err != nil {
		return current, err
	}
	next.UpdatedAt = s.now()

	stored := next.Clone()
	s.mu.Lock()
	s.tasks[id] = &stored
	s.mu.Unlock()

	s.save(next)
	return next, nil
}

// Transition moves the task to state and applies optional extra changes.
func (s *Store) Transition(id string, to research.State, fn func(*research.Task)) (research.Task, error) {
	return s.Update(id, func(t *research.Task) error {
		t.State = to
		if fn != nil {
			fn(t)
		}
		return nil
	})
}

// Resume accepts a refined query for a paused task and sends it back to
// StateClarifying. The caller restarts the worker.
func (s *Store) Resume(id, query string) (research.Task, error) {
	query = strings.TrimSpace(query)
	return s.Update(id, func(t *research.Task) error {
		if t.State != research.StateAwaitingClarification {
			return fmt.Errorf("%w: task is %s, not awaiting clarification", research.ErrInvalidState, t.State)
		}
		if query == "" {
			return research.ErrEmptyQuery
		}
		t.State = research.StateClarifying
		t.WorkingQuery = query
		t.PendingQuestion = ""
		return nil
	})
}

// validate checks the lifecycle invariants between two consecutive snapshots.
func validate(prev, next research.Task) error {
	if next.ID != prev.ID || next.OriginalQuery != prev.OriginalQuery {
		return fmt.Errorf("%w: task identity is immutable", research.ErrInvalidState)
	}
	if next.State != prev.State {
		if err := research.CheckTransition(prev.State, next.State); err != nil {
			return err
		}
	}
	if !isPrefix(prev.VisitedSources, next.VisitedSources) {
		return fmt.Errorf("%w: visited sources can only grow", research.ErrInvalidState)
	}
	if next.State == research.StateSearching && len(next.Factors) == 0 {
		return fmt.Errorf("%w: searching without comparison factors", research.ErrInvalidState)
	}

	switch {
	case (next.RenderedOutput != "") != (next.State == research.StateCompleted):
		return fmt.Errorf("%w: rendered output is set exactly when completed", research.ErrInvalidState)
	case (next.ErrorDetail != "") != (next.State == research.StateFailed):
		return fmt.Errorf("%w: error detail is set exactly when failed", research.ErrInvalidState)
	case next.PendingQuestion != "" && next.State != research.StateAwaitingClarification:
		return fmt.Errorf("%w: pending question outside a pause", research.ErrInvalidState)
	}
	return nil
}

func isPrefix(prefix, full []string) bool {
	if len(full) < len(prefix) {
		return false
	}
	for i, s := range prefix {
		if full[i] != s {
			return false
		}
	}
	return true
}

func (s *Store) save(task research.Task) {
	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.archive.SaveTask(ctx, task); err != nil {
		s.logger.Warn("archive write failed",
			zap.String("task_id", task.ID),
			zap.String("state", task.State.String()),
			zap.Error(err))
	}
}
