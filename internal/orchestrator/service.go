package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aristath/researcher/internal/events"
	"github.com/aristath/researcher/internal/metrics"
	"github.com/aristath/researcher/internal/research"
	"github.com/aristath/researcher/internal/store"
)

// Service is the entry point for clients: it creates tasks, starts one
// background worker per run and answers status queries.
type Service struct {
	store    *store.Store
	pipeline *Pipeline
	bus      *events.Bus
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	workers map[string]bool // Live workers by task id; true asks for another run
}

// NewService creates a service. Workers run under a context derived from
// parent and are cancelled by Shutdown.
func NewService(parent context.Context, st *store.Store, pipeline *Pipeline, bus *events.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		store:    st,
		pipeline: pipeline,
		bus:      bus,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		workers:  make(map[string]bool),
	}
}

// Submit creates a task and starts its worker. It returns as soon as the
// task is registered.
func (s *Service) Submit(query string, factors []string) (research.Task, error) {
	task, err := s.store.Create(query, factors)
	if err != nil {
		return research.Task{}, err
	}

	metrics.TasksSubmitted.Inc()
	s.logger.Info("task submitted",
		zap.String("task_id", task.ID),
		zap.String("query", task.OriginalQuery),
		zap.Strings("factors", task.Factors))
	s.bus.Publish(events.TaskSubmittedEvent{
		ID:        task.ID,
		Query:     task.OriginalQuery,
		Factors:   task.Factors,
		Timestamp: time.Now(),
	})

	s.start(task.ID)
	return task, nil
}

// Status returns the client view of a task.
func (s *Service) Status(id string) (store.View, error) {
	v, ok := s.store.View(id)
	if !ok {
		return store.View{}, fmt.Errorf("%w: %s", research.ErrNotFound, id)
	}
	return v, nil
}

// Resume answers a paused task's question and restarts its worker under the
// same task id.
func (s *Service) Resume(id, query string) (store.View, error) {
	task, err := s.store.Resume(id, query)
	if err != nil {
		return store.View{}, err
	}

	metrics.TasksResumed.Inc()
	s.logger.Info("task resumed",
		zap.String("task_id", id),
		zap.String("query", task.WorkingQuery))
	s.bus.Publish(events.StateChangedEvent{
		ID:        id,
		From:      research.StateAwaitingClarification.String(),
		To:        task.State.String(),
		Status:    store.StatusOf(task.State),
		Timestamp: time.Now(),
	})
	s.bus.Publish(events.TaskResumedEvent{ID: id, Query: task.WorkingQuery, Timestamp: time.Now()})

	s.start(id)
	return store.ViewOf(task), nil
}

// List returns up to limit task views, newest first. limit <= 0 returns all.
func (s *Service) List(limit int) []store.View {
	tasks := s.store.Recent(limit)
	views := make([]store.View, len(tasks))
	for i, t := range tasks {
		views[i] = store.ViewOf(t)
	}
	return views
}

// Result returns the rendered report of a completed task.
func (s *Service) Result(id string) (string, error) {
	task, ok := s.store.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", research.ErrNotFound, id)
	}
	if task.State != research.StateCompleted {
		return "", fmt.Errorf("%w: task is %s", research.ErrInvalidState, store.StatusOf(task.State))
	}
	return task.RenderedOutput, nil
}

// Wait blocks until every running worker has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown cancels running workers and waits for them until ctx expires.
// Tasks whose worker is cancelled end in StateFailed.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("workers still running: %w", ctx.Err())
	}
}

// start launches a worker for id. When one is still winding down, for
// example right after pausing, it is asked to run the pipeline again instead.
func (s *Service) start(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.workers[id]; running {
		s.workers[id] = true
		return
	}
	s.workers[id] = false
	s.wg.Add(1)
	go s.work(id)
}

func (s *Service) work(id string) {
	defer s.wg.Done()

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	for {
		s.runOnce(id)

		s.mu.Lock()
		if s.workers[id] {
			s.workers[id] = false
			s.mu.Unlock()
			continue
		}
		delete(s.workers, id)
		s.mu.Unlock()
		return
	}
}

func (s *Service) runOnce(id string) {
	start := time.Now()
	task, err := s.pipeline.Run(s.ctx, id)
	status := store.StatusOf(task.State)
	metrics.TaskDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	kind := ""
	if task.State == research.StateFailed {
		kind = task.FailureKind
	}
	metrics.TasksFinished.WithLabelValues(status, kind).Inc()

	if err != nil && task.State != research.StateFailed {
		s.logger.Error("worker stopped without recording a failure",
			zap.String("task_id", id),
			zap.String("state", task.State.String()),
			zap.Error(err))
	}
}
