package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aristath/researcher/internal/events"
	"github.com/aristath/researcher/internal/metrics"
	"github.com/aristath/researcher/internal/research"
	"github.com/aristath/researcher/internal/scheduler"
	"github.com/aristath/researcher/internal/stage"
	"github.com/aristath/researcher/internal/store"
)

// DefaultQuestion is recorded when the clarifier asks for input without saying what.
const DefaultQuestion = "Please provide a more specific research query."

// PipelineConfig configures the pipeline driver.
type PipelineConfig struct {
	Gate           scheduler.GatePolicy
	Concurrency    int      // Max concurrent extractions per round, 0 for unbounded
	DefaultFactors []string // Used when clarification yields no factors
}

// Pipeline drives one task through its states. It is stateless between
// runs: everything it needs lives in the store.
type Pipeline struct {
	store  *store.Store
	stages stage.Set
	config PipelineConfig
	bus    *events.Bus
	logger *zap.Logger
}

// NewPipeline creates a pipeline over stages. Wrap stages with stage.Guard
// first so collaborator failures carry their stage name and time budget.
func NewPipeline(st *store.Store, stages stage.Set, cfg PipelineConfig, bus *events.Bus, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stages.Enricher == nil {
		stages.Enricher = stage.PassThroughEnricher{}
	}
	if cfg.Gate.MaxRounds <= 0 {
		cfg.Gate = scheduler.DefaultGatePolicy()
	}
	return &Pipeline{
		store:  st,
		stages: stages,
		config: cfg,
		bus:    bus,
		logger: logger,
	}
}

// Run drives task id from StateCreated or StateClarifying until it pauses
// for clarification or reaches a terminal state, and returns the last
// snapshot. The error is the cause when the task ended in StateFailed.
func (p *Pipeline) Run(ctx context.Context, id string) (research.Task, error) {
	task, ok := p.store.Get(id)
	if !ok {
		return research.Task{}, fmt.Errorf("%w: %s", research.ErrNotFound, id)
	}
	log := p.logger.With(zap.String("task_id", id))

	if task.State == research.StateCreated {
		var err error
		if task, err = p.move(task, research.StateClarifying, nil); err != nil {
			return task, err
		}
	}
	if task.State != research.StateClarifying {
		return task, fmt.Errorf("%w: cannot run a task in state %s", research.ErrInvalidState, task.State)
	}

	task, paused, err := p.clarify(ctx, task, log)
	if err != nil {
		return p.fail(task, err, log)
	}
	if paused {
		return task, nil
	}

	task, err = p.collect(ctx, task, log)
	if err != nil {
		return p.fail(task, err, log)
	}

	task, err = p.enrich(ctx, task, log)
	if err != nil {
		return p.fail(task, err, log)
	}

	task, err = p.render(task)
	if err != nil {
		return p.fail(task, err, log)
	}

	log.Info("task completed",
		zap.Int("records", len(task.Records)),
		zap.Int("rounds", task.Rounds),
		zap.Float64("completeness", task.Completeness))
	p.bus.Publish(events.TaskCompletedEvent{
		ID:        task.ID,
		Records:   len(task.Records),
		Rounds:    task.Rounds,
		Duration:  task.UpdatedAt.Sub(task.CreatedAt),
		Timestamp: time.Now(),
	})
	return task, nil
}

// clarify refines the working query. It either pauses the task or moves it
// to StateSearching with a non-empty factor list and an empty record list.
func (p *Pipeline) clarify(ctx context.Context, task research.Task, log *zap.Logger) (research.Task, bool, error) {
	out, err := p.stages.Clarifier.Clarify(ctx, task.WorkingQuery)
	if err != nil {
		return task, false, err
	}

	if out.NeedsInput {
		question := out.Question
		if question == "" {
			question = DefaultQuestion
		}
		task, err = p.move(task, research.StateAwaitingClarification, func(t *research.Task) {
			t.PendingQuestion = question
		})
		if err != nil {
			return task, false, err
		}
		log.Info("task paused for clarification", zap.String("question", question))
		p.bus.Publish(events.TaskPausedEvent{ID: task.ID, Question: question, Timestamp: time.Now()})
		return task, true, nil
	}

	factors := research.MergeFactors(task.Factors, out.Factors)
	if len(factors) == 0 {
		factors = research.MergeFactors(nil, p.config.DefaultFactors)
		if len(factors) > 0 {
			log.Info("using default comparison factors", zap.Strings("factors", factors))
		}
	}
	if len(factors) == 0 {
		return task, false, research.Upstream(stage.NameClarify, errors.New("no comparison factors"))
	}

	task, err = p.move(task, research.StateSearching, func(t *research.Task) {
		if out.Query != "" {
			t.WorkingQuery = out.Query
		}
		t.Factors = factors
		t.Records = nil
		t.Rounds = 0
		t.Completeness = 0
	})
	return task, false, err
}

// collect runs search and extraction rounds until the quality gate lets the
// task proceed. It leaves the task in StateExtracting with at least one record.
func (p *Pipeline) collect(ctx context.Context, task research.Task, log *zap.Logger) (research.Task, error) {
	gate := p.config.Gate

	for round := 1; ; round++ {
		rlog := log.With(zap.Int("round", round))

		candidates, err := p.stages.Searcher.Search(ctx, task.WorkingQuery, task.Factors)
		if err != nil {
			return task, err
		}
		fresh := scheduler.NewVisitedSet(task.VisitedSources).Filter(candidates)
		rlog.Debug("search finished",
			zap.Int("candidates", len(candidates)),
			zap.Int("new", len(fresh)))

		if task, err = p.move(task, research.StateExtracting, nil); err != nil {
			return task, err
		}

		batch := p.executor(task.ID, round).Run(ctx, fresh, task.Factors, gate.Remaining(len(task.Records)))

		var decision scheduler.Decision
		task, err = p.store.Update(task.ID, func(t *research.Task) error {
			visited := scheduler.NewVisitedSet(t.VisitedSources)
			visited.Add(batch.Attempted...)
			for _, r := range batch.Records {
				visited.Add(r.SourceRef)
			}
			t.VisitedSources = visited.Sources()
			t.Records = append(t.Records, batch.Records...)
			t.Rounds = round
			decision, t.Completeness = gate.Evaluate(round, t.Records, t.Factors)
			return nil
		})
		if err != nil {
			return task, err
		}

		metrics.Completeness.Observe(task.Completeness)
		rlog.Info("round finished",
			zap.Int("new_sources", len(fresh)),
			zap.Int("accepted", batch.Accepted()),
			zap.Int("records", len(task.Records)),
			zap.Float64("completeness", task.Completeness),
			zap.Stringer("decision", decision))
		p.bus.Publish(events.RoundCompletedEvent{
			ID:           task.ID,
			Round:        round,
			NewSources:   len(fresh),
			Accepted:     batch.Accepted(),
			Records:      len(task.Records),
			Completeness: task.Completeness,
			Decision:     decision.String(),
			Timestamp:    time.Now(),
		})

		switch decision {
		case scheduler.Proceed:
			metrics.RoundsPerTask.Observe(float64(round))
			return task, nil
		case scheduler.Insufficient:
			metrics.RoundsPerTask.Observe(float64(round))
			return task, fmt.Errorf("%w: no usable records after %d rounds", research.ErrInsufficientData, round)
		}

		if task, err = p.move(task, research.StateSearching, nil); err != nil {
			return task, err
		}
	}
}

func (p *Pipeline) executor(taskID string, round int) *scheduler.Executor {
	return scheduler.NewExecutor(p.stages.Extractor, scheduler.ExecutorConfig{
		Concurrency: p.config.Concurrency,
		Logger:      p.logger.With(zap.String("task_id", taskID), zap.Int("round", round)),
		OnOutcome: func(o scheduler.Outcome) {
			if o.Status != metrics.OutcomeFailed {
				return
			}
			p.bus.Publish(events.SourceFailedEvent{
				ID:        taskID,
				Round:     round,
				Source:    o.Source,
				Err:       o.Err.Error(),
				Timestamp: time.Now(),
			})
		},
	})
}

// enrich moves the task through StateProcessing to StateFormatting. An
// enrichment failure or malformed output keeps the extracted records.
func (p *Pipeline) enrich(ctx context.Context, task research.Task, log *zap.Logger) (research.Task, error) {
	task, err := p.move(task, research.StateProcessing, nil)
	if err != nil {
		return task, err
	}

	records := task.Records
	input := make([]research.Record, len(records))
	for i, r := range records {
		input[i] = r.Clone()
	}
	enriched, err := p.stages.Enricher.Enrich(ctx, input, task.Factors)
	if err == nil {
		enriched, err = checkEnriched(task.Records, enriched)
	}
	if err != nil {
		metrics.EnrichmentFallbacks.Inc()
		log.Warn("enrichment skipped, keeping extracted records", zap.Error(err))
		p.bus.Publish(events.EnrichmentDegradedEvent{ID: task.ID, Reason: err.Error(), Timestamp: time.Now()})
	} else {
		records = enriched
	}

	return p.move(task, research.StateFormatting, func(t *research.Task) {
		t.Records = records
		t.Completeness = scheduler.Completeness(records, t.Factors)
	})
}

// checkEnriched rejects enrichment output that changes the record count or
// drops a subject name. Source refs the enricher left blank are restored.
func checkEnriched(before, after []research.Record) ([]research.Record, error) {
	if len(after) != len(before) {
		return nil, fmt.Errorf("enricher returned %d records for %d", len(after), len(before))
	}
	out := make([]research.Record, len(after))
	for i, r := range after {
		r.SubjectName = strings.TrimSpace(r.SubjectName)
		if r.SubjectName == "" {
			return nil, fmt.Errorf("enricher dropped the subject name of record %d", i)
		}
		if r.SourceRef == "" {
			r.SourceRef = before[i].SourceRef
		}
		out[i] = r.Clone()
	}
	return out, nil
}

func (p *Pipeline) render(task research.Task) (research.Task, error) {
	output, err := p.stages.Renderer.Render(task.Records, task.Factors)
	if err != nil {
		return task, fmt.Errorf("render report: %w", err)
	}
	return p.move(task, research.StateCompleted, func(t *research.Task) {
		t.RenderedOutput = output
	})
}

// move commits a transition from task's current state and publishes it.
func (p *Pipeline) move(task research.Task, to research.State, fn func(*research.Task)) (research.Task, error) {
	from := task.State
	next, err := p.store.Transition(task.ID, to, fn)
	if err != nil {
		return task, err
	}
	p.bus.Publish(events.StateChangedEvent{
		ID:        next.ID,
		From:      from.String(),
		To:        to.String(),
		Status:    store.StatusOf(to),
		Timestamp: time.Now(),
	})
	return next, nil
}

// fail records cause on the task and returns it.
func (p *Pipeline) fail(task research.Task, cause error, log *zap.Logger) (research.Task, error) {
	kind := research.FailureKind(cause)
	failed, err := p.move(task, research.StateFailed, func(t *research.Task) {
		t.ErrorDetail = cause.Error()
		t.FailureKind = kind
	})
	if err != nil {
		log.Error("could not record task failure",
			zap.NamedError("cause", cause),
			zap.Error(err))
		return task, cause
	}

	log.Warn("task failed", zap.String("kind", kind), zap.Error(cause))
	p.bus.Publish(events.TaskFailedEvent{
		ID:        failed.ID,
		Detail:    failed.ErrorDetail,
		Kind:      kind,
		Duration:  failed.UpdatedAt.Sub(failed.CreatedAt),
		Timestamp: time.Now(),
	})
	return failed, cause
}
