package scheduler

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/researcher/internal/metrics"
	"github.com/aristath/researcher/internal/research"
	"github.com/aristath/researcher/internal/stage"
)

// Outcome describes what happened to one source in a batch.
type Outcome struct {
	Source string
	Status string // One of the metrics.Outcome* labels
	Err    error  // Set when Status is metrics.OutcomeFailed
}

// Batch is the joined result of one fan-out run.
type Batch struct {
	Records   []research.Record // Accepted records, in completion order
	Attempted []string          // Sources whose extraction was started, in input order
	Outcomes  []Outcome         // One per input source
}

// Accepted returns how many records the batch accepted.
func (b Batch) Accepted() int {
	return len(b.Records)
}

// ExecutorConfig configures the fan-out executor.
type ExecutorConfig struct {
	Concurrency int           // Max concurrent extractions, 0 means one goroutine per source
	OnOutcome   func(Outcome) // Optional, called once per source after it settles
	Logger      *zap.Logger   // Optional, defaults to a no-op logger
}

// Executor fans extraction out across sources and joins on all of them.
// It never mutates a task; callers merge Batch results themselves.
type Executor struct {
	extractor stage.Extractor
	config    ExecutorConfig
	logger    *zap.Logger
}

// NewExecutor creates a new Executor.
func NewExecutor(extractor stage.Extractor, cfg ExecutorConfig) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		extractor: extractor,
		config:    cfg,
		logger:    logger,
	}
}

// Run extracts every source concurrently. When needed > 0 at most needed
// records are accepted: extractions that have not started once the bound is
// reached are skipped and late results beyond it are discarded. A per-source
// failure is recorded in its Outcome and never fails the batch.
func (e *Executor) Run(ctx context.Context, sources []string, factors []string, needed int) Batch {
	var (
		mu       sync.Mutex
		accepted []research.Record
		started  = make([]bool, len(sources))
		outcomes = make([]Outcome, len(sources))
	)

	full := func() bool {
		return needed > 0 && len(accepted) >= needed
	}

	g := new(errgroup.Group)
	if e.config.Concurrency > 0 {
		g.SetLimit(e.config.Concurrency)
	}

	for i, source := range sources {
		g.Go(func() error {
			mu.Lock()
			if full() {
				mu.Unlock()
				e.settle(&outcomes[i], Outcome{Source: source, Status: metrics.OutcomeSkipped})
				return nil
			}
			started[i] = true
			mu.Unlock()

			out := e.extractOne(ctx, source, factors, func(rec research.Record) bool {
				mu.Lock()
				defer mu.Unlock()
				if full() {
					return false
				}
				accepted = append(accepted, rec)
				return true
			})
			e.settle(&outcomes[i], out)
			return nil // Per-source failures never abort the batch
		})
	}
	_ = g.Wait()

	batch := Batch{Records: accepted, Outcomes: outcomes}
	for i, source := range sources {
		if started[i] {
			batch.Attempted = append(batch.Attempted, source)
		}
	}
	return batch
}

// extractOne runs a single extraction. keep reports whether the accepted
// record still fit under the bound.
func (e *Executor) extractOne(ctx context.Context, source string, factors []string, keep func(research.Record) bool) Outcome {
	if err := ctx.Err(); err != nil {
		return Outcome{Source: source, Status: metrics.OutcomeFailed, Err: err}
	}

	rec, err := e.extractor.Extract(ctx, source, factors)
	if err != nil {
		e.logger.Warn("extraction failed",
			zap.String("source", source),
			zap.Error(err))
		return Outcome{Source: source, Status: metrics.OutcomeFailed, Err: err}
	}

	rec.SubjectName = strings.TrimSpace(rec.SubjectName)
	if rec.SourceRef == "" {
		rec.SourceRef = source
	}

	if !rec.Acceptable(factors) {
		e.logger.Debug("record rejected",
			zap.String("source", source),
			zap.String("subject", rec.SubjectName),
			zap.Int("missing", rec.MissingCount(factors)),
			zap.Int("factors", len(factors)))
		return Outcome{Source: source, Status: metrics.OutcomeRejected}
	}

	if !keep(rec) {
		return Outcome{Source: source, Status: metrics.OutcomeSkipped}
	}
	return Outcome{Source: source, Status: metrics.OutcomeAccepted}
}

func (e *Executor) settle(slot *Outcome, out Outcome) {
	*slot = out
	metrics.ExtractionOutcomes.WithLabelValues(out.Status).Inc()
	if e.config.OnOutcome != nil {
		e.config.OnOutcome(out)
	}
}
