package stage

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/researcher/internal/metrics"
	"github.com/aristath/researcher/internal/research"
)

// Stage names used in errors, logs and metrics.
const (
	NameClarify = "clarify"
	NameSearch  = "search"
	NameExtract = "extract"
	NameEnrich  = "enrich"
	NameRender  = "render"
)

// Budgets bounds each stage call. Zero leaves the call unbounded.
type Budgets struct {
	Clarify time.Duration
	Search  time.Duration
	Extract time.Duration
	Enrich  time.Duration
}

// DefaultBudgets returns the per-call time budgets used when none are configured.
func DefaultBudgets() Budgets {
	return Budgets{
		Clarify: 60 * time.Second,
		Search:  30 * time.Second,
		Extract: 90 * time.Second,
		Enrich:  3 * time.Minute,
	}
}

// Guard wraps every collaborator of set with its time budget, converts
// collaborator failures into *research.UpstreamError and records metrics.
// Render errors are returned as-is since rendering is local.
func Guard(set Set, budgets Budgets) Set {
	enricher := set.Enricher
	if enricher == nil {
		enricher = PassThroughEnricher{}
	}
	return Set{
		Clarifier: guardedClarifier{next: set.Clarifier, budget: budgets.Clarify},
		Searcher:  guardedSearcher{next: set.Searcher, budget: budgets.Search},
		Extractor: guardedExtractor{next: set.Extractor, budget: budgets.Extract},
		Enricher:  guardedEnricher{next: enricher, budget: budgets.Enrich},
		Renderer:  guardedRenderer{next: set.Renderer},
	}
}

func withBudget(ctx context.Context, budget time.Duration) (context.Context, context.CancelFunc) {
	if budget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, budget)
}

// finish converts err and records the call. A call that returned without
// error after its budget expired is still reported as a timeout.
func finish(ctx context.Context, name string, start time.Time, err error) error {
	if err == nil && ctx.Err() == context.DeadlineExceeded {
		err = ctx.Err()
	}
	metrics.RecordStage(name, time.Since(start).Seconds(), err)
	// Cancellation comes from shutdown, not from the collaborator.
	if errors.Is(err, context.Canceled) {
		return err
	}
	return research.Upstream(name, err)
}

type guardedClarifier struct {
	next   Clarifier
	budget time.Duration
}

func (g guardedClarifier) Clarify(ctx context.Context, query string) (Clarification, error) {
	ctx, cancel := withBudget(ctx, g.budget)
	defer cancel()

	start := time.Now()
	out, err := g.next.Clarify(ctx, query)
	if err = finish(ctx, NameClarify, start, err); err != nil {
		return Clarification{}, err
	}
	return out, nil
}

type guardedSearcher struct {
	next   Searcher
	budget time.Duration
}

func (g guardedSearcher) Search(ctx context.Context, category string, factors []string) ([]string, error) {
	ctx, cancel := withBudget(ctx, g.budget)
	defer cancel()

	start := time.Now()
	out, err := g.next.Search(ctx, category, factors)
	if err = finish(ctx, NameSearch, start, err); err != nil {
		return nil, err
	}
	return out, nil
}

type guardedExtractor struct {
	next   Extractor
	budget time.Duration
}

func (g guardedExtractor) Extract(ctx context.Context, sourceID string, factors []string) (research.Record, error) {
	ctx, cancel := withBudget(ctx, g.budget)
	defer cancel()

	start := time.Now()
	out, err := g.next.Extract(ctx, sourceID, factors)
	if err = finish(ctx, NameExtract, start, err); err != nil {
		return research.Record{}, err
	}
	return out, nil
}

type guardedEnricher struct {
	next   Enricher
	budget time.Duration
}

func (g guardedEnricher) Enrich(ctx context.Context, records []research.Record, factors []string) ([]research.Record, error) {
	ctx, cancel := withBudget(ctx, g.budget)
	defer cancel()

	start := time.Now()
	out, err := g.next.Enrich(ctx, records, factors)
	if err = finish(ctx, NameEnrich, start, err); err != nil {
		return nil, err
	}
	return out, nil
}

type guardedRenderer struct {
	next Renderer
}

func (g guardedRenderer) Render(records []research.Record, factors []string) (string, error) {
	start := time.Now()
	out, err := g.next.Render(records, factors)
	metrics.RecordStage(NameRender, time.Since(start).Seconds(), err)
	return out, err
}
