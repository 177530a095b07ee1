// Package stage defines the collaborator contracts the pipeline calls into.
// Concrete providers live in other packages; the orchestrator only sees these.
package stage

import (
	"context"

	"github.com/aristath/researcher/internal/research"
)

// Clarification is the all-or-nothing result of a Clarify call.
type Clarification struct {
	Query      string
	Factors    []string
	NeedsInput bool
	Question   string
}

// Clarifier refines a raw query and proposes comparison factors.
type Clarifier interface {
	Clarify(ctx context.Context, query string) (Clarification, error)
}

// Searcher returns candidate source identifiers. An empty result is not an error.
type Searcher interface {
	Search(ctx context.Context, category string, factors []string) ([]string, error)
}

// Extractor turns one source into a Record.
type Extractor interface {
	Extract(ctx context.Context, sourceID string, factors []string) (research.Record, error)
}

// Enricher post-processes records. It may replace each record's fields wholesale.
type Enricher interface {
	Enrich(ctx context.Context, records []research.Record, factors []string) ([]research.Record, error)
}

// Renderer turns records into the final report text.
type Renderer interface {
	Render(records []research.Record, factors []string) (string, error)
}

// Set bundles one implementation of every stage.
type Set struct {
	Clarifier Clarifier
	Searcher  Searcher
	Extractor Extractor
	Enricher  Enricher // Optional; nil keeps records as extracted
	Renderer  Renderer
}

// PassThroughEnricher returns records unchanged.
type PassThroughEnricher struct{}

func (PassThroughEnricher) Enrich(_ context.Context, records []research.Record, _ []string) ([]research.Record, error) {
	return records, nil
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, sourceID string, factors []string) (research.Record, error)

func (f ExtractorFunc) Extract(ctx context.Context, sourceID string, factors []string) (research.Record, error) {
	return f(ctx, sourceID, factors)
}
