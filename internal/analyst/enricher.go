package analyst

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/researcher/internal/backend"
	"github.com/aristath/researcher/internal/research"
	"github.com/aristath/researcher/internal/stage"
)

// ProcessingKind says how the values of one factor are post-processed.
type ProcessingKind string

const (
	KindCategorize ProcessingKind = "categorize"
	KindProse      ProcessingKind = "summarize_prose"
	KindKeywords   ProcessingKind = "summarize_keywords"
	KindNone       ProcessingKind = "none"
)

// FactorPlan is the processing chosen for one factor.
type FactorPlan struct {
	Kind       ProcessingKind `json:"processing_type"`
	Categories []string       `json:"categories,omitempty"`
}

// minSummaryWords is the shortest value worth summarizing.
const minSummaryWords = 10

// complexFactors name factors whose values are kept verbatim. Pricing text
// loses its meaning when squeezed into a category or a few tags.
var complexFactors = []string{"pricing", "plan", "tier", "subscription"}

const planSystem = `You are a data analysis expert. Decide how to process a data field based on its name.
Choose one processing type: "categorize", "summarize_prose", "summarize_keywords" or "none".
- "categorize" for fields with a limited set of options (for example "Pricing Model" or "Open Source"); also give 3-5 sensible categories.
- "summarize_prose" for descriptive fields that should be one short sentence (for example "Key Use Case").
- "summarize_keywords" for fields listing several features where a few keywords summarize them well.
- "none" for everything else, especially identifiers or values that are already short.
Reply with a single JSON object and nothing else:
{"processing_type": string, "categories": [string]}`

// Enricher normalizes record values with a language model: categorical
// factors are mapped onto a small category set and long prose is summarized.
type Enricher struct {
	backend     backend.Backend
	concurrency int
	logger      *zap.Logger
}

var _ stage.Enricher = (*Enricher)(nil)

// NewEnricher creates an enricher running at most concurrency model calls
// at once; concurrency <= 0 means no limit.
func NewEnricher(b backend.Backend, concurrency int, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{backend: b, concurrency: concurrency, logger: logger}
}

// Enrich returns copies of records with processed values. A value whose
// processing fails keeps its original text; only cancellation fails the call.
func (e *Enricher) Enrich(ctx context.Context, records []research.Record, factors []string) ([]research.Record, error) {
	plans := e.Plan(ctx, factors)

	out := make([]research.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}

	g, gctx := errgroup.WithContext(ctx)
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i := range out {
		for j := range out[i].Fields {
			field := &out[i].Fields[j]
			plan, ok := plans[planKey(field.Name)]
			if !ok || !worthProcessing(plan, field.Value) {
				continue
			}
			g.Go(func() error {
				field.Value = e.process(gctx, field.Name, field.Value, plan)
				return nil
			})
		}
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Plan classifies every factor concurrently. A factor whose classification
// fails gets KindNone.
func (e *Enricher) Plan(ctx context.Context, factors []string) map[string]FactorPlan {
	var mu sync.Mutex
	plans := make(map[string]FactorPlan, len(factors))

	g := new(errgroup.Group)
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for _, factor := range factors {
		if isComplex(factor) {
			mu.Lock()
			plans[planKey(factor)] = FactorPlan{Kind: KindNone}
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			plan, err := e.classify(ctx, factor)
			if err != nil {
				e.logger.Warn("factor classification failed",
					zap.String("factor", factor),
					zap.Error(err))
				plan = FactorPlan{Kind: KindNone}
			}
			mu.Lock()
			plans[planKey(factor)] = plan
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return plans
}

func (e *Enricher) classify(ctx context.Context, factor string) (FactorPlan, error) {
	var plan FactorPlan
	if err := ask(ctx, e.backend, planSystem, fmt.Sprintf("Analyze this factor: '%s'", factor), &plan); err != nil {
		return FactorPlan{}, err
	}
	switch plan.Kind {
	case KindCategorize:
		if len(plan.Categories) == 0 {
			return FactorPlan{Kind: KindNone}, nil
		}
	case KindProse, KindKeywords, KindNone:
	default:
		return FactorPlan{}, fmt.Errorf("unknown processing type %q", plan.Kind)
	}
	return plan, nil
}

// process applies plan to value and falls back to value on any failure.
func (e *Enricher) process(ctx context.Context, factor, value string, plan FactorPlan) string {
	var (
		result string
		err    error
	)
	switch plan.Kind {
	case KindCategorize:
		result, err = e.categorize(ctx, value, plan.Categories)
	case KindProse:
		var reply struct {
			Summary string `json:"summary"`
		}
		err = ask(ctx, e.backend,
			`Summarize the text into a single concise sentence. Reply with JSON: {"summary": string}`,
			fmt.Sprintf("Text to summarize: '%s'", value), &reply)
		result = strings.TrimSpace(reply.Summary)
	case KindKeywords:
		var reply struct {
			Tags []string `json:"summary_tags"`
		}
		err = ask(ctx, e.backend,
			`Summarize the text into a list of 1-3 word descriptive keywords. Reply with JSON: {"summary_tags": [string]}`,
			fmt.Sprintf("Text to summarize: '%s'", value), &reply)
		result = joinTags(reply.Tags)
	default:
		return value
	}

	if err != nil || result == "" {
		e.logger.Debug("value processing skipped",
			zap.String("factor", factor),
			zap.String("kind", string(plan.Kind)),
			zap.Error(err))
		return value
	}
	return result
}

// categorize returns the category the model picked, spelled as in categories.
func (e *Enricher) categorize(ctx context.Context, value string, categories []string) (string, error) {
	var reply struct {
		Category string `json:"category"`
	}
	system := fmt.Sprintf(`Classify the text into one of these categories: %s. Reply with JSON: {"category": string}`,
		strings.Join(categories, ", "))
	if err := ask(ctx, e.backend, system, fmt.Sprintf("Text to classify: '%s'", value), &reply); err != nil {
		return "", err
	}
	for _, c := range categories {
		if strings.EqualFold(strings.TrimSpace(reply.Category), strings.TrimSpace(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("category %q not offered", reply.Category)
}

func worthProcessing(plan FactorPlan, value string) bool {
	if plan.Kind == KindNone || research.IsNotFound(value) {
		return false
	}
	if strings.Contains(strings.ToLower(value), "not applicable") {
		return false
	}
	if plan.Kind == KindProse || plan.Kind == KindKeywords {
		return len(strings.Fields(value)) >= minSummaryWords
	}
	return true
}

func isComplex(factor string) bool {
	name := strings.ToLower(factor)
	for _, kw := range complexFactors {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

func joinTags(tags []string) string {
	kept := tags[:0:0]
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, ", ")
}

func planKey(factor string) string {
	return strings.ToLower(strings.TrimSpace(factor))
}
