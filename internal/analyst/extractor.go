package analyst

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aristath/researcher/internal/backend"
	"github.com/aristath/researcher/internal/research"
	"github.com/aristath/researcher/internal/stage"
)

// DefaultMaxPageRunes caps how much page text goes into one prompt.
const DefaultMaxPageRunes = 10000

const extractSystem = `You are a data extraction expert. Analyze the provided text and extract specific information.
For each factor give a value between 1 and 5 words. Be extremely concise; for lists of features give only the top 3-4 keywords.
If you cannot find information for a factor, the value must be "Not found".
Reply with a single JSON object and nothing else:
{"product_name": string, "factors": [{"name": string, "value": string}]}`

// PageFetcher returns the readable text of a page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type extractReply struct {
	ProductName string           `json:"product_name"`
	Factors     []research.Field `json:"factors"`
}

// Extractor fetches a source page and has a language model fill in the
// requested factors.
type Extractor struct {
	backend  backend.Backend
	fetcher  PageFetcher
	maxRunes int
	logger   *zap.Logger
}

var _ stage.Extractor = (*Extractor)(nil)

// NewExtractor creates an extractor. maxRunes <= 0 uses DefaultMaxPageRunes.
func NewExtractor(b backend.Backend, fetcher PageFetcher, maxRunes int, logger *zap.Logger) *Extractor {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxPageRunes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{backend: b, fetcher: fetcher, maxRunes: maxRunes, logger: logger}
}

// Extract returns one record for the page at sourceID. The record has one
// field per requested factor, in request order.
func (e *Extractor) Extract(ctx context.Context, sourceID string, factors []string) (research.Record, error) {
	text, err := e.fetcher.Fetch(ctx, sourceID)
	if err != nil {
		return research.Record{}, fmt.Errorf("fetch %s: %w", sourceID, err)
	}
	if strings.TrimSpace(text) == "" {
		return research.Record{}, fmt.Errorf("fetch %s: page has no text", sourceID)
	}

	prompt := fmt.Sprintf("From the following text, extract the product name and the information for these factors: %s.\n\n--- Page Content ---\n%s\n--- End Content ---",
		strings.Join(factors, ", "), truncateRunes(text, e.maxRunes))

	var reply extractReply
	if err := ask(ctx, e.backend, extractSystem, prompt, &reply); err != nil {
		return research.Record{}, fmt.Errorf("extract %s: %w", sourceID, err)
	}

	rec := research.Record{
		SubjectName: subjectName(reply.ProductName),
		Fields:      alignFields(reply.Factors, factors),
		SourceRef:   sourceID,
	}
	e.logger.Debug("page extracted",
		zap.String("source", sourceID),
		zap.String("subject", rec.SubjectName),
		zap.Int("filled", rec.FilledCount(factors)))
	return rec, nil
}

// alignFields maps the model's fields onto factors. Factors the model
// skipped or left blank get the not-found placeholder; extra fields are dropped.
func alignFields(got []research.Field, factors []string) []research.Field {
	byName := research.Record{Fields: got}
	fields := make([]research.Field, len(factors))
	for i, factor := range factors {
		v, ok := byName.Value(factor)
		v = strings.TrimSpace(v)
		if !ok || research.IsNotFound(v) {
			v = research.NotFound
		}
		fields[i] = research.Field{Name: factor, Value: v}
	}
	return fields
}

// subjectName treats placeholder names as no name at all.
func subjectName(name string) string {
	name = strings.TrimSpace(name)
	switch strings.ToLower(name) {
	case "n/a", "na", "unknown", "none", strings.ToLower(research.NotFound):
		return ""
	}
	return name
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
