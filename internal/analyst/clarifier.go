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

const clarifySystem = `You are a procurement analysis expert. You evaluate a user's query about a software product category and clarify it for a search engine.
1. Analyze: decide whether the query is specific enough (for example "CRM software" or "API gateways for microservices").
2. Clarify, don't change: when it is specific, make only minimal additive changes that improve it for search. Never change the core subject. "CICD platforms" may become "top CICD platforms for enterprise", never "CRM software".
3. Flag ambiguity: when the query is too broad (for example "software" or "tools"), set needs_clarification to true and write one question asking the user for more detail.
Reply with a single JSON object and nothing else:
{"clarified_query": string, "needs_clarification": bool, "question": string, "comparison_factors": [string]}`

type clarifyReply struct {
	ClarifiedQuery     string   `json:"clarified_query"`
	NeedsClarification bool     `json:"needs_clarification"`
	Question           string   `json:"question"`
	ComparisonFactors  []string `json:"comparison_factors"`
}

// Clarifier refines queries with a language model.
type Clarifier struct {
	backend backend.Backend
	generic []string
	logger  *zap.Logger
}

var _ stage.Clarifier = (*Clarifier)(nil)

// NewClarifier creates a clarifier. When generic is non-empty it replaces
// the factors the model suggests for every specific query.
func NewClarifier(b backend.Backend, generic []string, logger *zap.Logger) *Clarifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Clarifier{
		backend: b,
		generic: research.MergeFactors(nil, generic),
		logger:  logger,
	}
}

// Clarify evaluates query. A query the model cannot parse counts as a failure.
func (c *Clarifier) Clarify(ctx context.Context, query string) (stage.Clarification, error) {
	var reply clarifyReply
	prompt := fmt.Sprintf("Evaluate and refine the following product query: '%s'", query)
	if err := ask(ctx, c.backend, clarifySystem, prompt, &reply); err != nil {
		return stage.Clarification{}, fmt.Errorf("clarify query: %w", err)
	}

	if reply.NeedsClarification {
		return stage.Clarification{
			NeedsInput: true,
			Question:   strings.TrimSpace(reply.Question),
		}, nil
	}

	refined := strings.TrimSpace(reply.ClarifiedQuery)
	if refined == "" {
		refined = query
	}

	factors := c.generic
	if len(factors) == 0 {
		factors = research.MergeFactors(nil, reply.ComparisonFactors)
	}
	c.logger.Debug("query clarified",
		zap.String("query", query),
		zap.String("refined", refined),
		zap.Strings("factors", factors))

	return stage.Clarification{
		Query:   refined,
		Factors: append([]string(nil), factors...),
	}, nil
}
