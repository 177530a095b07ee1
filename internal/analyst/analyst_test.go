package analyst

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aristath/researcher/internal/backend"
	"github.com/aristath/researcher/internal/research"
)

// mockBackend answers prompts through onSend and records every message.
type mockBackend struct {
	mu     sync.Mutex
	sent   []backend.Message
	onSend func(msg backend.Message) (string, error)
}

func (m *mockBackend) Name() string { return "mock" }

func (m *mockBackend) Send(ctx context.Context, msg backend.Message) (backend.Response, error) {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return backend.Response{}, err
	}
	content, err := m.onSend(msg)
	if err != nil {
		return backend.Response{}, err
	}
	return backend.Response{Content: content, Backend: "mock"}, nil
}

func (m *mockBackend) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func reply(s string) func(backend.Message) (string, error) {
	return func(backend.Message) (string, error) { return s, nil }
}

type pageFetcher map[string]string

func (p pageFetcher) Fetch(_ context.Context, url string) (string, error) {
	text, ok := p[url]
	if !ok {
		return "", errors.New("404 not found")
	}
	return text, nil
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", `{"question":"which?"}`, "which?", false},
		{"fenced", "```json\n{\"question\":\"fenced\"}\n```", "fenced", false},
		{"fence without language", "```\n{\"question\":\"bare\"}\n```", "bare", false},
		{"prose around", `Sure! Here you go: {"question":"prose"} Hope that helps.`, "prose", false},
		{"no object", "I cannot help with that.", "", true},
		{"broken", `{"question": }`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v struct {
				Question string `json:"question"`
			}
			err := decodeJSON(tt.input, &v)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Question)
		})
	}
}

func TestClarifier_SpecificQueryUsesGenericFactors(t *testing.T) {
	b := &mockBackend{onSend: reply(`{"clarified_query":"top CRM software for small businesses","needs_clarification":false,"comparison_factors":["ai suggestion"]}`)}
	c := NewClarifier(b, []string{"pricing", "integrations", "Pricing"}, zaptest.NewLogger(t))

	out, err := c.Clarify(context.Background(), "CRM software")
	require.NoError(t, err)
	assert.False(t, out.NeedsInput)
	assert.Equal(t, "top CRM software for small businesses", out.Query)
	assert.Equal(t, []string{"pricing", "integrations"}, out.Factors)

	require.Equal(t, 1, b.calls())
	assert.Contains(t, b.sent[0].Content, "'CRM software'")
	assert.Contains(t, b.sent[0].System, "Never change the core subject")
}

func TestClarifier_FallsBackToModelFactors(t *testing.T) {
	b := &mockBackend{onSend: reply(`{"clarified_query":"","needs_clarification":false,"comparison_factors":["price"," ","Price","support"]}`)}
	c := NewClarifier(b, nil, nil)

	out, err := c.Clarify(context.Background(), "CI/CD platforms")
	require.NoError(t, err)
	assert.Equal(t, "CI/CD platforms", out.Query, "blank refinement keeps the query")
	assert.Equal(t, []string{"price", "support"}, out.Factors)
}

func TestClarifier_AmbiguousQueryAsksQuestion(t *testing.T) {
	b := &mockBackend{onSend: reply("```json\n{\"clarified_query\":\"software\",\"needs_clarification\":true,\"question\":\" What kind of software? \"}\n```")}
	c := NewClarifier(b, []string{"pricing"}, nil)

	out, err := c.Clarify(context.Background(), "software")
	require.NoError(t, err)
	assert.True(t, out.NeedsInput)
	assert.Equal(t, "What kind of software?", out.Question)
	assert.Empty(t, out.Factors)
}

func TestClarifier_Errors(t *testing.T) {
	c := NewClarifier(&mockBackend{onSend: reply("no json here")}, nil, nil)
	_, err := c.Clarify(context.Background(), "CRM")
	assert.ErrorIs(t, err, errNoJSON)

	boom := errors.New("backend down")
	c = NewClarifier(&mockBackend{onSend: func(backend.Message) (string, error) { return "", boom }}, nil, nil)
	_, err = c.Clarify(context.Background(), "CRM")
	assert.ErrorIs(t, err, boom)
}

func TestExtractor_BuildsRecordInFactorOrder(t *testing.T) {
	b := &mockBackend{onSend: reply(`{"product_name":" Acme CRM ","factors":[{"name":"Integrations","value":"Slack, Gmail"},{"name":"pricing","value":"$12/user"},{"name":"extra","value":"dropped"}]}`)}
	fetch := pageFetcher{"https://acme.example": "Acme CRM costs $12 per user."}
	e := NewExtractor(b, fetch, 0, zaptest.NewLogger(t))

	rec, err := e.Extract(context.Background(), "https://acme.example", []string{"pricing", "integrations", "support"})
	require.NoError(t, err)

	assert.Equal(t, "Acme CRM", rec.SubjectName)
	assert.Equal(t, "https://acme.example", rec.SourceRef)
	assert.Equal(t, []research.Field{
		{Name: "pricing", Value: "$12/user"},
		{Name: "integrations", Value: "Slack, Gmail"},
		{Name: "support", Value: research.NotFound},
	}, rec.Fields)

	require.Equal(t, 1, b.calls())
	assert.Contains(t, b.sent[0].Content, "pricing, integrations, support")
	assert.Contains(t, b.sent[0].Content, "Acme CRM costs $12 per user.")
}

func TestExtractor_TruncatesPageText(t *testing.T) {
	b := &mockBackend{onSend: reply(`{"product_name":"X","factors":[]}`)}
	page := strings.Repeat("é", 50) + "TAIL"
	e := NewExtractor(b, pageFetcher{"u": page}, 50, nil)

	_, err := e.Extract(context.Background(), "u", []string{"pricing"})
	require.NoError(t, err)
	assert.Contains(t, b.sent[0].Content, strings.Repeat("é", 50))
	assert.NotContains(t, b.sent[0].Content, "TAIL")
}

func TestExtractor_PlaceholderNameIsBlank(t *testing.T) {
	b := &mockBackend{onSend: reply(`{"product_name":"N/A","factors":[{"name":"pricing","value":"$5"}]}`)}
	e := NewExtractor(b, pageFetcher{"u": "text"}, 0, nil)

	rec, err := e.Extract(context.Background(), "u", []string{"pricing"})
	require.NoError(t, err)
	assert.Empty(t, rec.SubjectName)
	assert.False(t, rec.Acceptable([]string{"pricing"}))
}

func TestExtractor_FetchFailures(t *testing.T) {
	b := &mockBackend{onSend: reply(`{}`)}
	e := NewExtractor(b, pageFetcher{"blank": "   \n"}, 0, nil)

	_, err := e.Extract(context.Background(), "missing", []string{"pricing"})
	assert.ErrorContains(t, err, "404")

	_, err = e.Extract(context.Background(), "blank", []string{"pricing"})
	assert.ErrorContains(t, err, "no text")

	assert.Zero(t, b.calls(), "the model is not asked about pages that could not be read")
}
