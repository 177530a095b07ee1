package store

import (
	"time"

	"github.com/aristath/researcher/internal/research"
)

// Client-facing statuses.
const (
	StatusRunning   = "running"
	StatusPaused    = "paused_for_clarification"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// StatusOf projects an internal state onto the client-facing status.
func StatusOf(state research.State) string {
	switch state {
	case research.StateAwaitingClarification:
		return StatusPaused
	case research.StateCompleted:
		return StatusCompleted
	case research.StateFailed:
		return StatusFailed
	default:
		return StatusRunning
	}
}

// View is the status snapshot returned to clients. Raw errors never leak
// into it, only the recorded detail.
type View struct {
	TaskID        string    `json:"task_id"`
	Status        string    `json:"status"`
	Stage         string    `json:"stage"`
	OriginalQuery string    `json:"original_query"`
	Query         string    `json:"query"`
	Factors       []string  `json:"comparison_factors"`
	Records       int       `json:"records"`
	Sources       int       `json:"sources_visited"`
	Rounds        int       `json:"rounds"`
	Completeness  float64   `json:"completeness"`
	Question      string    `json:"question,omitempty"`
	Result        string    `json:"result,omitempty"`
	ResultURL     string    `json:"result_url,omitempty"`
	Error         string    `json:"error,omitempty"`
	FailureKind   string    `json:"failure_kind,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ViewOf builds the client snapshot of t.
func ViewOf(t research.Task) View {
	v := View{
		TaskID:        t.ID,
		Status:        StatusOf(t.State),
		Stage:         t.State.String(),
		OriginalQuery: t.OriginalQuery,
		Query:         t.WorkingQuery,
		Factors:       append([]string{}, t.Factors...),
		Records:       len(t.Records),
		Sources:       len(t.VisitedSources),
		Rounds:        t.Rounds,
		Completeness:  t.Completeness,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	switch t.State {
	case research.StateAwaitingClarification:
		v.Question = t.PendingQuestion
	case research.StateCompleted:
		v.Result = t.RenderedOutput
		v.ResultURL = "/results/" + t.ID + ".csv"
	case research.StateFailed:
		v.Error = t.ErrorDetail
		v.FailureKind = t.FailureKind
	}
	return v
}

// View returns the client snapshot of task id.
func (s *Store) View(id string) (View, bool) {
	t, ok := s.Get(id)
	if !ok {
		return View{}, false
	}
	return ViewOf(t), true
}
