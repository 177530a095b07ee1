package research

import (
	"time"
)

// State is the pipeline state of a research task.
type State int

const (
	StateCreated               State = iota // Allocated, worker not started yet
	StateClarifying                         // Refining the query and factor list
	StateAwaitingClarification              // Paused until a human supplies a sharper query
	StateSearching                          // Looking up candidate sources
	StateExtracting                         // Fanning out per-source extraction
	StateProcessing                         // Enriching collected records
	StateFormatting                         // Rendering the report
	StateCompleted                          // Report rendered
	StateFailed                             // Terminal failure, see ErrorDetail
)

var stateNames = map[State]string{
	StateCreated:               "created",
	StateClarifying:            "clarifying",
	StateAwaitingClarification: "awaiting_clarification",
	StateSearching:             "searching",
	StateExtracting:            "extracting",
	StateProcessing:            "processing",
	StateFormatting:            "formatting",
	StateCompleted:             "completed",
	StateFailed:                "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transitions are accepted from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ParseState is the inverse of State.String.
func ParseState(name string) (State, bool) {
	for s, n := range stateNames {
		if n == name {
			return s, true
		}
	}
	return StateCreated, false
}

// Task is one end-to-end research job.
type Task struct {
	ID              string
	State           State
	OriginalQuery   string
	WorkingQuery    string
	Factors         []string // Insertion ordered, unique case-insensitively
	VisitedSources  []string // Ordered set, only grows
	Records         []Record
	RenderedOutput  string // Set only on StateCompleted
	ErrorDetail     string // Set only on StateFailed
	FailureKind     string
	PendingQuestion string // Set only while StateAwaitingClarification
	Rounds          int
	Completeness    float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewTask builds a task in StateCreated. Caller-supplied factors are
// deduplicated the same way clarified factors are.
func NewTask(id, query string, factors []string, now time.Time) Task {
	return Task{
		ID:            id,
		State:         StateCreated,
		OriginalQuery: query,
		WorkingQuery:  query,
		Factors:       MergeFactors(nil, factors),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Running reports whether the task has neither output nor error yet.
func (t Task) Running() bool {
	return !t.State.Terminal()
}

// Clone returns a deep copy so callers never share slices with the store.
func (t Task) Clone() Task {
	cp := t
	if t.Factors != nil {
		cp.Factors = append([]string(nil), t.Factors...)
	}
	if t.VisitedSources != nil {
		cp.VisitedSources = append([]string(nil), t.VisitedSources...)
	}
	if t.Records != nil {
		cp.Records = make([]Record, len(t.Records))
		for i, r := range t.Records {
			cp.Records[i] = r.Clone()
		}
	}
	return cp
}
