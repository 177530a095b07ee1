package events

import (
	"time"
)

// Event is the base interface for everything published on the bus.
type Event interface {
	EventType() string
	TaskID() string
	Topic() string
}

// Topic constants
const (
	TopicTask  = "task"
	TopicRound = "round"
)

// Event type constants
const (
	EventTypeTaskSubmitted      = "task.submitted"
	EventTypeStateChanged       = "task.state_changed"
	EventTypeTaskPaused         = "task.paused"
	EventTypeTaskResumed        = "task.resumed"
	EventTypeTaskCompleted      = "task.completed"
	EventTypeTaskFailed         = "task.failed"
	EventTypeEnrichmentDegraded = "task.enrichment_degraded"
	EventTypeRoundCompleted     = "round.completed"
	EventTypeSourceFailed       = "round.source_failed"
)

// TaskSubmittedEvent is published when a task is created.
type TaskSubmittedEvent struct {
	ID        string
	Query     string
	Factors   []string
	Timestamp time.Time
}

func (e TaskSubmittedEvent) EventType() string { return EventTypeTaskSubmitted }
func (e TaskSubmittedEvent) TaskID() string    { return e.ID }
func (e TaskSubmittedEvent) Topic() string     { return TopicTask }

// StateChangedEvent is published after every committed state transition.
type StateChangedEvent struct {
	ID        string
	From      string
	To        string
	Status    string
	Timestamp time.Time
}

func (e StateChangedEvent) EventType() string { return EventTypeStateChanged }
func (e StateChangedEvent) TaskID() string    { return e.ID }
func (e StateChangedEvent) Topic() string     { return TopicTask }

// TaskPausedEvent is published when a task waits for a clarified query.
type TaskPausedEvent struct {
	ID        string
	Question  string
	Timestamp time.Time
}

func (e TaskPausedEvent) EventType() string { return EventTypeTaskPaused }
func (e TaskPausedEvent) TaskID() string    { return e.ID }
func (e TaskPausedEvent) Topic() string     { return TopicTask }

// TaskResumedEvent is published when a paused task receives its answer.
type TaskResumedEvent struct {
	ID        string
	Query     string
	Timestamp time.Time
}

func (e TaskResumedEvent) EventType() string { return EventTypeTaskResumed }
func (e TaskResumedEvent) TaskID() string    { return e.ID }
func (e TaskResumedEvent) Topic() string     { return TopicTask }

// TaskCompletedEvent is published when the report is rendered.
type TaskCompletedEvent struct {
	ID        string
	Records   int
	Rounds    int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }
func (e TaskCompletedEvent) Topic() string     { return TopicTask }

// TaskFailedEvent is published when a task ends in failure.
type TaskFailedEvent struct {
	ID        string
	Detail    string
	Kind      string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }
func (e TaskFailedEvent) Topic() string     { return TopicTask }

// EnrichmentDegradedEvent is published when enrichment output was discarded.
type EnrichmentDegradedEvent struct {
	ID        string
	Reason    string
	Timestamp time.Time
}

func (e EnrichmentDegradedEvent) EventType() string { return EventTypeEnrichmentDegraded }
func (e EnrichmentDegradedEvent) TaskID() string    { return e.ID }
func (e EnrichmentDegradedEvent) Topic() string     { return TopicTask }

// RoundCompletedEvent is published after the quality gate judged a round.
type RoundCompletedEvent struct {
	ID           string
	Round        int
	NewSources   int
	Accepted     int
	Records      int
	Completeness float64
	Decision     string
	Timestamp    time.Time
}

func (e RoundCompletedEvent) EventType() string { return EventTypeRoundCompleted }
func (e RoundCompletedEvent) TaskID() string    { return e.ID }
func (e RoundCompletedEvent) Topic() string     { return TopicRound }

// SourceFailedEvent is published for each extraction that errored.
type SourceFailedEvent struct {
	ID        string
	Round     int
	Source    string
	Err       string
	Timestamp time.Time
}

func (e SourceFailedEvent) EventType() string { return EventTypeSourceFailed }
func (e SourceFailedEvent) TaskID() string    { return e.ID }
func (e SourceFailedEvent) Topic() string     { return TopicRound }
