package research

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for operations on an unknown task id.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidState is returned when an operation needs a different task state.
	ErrInvalidState = errors.New("invalid task state")

	// ErrInsufficientData marks a run that found no usable records after all rounds.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrEmptyQuery rejects submissions without a query.
	ErrEmptyQuery = errors.New("query is required")
)

// Failure kinds recorded on failed tasks.
const (
	KindUpstream         = "upstream"
	KindInsufficientData = "insufficient_data"
	KindInternal         = "internal"
)

// UpstreamError reports that a stage collaborator failed or timed out.
type UpstreamError struct {
	Stage string
	Err   error
}

func (e *UpstreamError) Error() string {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s: upstream timed out", e.Stage)
	}
	return fmt.Sprintf("%s: upstream failure: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Upstream wraps err as an UpstreamError unless it already is one.
func Upstream(stage string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Stage: stage, Err: err}
}

// FailureKind classifies a terminal error for observability.
func FailureKind(err error) string {
	var ue *UpstreamError
	switch {
	case errors.Is(err, context.Canceled):
		return KindInternal
	case errors.As(err, &ue):
		return KindUpstream
	case errors.Is(err, ErrInsufficientData):
		return KindInsufficientData
	default:
		return KindInternal
	}
}
