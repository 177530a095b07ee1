package scheduler

import (
	"github.com/aristath/researcher/internal/research"
)

// Decision is the quality gate's verdict after a round.
type Decision int

const (
	Proceed      Decision = iota // Enough data, move on to processing
	Retry                        // Search again for more sources
	Insufficient                 // Out of rounds with nothing usable
)

func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case Retry:
		return "retry"
	case Insufficient:
		return "insufficient"
	default:
		return "unknown"
	}
}

// GatePolicy holds the quality gate thresholds. A Threshold above 1 never
// ends the loop early on score alone.
type GatePolicy struct {
	Threshold     float64 // Completeness score that ends the loop early
	MaxRounds     int     // Total rounds, including the first
	TargetRecords int     // Accepted records that end the loop early
}

// DefaultGatePolicy returns the stock thresholds: 0.6 completeness, two
// rounds and fifteen records.
func DefaultGatePolicy() GatePolicy {
	return GatePolicy{
		Threshold:     0.6,
		MaxRounds:     2,
		TargetRecords: 15,
	}
}

// Completeness is the fraction of (record, factor) cells that hold a value.
// It is 0 when there are no records or no factors.
func Completeness(records []research.Record, factors []string) float64 {
	if len(records) == 0 || len(factors) == 0 {
		return 0
	}
	filled := 0
	for _, r := range records {
		filled += r.FilledCount(factors)
	}
	return float64(filled) / float64(len(records)*len(factors))
}

// Evaluate decides what follows round (1-based) given all records collected so far.
func (p GatePolicy) Evaluate(round int, records []research.Record, factors []string) (Decision, float64) {
	score := Completeness(records, factors)
	return p.Decide(round, len(records), score), score
}

// Decide applies the gate to a record count and completeness score.
func (p GatePolicy) Decide(round, records int, score float64) Decision {
	switch {
	case p.TargetRecords > 0 && records >= p.TargetRecords:
		return Proceed
	case records > 0 && score >= p.Threshold:
		return Proceed
	case round < p.MaxRounds:
		return Retry
	case records == 0:
		return Insufficient
	default:
		return Proceed
	}
}

// Remaining returns how many more records the executor may accept, or 0
// for no bound when no target is configured. Evaluate never asks for another
// round once the target is met, so a configured target always yields a
// positive bound here.
func (p GatePolicy) Remaining(collected int) int {
	if p.TargetRecords <= 0 {
		return 0
	}
	if left := p.TargetRecords - collected; left > 0 {
		return left
	}
	return 0
}
