package research

import (
	"fmt"

	"github.com/gammazero/toposort"
)

// edge is a legal transition. Loop edges are the only ones allowed to move
// to a state with a lower rank.
type edge struct {
	from, to State
	loop     bool
}

var transitions = []edge{
	{from: StateCreated, to: StateClarifying},
	{from: StateClarifying, to: StateAwaitingClarification},
	{from: StateClarifying, to: StateSearching},
	{from: StateAwaitingClarification, to: StateClarifying, loop: true}, // resume
	{from: StateSearching, to: StateExtracting},
	{from: StateExtracting, to: StateSearching, loop: true}, // next round
	{from: StateExtracting, to: StateProcessing},
	{from: StateProcessing, to: StateFormatting},
	{from: StateFormatting, to: StateCompleted},
}

var (
	legal map[State]map[State]bool
	ranks map[State]int
)

func init() {
	legal = make(map[State]map[State]bool)
	allow := func(from, to State) {
		if legal[from] == nil {
			legal[from] = make(map[State]bool)
		}
		legal[from][to] = true
	}

	for _, e := range transitions {
		allow(e.from, e.to)
	}
	for s := range stateNames {
		if !s.Terminal() {
			allow(s, StateFailed)
		}
	}

	order, err := forwardOrder()
	if err != nil {
		panic(err)
	}
	ranks = make(map[State]int, len(order))
	for i, s := range order {
		ranks[s] = i
	}
}

// forwardOrder topologically sorts the graph with loop edges removed.
func forwardOrder() ([]State, error) {
	var edges []toposort.Edge
	for from, tos := range legal {
		for to := range tos {
			if isLoop(from, to) {
				continue
			}
			edges = append(edges, toposort.Edge{from, to})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("state graph contains cycle: %w", err)
	}

	order := make([]State, 0, len(sorted))
	for _, v := range sorted {
		if v != nil {
			order = append(order, v.(State))
		}
	}
	if len(order) != len(stateNames) {
		return nil, fmt.Errorf("state graph covers %d of %d states", len(order), len(stateNames))
	}
	return order, nil
}

func isLoop(from, to State) bool {
	for _, e := range transitions {
		if e.from == from && e.to == to {
			return e.loop
		}
	}
	return false
}

// CanTransition reports whether the pipeline may move from one state to another.
func CanTransition(from, to State) bool {
	return legal[from][to]
}

// Rank is the position of s in the forward (loop-free) order of the graph.
func Rank(s State) int {
	return ranks[s]
}

// IsLoopEdge reports whether from -> to is one of the two backward edges:
// resume after clarification or the next search round.
func IsLoopEdge(from, to State) bool {
	return CanTransition(from, to) && isLoop(from, to)
}

// CheckTransition returns ErrInvalidState wrapped with context when the
// transition is not in the graph.
func CheckTransition(from, to State) error {
	if from.Terminal() {
		return fmt.Errorf("%w: task already %s", ErrInvalidState, from)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, to)
	}
	return nil
}
