package scheduler

// VisitedSet is an insertion-ordered set of source identifiers. It only grows.
type VisitedSet struct {
	order []string
	seen  map[string]struct{}
}

// NewVisitedSet seeds a set from a task's visited sources.
func NewVisitedSet(sources []string) *VisitedSet {
	v := &VisitedSet{seen: make(map[string]struct{}, len(sources))}
	v.Add(sources...)
	return v
}

// Add merges sources into the set, ignoring ones already present.
func (v *VisitedSet) Add(sources ...string) {
	for _, s := range sources {
		if s == "" {
			continue
		}
		if _, ok := v.seen[s]; ok {
			continue
		}
		v.seen[s] = struct{}{}
		v.order = append(v.order, s)
	}
}

// Contains reports whether source was already visited.
func (v *VisitedSet) Contains(source string) bool {
	_, ok := v.seen[source]
	return ok
}

// Filter returns the candidates that have not been visited, in order,
// collapsing duplicates within candidates. It does not modify the set.
func (v *VisitedSet) Filter(candidates []string) []string {
	fresh := make([]string, 0, len(candidates))
	batch := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if c == "" || v.Contains(c) {
			continue
		}
		if _, dup := batch[c]; dup {
			continue
		}
		batch[c] = struct{}{}
		fresh = append(fresh, c)
	}
	return fresh
}

// Len returns the number of visited sources.
func (v *VisitedSet) Len() int {
	return len(v.order)
}

// Sources returns a copy of the visited sources in insertion order.
func (v *VisitedSet) Sources() []string {
	return append([]string(nil), v.order...)
}
