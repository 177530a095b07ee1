package research

import (
	"strings"
)

// NotFound is the placeholder value for a factor the extractor could not fill.
const NotFound = "Not found"

// Field is one (factor, value) pair of a Record.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Record is the structured result for one discovered item.
type Record struct {
	SubjectName string  `json:"subject_name"`
	Fields      []Field `json:"fields"`
	SourceRef   string  `json:"source_ref,omitempty"`
}

// IsNotFound reports whether v is the sentinel or carries no data.
func IsNotFound(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, NotFound)
}

// Value returns the value recorded for factor, matched case-insensitively.
func (r Record) Value(factor string) (string, bool) {
	key := factorKey(factor)
	for _, f := range r.Fields {
		if factorKey(f.Name) == key {
			return f.Value, true
		}
	}
	return "", false
}

// MissingCount counts requested factors with no usable value.
// A factor absent from Fields counts as missing.
func (r Record) MissingCount(factors []string) int {
	missing := 0
	for _, factor := range factors {
		v, ok := r.Value(factor)
		if !ok || IsNotFound(v) {
			missing++
		}
	}
	return missing
}

// FilledCount counts requested factors that hold a real value.
func (r Record) FilledCount(factors []string) int {
	return len(factors) - r.MissingCount(factors)
}

// Acceptable applies the extraction acceptance rule: strictly fewer than half
// of the requested factors may be missing, and the record must name its subject.
func (r Record) Acceptable(factors []string) bool {
	if strings.TrimSpace(r.SubjectName) == "" {
		return false
	}
	if len(factors) == 0 {
		return false
	}
	return r.MissingCount(factors)*2 < len(factors)
}

// WithFields returns a copy of r whose fields are replaced wholesale.
func (r Record) WithFields(fields []Field) Record {
	cp := r
	cp.Fields = append([]Field(nil), fields...)
	return cp
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	cp := r
	if r.Fields != nil {
		cp.Fields = append([]Field(nil), r.Fields...)
	}
	return cp
}

// MergeFactors appends the names in add to base, skipping blanks and names
// already present (case-insensitively). The first spelling wins.
func MergeFactors(base []string, add []string) []string {
	out := make([]string, 0, len(base)+len(add))
	seen := make(map[string]bool, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, f := range list {
			f = strings.TrimSpace(f)
			key := factorKey(f)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, f)
		}
	}
	return out
}

func factorKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
