package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func record(name string, values ...string) Record {
	r := Record{SubjectName: name}
	for i, v := range values {
		r.Fields = append(r.Fields, Field{Name: factorsABCD[i], Value: v})
	}
	return r
}

var factorsABCD = []string{"a", "b", "c", "d"}

func TestAcceptableBoundary(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		want   bool
	}{
		{"none missing", record("X", "1", "2", "3", "4"), true},
		{"one of four missing", record("X", "1", NotFound, "3", "4"), true},
		{"exactly half missing", record("X", "1", NotFound, "not found", "4"), false},
		{"three of four missing", record("X", NotFound, NotFound, NotFound, "4"), false},
		{"absent fields count as missing", record("X", "1", "2"), false},
		{"blank value counts as missing", record("X", "1", "  ", "3", "4"), true},
		{"no subject", record("", "1", "2", "3", "4"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.Acceptable(factorsABCD))
		})
	}
}

func TestAcceptableNoFactors(t *testing.T) {
	assert.False(t, record("X", "1").Acceptable(nil))
}

func TestValueMatchesCaseInsensitively(t *testing.T) {
	r := Record{SubjectName: "Acme", Fields: []Field{{Name: "Pricing", Value: "$10"}}}

	v, ok := r.Value("  pricing ")
	assert.True(t, ok)
	assert.Equal(t, "$10", v)

	_, ok = r.Value("integrations")
	assert.False(t, ok)
}

func TestFilledCount(t *testing.T) {
	r := record("X", "1", NotFound, "3")
	assert.Equal(t, 2, r.FilledCount(factorsABCD))
	assert.Equal(t, 2, r.MissingCount(factorsABCD))
}

func TestMergeFactorsCollapsesDuplicates(t *testing.T) {
	got := MergeFactors([]string{"Pricing", "integrations"}, []string{"pricing", "", " Support ", "INTEGRATIONS", "support"})
	assert.Equal(t, []string{"Pricing", "integrations", "Support"}, got)
}

func TestWithFieldsDoesNotAlias(t *testing.T) {
	fields := []Field{{Name: "a", Value: "1"}}
	r := Record{SubjectName: "X"}.WithFields(fields)
	fields[0].Value = "changed"
	assert.Equal(t, "1", r.Fields[0].Value)
}

func TestTaskCloneIsDeep(t *testing.T) {
	task := Task{
		Factors:        []string{"a"},
		VisitedSources: []string{"s1"},
		Records:        []Record{record("X", "1")},
	}
	cp := task.Clone()
	cp.Factors[0] = "z"
	cp.VisitedSources[0] = "z"
	cp.Records[0].Fields[0].Value = "z"

	assert.Equal(t, "a", task.Factors[0])
	assert.Equal(t, "s1", task.VisitedSources[0])
	assert.Equal(t, "1", task.Records[0].Fields[0].Value)
}
