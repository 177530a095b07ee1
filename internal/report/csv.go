// Package report renders research records as a CSV comparison table.
package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/aristath/researcher/internal/research"
)

// SubjectHeader titles the first column.
const SubjectHeader = "Product Name"

// DefaultHeaderWidth is the longest factor header before it is truncated.
const DefaultHeaderWidth = 20

var (
	ErrNoFactors = errors.New("report needs at least one factor")
	ErrNoSubject = errors.New("record has no subject name")
)

// CSV renders one row per record and one column per factor, in factor order.
type CSV struct {
	HeaderWidth int // 0 uses DefaultHeaderWidth
}

// Render implements stage.Renderer.
func (c CSV) Render(records []research.Record, factors []string) (string, error) {
	factors = research.MergeFactors(nil, factors)
	if len(factors) == 0 {
		return "", ErrNoFactors
	}
	width := c.HeaderWidth
	if width <= 0 {
		width = DefaultHeaderWidth
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, 0, len(factors)+1)
	header = append(header, SubjectHeader)
	for _, f := range factors {
		header = append(header, Header(f, width))
	}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}

	for i, r := range records {
		if strings.TrimSpace(r.SubjectName) == "" {
			return "", fmt.Errorf("row %d: %w", i+1, ErrNoSubject)
		}
		row := make([]string, 0, len(factors)+1)
		row = append(row, r.SubjectName)
		for _, f := range factors {
			v, ok := r.Value(f)
			if !ok || strings.TrimSpace(v) == "" {
				v = research.NotFound
			}
			row = append(row, v)
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Header turns a factor name into a column title: underscores become
// spaces, words are title-cased and titles longer than width end in "...".
func Header(factor string, width int) string {
	title := titleCase(strings.ReplaceAll(strings.TrimSpace(factor), "_", " "))
	runes := []rune(title)
	if width > 3 && len(runes) > width {
		return string(runes[:width-3]) + "..."
	}
	return title
}

// titleCase upper-cases every letter that follows a non-letter and
// lower-cases the rest.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToUpper(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
