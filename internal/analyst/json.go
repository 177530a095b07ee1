// Package analyst implements the language-model backed pipeline stages:
// query clarification, per-source extraction and record enrichment.
package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/researcher/internal/backend"
)

var errNoJSON = errors.New("reply contains no JSON object")

// decodeJSON unmarshals the first JSON object in a model reply. Models wrap
// answers in markdown fences or a sentence of prose often enough that a
// plain json.Unmarshal is not usable.
func decodeJSON(reply string, v any) error {
	text := strings.TrimSpace(reply)
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		text = rest
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return errNoJSON
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

// ask sends one prompt and decodes the JSON reply into v.
func ask(ctx context.Context, b backend.Backend, system, prompt string, v any) error {
	resp, err := b.Send(ctx, backend.Message{System: system, Content: prompt})
	if err != nil {
		return err
	}
	return decodeJSON(resp.Content, v)
}
