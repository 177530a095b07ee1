// Package backend runs one-shot prompts through locally installed LLM CLIs.
package backend

import (
	"context"
	"fmt"
)

// Backend sends a prompt to a language model and returns its reply.
type Backend interface {
	Send(ctx context.Context, msg Message) (Response, error)

	// Name identifies the backend in logs and breaker names.
	Name() string
}

// New creates a backend for cfg.Type. pm may be nil, in which case
// subprocesses are not tracked for shutdown.
func New(cfg Config, pm *ProcessManager) (Backend, error) {
	switch cfg.Type {
	case "claude":
		return NewClaudeAdapter(cfg, pm), nil
	case "codex":
		return NewCodexAdapter(cfg, pm), nil
	case "goose":
		return NewGooseAdapter(cfg, pm), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %q", cfg.Type)
	}
}
