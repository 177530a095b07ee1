package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ClaudeAdapter runs prompts through the Claude Code CLI in print mode.
type ClaudeAdapter struct {
	cfg     Config
	procMgr *ProcessManager
}

// claudeResult is the JSON printed by `claude -p --output-format json`.
// Older CLI versions nest the text in a content array instead of a string.
type claudeResult struct {
	Type    string          `json:"type"`
	IsError bool            `json:"is_error"`
	Result  json.RawMessage `json:"result"`
}

// NewClaudeAdapter creates a Claude Code backend.
func NewClaudeAdapter(cfg Config, procMgr *ProcessManager) *ClaudeAdapter {
	return &ClaudeAdapter{cfg: cfg, procMgr: procMgr}
}

func (a *ClaudeAdapter) Name() string { return "claude" }

// Send runs a single non-interactive claude invocation.
func (a *ClaudeAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	start := time.Now()
	stdout, err := run(ctx, a.procMgr, a.cfg.command(), a.buildArgs(msg), a.cfg.WorkDir)
	if err != nil {
		return Response{}, fmt.Errorf("claude: %w", err)
	}

	content, err := parseClaudeResult(stdout)
	if err != nil {
		return Response{}, fmt.Errorf("claude: %w", err)
	}
	return Response{Content: content, Backend: a.Name(), Duration: time.Since(start)}, nil
}

func (a *ClaudeAdapter) buildArgs(msg Message) []string {
	args := []string{"-p", msg.Content, "--output-format", "json"}
	if a.cfg.Model != "" {
		args = append(args, "--model", a.cfg.Model)
	}
	if msg.System != "" {
		args = append(args, "--append-system-prompt", msg.System)
	}
	return append(args, a.cfg.Args...)
}

func parseClaudeResult(data []byte) (string, error) {
	var res claudeResult
	if err := json.Unmarshal(data, &res); err != nil {
		return "", fmt.Errorf("decode result: %w", err)
	}

	var text string
	if err := json.Unmarshal(res.Result, &text); err != nil {
		var nested struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(res.Result, &nested); err != nil {
			return "", fmt.Errorf("unexpected result shape: %s", truncate(string(res.Result), 200))
		}
		var b strings.Builder
		for _, item := range nested.Content {
			if item.Type == "text" {
				b.WriteString(item.Text)
			}
		}
		text = b.String()
	}

	if res.IsError {
		return "", fmt.Errorf("model error: %s", truncate(text, 200))
	}
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
