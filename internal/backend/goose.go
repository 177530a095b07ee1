package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// GooseAdapter runs prompts through `goose run`, typically against a local model.
type GooseAdapter struct {
	cfg     Config
	procMgr *ProcessManager
}

type gooseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewGooseAdapter creates a Goose backend.
func NewGooseAdapter(cfg Config, procMgr *ProcessManager) *GooseAdapter {
	return &GooseAdapter{cfg: cfg, procMgr: procMgr}
}

func (g *GooseAdapter) Name() string { return "goose" }

// Send runs a single sessionless goose invocation.
func (g *GooseAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	start := time.Now()
	stdout, err := run(ctx, g.procMgr, g.cfg.command(), g.buildArgs(msg), g.cfg.WorkDir)
	if err != nil {
		return Response{}, fmt.Errorf("goose: %w", err)
	}

	content := parseGooseOutput(stdout)
	if content == "" {
		return Response{}, fmt.Errorf("goose: empty reply")
	}
	return Response{Content: content, Backend: g.Name(), Duration: time.Since(start)}, nil
}

func (g *GooseAdapter) buildArgs(msg Message) []string {
	args := []string{"run", "--no-session", "--quiet", "--text", msg.Content}
	if g.cfg.Provider != "" {
		args = append(args, "--provider", g.cfg.Provider)
	}
	if g.cfg.Model != "" {
		args = append(args, "--model", g.cfg.Model)
	}
	if msg.System != "" {
		args = append(args, "--system", msg.System)
	}
	return append(args, g.cfg.Args...)
}

// parseGooseOutput accepts a JSON object with a content field, JSON lines
// of assistant messages, or plain text.
func parseGooseOutput(data []byte) string {
	text := strings.TrimSpace(string(data))

	var single gooseMessage
	if err := json.Unmarshal([]byte(text), &single); err == nil && single.Content != "" {
		return single.Content
	}

	var parts []string
	jsonLines := true
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var m gooseMessage
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			jsonLines = false
			break
		}
		if m.Content != "" && m.Role != "user" {
			parts = append(parts, m.Content)
		}
	}
	if jsonLines && len(parts) > 0 {
		return strings.Join(parts, "\n")
	}
	return text
}
