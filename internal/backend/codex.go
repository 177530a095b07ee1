package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CodexAdapter runs prompts through `codex exec`.
type CodexAdapter struct {
	cfg     Config
	procMgr *ProcessManager
}

// codexEvent covers the JSONL events `codex exec --json` prints. Only agent
// messages carry the reply.
type codexEvent struct {
	Type string `json:"type"`
	Item struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"item"`
	Content string `json:"content"` // TurnCompleted in older releases
	Message string `json:"message"` // Error events
}

// NewCodexAdapter creates a Codex backend.
func NewCodexAdapter(cfg Config, procMgr *ProcessManager) *CodexAdapter {
	return &CodexAdapter{cfg: cfg, procMgr: procMgr}
}

func (c *CodexAdapter) Name() string { return "codex" }

// Send runs a single `codex exec` invocation.
func (c *CodexAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	start := time.Now()
	stdout, err := run(ctx, c.procMgr, c.cfg.command(), c.buildArgs(msg), c.cfg.WorkDir)
	if err != nil {
		return Response{}, fmt.Errorf("codex: %w", err)
	}

	content, err := parseCodexEvents(stdout)
	if err != nil {
		return Response{}, fmt.Errorf("codex: %w", err)
	}
	return Response{Content: content, Backend: c.Name(), Duration: time.Since(start)}, nil
}

// buildArgs puts the instructions in front of the prompt; codex exec has no
// separate system prompt flag.
func (c *CodexAdapter) buildArgs(msg Message) []string {
	prompt := msg.Content
	if msg.System != "" {
		prompt = msg.System + "\n\n" + msg.Content
	}
	args := []string{"exec", "--json", "--skip-git-repo-check"}
	if c.cfg.Model != "" {
		args = append(args, "--model", c.cfg.Model)
	}
	args = append(args, c.cfg.Args...)
	return append(args, prompt)
}

// parseCodexEvents returns the last agent message in the event stream.
func parseCodexEvents(data []byte) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var content string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}

		var evt codexEvent
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			return "", fmt.Errorf("decode event: %w", err)
		}

		switch evt.Type {
		case "item.completed":
			if evt.Item.Type == "agent_message" {
				content = evt.Item.Text
			}
		case "TurnCompleted":
			content = evt.Content
		case "error", "turn.failed":
			return "", fmt.Errorf("model error: %s", evt.Message)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read events: %w", err)
	}
	if content == "" {
		return "", fmt.Errorf("no agent message in output")
	}
	return content, nil
}
