package backend

import (
	"time"
)

// Message is one self-contained prompt. Every Send starts a fresh
// conversation; nothing carries over between calls.
type Message struct {
	System  string // Instructions, may be empty
	Content string // The prompt itself
}

// Response is the model's answer to one Message.
type Response struct {
	Content  string
	Backend  string
	Duration time.Duration
}

// Config selects and tunes a backend.
type Config struct {
	Type     string   // "claude", "codex" or "goose"
	Command  string   // Binary to run, defaults to Type
	Model    string   // Optional model override
	Provider string   // For Goose local LLMs (e.g. "ollama", "lmstudio")
	WorkDir  string   // Working directory for the subprocess
	Args     []string // Extra arguments appended to every call
}

func (c Config) command() string {
	if c.Command != "" {
		return c.Command
	}
	return c.Type
}
