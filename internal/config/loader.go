package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvAPIKey       = "RESEARCHER_API_KEY"
	EnvSearchAPIKey = "EXA_API_KEY"
	EnvAddr         = "RESEARCHER_ADDR"
	EnvLogLevel     = "RESEARCHER_LOG_LEVEL"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed files return an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadFile reads defaults overlaid with a single file. Unlike Load, the
// file must exist.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return Load("", path)
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.researcher/config.{yaml,yml,json}
// Project: .researcher/config.{yaml,yml,json} (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	return Load(findConfig(filepath.Join(homeDir, ".researcher")), findConfig(".researcher"))
}

// findConfig returns the first config file present in dir, or the JSON
// path when there is none.
func findConfig(dir string) string {
	for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join(dir, "config.json")
}

// ApplyEnv overrides settings from environment variables read via lookup,
// normally os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIKey); ok {
		cfg.Server.APIKey = v
	}
	if v, ok := lookup(EnvSearchAPIKey); ok {
		cfg.Search.APIKey = v
	}
	if v, ok := lookup(EnvAddr); ok && v != "" {
		cfg.Server.Addr = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Logging.Level = v
	}
}

// Validate reports every setting the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Pipeline.Threshold < 0 {
		errs = append(errs, fmt.Errorf("pipeline.threshold must not be negative, got %v", c.Pipeline.Threshold))
	}
	if c.Pipeline.MaxRounds < 1 {
		errs = append(errs, fmt.Errorf("pipeline.max_rounds must be at least 1, got %d", c.Pipeline.MaxRounds))
	}
	if c.Pipeline.TargetRecords < 0 {
		errs = append(errs, fmt.Errorf("pipeline.target_records must not be negative, got %d", c.Pipeline.TargetRecords))
	}

	for name, p := range c.Providers {
		switch p.Type {
		case "claude", "codex", "goose":
		default:
			errs = append(errs, fmt.Errorf("provider %q: unknown type %q", name, p.Type))
		}
	}
	for _, role := range []string{RoleClarifier, RoleExtractor, RoleEnricher} {
		agent, ok := c.Agents[role]
		if !ok {
			if role != RoleEnricher {
				errs = append(errs, fmt.Errorf("agent %q is not configured", role))
			}
			continue
		}
		if _, ok := c.Providers[agent.Provider]; !ok {
			errs = append(errs, fmt.Errorf("agent %q: unknown provider %q", role, agent.Provider))
		}
	}

	return errors.Join(errs...)
}

// mergeConfigFile reads a config file and overlays it on base. Fields
// absent from the file keep their value; map entries are replaced per key.
// Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, base)
	} else {
		err = json.Unmarshal(data, base)
	}
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
