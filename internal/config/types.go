package config

// ProviderConfig defines a transport layer (CLI command, args, base settings).
// Providers are separate from agents: several agents can share one provider.
type ProviderConfig struct {
	Command     string   `json:"command" yaml:"command"`                               // CLI binary name (e.g., "claude", "codex", "goose")
	Args        []string `json:"args,omitempty" yaml:"args,omitempty"`                 // Default args appended to every invocation
	Type        string   `json:"type" yaml:"type"`                                     // Backend type matching backend.Config.Type
	LocalEngine string   `json:"local_engine,omitempty" yaml:"local_engine,omitempty"` // Goose provider for local models (e.g., "ollama")
}

// AgentConfig binds a pipeline role to a provider and model.
type AgentConfig struct {
	Provider string `json:"provider" yaml:"provider"`               // Key into Providers map
	Model    string `json:"model,omitempty" yaml:"model,omitempty"` // Model override
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string   `json:"addr" yaml:"addr"`
	APIKey          string   `json:"api_key,omitempty" yaml:"api_key,omitempty"` // Required X-API-Key value; empty disables the check
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// PipelineConfig tunes the research loop.
type PipelineConfig struct {
	Threshold         float64  `json:"threshold" yaml:"threshold"`                   // Completeness that ends the loop early
	MaxRounds         int      `json:"max_rounds" yaml:"max_rounds"`                 // Search/extract rounds before giving up on more data
	TargetRecords     int      `json:"target_records" yaml:"target_records"`         // Records that end the loop; 0 disables
	Concurrency       int      `json:"concurrency" yaml:"concurrency"`               // Parallel extractions per round; 0 is unbounded
	EnrichConcurrency int      `json:"enrich_concurrency" yaml:"enrich_concurrency"` // Parallel enrichment calls
	MaxPageRunes      int      `json:"max_page_runes" yaml:"max_page_runes"`         // Page text sent to the extractor
	GenericFactors    []string `json:"generic_factors" yaml:"generic_factors"`       // Factors applied to every specific query
	DefaultFactors    []string `json:"default_factors" yaml:"default_factors"`       // Used when clarification yields none
}

// TimeoutConfig holds the per-stage time budgets.
type TimeoutConfig struct {
	Clarify Duration `json:"clarify" yaml:"clarify"`
	Search  Duration `json:"search" yaml:"search"`
	Extract Duration `json:"extract" yaml:"extract"`
	Enrich  Duration `json:"enrich" yaml:"enrich"`
}

// SearchConfig configures the search API.
type SearchConfig struct {
	Endpoint     string   `json:"endpoint" yaml:"endpoint"`
	APIKey       string   `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	NumResults   int      `json:"num_results" yaml:"num_results"`
	Type         string   `json:"type" yaml:"type"`
	BlockedHosts []string `json:"blocked_hosts,omitempty" yaml:"blocked_hosts,omitempty"`
	Timeout      Duration `json:"timeout" yaml:"timeout"`
}

// FetchConfig configures source page downloads.
type FetchConfig struct {
	UserAgent   string   `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	Timeout     Duration `json:"timeout" yaml:"timeout"`
	RatePerHost float64  `json:"rate_per_host" yaml:"rate_per_host"`
	Burst       int      `json:"burst" yaml:"burst"`
	MaxBytes    int64    `json:"max_bytes" yaml:"max_bytes"`
}

// ResilienceConfig configures retry and circuit breaking for every remote call.
type ResilienceConfig struct {
	MaxRetries      uint64   `json:"max_retries" yaml:"max_retries"`
	InitialInterval Duration `json:"initial_interval" yaml:"initial_interval"`
	MaxInterval     Duration `json:"max_interval" yaml:"max_interval"`
	MaxElapsed      Duration `json:"max_elapsed" yaml:"max_elapsed"`
	BreakerFailures uint32   `json:"breaker_failures" yaml:"breaker_failures"`
	BreakerTimeout  Duration `json:"breaker_timeout" yaml:"breaker_timeout"`
}

// ArchiveConfig configures the SQLite task archive.
type ArchiveConfig struct {
	Path    string   `json:"path" yaml:"path"` // Empty disables the archive
	Timeout Duration `json:"timeout" yaml:"timeout"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`
	Development bool   `json:"development" yaml:"development"`
}

// Config is the top-level configuration.
type Config struct {
	Server     ServerConfig              `json:"server" yaml:"server"`
	Pipeline   PipelineConfig            `json:"pipeline" yaml:"pipeline"`
	Timeouts   TimeoutConfig             `json:"timeouts" yaml:"timeouts"`
	Providers  map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Agents     map[string]AgentConfig    `json:"agents" yaml:"agents"`
	Search     SearchConfig              `json:"search" yaml:"search"`
	Fetch      FetchConfig               `json:"fetch" yaml:"fetch"`
	Resilience ResilienceConfig          `json:"resilience" yaml:"resilience"`
	Archive    ArchiveConfig             `json:"archive" yaml:"archive"`
	Logging    LoggingConfig             `json:"logging" yaml:"logging"`
}

// Agent roles used by the pipeline.
const (
	RoleClarifier = "clarifier"
	RoleExtractor = "extractor"
	RoleEnricher  = "enricher"
)
