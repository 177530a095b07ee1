package config

import "time"

// DefaultConfig returns the default configuration with the built-in CLI
// providers and every pipeline role on claude.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Pipeline: PipelineConfig{
			Threshold:         0.6,
			MaxRounds:         2,
			TargetRecords:     15,
			Concurrency:       5,
			EnrichConcurrency: 4,
			MaxPageRunes:      10000,
			GenericFactors: []string{
				"pricing_model",
				"key_features",
				"integrations",
				"target_audience",
				"deployment_options",
			},
			DefaultFactors: []string{"pricing", "key_features"},
		},
		Timeouts: TimeoutConfig{
			Clarify: Duration(60 * time.Second),
			Search:  Duration(30 * time.Second),
			Extract: Duration(90 * time.Second),
			Enrich:  Duration(3 * time.Minute),
		},
		Providers: map[string]ProviderConfig{
			"claude": {
				Command: "claude",
				Type:    "claude",
			},
			"codex": {
				Command: "codex",
				Type:    "codex",
			},
			"goose": {
				Command: "goose",
				Type:    "goose",
			},
		},
		Agents: map[string]AgentConfig{
			RoleClarifier: {Provider: "claude"},
			RoleExtractor: {Provider: "claude"},
			RoleEnricher:  {Provider: "claude"},
		},
		Search: SearchConfig{
			Endpoint:   "https://api.exa.ai",
			NumResults: 10,
			Type:       "auto",
			Timeout:    Duration(30 * time.Second),
		},
		Fetch: FetchConfig{
			Timeout:     Duration(15 * time.Second),
			RatePerHost: 2,
			Burst:       1,
			MaxBytes:    2 << 20,
		},
		Resilience: ResilienceConfig{
			MaxRetries:      3,
			InitialInterval: Duration(500 * time.Millisecond),
			MaxInterval:     Duration(10 * time.Second),
			MaxElapsed:      Duration(time.Minute),
			BreakerFailures: 5,
			BreakerTimeout:  Duration(30 * time.Second),
		},
		Archive: ArchiveConfig{
			Timeout: Duration(5 * time.Second),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
