package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/aristath/researcher/internal/analyst"
	"github.com/aristath/researcher/internal/backend"
	"github.com/aristath/researcher/internal/config"
	"github.com/aristath/researcher/internal/events"
	"github.com/aristath/researcher/internal/httpapi"
	"github.com/aristath/researcher/internal/orchestrator"
	"github.com/aristath/researcher/internal/persistence"
	"github.com/aristath/researcher/internal/report"
	"github.com/aristath/researcher/internal/resilience"
	"github.com/aristath/researcher/internal/scheduler"
	"github.com/aristath/researcher/internal/search"
	"github.com/aristath/researcher/internal/stage"
	"github.com/aristath/researcher/internal/store"
)

// app holds every long-lived component of a running researcher.
type app struct {
	config   *config.Config
	logger   *zap.Logger
	bus      *events.Bus
	procs    *backend.ProcessManager
	archive  persistence.Archive // nil when archiving is disabled
	service  *orchestrator.Service
	handler  http.Handler
	breakers *resilience.Registry
}

// newApp wires the pipeline described by cfg. Workers run under ctx.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		config: cfg,
		logger: logger,
		bus:    events.NewBus(),
		procs:  backend.NewProcessManager(),
		breakers: resilience.NewRegistry(resilience.BreakerConfig{
			ConsecutiveFailures: cfg.Resilience.BreakerFailures,
			OpenTimeout:         cfg.Resilience.BreakerTimeout.Std(),
		}, logger.Named("breaker")),
	}
	retry := retryConfig(cfg.Resilience)

	backends, err := buildBackends(cfg, a.procs, a.breakers, retry)
	if err != nil {
		return nil, err
	}

	if cfg.Archive.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Archive.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
		archive, err := persistence.NewSQLiteStore(ctx, cfg.Archive.Path)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		a.archive = archive
	}

	fetcher := search.NewFetcher(search.FetcherConfig{
		UserAgent:   cfg.Fetch.UserAgent,
		Timeout:     cfg.Fetch.Timeout.Std(),
		RatePerHost: cfg.Fetch.RatePerHost,
		Burst:       cfg.Fetch.Burst,
		MaxBytes:    cfg.Fetch.MaxBytes,
	}, a.breakers, logger.Named("fetch"))

	searcher := search.NewClient(search.ClientConfig{
		Endpoint:     cfg.Search.Endpoint,
		APIKey:       cfg.Search.APIKey,
		NumResults:   cfg.Search.NumResults,
		SearchType:   cfg.Search.Type,
		BlockedHosts: cfg.Search.BlockedHosts,
		Timeout:      cfg.Search.Timeout.Std(),
		Retry:        retry,
	}, a.breakers, logger.Named("search"))

	set := stage.Set{
		Clarifier: analyst.NewClarifier(backends[config.RoleClarifier], cfg.Pipeline.GenericFactors, logger.Named("clarifier")),
		Searcher:  searcher,
		Extractor: analyst.NewExtractor(backends[config.RoleExtractor], fetcher, cfg.Pipeline.MaxPageRunes, logger.Named("extractor")),
		Renderer:  report.CSV{},
	}
	if b, ok := backends[config.RoleEnricher]; ok {
		set.Enricher = analyst.NewEnricher(b, cfg.Pipeline.EnrichConcurrency, logger.Named("enricher"))
	}
	guarded := stage.Guard(set, stage.Budgets{
		Clarify: cfg.Timeouts.Clarify.Std(),
		Search:  cfg.Timeouts.Search.Std(),
		Extract: cfg.Timeouts.Extract.Std(),
		Enrich:  cfg.Timeouts.Enrich.Std(),
	})

	opts := store.Options{
		ArchiveTimeout: cfg.Archive.Timeout.Std(),
		Logger:         logger.Named("store"),
	}
	if a.archive != nil {
		opts.Archive = a.archive
	}
	tasks := store.New(opts)

	pipeline := orchestrator.NewPipeline(tasks, guarded, orchestrator.PipelineConfig{
		Gate: scheduler.GatePolicy{
			Threshold:     cfg.Pipeline.Threshold,
			MaxRounds:     cfg.Pipeline.MaxRounds,
			TargetRecords: cfg.Pipeline.TargetRecords,
		},
		Concurrency:    cfg.Pipeline.Concurrency,
		DefaultFactors: cfg.Pipeline.DefaultFactors,
	}, a.bus, logger.Named("pipeline"))

	a.service = orchestrator.NewService(ctx, tasks, pipeline, a.bus, logger.Named("service"))
	a.handler = httpapi.NewHandler(a.service, httpapi.Config{APIKey: cfg.Server.APIKey}, logger.Named("http"))
	return a, nil
}

// buildBackends creates one resilient backend per configured agent role.
func buildBackends(cfg *config.Config, pm *backend.ProcessManager, breakers *resilience.Registry, retry resilience.RetryConfig) (map[string]backend.Backend, error) {
	out := make(map[string]backend.Backend)
	for _, role := range []string{config.RoleClarifier, config.RoleExtractor, config.RoleEnricher} {
		agent, ok := cfg.Agents[role]
		if !ok {
			continue
		}
		provider, ok := cfg.Providers[agent.Provider]
		if !ok {
			return nil, fmt.Errorf("agent %q: unknown provider %q", role, agent.Provider)
		}
		b, err := backend.New(backend.Config{
			Type:     provider.Type,
			Command:  provider.Command,
			Model:    agent.Model,
			Provider: provider.LocalEngine,
			Args:     provider.Args,
		}, pm)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", role, err)
		}
		out[role] = backend.NewResilient(b, breakers, retry)
	}
	for _, role := range []string{config.RoleClarifier, config.RoleExtractor} {
		if _, ok := out[role]; !ok {
			return nil, fmt.Errorf("agent %q is not configured", role)
		}
	}
	return out, nil
}

func retryConfig(rc config.ResilienceConfig) resilience.RetryConfig {
	retry := resilience.DefaultRetryConfig()
	retry.MaxRetries = rc.MaxRetries
	if d := rc.InitialInterval.Std(); d > 0 {
		retry.InitialInterval = d
	}
	if d := rc.MaxInterval.Std(); d > 0 {
		retry.MaxInterval = d
	}
	if d := rc.MaxElapsed.Std(); d > 0 {
		retry.MaxElapsedTime = d
	}
	return retry
}

// serve runs the HTTP API until ctx is done, then shuts the app down.
func (a *app) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.config.Server.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", zap.Error(err))
	}
	return errors.Join(serveErr, a.close(shutdownCtx))
}

func (a *app) shutdownTimeout() time.Duration {
	if d := a.config.Server.ShutdownTimeout.Std(); d > 0 {
		return d
	}
	return 15 * time.Second
}

// close stops workers, kills leftover agent processes and closes the archive.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if err := a.service.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.procs.KillAll(); err != nil {
		errs = append(errs, fmt.Errorf("kill agent processes: %w", err))
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close archive: %w", err))
		}
	}
	a.bus.Close()
	return errors.Join(errs...)
}
