// Command researcher runs the research pipeline behind an HTTP API, with an
// optional terminal UI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/aristath/researcher/internal/config"
	"github.com/aristath/researcher/internal/tui"
)

type options struct {
	configPath  string
	writeConfig string
	useTUI      bool
	logFile     string
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("researcher", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "config file (default: ~/.researcher and .researcher lookup)")
	fs.StringVar(&opts.writeConfig, "write-config", "", "write the effective config to this path and exit")
	fs.BoolVar(&opts.useTUI, "tui", false, "run the terminal UI alongside the HTTP API")
	fs.StringVar(&opts.logFile, "log-file", "", "log to this file instead of stderr (default researcher.log with -tui)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.useTUI && opts.logFile == "" {
		opts.logFile = "researcher.log"
	}
	return opts, nil
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if opts.writeConfig != "" {
		if err := config.Save(cfg, opts.writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config written to %s\n", opts.writeConfig)
		return
	}

	logger, err := newLogger(cfg.Logging, opts.logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(opts, cfg, logger); err != nil {
		logger.Error("researcher stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(opts options, cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if !opts.useTUI {
		err := a.serve(ctx)
		logger.Info("shutdown complete")
		return err
	}

	serveCtx, cancelServe := context.WithCancel(ctx)
	serveErr := make(chan error, 1)
	go func() { serveErr <- a.serve(serveCtx) }()

	globalPath, projectPath := settingsPaths(opts.configPath)
	p := tea.NewProgram(tui.New(a.bus, a.service, cfg, globalPath, projectPath), tea.WithAltScreen())

	tuiErr := make(chan error, 1)
	go func() {
		_, err := p.Run()
		tuiErr <- err
	}()

	var errs []error
	select {
	case err := <-tuiErr:
		errs = append(errs, err)
	case <-ctx.Done():
		// Restore default signal handling so a second Ctrl+C forces exit.
		stop()
		logger.Info("shutdown signal received, cleaning up")
		p.Quit()
		select {
		case err := <-tuiErr:
			errs = append(errs, err)
		case <-time.After(10 * time.Second):
			logger.Warn("tui did not exit in time")
		}
	case err := <-serveErr:
		p.Quit()
		<-tuiErr
		return err
	}

	cancelServe()
	errs = append(errs, <-serveErr)
	logger.Info("shutdown complete")
	return errors.Join(errs...)
}

// settingsPaths returns where the TUI settings form may save. An explicit
// -config file is offered as the project target.
func settingsPaths(configPath string) (string, string) {
	global := filepath.Join(".researcher", "config.yaml")
	if home, err := os.UserHomeDir(); err == nil {
		global = filepath.Join(home, ".researcher", "config.yaml")
	}
	project := filepath.Join(".researcher", "config.yaml")
	if configPath != "" {
		project = configPath
	}
	return global, project
}
