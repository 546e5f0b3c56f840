package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipemedic/internal/analyzer"
	"github.com/fyrsmithlabs/pipemedic/internal/commits"
	"github.com/fyrsmithlabs/pipemedic/internal/config"
	"github.com/fyrsmithlabs/pipemedic/internal/dashboard"
	"github.com/fyrsmithlabs/pipemedic/internal/fixgen"
	"github.com/fyrsmithlabs/pipemedic/internal/ghapi"
	"github.com/fyrsmithlabs/pipemedic/internal/logging"
	"github.com/fyrsmithlabs/pipemedic/internal/metrics"
	"github.com/fyrsmithlabs/pipemedic/internal/notify"
	"github.com/fyrsmithlabs/pipemedic/internal/orchestrator"
	"github.com/fyrsmithlabs/pipemedic/internal/retryctl"
	"github.com/fyrsmithlabs/pipemedic/internal/scanner"
)

// app wires the components for one CLI invocation.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	client    *ghapi.Client
	scanner   *scanner.Scanner
	processor *orchestrator.Processor
}

// newApp loads and validates configuration, then builds every component.
// Validation failure returns before any remote call is made.
func newApp(configPath string, debug bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	log, err := logging.New(level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	client, err := ghapi.New(context.Background(), cfg.GitHub.Token, log)
	if err != nil {
		return nil, fmt.Errorf("construct github client: %w", err)
	}

	completer, err := analyzer.NewCompleter(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("construct model client: %w", err)
	}
	if completer == nil {
		log.Info("no AI provider configured, classification will be degraded")
	}

	scan := scanner.New(client, cfg.GitHub, cfg.Scan, log)
	processor := orchestrator.New(
		scan,
		analyzer.New(completer, log),
		fixgen.New(log),
		commits.New(client, log),
		retryctl.New(client, cfg.Retry, log),
		notify.New(client, cfg.Notify, log),
		client,
		log,
	)

	return &app{
		cfg:       cfg,
		log:       log,
		client:    client,
		scanner:   scan,
		processor: processor,
	}, nil
}

// Close flushes buffered log output.
func (a *app) Close() {
	_ = a.log.Sync()
}

// Monitor runs one scan-and-remediate cycle and prints the summary.
func (a *app) Monitor(ctx context.Context) error {
	reports, err := a.scanAndProcess(ctx)
	if err != nil {
		return err
	}

	resolved := 0
	for _, r := range reports {
		if r.Resolved() {
			resolved++
		}
		fmt.Printf("%-60s %s\n", r.Run.String(), r.State)
	}
	fmt.Printf("\nresolved %d/%d failures\n", resolved, len(reports))
	return nil
}

// Scan detects failures and prints them, with no remediation.
func (a *app) Scan(ctx context.Context) error {
	metrics.ScansTotal.Inc()
	failures, err := a.scanner.ScanAll(ctx)
	if err != nil {
		return err
	}
	metrics.FailuresDetected.Add(float64(len(failures)))

	for _, f := range failures {
		fmt.Printf("%-60s %-10s %s\n", f.String(), f.Conclusion, f.RunURL)
	}
	fmt.Printf("\n%d failed workflow runs in the last %s\n", len(failures), a.cfg.Scan.Lookback.Duration())
	return nil
}

// Dashboard serves the read view until interrupted.
func (a *app) Dashboard(ctx context.Context) error {
	store := dashboard.NewStore()
	server := dashboard.NewServer(store, a.scanAndProcess, a.cfg.Dashboard.Addr, a.log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case s := <-sig:
		a.log.Info("signal received, shutting down", zap.String("signal", s.String()))
	case <-ctx.Done():
	}
	return server.Shutdown(context.Background())
}

// scanAndProcess runs one full cycle. Each failure is processed to
// completion before the next; a panic inside processing is absorbed by the
// orchestrator so the loop always finishes.
func (a *app) scanAndProcess(ctx context.Context) ([]orchestrator.Report, error) {
	metrics.ScansTotal.Inc()
	failures, err := a.scanner.ScanAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan repositories: %w", err)
	}
	metrics.FailuresDetected.Add(float64(len(failures)))

	reports := make([]orchestrator.Report, 0, len(failures))
	for _, f := range failures {
		report := a.processor.Process(ctx, f)
		reports = append(reports, report)
		a.log.Info("failure processed",
			zap.String("run", f.String()),
			zap.String("trace", report.TraceID),
			zap.String("state", string(report.State)),
		)
	}
	return reports, nil
}
