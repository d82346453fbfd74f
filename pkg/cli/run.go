package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/coverbot-io/sandbox-runner/internal/config"
	"github.com/coverbot-io/sandbox-runner/internal/executor"
	"github.com/coverbot-io/sandbox-runner/internal/journal"
	"github.com/coverbot-io/sandbox-runner/internal/limiter"
	"github.com/coverbot-io/sandbox-runner/internal/loop"
	"github.com/coverbot-io/sandbox-runner/internal/metrics"
	"github.com/coverbot-io/sandbox-runner/internal/remote"
	"github.com/coverbot-io/sandbox-runner/internal/sandbox"
)

// run assembles every component from the explicit configuration and drives
// the dispatch loop until it stops.
func run(ctx context.Context, cfg *config.Config) error {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := remote.NewClient(remote.Config{
		BaseURL:   cfg.BaseURL,
		AuthToken: cfg.AuthToken,
		RunID:     cfg.RunID,
		Metadata:  config.BuildRunnerMetadata(),
	}, logger)
	if err != nil {
		return err
	}

	// Best-effort: a missing server config degrades to local settings.
	execCfg, err := client.FetchExecutionConfig(ctx)
	if err != nil {
		logger.Warn("could not fetch execution config, using local settings", "err", err)
		execCfg = nil
	}
	maxConcurrency := limiter.ResolveMaxConcurrency(cfg.MaxConcurrency, execCfg, logger)
	logger.Info("resolved max concurrency", "maxConcurrency", maxConcurrency)
	lim := limiter.New(maxConcurrency)

	var runner executor.ScriptRunner = executor.NewShellRunner()
	if cfg.SandboxEnabled {
		sbx, err := sandbox.NewRunner(ctx, sandbox.Config{
			Image:         cfg.SandboxImage,
			WorkspaceRoot: cfg.WorkspaceRoot,
			MemoryLimit:   cfg.SandboxMemory,
			CPULimit:      cfg.SandboxCPU,
		})
		if err != nil {
			return err
		}
		defer sbx.Close()
		runner = sbx
		logger.Info("sandboxed execution enabled", "image", cfg.SandboxImage)
	}

	exec := executor.New(cfg.WorkspaceRoot, executor.Scripts{
		Test:     cfg.TestScript,
		Lint:     cfg.LintScript,
		Coverage: cfg.CoverageScript,
	}, runner, logger)

	var jnl *journal.Journal
	if cfg.JournalEnabled {
		jnl, err = journal.Open(cfg.RunID, cfg.JournalPath)
		if err != nil {
			// The journal is diagnostics only; never block the run on it.
			logger.Warn("could not open journal, continuing without it", "err", err)
			jnl = nil
		} else {
			defer jnl.Close()
		}
	}

	var collector *metrics.Collector
	var metricsServer *metrics.Server
	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		collector = metrics.NewCollector(registry, lim)
		metricsServer = metrics.NewServer(cfg.MetricsAddr, registry, logger)
	}

	dispatch := loop.New(client, exec, lim, loop.Config{
		PollInterval:      cfg.PollInterval,
		PollDuration:      cfg.PollDuration,
		InactivityTimeout: cfg.InactivityTimeout,
		MaxPollFailures:   cfg.MaxPollFailures,
	}, jnl, collector, logger)

	g, gctx := errgroup.WithContext(ctx)
	loopDone := make(chan struct{})
	g.Go(func() error {
		defer close(loopDone)
		return dispatch.Run(gctx)
	})
	if metricsServer != nil {
		g.Go(func() error {
			srvCtx, cancel := context.WithCancel(gctx)
			defer cancel()
			go func() {
				<-loopDone
				cancel()
			}()
			return metricsServer.Run(srvCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("run failed", "err", err)
		return err
	}
	logger.Info("run complete")
	return nil
}
