// gpu-worker polls a dispatch server for image-generation jobs and runs
// them against a local inference backend.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/anemone1693821/gpu-worker/backend"
	"github.com/anemone1693821/gpu-worker/config"
	"github.com/anemone1693821/gpu-worker/core"
	"github.com/anemone1693821/gpu-worker/errors"
	"github.com/anemone1693821/gpu-worker/inventory"
	"github.com/anemone1693821/gpu-worker/monitor"
	"github.com/anemone1693821/gpu-worker/remote"
	"github.com/anemone1693821/gpu-worker/settings"
	"github.com/peterbourgon/ff/v3"
)

// Exit codes, distinguishable per failure class.
const (
	exitOK     = 0
	exitFatal  = 1
	exitConfig = 2
	exitAuth   = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := parseConfig(args)
	if err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "gpu-worker: %v\n", err)
		return exitConfig
	}

	setupLogging(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "gpu-worker: %v\n", err)
		return exitConfig
	}

	gpus, err := inventory.DetectGPUs()
	if err != nil {
		slog.Warn("GPU detection failed", "error", err)
	}
	for _, g := range gpus {
		slog.Info("Detected GPU", "index", g.Index, "name", g.Name)
	}

	var metrics *monitor.Metrics
	if cfg.MonitorAddr != "" {
		metrics = monitor.New()
		go func() {
			if err := metrics.Serve(cfg.MonitorAddr); err != nil {
				slog.Error("Metrics listener failed", "error", err)
			}
		}()
	}

	worker := core.New(
		remote.NewClient(cfg),
		backend.NewClient(cfg),
		settings.NewStore(cfg.SettingsPath()),
		inventory.NewScanner(cfg.ModelDir),
		core.WithPollInterval(cfg.PollInterval),
		core.WithMaxBackoff(cfg.MaxBackoff),
		core.WithDrainOnShutdown(cfg.DrainOnShutdown),
		core.WithGPUs(gpus),
		core.WithMetrics(metrics),
	)

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	slog.Info("Starting worker", "server", cfg.ServerURL, "backend", cfg.BackendURL)

	switch err := worker.Run(ctx); {
	case err == nil:
		return exitOK
	case errors.IsAuth(err):
		fmt.Fprintf(os.Stderr, "gpu-worker: authentication failed: check your API key\n")
		return exitAuth
	case stderrors.Is(err, errors.ErrInvalidConfig):
		fmt.Fprintf(os.Stderr, "gpu-worker: %v\n", err)
		return exitConfig
	default:
		fmt.Fprintf(os.Stderr, "gpu-worker: fatal: %v\n", err)
		return exitFatal
	}
}

// parseConfig builds the configuration from flags and GPU_WORKER_* env vars.
func parseConfig(args []string) (*config.Config, error) {
	cfg := config.Default()

	fs := flag.NewFlagSet("gpu-worker", flag.ContinueOnError)
	fs.StringVar(&cfg.APIKey, "api-key", "", "worker API key (required)")
	fs.StringVar(&cfg.ServerURL, "server-url", cfg.ServerURL, "dispatch server base URL")
	fs.StringVar(&cfg.BackendURL, "backend-url", cfg.BackendURL, "local inference server base URL")
	fs.StringVar(&cfg.ModelDir, "model-dir", cfg.ModelDir, "directory scanned for model files")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for persisted worker state")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "sleep between iterations")
	fs.DurationVar(&cfg.MaxBackoff, "max-backoff", cfg.MaxBackoff, "cap on the failure backoff interval")
	fs.DurationVar(&cfg.BackendTimeout, "backend-timeout", cfg.BackendTimeout, "timeout for one generation request")
	fs.DurationVar(&cfg.RemoteTimeout, "remote-timeout", cfg.RemoteTimeout, "timeout for dispatch server calls")
	fs.Uint64Var(&cfg.ReportRetries, "report-retries", cfg.ReportRetries, "extra attempts for a result report")
	fs.BoolVar(&cfg.DrainOnShutdown, "drain-on-shutdown", cfg.DrainOnShutdown, "finish the in-flight job before exiting")
	fs.StringVar(&cfg.MonitorAddr, "monitor-addr", cfg.MonitorAddr, "metrics listen address (empty disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("GPU_WORKER")); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}
