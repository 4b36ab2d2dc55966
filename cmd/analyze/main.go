// Command analyze runs one pipeline pass and writes the plain-text order report.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/coachpo/orderlens/internal/app"
	"github.com/coachpo/orderlens/internal/config"
	"github.com/coachpo/orderlens/internal/observability"
	"github.com/coachpo/orderlens/internal/pipeline"
	"github.com/coachpo/orderlens/internal/report"
)

const closeTimeout = 5 * time.Second

type options struct {
	configPath string
	out        string
	section    string
	timeout    time.Duration
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to application configuration file (defaults when empty)")
	fs.StringVar(&opts.out, "out", "", "Write the report to this file instead of stdout")
	fs.StringVar(&opts.section, "section", "all", "Report section: all, recurring or limit")
	fs.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Upper bound for the pipeline pass")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	switch opts.section {
	case "all", "recurring", "limit":
	default:
		return options{}, fmt.Errorf("section must be all, recurring or limit")
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadOrDefault(ctx, opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.Log, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error("analyze failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.AppConfig, opts options, logger *zap.Logger) error {
	components, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		_ = components.Close(closeCtx)
	}()

	runCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	snap, err := components.Pipeline.Run(runCtx, 1)
	if err != nil {
		return fmt.Errorf("pipeline pass: %w", err)
	}
	logger.Info("pipeline pass completed",
		zap.Int("positions", len(snap.Positions)),
		zap.Int("limitOrders", len(snap.LimitOrders)),
		zap.Int("decodeFailures", snap.DecodeFailures))

	return writeReport(opts, snap, components.TrackedSymbols(), snap.UpdatedAt)
}

func writeReport(opts options, snap *pipeline.Snapshot, tracked []string, at time.Time) error {
	var w io.Writer = os.Stdout
	if opts.out != "" {
		if err := os.MkdirAll(filepath.Dir(opts.out), 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		file, err := os.Create(filepath.Clean(opts.out))
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer func() { _ = file.Close() }()
		w = file
	}

	switch opts.section {
	case "recurring":
		return report.WriteRecurring(w, snap, tracked)
	case "limit":
		return report.WriteLimit(w, snap, tracked, at)
	default:
		return report.Write(w, snap, tracked, at)
	}
}
