// Command orderlens serves the CHAOS/LOGOS order dashboard snapshot over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/coachpo/orderlens/internal/app"
	"github.com/coachpo/orderlens/internal/config"
	"github.com/coachpo/orderlens/internal/httpserver"
	"github.com/coachpo/orderlens/internal/observability"
	"github.com/coachpo/orderlens/internal/poller"
)

const (
	shutdownTimeout       = 30 * time.Second
	serverShutdownTimeout = 5 * time.Second
	pollerShutdownTimeout = 10 * time.Second
	appShutdownTimeout    = 5 * time.Second
)

func main() {
	cfgPath := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	cfg, err := config.LoadOrDefault(ctx, cfgPath)
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

	if err := run(ctx, cancel, cfg, logger); err != nil {
		logger.Error("orderlens exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, cfg config.AppConfig, logger *zap.Logger) error {
	logger.Info("configuration initialised",
		zap.String("rpc", cfg.RPC.Endpoint),
		zap.Strings("tracked", cfg.Tokens.Tracked),
		zap.Duration("interval", cfg.Polling.Interval),
		zap.Bool("autoRefresh", cfg.Polling.AutoRefresh))

	components, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	var lifecycle conc.WaitGroup
	poll := components.NewPoller()
	if err := poll.Start(ctx); err != nil {
		poll.Stop()
		_ = components.Close(ctx)
		return fmt.Errorf("start poller: %w", err)
	}

	server := buildServer(cfg.Server, poll, logger,
		httpserver.WithStreamObserver(components.Metrics),
		httpserver.WithHistory(components.Pipeline.History()),
		httpserver.WithPriceCache(components.Prices),
	)
	startServer(&lifecycle, logger, server, cancel)
	logger.Info("http server listening", zap.String("addr", server.Addr))

	<-ctx.Done()
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	started := time.Now()
	performGracefulShutdown(shutdownCtx, logger, gracefulShutdownConfig{
		server:    server,
		lifecycle: &lifecycle,
		poller:    poll,
		app:       components,
	})
	logger.Info("shutdown completed", zap.Duration("elapsed", time.Since(started)))
	return nil
}

func parseFlags() string {
	cfgPath := flag.String("config", "", "Path to application configuration file (defaults when empty)")
	flag.Parse()
	return *cfgPath
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func buildServer(cfg config.ServerConfig, poll *poller.Poller, logger *zap.Logger, opts ...httpserver.Option) *http.Server {
	opts = append([]httpserver.Option{
		httpserver.WithLogger(logger),
		httpserver.WithAllowedOrigin(cfg.AllowedOrigin),
	}, opts...)
	handler := httpserver.NewHandler(poll, opts...)
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// startServer serves until Shutdown. A listen failure cancels the main context.
func startServer(lifecycle *conc.WaitGroup, logger *zap.Logger, server *http.Server, cancel context.CancelFunc) {
	lifecycle.Go(func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", zap.Error(err))
			cancel()
		}
	})
}

type gracefulShutdownConfig struct {
	server    *http.Server
	lifecycle *conc.WaitGroup
	poller    *poller.Poller
	app       *app.App
}

func performGracefulShutdown(ctx context.Context, logger *zap.Logger, cfg gracefulShutdownConfig) {
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		logger.Info("shutdown: " + name)
		if err := fn(stepCtx); err != nil {
			logger.Warn("shutdown step failed", zap.String("step", name), zap.Error(err))
		} else {
			logger.Info("shutdown step completed", zap.String("step", name))
		}
	}

	if cfg.server != nil {
		shutdownStep("stopping http server", serverShutdownTimeout, func(stepCtx context.Context) error {
			if err := cfg.server.Shutdown(stepCtx); err != nil {
				return err
			}
			return waitFor(stepCtx, cfg.lifecycle.Wait)
		})
	}

	if cfg.poller != nil {
		shutdownStep("stopping poller", pollerShutdownTimeout, func(stepCtx context.Context) error {
			return waitFor(stepCtx, cfg.poller.Stop)
		})
	}

	if cfg.app != nil {
		shutdownStep("closing telemetry and price cache", appShutdownTimeout, cfg.app.Close)
	}
}

func waitFor(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting: %w", ctx.Err())
	}
}
