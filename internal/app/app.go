// Package app wires configuration into the account source, price fetcher, pipeline and poller.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/coachpo/orderlens/internal/aggregate"
	"github.com/coachpo/orderlens/internal/chain"
	"github.com/coachpo/orderlens/internal/config"
	"github.com/coachpo/orderlens/internal/observability"
	"github.com/coachpo/orderlens/internal/pipeline"
	"github.com/coachpo/orderlens/internal/poller"
	"github.com/coachpo/orderlens/internal/pricing"
	"github.com/coachpo/orderlens/internal/telemetry"
	"github.com/coachpo/orderlens/internal/tokens"
)

// App holds the wired components shared by the service and the analyzer.
type App struct {
	Config    config.AppConfig
	Logger    *zap.Logger
	Telemetry *telemetry.Provider
	Metrics   *telemetry.Metrics
	Registry  *tokens.Registry
	Tracked   []tokens.Token
	Cache     *pricing.Cache
	Prices    *pricing.Fetcher
	Source    chain.Source
	Pipeline  *pipeline.Pipeline
}

type buildOptions struct {
	source     chain.Source
	httpClient *http.Client
	telemetry  *telemetry.Provider
}

// Option overrides a component built by Build.
type Option func(*buildOptions)

// WithSource replaces the RPC account source.
func WithSource(src chain.Source) Option {
	return func(o *buildOptions) { o.source = src }
}

// WithPriceClient sets the HTTP client used for price requests.
func WithPriceClient(client *http.Client) Option {
	return func(o *buildOptions) { o.httpClient = client }
}

// WithTelemetry uses an existing provider instead of building one from the config.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(o *buildOptions) { o.telemetry = p }
}

// Build constructs every component from a validated config.
func Build(ctx context.Context, cfg config.AppConfig, logger *zap.Logger, opts ...Option) (*App, error) {
	var bo buildOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&bo)
		}
	}
	logger = observability.Nop(logger)

	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	tracked, err := cfg.TrackedTokens()
	if err != nil {
		return nil, err
	}
	recurring, limit, err := cfg.ProgramKeys()
	if err != nil {
		return nil, err
	}

	provider := bo.telemetry
	if provider == nil {
		provider, err = telemetry.NewProvider(ctx, telemetryConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("initialize telemetry provider: %w", err)
		}
	}
	metrics, err := telemetry.NewMetrics(provider)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("initialize metrics: %w", err)
	}

	cache := pricing.NewCache(cfg.Prices.CacheTTL)
	fetcherOpts := []pricing.Option{pricing.WithLogger(logger), pricing.WithObserver(metrics)}
	if bo.httpClient != nil {
		fetcherOpts = append(fetcherOpts, pricing.WithHTTPClient(bo.httpClient))
	}
	fetcher := pricing.NewFetcher(pricing.Config{
		Endpoint:     cfg.Prices.Endpoint,
		MintEndpoint: cfg.Prices.MintEndpoint,
		Currency:     cfg.Prices.Currency,
		Timeout:      cfg.Prices.Timeout,
		Attempts:     cfg.Prices.Attempts,
		RetryStep:    cfg.Prices.RetryStep,
		MinInterval:  cfg.Prices.MinInterval,
	}, cache, registry, fetcherOpts...)

	source := bo.source
	if source == nil {
		source = chain.NewRPCSource(chain.RPCConfig{
			Endpoint:   cfg.RPC.Endpoint,
			Commitment: rpc.CommitmentType(cfg.RPC.Commitment),
			Attempts:   cfg.RPC.Attempts,
			RetryStep:  cfg.RPC.RetryStep,
		}, logger)
	}

	pipe, err := pipeline.New(pipeline.Options{
		Source:   source,
		Prices:   fetcher,
		Registry: registry,
		Tracked:  tracked,
		Programs: pipeline.Programs{Recurring: recurring, Limit: limit},
		History:  aggregate.NewHistory(cfg.Polling.HistoryDepth),
		Observer: metrics,
		Logger:   logger,
	})
	if err != nil {
		cache.Close()
		_ = metrics.Close()
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Telemetry: provider,
		Metrics:   metrics,
		Registry:  registry,
		Tracked:   tracked,
		Cache:     cache,
		Prices:    fetcher,
		Source:    source,
		Pipeline:  pipe,
	}, nil
}

// NewPoller creates a poller over the pipeline and points the order gauges at its view.
func (a *App) NewPoller() *poller.Poller {
	p := poller.New(a.Pipeline, poller.Config{
		Interval:    a.Config.Polling.Interval,
		AutoRefresh: a.Config.Polling.AutoRefresh,
		Timeout:     a.Config.Polling.Timeout,
	}, poller.WithLogger(a.Logger), poller.WithObserver(a.Metrics))
	a.Metrics.ObserveSnapshots(func() *pipeline.Snapshot { return p.View().Snapshot })
	return p
}

// TrackedSymbols lists tracked symbols in configuration order.
func (a *App) TrackedSymbols() []string {
	out := make([]string, 0, len(a.Tracked))
	for _, tok := range a.Tracked {
		out = append(out, tok.Symbol)
	}
	return out
}

// Close releases the metrics callback, the telemetry provider and the price cache.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	errs = append(errs, a.Metrics.Close())
	errs = append(errs, a.Telemetry.Shutdown(ctx))
	a.Cache.Close()
	return observability.AggregateErrors(a.Logger, "close app", errs)
}

func telemetryConfig(cfg config.AppConfig) telemetry.Config {
	tc := telemetry.DefaultConfig()
	if cfg.Telemetry.OTLPEndpoint != "" {
		tc.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	if cfg.Telemetry.ServiceName != "" {
		tc.ServiceName = cfg.Telemetry.ServiceName
	}
	if cfg.Telemetry.MetricInterval > 0 {
		tc.MetricInterval = cfg.Telemetry.MetricInterval
	}
	tc.Environment = string(cfg.Environment)
	tc.OTLPInsecure = tc.OTLPInsecure || cfg.Telemetry.OTLPInsecure
	tc.Enabled = cfg.Telemetry.EnableMetrics && tc.OTLPEndpoint != ""
	return tc
}
