package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/orderlens/internal/accounts"
	"github.com/coachpo/orderlens/internal/orders"
	"github.com/coachpo/orderlens/internal/pipeline"
	"github.com/coachpo/orderlens/internal/poller"
)

// Metrics implements the pricing, pipeline and poller observers on OpenTelemetry instruments.
type Metrics struct {
	env string

	polls          metric.Int64Counter
	pollDuration   metric.Float64Histogram
	decodeFailures metric.Int64Counter
	priceFailures  metric.Int64Counter
	streamClients  metric.Int64UpDownCounter

	mu       sync.RWMutex
	snapshot func() *pipeline.Snapshot
	reg      metric.Registration

	closed atomic.Bool
}

// NewMetrics creates the pipeline instruments on the provider's meter.
func NewMetrics(p *Provider) (*Metrics, error) {
	meter := p.Meter(meterName)
	m := &Metrics{env: p.Environment()}

	var err error
	if m.polls, err = meter.Int64Counter(MetricPolls,
		metric.WithDescription("Completed polls by outcome"),
		metric.WithUnit("{poll}")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricPolls, err)
	}
	if m.pollDuration, err = meter.Float64Histogram(MetricPollDuration,
		metric.WithDescription("Wall time of one pipeline pass"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricPollDuration, err)
	}
	if m.decodeFailures, err = meter.Int64Counter(MetricDecodeFailures,
		metric.WithDescription("Program accounts skipped because they could not be decoded"),
		metric.WithUnit("{account}")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricDecodeFailures, err)
	}
	if m.priceFailures, err = meter.Int64Counter(MetricPriceFailures,
		metric.WithDescription("Price requests that exhausted their retries"),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricPriceFailures, err)
	}
	if m.streamClients, err = meter.Int64UpDownCounter(MetricStreamClients,
		metric.WithDescription("Connected websocket stream clients"),
		metric.WithUnit("{client}")); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricStreamClients, err)
	}

	positions, err := meter.Int64ObservableGauge(MetricPositions,
		metric.WithDescription("Active recurring positions per token and side"),
		metric.WithUnit("{position}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricPositions, err)
	}
	limits, err := meter.Int64ObservableGauge(MetricLimitOrders,
		metric.WithDescription("Limit orders per token and side"),
		metric.WithUnit("{order}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricLimitOrders, err)
	}
	m.reg, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		m.observeSnapshot(o, positions, limits)
		return nil
	}, positions, limits)
	if err != nil {
		return nil, fmt.Errorf("register gauges: %w", err)
	}
	return m, nil
}

// ObserveSnapshots sets the source read by the order gauges on each collection.
func (m *Metrics) ObserveSnapshots(source func() *pipeline.Snapshot) {
	m.mu.Lock()
	m.snapshot = source
	m.mu.Unlock()
}

type gaugeKey struct {
	token string
	side  orders.Side
}

func (m *Metrics) observeSnapshot(o metric.Observer, positions, limits metric.Int64ObservableGauge) {
	m.mu.RLock()
	source := m.snapshot
	m.mu.RUnlock()
	if source == nil {
		return
	}
	snap := source()
	if snap == nil {
		return
	}
	active := make(map[gaugeKey]int64)
	for _, pos := range snap.Positions {
		if pos.IsActive {
			active[gaugeKey{pos.Token, pos.Side}]++
		}
	}
	open := make(map[gaugeKey]int64)
	for _, lo := range snap.LimitOrders {
		open[gaugeKey{lo.Token, lo.Side}]++
	}
	for symbol := range snap.Summaries {
		for _, side := range []orders.Side{orders.SideBuy, orders.SideSell} {
			key := gaugeKey{symbol, side}
			attrs := metric.WithAttributes(OrderAttributes(m.env, symbol, string(side))...)
			o.ObserveInt64(positions, active[key], attrs)
			o.ObserveInt64(limits, open[key], attrs)
		}
	}
}

// PollCompleted implements poller.Observer.
func (m *Metrics) PollCompleted(ctx context.Context, outcome poller.Outcome, elapsed time.Duration) {
	attrs := metric.WithAttributes(PollAttributes(m.env, string(outcome))...)
	m.polls.Add(ctx, 1, attrs)
	m.pollDuration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
}

// DecodeFailed implements pipeline.Observer.
func (m *Metrics) DecodeFailed(ctx context.Context, layout accounts.Layout, count int) {
	m.decodeFailures.Add(ctx, int64(count), metric.WithAttributes(DecodeAttributes(m.env, string(layout))...))
}

// PriceFetchFailed implements pricing.Observer.
func (m *Metrics) PriceFetchFailed(ctx context.Context, _ int, _ error) {
	m.priceFailures.Add(ctx, 1, metric.WithAttributes(AttrEnvironment.String(m.env)))
}

// StreamClient tracks websocket connects (+1) and disconnects (-1).
func (m *Metrics) StreamClient(ctx context.Context, delta int64) {
	m.streamClients.Add(ctx, delta, metric.WithAttributes(AttrEnvironment.String(m.env)))
}

// Close unregisters the gauge callback.
func (m *Metrics) Close() error {
	if !m.closed.CompareAndSwap(false, true) || m.reg == nil {
		return nil
	}
	if err := m.reg.Unregister(); err != nil {
		return fmt.Errorf("unregister gauges: %w", err)
	}
	return nil
}
