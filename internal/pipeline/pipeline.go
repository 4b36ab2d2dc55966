// Package pipeline runs one fetch-decode-enrich-aggregate pass over the order programs.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/coachpo/orderlens/internal/accounts"
	"github.com/coachpo/orderlens/internal/aggregate"
	"github.com/coachpo/orderlens/internal/chain"
	"github.com/coachpo/orderlens/internal/orders"
	"github.com/coachpo/orderlens/internal/pricing"
	"github.com/coachpo/orderlens/internal/tokens"
)

// Jupiter program ids.
var (
	RecurringProgram = solana.MustPublicKeyFromBase58("DCA265Vj8a9CEuX1eb1LWRnDT7uK6q1xMipnNyatn23M")
	LimitProgram     = solana.MustPublicKeyFromBase58("j1o2qRpjcyUwEvwtcfhEQefh773ZgjxcVRry7LDqg5X")
)

// Programs names the on-chain programs to query.
type Programs struct {
	Recurring solana.PublicKey
	Limit     solana.PublicKey
}

// DefaultPrograms returns the mainnet Jupiter programs.
func DefaultPrograms() Programs {
	return Programs{Recurring: RecurringProgram, Limit: LimitProgram}
}

// PriceSource resolves USD prices by mint; 0 means unknown.
type PriceSource interface {
	USDPrices(ctx context.Context, mints ...string) map[string]float64
}

// Observer receives per-pass measurements.
type Observer interface {
	DecodeFailed(ctx context.Context, layout accounts.Layout, count int)
}

// Snapshot is the display state produced by one pass.
type Snapshot struct {
	ID          string                            `json:"id"`
	Seq         uint64                            `json:"seq"`
	Positions   []orders.Position                 `json:"positions"`
	LimitOrders []orders.LimitOrder               `json:"limitOrders"`
	Summaries   map[string]aggregate.TokenSummary `json:"summaries"`
	History     map[string][]aggregate.ChartPoint `json:"history"`
	// Prices maps every mint seen in the pass to its USD price.
	Prices         map[string]float64 `json:"prices"`
	DecodeFailures int                `json:"decodeFailures"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// Options configures a Pipeline.
type Options struct {
	Source   chain.Source
	Prices   PriceSource
	Registry *tokens.Registry
	Tracked  []tokens.Token
	Programs Programs
	History  *aggregate.History
	Observer Observer
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Pipeline turns program accounts into snapshots.
type Pipeline struct {
	source   chain.Source
	prices   PriceSource
	registry *tokens.Registry
	tracked  []tracked
	programs Programs
	history  *aggregate.History
	observer Observer
	logger   *zap.Logger
	clock    func() time.Time
}

type tracked struct {
	token tokens.Token
	key   solana.PublicKey
}

// New validates options and builds a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("pipeline: account source required")
	}
	if opts.Prices == nil {
		return nil, fmt.Errorf("pipeline: price source required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("pipeline: registry required")
	}
	if len(opts.Tracked) == 0 {
		return nil, fmt.Errorf("pipeline: at least one tracked token required")
	}
	if opts.Programs.Recurring.IsZero() && opts.Programs.Limit.IsZero() {
		opts.Programs = DefaultPrograms()
	}
	if opts.History == nil {
		opts.History = aggregate.NewHistory(aggregate.DefaultHistoryDepth)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	trackedTokens := make([]tracked, 0, len(opts.Tracked))
	seen := make(map[solana.PublicKey]struct{}, len(opts.Tracked))
	for _, tok := range opts.Tracked {
		key, err := tok.PublicKey()
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("pipeline: token %s tracked more than once", tok.Symbol)
		}
		seen[key] = struct{}{}
		trackedTokens = append(trackedTokens, tracked{token: tok, key: key})
	}

	return &Pipeline{
		source:   opts.Source,
		prices:   opts.Prices,
		registry: opts.Registry,
		tracked:  trackedTokens,
		programs: opts.Programs,
		history:  opts.History,
		observer: opts.Observer,
		logger:   opts.Logger.Named("pipeline"),
		clock:    opts.Clock,
	}, nil
}

// Tracked returns the tracked tokens in configuration order.
func (p *Pipeline) Tracked() []tokens.Token {
	out := make([]tokens.Token, 0, len(p.tracked))
	for _, t := range p.tracked {
		out = append(out, t.token)
	}
	return out
}

// History exposes the chart history fed by Commit.
func (p *Pipeline) History() *aggregate.History { return p.history }

// query is one filtered program account request and its classification.
type query struct {
	layout  accounts.Layout
	program solana.PublicKey
	tracked tracked
	side    orders.Side
	filter  chain.Filter
}

func (p *Pipeline) queries() []query {
	var out []query
	layouts := []struct {
		layout  accounts.Layout
		program solana.PublicKey
		size    uint64
	}{
		{accounts.LayoutRecurring, p.programs.Recurring, accounts.RecurringAccountSize},
		{accounts.LayoutLimit, p.programs.Limit, accounts.LimitAccountSize},
	}
	for _, l := range layouts {
		if l.program.IsZero() {
			continue
		}
		for _, t := range p.tracked {
			out = append(out,
				query{l.layout, l.program, t, orders.SideBuy, chain.MintFilter(l.size, accounts.OutputMintOffset, t.key)},
				query{l.layout, l.program, t, orders.SideSell, chain.MintFilter(l.size, accounts.InputMintOffset, t.key)},
			)
		}
	}
	return out
}

// Run executes one pass. Account queries fail the pass; price failures only zero prices.
// History is left empty until Commit.
func (p *Pipeline) Run(ctx context.Context, seq uint64) (*Snapshot, error) {
	queries := p.queries()
	results := make([][]chain.Account, len(queries))
	var trackedPrices map[string]float64

	g := pool.New().WithContext(ctx).WithCancelOnError()
	for i, q := range queries {
		g.Go(func(ctx context.Context) error {
			accs, err := p.source.ProgramAccounts(ctx, q.program, q.filter)
			if err != nil {
				return fmt.Errorf("%s %s %s: %w", q.layout, q.tracked.token.Symbol, q.side, err)
			}
			results[i] = accs
			return nil
		})
	}
	g.Go(func(ctx context.Context) error {
		mints := make([]string, 0, len(p.tracked))
		for _, t := range p.tracked {
			mints = append(mints, t.token.Mint)
		}
		trackedPrices = p.prices.USDPrices(ctx, mints...)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := p.clock()
	var (
		recurring []classified[accounts.Recurring]
		limits    []classified[accounts.Limit]
		failures  int
	)
	for i, q := range queries {
		switch q.layout {
		case accounts.LayoutRecurring:
			decoded, fails := accounts.DecodeRecurringBatch(results[i])
			p.reportFailures(ctx, q, fails)
			failures += len(fails)
			for _, acc := range decoded {
				recurring = append(recurring, classified[accounts.Recurring]{acc, q})
			}
		case accounts.LayoutLimit:
			decoded, fails := accounts.DecodeLimitBatch(results[i])
			p.reportFailures(ctx, q, fails)
			failures += len(fails)
			for _, acc := range decoded {
				limits = append(limits, classified[accounts.Limit]{acc, q})
			}
		}
	}

	prices := p.resolvePrices(ctx, trackedPrices, recurring, limits)

	positions := make([]orders.Position, 0, len(recurring))
	for _, rec := range recurring {
		counter := counterMint(rec.query.side, rec.account.InputMint, rec.account.OutputMint)
		market := pricing.CrossRate(prices, rec.query.tracked.token.Mint, counter.String())
		pos := orders.BuildPosition(rec.account, rec.query.side, market, p.registry)
		pos.MinExecutionPriceUSD = pricing.ConvertExecutionPrice(prices, pos.MinExecutionPrice, counter.String())
		pos.MaxExecutionPriceUSD = pricing.ConvertExecutionPrice(prices, pos.MaxExecutionPrice, counter.String())
		positions = append(positions, pos)
	}
	limitOrders := make([]orders.LimitOrder, 0, len(limits))
	for _, lim := range limits {
		limitOrders = append(limitOrders, orders.BuildLimitOrder(lim.account, lim.query.side, p.registry, now))
	}
	sortPositions(positions)
	sortLimitOrders(limitOrders)

	snap := &Snapshot{
		ID:             uuid.NewString(),
		Seq:            seq,
		Positions:      positions,
		LimitOrders:    limitOrders,
		Summaries:      aggregate.Summarize(p.Tracked(), positions, limitOrders, prices),
		Prices:         prices,
		DecodeFailures: failures,
		UpdatedAt:      now,
	}
	p.logger.Debug("pass complete",
		zap.Uint64("seq", seq),
		zap.Int("positions", len(positions)),
		zap.Int("limitOrders", len(limitOrders)),
		zap.Int("decodeFailures", failures))
	return snap, nil
}

// Commit records the snapshot into the chart history and attaches the current series.
// Only snapshots that are actually published should be committed.
func (p *Pipeline) Commit(snap *Snapshot) {
	if snap == nil {
		return
	}
	p.history.Record(snap.UpdatedAt, snap.Summaries)
	snap.History = p.history.All()
}

type classified[T any] struct {
	account T
	query   query
}

func counterMint(side orders.Side, input, output solana.PublicKey) solana.PublicKey {
	if side == orders.SideBuy {
		return input
	}
	return output
}

// resolvePrices prices every mint seen in the pass, reusing the tracked quotes fetched
// alongside the account queries.
func (p *Pipeline) resolvePrices(ctx context.Context, trackedPrices map[string]float64, recurring []classified[accounts.Recurring], limits []classified[accounts.Limit]) map[string]float64 {
	seen := make(map[string]struct{})
	var mints []string
	add := func(keys ...solana.PublicKey) {
		for _, k := range keys {
			m := k.String()
			if _, ok := trackedPrices[m]; ok {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			mints = append(mints, m)
		}
	}
	for _, r := range recurring {
		add(r.account.InputMint, r.account.OutputMint)
	}
	for _, l := range limits {
		add(l.account.InputMint, l.account.OutputMint)
	}

	out := make(map[string]float64, len(trackedPrices)+len(mints))
	for m, v := range trackedPrices {
		out[m] = v
	}
	if len(mints) == 0 {
		return out
	}
	sort.Strings(mints)
	for m, v := range p.prices.USDPrices(ctx, mints...) {
		out[m] = v
	}
	return out
}

func (p *Pipeline) reportFailures(ctx context.Context, q query, fails []*accounts.DecodeError) {
	if len(fails) == 0 {
		return
	}
	for _, f := range fails {
		p.logger.Warn("skipping undecodable account",
			zap.String("layout", string(q.layout)),
			zap.String("account", f.Account),
			zap.String("field", f.Field),
			zap.Int("offset", f.Offset),
			zap.Error(f.Err))
	}
	if p.observer != nil {
		p.observer.DecodeFailed(ctx, q.layout, len(fails))
	}
}

func sortPositions(positions []orders.Position) {
	sort.SliceStable(positions, func(i, j int) bool {
		if positions[i].CreatedAtMs != positions[j].CreatedAtMs {
			return positions[i].CreatedAtMs > positions[j].CreatedAtMs
		}
		return positions[i].ID < positions[j].ID
	})
}

func sortLimitOrders(limitOrders []orders.LimitOrder) {
	sort.SliceStable(limitOrders, func(i, j int) bool {
		if limitOrders[i].CreatedAtMs != limitOrders[j].CreatedAtMs {
			return limitOrders[i].CreatedAtMs > limitOrders[j].CreatedAtMs
		}
		return limitOrders[i].ID < limitOrders[j].ID
	})
}
