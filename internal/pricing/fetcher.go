package pricing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/coachpo/orderlens/errs"
	"github.com/coachpo/orderlens/internal/numeric"
	"github.com/coachpo/orderlens/internal/tokens"
	"github.com/coachpo/orderlens/lib/retry"
)

const component = "pricing"

// Config controls the price API client.
type Config struct {
	// Endpoint is the simple-price URL, queried as ?ids=a,b&vs_currencies=usd.
	Endpoint string
	// MintEndpoint is the mint-keyed price URL, queried as ?ids=<mint>,<mint>. Tokens
	// without a coin id are priced here.
	MintEndpoint string
	Currency     string
	Timeout      time.Duration
	// Attempts bounds tries per request; the wait after attempt n is n*RetryStep.
	Attempts  int
	RetryStep time.Duration
	// MinInterval spaces consecutive requests. Zero disables throttling.
	MinInterval time.Duration
}

// DefaultConfig returns the production client settings.
func DefaultConfig() Config {
	return Config{
		Endpoint:     "https://api.coingecko.com/api/v3/simple/price",
		MintEndpoint: "https://api.jup.ag/price/v2",
		Currency:     "usd",
		Timeout:      10 * time.Second,
		Attempts:     3,
		RetryStep:    time.Second,
		MinInterval:  2 * time.Second,
	}
}

// Observer is notified when a price request exhausts its retries.
type Observer interface {
	PriceFetchFailed(ctx context.Context, ids int, err error)
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithLogger sets the fetcher logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger.Named(component)
		}
	}
}

// WithObserver registers a failure observer.
func WithObserver(obs Observer) Option {
	return func(f *Fetcher) {
		f.observer = obs
	}
}

// Fetcher resolves USD prices for mints, backed by an injected Cache. Failures never surface
// to callers: an unresolved price is reported as 0, which callers must treat as unknown.
type Fetcher struct {
	cfg      Config
	client   *http.Client
	cache    *Cache
	registry *tokens.Registry
	limiter  *rate.Limiter
	logger   *zap.Logger
	observer Observer
}

// NewFetcher builds a price fetcher. Zero-valued config fields fall back to DefaultConfig.
func NewFetcher(cfg Config, cache *Cache, registry *tokens.Registry, opts ...Option) *Fetcher {
	def := DefaultConfig()
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = def.Endpoint
	}
	if strings.TrimSpace(cfg.MintEndpoint) == "" {
		cfg.MintEndpoint = def.MintEndpoint
	}
	if cfg.Currency == "" {
		cfg.Currency = def.Currency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.RetryStep < 0 {
		cfg.RetryStep = 0
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	client := new(http.Client)
	client.Timeout = cfg.Timeout
	f := &Fetcher{
		cfg:      cfg,
		client:   client,
		cache:    cache,
		registry: registry,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// ClearCache drops every cached quote and reports how many were held.
func (f *Fetcher) ClearCache() int {
	held := f.cache.Len()
	f.cache.Clear()
	return held
}

// USDPrices resolves the USD price of each mint with at most one request per price source.
// Pegged stablecoins resolve to 1; unresolved mints map to 0.
func (f *Fetcher) USDPrices(ctx context.Context, mints ...string) map[string]float64 {
	out := make(map[string]float64, len(mints))
	missing := map[source]map[string][]string{}
	for _, mint := range mints {
		if _, seen := out[mint]; seen {
			continue
		}
		tok := f.registry.ByMint(mint)
		if tok.Pegged {
			out[mint] = 1
			continue
		}
		if q, ok := f.cache.Get(tok.PriceID); ok {
			out[mint] = q.USD
			continue
		}
		out[mint] = 0
		src := sourceFor(tok)
		if missing[src] == nil {
			missing[src] = map[string][]string{}
		}
		missing[src][tok.PriceID] = append(missing[src][tok.PriceID], mint)
	}

	for _, src := range []source{sourceCoin, sourceMint} {
		byID := missing[src]
		if len(byID) == 0 {
			continue
		}
		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		quotes, err := f.fetch(ctx, src, ids)
		if err != nil {
			f.logger.Warn("price fetch failed; treating prices as unknown",
				zap.String("source", string(src)), zap.Strings("ids", ids), zap.Error(err))
			if f.observer != nil {
				f.observer.PriceFetchFailed(ctx, len(ids), err)
			}
			continue
		}
		for id, usd := range quotes {
			if usd <= 0 {
				continue
			}
			f.cache.Set(Quote{ID: id, USD: usd})
			for _, mint := range byID[id] {
				out[mint] = usd
			}
		}
	}
	return out
}

type source string

const (
	sourceCoin source = "coin"
	sourceMint source = "mint"
)

// sourceFor routes tokens carrying a coin id to the simple-price API and everything keyed
// by its mint (pump tokens, unknown mints) to the mint-keyed API.
func sourceFor(tok tokens.Token) source {
	if tok.PriceID == "" || tok.PriceID == tok.Mint {
		return sourceMint
	}
	return sourceCoin
}

// CrossRate prices mint in units of quoteMint from already-resolved USD prices. Either leg
// being unknown yields 0.
func CrossRate(prices map[string]float64, mint, quoteMint string) float64 {
	if mint == quoteMint {
		return 1
	}
	base, quote := prices[mint], prices[quoteMint]
	if base <= 0 || quote <= 0 {
		return 0
	}
	return base / quote
}

// ConvertExecutionPrice re-expresses a price quoted in quoteMint units per token as USD per
// token. An unknown quote leg or a non-positive price yields 0.
func ConvertExecutionPrice(prices map[string]float64, price float64, quoteMint string) float64 {
	usd := prices[quoteMint]
	if price <= 0 || usd <= 0 {
		return 0
	}
	return price * usd
}

func (f *Fetcher) fetch(ctx context.Context, src source, ids []string) (map[string]float64, error) {
	policy := retry.Policy{
		Attempts: f.cfg.Attempts,
		Step:     f.cfg.RetryStep,
		Notify: func(err error, wait time.Duration) {
			f.logger.Debug("price request failed; retrying", zap.Duration("wait", wait), zap.Error(err))
		},
	}
	return retry.Do(ctx, policy, func(ctx context.Context) (map[string]float64, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, retry.Permanent(fmt.Errorf("price throttle: %w", err))
		}
		if src == sourceMint {
			return f.requestMints(ctx, ids)
		}
		return f.request(ctx, ids)
	})
}

type priceResponse map[string]map[string]float64

func (f *Fetcher) request(ctx context.Context, ids []string) (map[string]float64, error) {
	var body priceResponse
	if err := f.get(ctx, f.cfg.Endpoint, url.Values{
		"ids":           {strings.Join(ids, ",")},
		"vs_currencies": {f.cfg.Currency},
	}, &body); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(body))
	for id, quote := range body {
		out[id] = quote[f.cfg.Currency]
	}
	return out, nil
}

// mintPrice accepts the price either as a JSON number or as a quoted decimal.
type mintPrice float64

func (p *mintPrice) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*p = 0
		return nil
	}
	d, ok := numeric.Parse(raw)
	if !ok {
		return fmt.Errorf("mint price %q is not a decimal", raw)
	}
	*p = mintPrice(numeric.Float(d))
	return nil
}

type mintPriceResponse struct {
	Data map[string]*struct {
		Price mintPrice `json:"price"`
	} `json:"data"`
}

func (f *Fetcher) requestMints(ctx context.Context, mints []string) (map[string]float64, error) {
	var body mintPriceResponse
	if err := f.get(ctx, f.cfg.MintEndpoint, url.Values{"ids": {strings.Join(mints, ",")}}, &body); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(body.Data))
	for mint, quote := range body.Data {
		if quote != nil {
			out[mint] = float64(quote.Price)
		}
	}
	return out, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string, params url.Values, dst any) error {
	endpoint, err := url.Parse(rawURL)
	if err != nil {
		return retry.Permanent(errs.New(component, errs.CodeInvalid, errs.WithMessage("invalid price endpoint"), errs.WithCause(err)))
	}
	query := endpoint.Query()
	for key, values := range params {
		query[key] = values
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return errs.New(component, errs.CodeNetwork, errs.WithMessage("fetch prices"), errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errs.New(component, errs.CodeUpstream,
			errs.WithHTTP(resp.StatusCode),
			errs.WithMessage(fmt.Sprintf("price status %d", resp.StatusCode)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return retry.Permanent(errs.New(component, errs.CodeUpstream, errs.WithMessage("decode prices"), errs.WithCause(err)))
	}
	return nil
}
