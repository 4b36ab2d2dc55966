// Package config manages application configuration loading and validation.
package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/coachpo/orderlens/internal/tokens"
)

// RPCConfig configures the Solana JSON-RPC account source.
type RPCConfig struct {
	Endpoint   string        `yaml:"endpoint" validate:"required,url"`
	Commitment string        `yaml:"commitment" validate:"oneof=processed confirmed finalized"`
	Attempts   int           `yaml:"attempts" validate:"gte=1,lte=10"`
	RetryStep  time.Duration `yaml:"retryStep" validate:"gte=0"`
}

// ProgramsConfig names the Jupiter programs to query.
type ProgramsConfig struct {
	Recurring string `yaml:"recurring" validate:"required"`
	Limit     string `yaml:"limit" validate:"required"`
}

// TokensConfig selects tracked tokens and extends the builtin registry.
type TokensConfig struct {
	Tracked []string       `yaml:"tracked" validate:"min=1,unique,dive,required"`
	Extra   []tokens.Token `yaml:"extra"`
}

// PricesConfig configures the USD price client and its cache. Tokens with a coin id are
// priced through Endpoint, everything else by mint through MintEndpoint.
type PricesConfig struct {
	Endpoint     string        `yaml:"endpoint" validate:"required,url"`
	MintEndpoint string        `yaml:"mintEndpoint" validate:"required,url"`
	Currency     string        `yaml:"currency" validate:"required"`
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
	Attempts     int           `yaml:"attempts" validate:"gte=1,lte=10"`
	RetryStep    time.Duration `yaml:"retryStep" validate:"gte=0"`
	MinInterval  time.Duration `yaml:"minInterval" validate:"gte=0"`
	CacheTTL     time.Duration `yaml:"cacheTTL" validate:"gt=0"`
}

// PollingConfig controls refresh cadence and history depth.
type PollingConfig struct {
	Interval     time.Duration `yaml:"interval" validate:"gt=0"`
	AutoRefresh  bool          `yaml:"autoRefresh"`
	Timeout      time.Duration `yaml:"timeout" validate:"gte=0"`
	HistoryDepth int           `yaml:"historyDepth" validate:"gte=1"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr              string        `yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout" validate:"gt=0"`
	AllowedOrigin     string        `yaml:"allowedOrigin"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level             string `yaml:"level" validate:"oneof=debug info warn error"`
	Encoding          string `yaml:"encoding" validate:"oneof=json console"`
	Development       bool   `yaml:"development"`
	DisableCaller     bool   `yaml:"disableCaller"`
	DisableStacktrace bool   `yaml:"disableStacktrace"`
	Sampling          bool   `yaml:"sampling"`
}

// TelemetryConfig configures OTLP exporters (metrics only).
type TelemetryConfig struct {
	OTLPEndpoint   string        `yaml:"otlpEndpoint"`
	ServiceName    string        `yaml:"serviceName" validate:"required"`
	OTLPInsecure   bool          `yaml:"otlpInsecure"`
	EnableMetrics  bool          `yaml:"enableMetrics"`
	MetricInterval time.Duration `yaml:"metricInterval" validate:"gte=0"`
}

// AppConfig is the unified orderlens configuration sourced from YAML.
type AppConfig struct {
	Environment Environment     `yaml:"environment" validate:"oneof=dev staging prod"`
	RPC         RPCConfig       `yaml:"rpc"`
	Programs    ProgramsConfig  `yaml:"programs"`
	Tokens      TokensConfig    `yaml:"tokens"`
	Prices      PricesConfig    `yaml:"prices"`
	Polling     PollingConfig   `yaml:"polling"`
	Server      ServerConfig    `yaml:"server"`
	Log         LogConfig       `yaml:"log"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// Default returns the mainnet configuration used when no file is given.
func Default() AppConfig {
	return AppConfig{
		Environment: EnvDev,
		RPC: RPCConfig{
			Endpoint:   "https://api.mainnet-beta.solana.com",
			Commitment: "confirmed",
			Attempts:   3,
			RetryStep:  time.Second,
		},
		Programs: ProgramsConfig{
			Recurring: "DCA265Vj8a9CEuX1eb1LWRnDT7uK6q1xMipnNyatn23M",
			Limit:     "j1o2qRpjcyUwEvwtcfhEQefh773ZgjxcVRry7LDqg5X",
		},
		Tokens: TokensConfig{
			Tracked: []string{tokens.CHAOS, tokens.LOGOS},
		},
		Prices: PricesConfig{
			Endpoint:     "https://api.coingecko.com/api/v3/simple/price",
			MintEndpoint: "https://api.jup.ag/price/v2",
			Currency:     "usd",
			Timeout:      10 * time.Second,
			Attempts:     3,
			RetryStep:    time.Second,
			MinInterval:  2 * time.Second,
			CacheTTL:     60 * time.Second,
		},
		Polling: PollingConfig{
			Interval:     30 * time.Second,
			AutoRefresh:  true,
			Timeout:      2 * time.Minute,
			HistoryDepth: 120,
		},
		Server: ServerConfig{
			Addr:              ":8880",
			ReadHeaderTimeout: 5 * time.Second,
			AllowedOrigin:     "*",
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
			Sampling: true,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "orderlens",
			EnableMetrics:  true,
			MetricInterval: 30 * time.Second,
		},
	}
}

// Load reads and validates an AppConfig from the provided YAML file. Keys absent from the
// file keep their Default values.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	_ = ctx

	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return AppConfig{}, err
	}
	defer closer()

	bytes, err := io.ReadAll(reader)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return finish(cfg)
}

// LoadOrDefault loads configPath, or the defaults when configPath is empty.
func LoadOrDefault(ctx context.Context, configPath string) (AppConfig, error) {
	if strings.TrimSpace(configPath) == "" {
		return finish(Default())
	}
	return Load(ctx, configPath)
}

func finish(cfg AppConfig) (AppConfig, error) {
	cfg.normalise()
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) normalise() {
	c.Environment = Environment(normalizeName(string(c.Environment)))
	c.RPC.Endpoint = strings.TrimSpace(c.RPC.Endpoint)
	c.RPC.Commitment = normalizeName(c.RPC.Commitment)
	c.Programs.Recurring = strings.TrimSpace(c.Programs.Recurring)
	c.Programs.Limit = strings.TrimSpace(c.Programs.Limit)
	for i, symbol := range c.Tokens.Tracked {
		c.Tokens.Tracked[i] = strings.ToUpper(strings.TrimSpace(symbol))
	}
	c.Prices.Endpoint = strings.TrimSpace(c.Prices.Endpoint)
	c.Prices.MintEndpoint = strings.TrimSpace(c.Prices.MintEndpoint)
	c.Prices.Currency = normalizeName(c.Prices.Currency)
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	c.Log.Level = normalizeName(c.Log.Level)
	c.Log.Encoding = normalizeName(c.Log.Encoding)
	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
}

func (c *AppConfig) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvRPCURL); ok && strings.TrimSpace(v) != "" {
		c.RPC.Endpoint = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPriceURL); ok && strings.TrimSpace(v) != "" {
		c.Prices.Endpoint = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvMintPriceURL); ok && strings.TrimSpace(v) != "" {
		c.Prices.MintEndpoint = strings.TrimSpace(v)
	}
}

// Validate performs struct-tag and semantic validation on the configuration.
func (c AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := solana.PublicKeyFromBase58(c.Programs.Recurring); err != nil {
		return fmt.Errorf("programs recurring must be a base58 pubkey: %w", err)
	}
	if _, err := solana.PublicKeyFromBase58(c.Programs.Limit); err != nil {
		return fmt.Errorf("programs limit must be a base58 pubkey: %w", err)
	}
	tracked, err := c.TrackedTokens()
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(tracked))
	for _, tok := range tracked {
		if _, dup := seen[tok.Mint]; dup {
			return fmt.Errorf("tokens tracked: %s listed more than once", tok.Symbol)
		}
		seen[tok.Mint] = struct{}{}
	}
	return nil
}

// Registry builds the token registry including configured extras.
func (c AppConfig) Registry() (*tokens.Registry, error) {
	reg, err := tokens.NewRegistry(c.Tokens.Extra...)
	if err != nil {
		return nil, fmt.Errorf("tokens extra: %w", err)
	}
	return reg, nil
}

// TrackedTokens resolves the tracked symbols against the registry.
func (c AppConfig) TrackedTokens() ([]tokens.Token, error) {
	reg, err := c.Registry()
	if err != nil {
		return nil, err
	}
	tracked, err := reg.Resolve(c.Tokens.Tracked...)
	if err != nil {
		return nil, fmt.Errorf("tokens tracked: %w", err)
	}
	return tracked, nil
}

// ProgramKeys parses the configured program ids.
func (c AppConfig) ProgramKeys() (recurring, limit solana.PublicKey, err error) {
	if recurring, err = solana.PublicKeyFromBase58(c.Programs.Recurring); err != nil {
		return recurring, limit, fmt.Errorf("programs recurring: %w", err)
	}
	if limit, err = solana.PublicKeyFromBase58(c.Programs.Limit); err != nil {
		return recurring, limit, fmt.Errorf("programs limit: %w", err)
	}
	return recurring, limit, nil
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := strings.TrimSpace(path)
	candidate = filepath.Clean(candidate)

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
