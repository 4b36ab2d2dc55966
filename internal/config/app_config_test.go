package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/orderlens/internal/tokens"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "open app config")
}

func TestLoadFromYAML(t *testing.T) {
	t.Setenv(EnvRPCURL, "")
	t.Setenv(EnvPriceURL, "")
	t.Setenv(EnvMintPriceURL, "")
	path := writeConfig(t, `
environment: PROD
rpc:
  endpoint: https://rpc.example.com
  commitment: Finalized
tokens:
  tracked: [chaos]
  extra:
    - symbol: BONK
      mint: DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263
      decimals: 5
      priceId: bonk
polling:
  interval: 15s
  autoRefresh: false
  historyDepth: 10
server:
  addr: ":9999"
log:
  level: DEBUG
  encoding: console
telemetry:
  otlpEndpoint: http://localhost:4318
  serviceName: test-service
  otlpInsecure: true
`)

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, EnvProd, cfg.Environment)
	require.Equal(t, "https://rpc.example.com", cfg.RPC.Endpoint)
	require.Equal(t, "finalized", cfg.RPC.Commitment)
	require.Equal(t, []string{tokens.CHAOS}, cfg.Tokens.Tracked)
	require.Equal(t, 15*time.Second, cfg.Polling.Interval)
	require.False(t, cfg.Polling.AutoRefresh)
	require.Equal(t, 10, cfg.Polling.HistoryDepth)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "test-service", cfg.Telemetry.ServiceName)

	// untouched keys keep defaults
	require.Equal(t, 60*time.Second, cfg.Prices.CacheTTL)
	require.Equal(t, 3, cfg.Prices.Attempts)
	require.Equal(t, Default().Programs, cfg.Programs)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	bonk, ok := reg.BySymbol("bonk")
	require.True(t, ok)
	require.Equal(t, 5, bonk.Decimals)
}

func TestLoadOrDefaultAppliesEnvOverrides(t *testing.T) {
	t.Setenv(EnvRPCURL, " https://override.example.com ")
	t.Setenv(EnvPriceURL, "https://prices.example.com/simple/price")
	t.Setenv(EnvMintPriceURL, "https://mints.example.com/price")

	cfg, err := LoadOrDefault(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "https://override.example.com", cfg.RPC.Endpoint)
	require.Equal(t, "https://prices.example.com/simple/price", cfg.Prices.Endpoint)
	require.Equal(t, "https://mints.example.com/price", cfg.Prices.MintEndpoint)
	require.Equal(t, 30*time.Second, cfg.Polling.Interval)

	tracked, err := cfg.TrackedTokens()
	require.NoError(t, err)
	require.Len(t, tracked, 2)
	require.Equal(t, tokens.CHAOS, tracked[0].Symbol)
	require.Equal(t, tokens.LOGOS, tracked[1].Symbol)

	recurring, limit, err := cfg.ProgramKeys()
	require.NoError(t, err)
	require.Equal(t, cfg.Programs.Recurring, recurring.String())
	require.Equal(t, cfg.Programs.Limit, limit.String())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*AppConfig){
		"environment":        func(c *AppConfig) { c.Environment = "qa" },
		"zero interval":      func(c *AppConfig) { c.Polling.Interval = 0 },
		"bad rpc url":        func(c *AppConfig) { c.RPC.Endpoint = "not a url" },
		"no tracked":         func(c *AppConfig) { c.Tokens.Tracked = nil },
		"unknown tracked":    func(c *AppConfig) { c.Tokens.Tracked = []string{"DOGE"} },
		"bad program":        func(c *AppConfig) { c.Programs.Limit = "0OIl" },
		"bad extra token":    func(c *AppConfig) { c.Tokens.Extra = []tokens.Token{{Symbol: "X", Mint: "nope", Decimals: 6}} },
		"log level":          func(c *AppConfig) { c.Log.Level = "trace" },
		"zero attempts":      func(c *AppConfig) { c.Prices.Attempts = 0 },
		"zero history":       func(c *AppConfig) { c.Polling.HistoryDepth = 0 },
		"empty server":       func(c *AppConfig) { c.Server.Addr = "" },
		"empty service":      func(c *AppConfig) { c.Telemetry.ServiceName = "" },
		"bad commitment":     func(c *AppConfig) { c.RPC.Commitment = "max" },
		"negative timeout":   func(c *AppConfig) { c.Polling.Timeout = -time.Second },
		"duplicate tracked":  func(c *AppConfig) { c.Tokens.Tracked = []string{tokens.CHAOS, tokens.CHAOS} },
		"tracked by case":    func(c *AppConfig) { c.Tokens.Tracked = []string{tokens.CHAOS, "chaos"} },
		"bad mint price url": func(c *AppConfig) { c.Prices.MintEndpoint = "not a url" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, Default().Validate())
}

func TestLoadRejectsDuplicateTrackedAfterNormalising(t *testing.T) {
	t.Setenv(EnvRPCURL, "")
	t.Setenv(EnvPriceURL, "")
	t.Setenv(EnvMintPriceURL, "")
	path := writeConfig(t, `
tokens:
  tracked: [CHAOS, " chaos "]
`)
	_, err := Load(context.Background(), path)
	require.ErrorContains(t, err, "invalid config")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "polling: [unclosed")
	_, err := Load(context.Background(), path)
	require.ErrorContains(t, err, "unmarshal config")
}
