package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
	"github.com/aristath/cryptodash/internal/marketcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CRYPTODASH_DATA_DIR", filepath.Join(t.TempDir(), "data"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.DirExists(t, cfg.DataDir)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, domain.CanonicalSymbols, cfg.Symbols)
	assert.Equal(t, domain.AllTimeframes, cfg.Timeframes)
	assert.Equal(t, domain.Source(""), cfg.PreferredSource)
	assert.Equal(t, 100, cfg.CandleLimit)
	assert.False(t, cfg.SingleFlight)
	assert.Equal(t, domain.Timeframe4H, cfg.SignalTimeframe)
	assert.Equal(t, DefaultFetchCandlesSchedule, cfg.Schedules.FetchCandles)
	assert.Equal(t, marketcache.DefaultTTLs(), cfg.CacheTTLs())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("CRYPTODASH_DATA_DIR", t.TempDir())
	t.Setenv("CRYPTODASH_SYMBOLS", " btcusdt, ETHUSDT,,BTCUSDT")
	t.Setenv("CRYPTODASH_TIMEFRAMES", "1h,4h")
	t.Setenv("PREFERRED_SOURCE", "Bybit")
	t.Setenv("SINGLE_FLIGHT", "true")
	t.Setenv("LIVECOINWATCH_API_KEY", "lcw-key")
	t.Setenv("BINANCE_RATE_LIMIT", "2.5")
	t.Setenv("TASK_TIMEOUT", "30s")
	t.Setenv("PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Symbols)
	assert.Equal(t, []domain.Timeframe{domain.Timeframe1H, domain.Timeframe4H}, cfg.Timeframes)
	assert.Equal(t, domain.SourceBybit, cfg.PreferredSource)
	assert.True(t, cfg.SingleFlight)
	assert.Equal(t, "lcw-key", cfg.LiveCoinWatch.APIKey)
	assert.Equal(t, 2.5, cfg.Binance.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.TaskTimeout)
	assert.Equal(t, 8080, cfg.Port, "unparsable values fall back to the default")
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	t.Setenv("CRYPTODASH_DATA_DIR", t.TempDir())

	t.Run("timeframe", func(t *testing.T) {
		t.Setenv("CRYPTODASH_TIMEFRAMES", "2h")
		_, err := Load()
		assert.ErrorContains(t, err, "CRYPTODASH_TIMEFRAMES")
	})

	t.Run("source", func(t *testing.T) {
		t.Setenv("PREFERRED_SOURCE", "kraken")
		_, err := Load()
		assert.ErrorContains(t, err, "PREFERRED_SOURCE")
	})
}

func TestLoad_YAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cryptodash.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
symbols: [solusdt, BTCUSDT]
timeframes: ["15m", "1d"]
preferred_source: coinmarketcap
source_precedence: [bybit, binance]
candle_limit: 250
single_flight: true
cache_ttls:
  1h: 90s
freshness_thresholds:
  1H: 3m
schedules:
  fetch_candles: "@every 2m"
  generate_signals: "0 0 * * * *"
`), 0o644))
	t.Setenv("CRYPTODASH_DATA_DIR", dir)
	t.Setenv("CRYPTODASH_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"SOLUSDT", "BTCUSDT"}, cfg.Symbols)
	assert.Equal(t, []domain.Timeframe{domain.Timeframe15m, domain.Timeframe1D}, cfg.Timeframes)
	assert.Equal(t, domain.SourceCoinMarketCap, cfg.PreferredSource)
	assert.Equal(t, []domain.Source{domain.SourceBybit, domain.SourceBinance}, cfg.SourcePrecedence)
	assert.Equal(t, 250, cfg.CandleLimit)
	assert.True(t, cfg.SingleFlight)
	assert.Equal(t, 90*time.Second, cfg.CacheTTLs()[domain.Timeframe1H])
	assert.Equal(t, marketcache.TTLDaily, cfg.CacheTTLs()[domain.Timeframe1D])
	assert.Equal(t, 3*time.Minute, cfg.FreshnessThresholds()[domain.Timeframe1H])
	assert.Equal(t, "@every 2m", cfg.Schedules.FetchCandles)
	assert.Equal(t, "0 0 * * * *", cfg.Schedules.GenerateSignals)
	assert.Equal(t, DefaultSyncPricesSchedule, cfg.Schedules.SyncPrices, "unset schedules keep their default")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:        8080,
			Symbols:     []string{"BTCUSDT"},
			Timeframes:  []domain.Timeframe{domain.Timeframe1H},
			CandleLimit: 100,
			TaskTimeout: time.Minute,
			Schedules:   Schedules{FetchCandles: DefaultFetchCandlesSchedule},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Port = 0 }, "port"},
		{"no symbols", func(c *Config) { c.Symbols = nil }, "symbol"},
		{"no timeframes", func(c *Config) { c.Timeframes = nil }, "timeframe"},
		{"limit", func(c *Config) { c.CandleLimit = 5000 }, "candle limit"},
		{"schedule", func(c *Config) { c.Schedules.DetectPatterns = "whenever" }, "detect_patterns"},
		{
			"ttl above freshness threshold",
			func(c *Config) {
				c.CacheTTLOverrides = map[domain.Timeframe]time.Duration{domain.Timeframe4H: time.Hour}
			},
			"exceeds freshness threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestApply_Errors(t *testing.T) {
	tests := map[string]string{
		"yaml":      "symbols: [",
		"timeframe": "timeframes: [7m]",
		"source":    "source_precedence: [kraken]",
		"ttl":       "cache_ttls: {1H: soon}",
		"negative":  "freshness_thresholds: {1H: -1m}",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := &Config{}
			assert.Error(t, cfg.apply([]byte(doc)))
		})
	}
}
