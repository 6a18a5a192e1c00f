// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/cryptodash/internal/candles"
	"github.com/aristath/cryptodash/internal/clients"
	"github.com/aristath/cryptodash/internal/domain"
	"github.com/aristath/cryptodash/internal/marketcache"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Default job schedules (cron with seconds field).
const (
	DefaultSyncPricesSchedule          = "0 * * * * *"
	DefaultFetchCandlesSchedule        = "30 */5 * * * *"
	DefaultCalculateIndicatorsSchedule = "0 1-59/5 * * * *"
	DefaultDetectPatternsSchedule      = "20 1-59/5 * * * *"
	DefaultGenerateSignalsSchedule     = "0 */15 * * * *"
	DefaultCacheCleanupSchedule        = "@every 1m"
	DefaultDBMaintenanceSchedule       = "0 0 * * * *"
)

// Config holds application configuration
type Config struct {
	DataDir     string // Base directory for the market database (always absolute)
	PostgresDSN string // When set, sync status is kept in Postgres instead of SQLite
	LogLevel    string
	Port        int
	DevMode     bool

	Symbols          []string
	Timeframes       []domain.Timeframe
	PreferredSource  domain.Source
	SourcePrecedence []domain.Source
	CandleLimit      int
	SingleFlight     bool
	SignalTimeframe  domain.Timeframe
	TaskTimeout      time.Duration

	// Overrides on top of the built-in tables; unset timeframes keep their default.
	CacheTTLOverrides  map[domain.Timeframe]time.Duration
	FreshnessOverrides map[domain.Timeframe]time.Duration
	Schedules          Schedules

	Binance       clients.Config
	Bybit         clients.Config
	LiveCoinWatch clients.Config
	CoinMarketCap clients.Config
}

// Schedules holds the cron spec of every background job. Empty disables a job.
type Schedules struct {
	SyncPrices          string `yaml:"sync_prices"`
	FetchCandles        string `yaml:"fetch_candles"`
	CalculateIndicators string `yaml:"calculate_indicators"`
	DetectPatterns      string `yaml:"detect_patterns"`
	GenerateSignals     string `yaml:"generate_signals"`
	CacheCleanup        string `yaml:"cache_cleanup"`
	DBMaintenance       string `yaml:"db_maintenance"`
}

// Load reads configuration from environment variables, then applies the YAML file
// named by CRYPTODASH_CONFIG if set.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}

	if path := getEnv("CRYPTODASH_CONFIG", ""); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	cfg.DataDir = absDataDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() (*Config, error) {
	timeframes, err := domain.ParseTimeframes(getEnv("CRYPTODASH_TIMEFRAMES", ""))
	if err != nil {
		return nil, fmt.Errorf("CRYPTODASH_TIMEFRAMES: %w", err)
	}
	if len(timeframes) == 0 {
		timeframes = append([]domain.Timeframe(nil), domain.AllTimeframes...)
	}

	preferred, err := domain.ParseSource(getEnv("PREFERRED_SOURCE", ""))
	if err != nil {
		return nil, fmt.Errorf("PREFERRED_SOURCE: %w", err)
	}

	signalTF, err := domain.ParseTimeframe(getEnv("SIGNAL_TIMEFRAME", string(domain.Timeframe4H)))
	if err != nil {
		return nil, fmt.Errorf("SIGNAL_TIMEFRAME: %w", err)
	}

	symbols := getEnvAsList("CRYPTODASH_SYMBOLS")
	if len(symbols) == 0 {
		symbols = append([]string(nil), domain.CanonicalSymbols...)
	}

	return &Config{
		DataDir:     getEnv("CRYPTODASH_DATA_DIR", "./data"),
		PostgresDSN: getEnv("DATABASE_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Port:        getEnvAsInt("PORT", 8080),
		DevMode:     getEnvAsBool("DEV_MODE", false),

		Symbols:          normalizeSymbols(symbols),
		Timeframes:       timeframes,
		PreferredSource:  preferred,
		SourcePrecedence: append([]domain.Source(nil), domain.DefaultSourcePrecedence...),
		CandleLimit:      getEnvAsInt("CANDLE_LIMIT", candles.DefaultLimit),
		SingleFlight:     getEnvAsBool("SINGLE_FLIGHT", false),
		SignalTimeframe:  signalTF,
		TaskTimeout:      getEnvAsDuration("TASK_TIMEOUT", 2*time.Minute),

		Schedules: Schedules{
			SyncPrices:          getEnv("SCHEDULE_SYNC_PRICES", DefaultSyncPricesSchedule),
			FetchCandles:        getEnv("SCHEDULE_FETCH_CANDLES", DefaultFetchCandlesSchedule),
			CalculateIndicators: getEnv("SCHEDULE_CALCULATE_INDICATORS", DefaultCalculateIndicatorsSchedule),
			DetectPatterns:      getEnv("SCHEDULE_DETECT_PATTERNS", DefaultDetectPatternsSchedule),
			GenerateSignals:     getEnv("SCHEDULE_GENERATE_SIGNALS", DefaultGenerateSignalsSchedule),
			CacheCleanup:        getEnv("SCHEDULE_CACHE_CLEANUP", DefaultCacheCleanupSchedule),
			DBMaintenance:       getEnv("SCHEDULE_DB_MAINTENANCE", DefaultDBMaintenanceSchedule),
		},

		Binance: clients.Config{
			BaseURL:   getEnv("BINANCE_BASE_URL", ""),
			RateLimit: getEnvAsFloat("BINANCE_RATE_LIMIT", 0),
		},
		Bybit: clients.Config{
			BaseURL:   getEnv("BYBIT_BASE_URL", ""),
			RateLimit: getEnvAsFloat("BYBIT_RATE_LIMIT", 0),
		},
		LiveCoinWatch: clients.Config{
			BaseURL:   getEnv("LIVECOINWATCH_BASE_URL", ""),
			APIKey:    getEnv("LIVECOINWATCH_API_KEY", ""),
			RateLimit: getEnvAsFloat("LIVECOINWATCH_RATE_LIMIT", 0),
		},
		CoinMarketCap: clients.Config{
			BaseURL:   getEnv("COINMARKETCAP_BASE_URL", ""),
			APIKey:    getEnv("COINMARKETCAP_API_KEY", ""),
			RateLimit: getEnvAsFloat("COINMARKETCAP_RATE_LIMIT", 0),
		},
	}, nil
}

// CacheTTLs returns the snapshot cache TTL table with overrides applied.
func (c *Config) CacheTTLs() map[domain.Timeframe]time.Duration {
	return merge(marketcache.DefaultTTLs(), c.CacheTTLOverrides)
}

// FreshnessThresholds returns the freshness table with overrides applied.
func (c *Config) FreshnessThresholds() map[domain.Timeframe]time.Duration {
	return merge(candles.DefaultFreshnessThresholds(), c.FreshnessOverrides)
}

// Validate checks if required configuration is present and consistent
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if len(c.Symbols) == 0 {
		errs = append(errs, errors.New("at least one symbol is required"))
	}
	if len(c.Timeframes) == 0 {
		errs = append(errs, errors.New("at least one timeframe is required"))
	}
	for _, tf := range c.Timeframes {
		if !tf.Valid() {
			errs = append(errs, fmt.Errorf("unsupported timeframe %q", tf))
		}
	}
	if c.CandleLimit <= 0 || c.CandleLimit > 1000 {
		errs = append(errs, fmt.Errorf("candle limit %d outside 1..1000", c.CandleLimit))
	}
	if c.TaskTimeout <= 0 {
		errs = append(errs, errors.New("task timeout must be positive"))
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range c.Schedules.byJob() {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", name, err))
		}
	}

	if err := candles.ValidateFreshnessPolicy(c.CacheTTLs(), c.FreshnessThresholds()); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (s Schedules) byJob() map[string]string {
	return map[string]string{
		"sync_prices":          s.SyncPrices,
		"fetch_candles":        s.FetchCandles,
		"calculate_indicators": s.CalculateIndicators,
		"detect_patterns":      s.DetectPatterns,
		"generate_signals":     s.GenerateSignals,
		"cache_cleanup":        s.CacheCleanup,
		"db_maintenance":       s.DBMaintenance,
	}
}

func merge(base, overrides map[domain.Timeframe]time.Duration) map[domain.Timeframe]time.Duration {
	for tf, d := range overrides {
		base[tf] = d
	}
	return base
}

func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = domain.NormalizeSymbol(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping empty items.
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
