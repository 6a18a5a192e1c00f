package config

import (
	"fmt"
	"os"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML overlay. Omitted keys leave the environment value in place.
type fileConfig struct {
	Symbols             []string          `yaml:"symbols"`
	Timeframes          []string          `yaml:"timeframes"`
	PreferredSource     *string           `yaml:"preferred_source"`
	SourcePrecedence    []string          `yaml:"source_precedence"`
	CandleLimit         int               `yaml:"candle_limit"`
	SingleFlight        *bool             `yaml:"single_flight"`
	SignalTimeframe     string            `yaml:"signal_timeframe"`
	CacheTTLs           map[string]string `yaml:"cache_ttls"`
	FreshnessThresholds map[string]string `yaml:"freshness_thresholds"`
	Schedules           *Schedules        `yaml:"schedules"`
}

// ApplyFile overlays the YAML file at path onto c.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return c.apply(data)
}

func (c *Config) apply(data []byte) error {
	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(raw.Symbols) > 0 {
		c.Symbols = normalizeSymbols(raw.Symbols)
	}
	if len(raw.Timeframes) > 0 {
		tfs := make([]domain.Timeframe, 0, len(raw.Timeframes))
		for _, s := range raw.Timeframes {
			tf, err := domain.ParseTimeframe(s)
			if err != nil {
				return fmt.Errorf("timeframes: %w", err)
			}
			tfs = append(tfs, tf)
		}
		c.Timeframes = tfs
	}
	if raw.PreferredSource != nil {
		src, err := domain.ParseSource(*raw.PreferredSource)
		if err != nil {
			return fmt.Errorf("preferred_source: %w", err)
		}
		c.PreferredSource = src
	}
	if len(raw.SourcePrecedence) > 0 {
		order := make([]domain.Source, 0, len(raw.SourcePrecedence))
		for _, s := range raw.SourcePrecedence {
			src, err := domain.ParseSource(s)
			if err != nil || src == "" {
				return fmt.Errorf("source_precedence: unknown source %q", s)
			}
			order = append(order, src)
		}
		c.SourcePrecedence = order
	}
	if raw.CandleLimit != 0 {
		c.CandleLimit = raw.CandleLimit
	}
	if raw.SingleFlight != nil {
		c.SingleFlight = *raw.SingleFlight
	}
	if raw.SignalTimeframe != "" {
		tf, err := domain.ParseTimeframe(raw.SignalTimeframe)
		if err != nil {
			return fmt.Errorf("signal_timeframe: %w", err)
		}
		c.SignalTimeframe = tf
	}

	ttls, err := parseDurations(raw.CacheTTLs)
	if err != nil {
		return fmt.Errorf("cache_ttls: %w", err)
	}
	if ttls != nil {
		c.CacheTTLOverrides = ttls
	}
	thresholds, err := parseDurations(raw.FreshnessThresholds)
	if err != nil {
		return fmt.Errorf("freshness_thresholds: %w", err)
	}
	if thresholds != nil {
		c.FreshnessOverrides = thresholds
	}

	if s := raw.Schedules; s != nil {
		c.Schedules = c.Schedules.overlay(*s)
	}
	return nil
}

func (s Schedules) overlay(o Schedules) Schedules {
	pick := func(cur, next string) string {
		if next != "" {
			return next
		}
		return cur
	}
	return Schedules{
		SyncPrices:          pick(s.SyncPrices, o.SyncPrices),
		FetchCandles:        pick(s.FetchCandles, o.FetchCandles),
		CalculateIndicators: pick(s.CalculateIndicators, o.CalculateIndicators),
		DetectPatterns:      pick(s.DetectPatterns, o.DetectPatterns),
		GenerateSignals:     pick(s.GenerateSignals, o.GenerateSignals),
		CacheCleanup:        pick(s.CacheCleanup, o.CacheCleanup),
		DBMaintenance:       pick(s.DBMaintenance, o.DBMaintenance),
	}
}

func parseDurations(raw map[string]string) (map[domain.Timeframe]time.Duration, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[domain.Timeframe]time.Duration, len(raw))
	for k, v := range raw {
		tf, err := domain.ParseTimeframe(k)
		if err != nil {
			return nil, err
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("%s: duration must be positive", k)
		}
		out[tf] = d
	}
	return out, nil
}
