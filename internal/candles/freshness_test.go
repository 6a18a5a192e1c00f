package candles

import (
	"testing"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
	"github.com/aristath/cryptodash/internal/marketcache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckFreshness(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	o := NewOrchestrator(&stubFetcher{}, zerolog.Nop(), WithOrchestratorClock(func() time.Time { return now }))

	snap := func(tf domain.Timeframe, age time.Duration) *domain.MarketSnapshot {
		return domain.NewMarketSnapshot("BTCUSDT", tf, nil, now.Add(-age), domain.SourceBinance)
	}

	got := o.CheckFreshness(map[domain.Timeframe]*domain.MarketSnapshot{
		domain.Timeframe1H:  snap(domain.Timeframe1H, 3*time.Minute),
		domain.Timeframe1D:  snap(domain.Timeframe1D, 10*time.Minute),
		domain.Timeframe5m:  snap(domain.Timeframe5m, 30*time.Second),
		domain.Timeframe15m: snap(domain.Timeframe15m, -5*time.Second),
		"2W":                snap("2W", 61*time.Second),
	})

	tests := []struct {
		tf          domain.Timeframe
		fresh       bool
		ageMs       int64
		thresholdMs int64
	}{
		{domain.Timeframe1H, false, 180_000, 120_000},
		{domain.Timeframe1D, true, 600_000, 1_800_000},
		{domain.Timeframe5m, true, 30_000, 30_000},
		{domain.Timeframe15m, true, 0, 60_000},
		{"2W", false, 61_000, 60_000},
	}

	for _, tt := range tests {
		t.Run(string(tt.tf), func(t *testing.T) {
			f, ok := got[tt.tf]
			require.True(t, ok)
			assert.Equal(t, tt.fresh, f.IsFresh)
			assert.Equal(t, tt.ageMs, f.AgeMs)
			assert.Equal(t, tt.thresholdMs, f.ThresholdMs)
		})
	}
}

func TestCheckFreshness_SkipsNilSnapshots(t *testing.T) {
	o := NewOrchestrator(&stubFetcher{}, zerolog.Nop())
	got := o.CheckFreshness(map[domain.Timeframe]*domain.MarketSnapshot{domain.Timeframe1H: nil})
	assert.Empty(t, got)
}

func TestValidateFreshnessPolicy(t *testing.T) {
	t.Run("default tables agree", func(t *testing.T) {
		assert.NoError(t, ValidateFreshnessPolicy(marketcache.DefaultTTLs(), DefaultFreshnessThresholds()))
	})

	t.Run("ttl longer than threshold", func(t *testing.T) {
		ttls := marketcache.DefaultTTLs()
		ttls[domain.Timeframe1H] = 5 * time.Minute
		err := ValidateFreshnessPolicy(ttls, DefaultFreshnessThresholds())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1H")
	})

	t.Run("orchestrator override", func(t *testing.T) {
		o := NewOrchestrator(&stubFetcher{}, zerolog.Nop(), WithFreshnessThresholds(map[domain.Timeframe]time.Duration{
			domain.Timeframe1D: time.Minute,
		}))
		assert.Error(t, o.ValidateFreshnessPolicy(marketcache.DefaultTTLs()))
	})
}
