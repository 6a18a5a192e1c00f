package candles

import (
	"fmt"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
)

// DefaultFreshnessThreshold applies to timeframes missing from the threshold table.
const DefaultFreshnessThreshold = 60 * time.Second

// Freshness is the staleness verdict for one snapshot.
type Freshness struct {
	IsFresh     bool  `json:"is_fresh"`
	AgeMs       int64 `json:"age_ms"`
	ThresholdMs int64 `json:"threshold_ms"`
}

// DefaultFreshnessThresholds is how old data may be before a viewer is told it is stale.
// It is a presentation judgment and deliberately looser than the cache TTLs.
func DefaultFreshnessThresholds() map[domain.Timeframe]time.Duration {
	return map[domain.Timeframe]time.Duration{
		domain.Timeframe3m:  30 * time.Second,
		domain.Timeframe5m:  30 * time.Second,
		domain.Timeframe15m: 60 * time.Second,
		domain.Timeframe1H:  2 * time.Minute,
		domain.Timeframe4H:  10 * time.Minute,
		domain.Timeframe1D:  30 * time.Minute,
	}
}

// ValidateFreshnessPolicy checks TTL[tf] <= threshold[tf] for every timeframe.
// Otherwise a snapshot served from cache could already be reported stale.
func ValidateFreshnessPolicy(ttls, thresholds map[domain.Timeframe]time.Duration) error {
	for _, tf := range domain.AllTimeframes {
		ttl, ok := ttls[tf]
		if !ok {
			continue
		}
		threshold, ok := thresholds[tf]
		if !ok {
			threshold = DefaultFreshnessThreshold
		}
		if ttl > threshold {
			return fmt.Errorf("cache TTL %s for %s exceeds freshness threshold %s", ttl, tf, threshold)
		}
	}
	return nil
}

func checkFreshness(now time.Time, thresholds map[domain.Timeframe]time.Duration, snapshots map[domain.Timeframe]*domain.MarketSnapshot) map[domain.Timeframe]Freshness {
	out := make(map[domain.Timeframe]Freshness, len(snapshots))
	nowMs := now.UnixMilli()

	for tf, snap := range snapshots {
		if snap == nil {
			continue
		}
		threshold, ok := thresholds[tf]
		if !ok {
			threshold = DefaultFreshnessThreshold
		}

		age := nowMs - snap.LastUpdated
		if age < 0 {
			age = 0
		}
		out[tf] = Freshness{
			IsFresh:     age <= threshold.Milliseconds(),
			AgeMs:       age,
			ThresholdMs: threshold.Milliseconds(),
		}
	}
	return out
}
