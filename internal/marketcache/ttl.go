package marketcache

import (
	"time"

	"github.com/aristath/cryptodash/internal/domain"
)

// TTL constants per timeframe.
// These are added to the write time to calculate expires_at.
// Short timeframes are cheap to refetch and go stale quickly; long ones barely move.
const (
	TTLIntraday = 10 * time.Second // 3m, 5m
	TTLQuarter  = 30 * time.Second // 15m
	TTLHourly   = 60 * time.Second // 1H
	TTLFourHour = 5 * time.Minute  // 4H
	TTLDaily    = 15 * time.Minute // 1D
	TTLUnlisted = 60 * time.Second // anything not in the table
)

// DefaultTTLs maps each timeframe to the cache lifetime of its snapshots.
func DefaultTTLs() map[domain.Timeframe]time.Duration {
	return map[domain.Timeframe]time.Duration{
		domain.Timeframe3m:  TTLIntraday,
		domain.Timeframe5m:  TTLIntraday,
		domain.Timeframe15m: TTLQuarter,
		domain.Timeframe1H:  TTLHourly,
		domain.Timeframe4H:  TTLFourHour,
		domain.Timeframe1D:  TTLDaily,
	}
}
