// Package candles resolves market snapshots from the snapshot cache and a ranked set of
// upstream sources, and loads several timeframes of one symbol concurrently.
package candles

import (
	"context"

	"github.com/aristath/cryptodash/internal/domain"
)

// Source is one upstream candle provider.
// Implementations return bars in whatever order and unit the API uses;
// the fetcher normalizes them.
type Source interface {
	Name() domain.Source
	FetchCandles(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.RawCandle, error)
}

// SnapshotCache is the subset of the snapshot cache the fetcher needs.
type SnapshotCache interface {
	Get(symbol string, tf domain.Timeframe) (*domain.MarketSnapshot, bool)
	Put(snapshot *domain.MarketSnapshot)
}
