package candles

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
)

type fakeSource struct {
	name  domain.Source
	bars  []domain.RawCandle
	err   error
	delay time.Duration
	calls atomic.Int32

	mu        sync.Mutex
	lastLimit int
}

func (s *fakeSource) Name() domain.Source {
	return s.name
}

func (s *fakeSource) FetchCandles(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.RawCandle, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.lastLimit = limit
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.bars, nil
}

func okSource(name domain.Source, n int) *fakeSource {
	return &fakeSource{name: name, bars: rawBars(n)}
}

func failingSource(name domain.Source) *fakeSource {
	return &fakeSource{name: name, err: errors.New(string(name) + " unavailable")}
}

// rawBars returns n hourly bars starting at 2024-01-01T00:00Z, in seconds.
func rawBars(n int) []domain.RawCandle {
	start := int64(1704067200)
	out := make([]domain.RawCandle, n)
	for i := range out {
		price := strconv.Itoa(100 + i)
		out[i] = domain.RawCandle{
			Timestamp: start + int64(i)*3600,
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    "10",
		}
	}
	return out
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]*domain.MarketSnapshot
	puts    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]*domain.MarketSnapshot)}
}

func (c *mapCache) Get(symbol string, tf domain.Timeframe) (*domain.MarketSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.entries[domain.NormalizeSymbol(symbol)+"/"+string(tf)]
	return snap, ok
}

func (c *mapCache) Put(snap *domain.MarketSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.entries[snap.Symbol+"/"+string(snap.Timeframe)] = snap
}

func (c *mapCache) putCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}
