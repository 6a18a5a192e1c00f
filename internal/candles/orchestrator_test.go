package candles

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
	"github.com/aristath/cryptodash/internal/marketcache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher resolves per timeframe and records every request.
type stubFetcher struct {
	mu       sync.Mutex
	failing  map[domain.Timeframe]bool
	requests []Request
	delay    time.Duration
}

func (s *stubFetcher) GetCandles(ctx context.Context, req Request) (*domain.MarketSnapshot, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	fail := s.failing[req.Timeframe]
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if fail {
		return nil, &NoDataAvailableError{Symbol: req.Symbol, Timeframe: req.Timeframe}
	}
	return domain.NewMarketSnapshot(req.Symbol, req.Timeframe, []domain.Candle{{Timestamp: 1, Close: 1}}, time.Now(), domain.SourceBinance), nil
}

func TestOrchestrator_PartialFailureIsNotAnError(t *testing.T) {
	f := &stubFetcher{failing: map[domain.Timeframe]bool{domain.Timeframe4H: true}}
	o := NewOrchestrator(f, zerolog.Nop())

	got, err := o.LoadAllTimeframes(context.Background(), "BTCUSDT", []domain.Timeframe{domain.Timeframe1H, domain.Timeframe4H})
	require.NoError(t, err)

	assert.Len(t, got, 1)
	assert.Contains(t, got, domain.Timeframe1H)
	assert.NotContains(t, got, domain.Timeframe4H)
}

func TestOrchestrator_AllFailed(t *testing.T) {
	f := &stubFetcher{failing: map[domain.Timeframe]bool{domain.Timeframe1H: true, domain.Timeframe4H: true}}
	o := NewOrchestrator(f, zerolog.Nop())

	got, err := o.LoadAllTimeframes(context.Background(), "btcusdt", []domain.Timeframe{domain.Timeframe1H, domain.Timeframe4H})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, ErrAllTimeframesFailed))
	assert.True(t, errors.Is(err, ErrNoDataAvailable))

	var all *AllTimeframesFailedError
	require.True(t, errors.As(err, &all))
	assert.Equal(t, "BTCUSDT", all.Symbol)
	assert.Len(t, all.Failures, 2)
}

func TestOrchestrator_EmptyAndDuplicateTimeframes(t *testing.T) {
	f := &stubFetcher{}
	o := NewOrchestrator(f, zerolog.Nop())

	got, err := o.LoadAllTimeframes(context.Background(), "BTCUSDT", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, f.requests)

	got, err = o.LoadAllTimeframes(context.Background(), "BTCUSDT", []domain.Timeframe{"1h", domain.Timeframe1H, domain.Timeframe5m})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Len(t, f.requests, 2)
}

func TestOrchestrator_FetchesConcurrently(t *testing.T) {
	f := &stubFetcher{delay: 100 * time.Millisecond}
	o := NewOrchestrator(f, zerolog.Nop())

	start := time.Now()
	got, err := o.LoadAllTimeframes(context.Background(), "BTCUSDT", domain.AllTimeframes)
	require.NoError(t, err)

	assert.Len(t, got, len(domain.AllTimeframes))
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestOrchestrator_RequestOptions(t *testing.T) {
	f := &stubFetcher{}
	o := NewOrchestrator(f, zerolog.Nop(), WithPreferredSource(domain.SourceBybit), WithLimit(50))

	_, err := o.RefreshTimeframes(context.Background(), "ETHUSDT", []domain.Timeframe{domain.Timeframe15m})
	require.NoError(t, err)
	_, err = o.LoadAllTimeframes(context.Background(), "ETHUSDT", []domain.Timeframe{domain.Timeframe15m})
	require.NoError(t, err)

	require.Len(t, f.requests, 2)
	assert.True(t, f.requests[0].BypassCache)
	assert.False(t, f.requests[1].BypassCache)
	for _, req := range f.requests {
		assert.Equal(t, domain.SourceBybit, req.PreferredSource)
		assert.Equal(t, 50, req.Limit)
	}
}

func TestOrchestrator_LoadTimeframesReportsFailures(t *testing.T) {
	f := &stubFetcher{failing: map[domain.Timeframe]bool{domain.Timeframe1D: true}}
	o := NewOrchestrator(f, zerolog.Nop())

	res := o.LoadTimeframes(context.Background(), "SUIUSDT", []domain.Timeframe{domain.Timeframe1D, domain.Timeframe3m}, false)
	assert.Len(t, res.Snapshots, 1)
	require.Len(t, res.Failures, 1)
	assert.True(t, errors.Is(res.Failures[domain.Timeframe1D], ErrNoDataAvailable))
}

func TestOrchestrator_RefreshWritesThroughCache(t *testing.T) {
	cache := marketcache.New()
	binance := okSource(domain.SourceBinance, 5)
	fetcher := NewFetcher(cache, []Source{binance}, zerolog.Nop())
	o := NewOrchestrator(fetcher, zerolog.Nop())

	stale := domain.NewMarketSnapshot("BTCUSDT", domain.Timeframe1H, []domain.Candle{{Timestamp: 1, Close: 1}}, time.Now(), domain.SourceBybit)
	cache.Put(stale)

	refreshed, err := o.RefreshTimeframes(context.Background(), "BTCUSDT", []domain.Timeframe{domain.Timeframe1H})
	require.NoError(t, err)
	assert.Equal(t, int32(1), binance.calls.Load())
	assert.Equal(t, domain.SourceBinance, refreshed[domain.Timeframe1H].Source)

	snap, err := fetcher.GetCandles(context.Background(), Request{Symbol: "BTCUSDT", Timeframe: domain.Timeframe1H})
	require.NoError(t, err)
	assert.Same(t, refreshed[domain.Timeframe1H], snap)
	assert.Equal(t, int32(1), binance.calls.Load())
}
