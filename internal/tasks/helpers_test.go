package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/cryptodash/internal/candles"
	"github.com/aristath/cryptodash/internal/domain"
	"github.com/aristath/cryptodash/internal/marketdata"
	"github.com/aristath/cryptodash/internal/syncstatus"
	testingpkg "github.com/aristath/cryptodash/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testNow = testingpkg.FixedNow

type testEnv struct {
	repo    *marketdata.Repository
	tracker *syncstatus.Tracker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testingpkg.NewTestDB(t)
	tracker := syncstatus.NewTracker(syncstatus.NewSQLRepository(db.Conn()), zerolog.Nop()).
		WithClock(func() time.Time { return testNow })
	return &testEnv{repo: marketdata.NewRepository(db.Conn()), tracker: tracker}
}

func (e *testEnv) status(t *testing.T, key syncstatus.Key) *syncstatus.Record {
	t.Helper()
	rec, err := e.tracker.Get(context.Background(), key)
	require.NoError(t, err)
	return rec
}

// fakeFetcher serves generated candles, failing for the symbols in fail.
type fakeFetcher struct {
	fail  map[string]error
	bars  int
	calls atomic.Int32

	mu   sync.Mutex
	reqs []candles.Request
}

func (f *fakeFetcher) GetCandles(_ context.Context, req candles.Request) (*domain.MarketSnapshot, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	if err := f.fail[domain.NormalizeSymbol(req.Symbol)]; err != nil {
		return nil, err
	}
	bars := testingpkg.TrendCandles(f.bars, req.Timeframe, 100, 1)
	return domain.NewMarketSnapshot(req.Symbol, req.Timeframe, bars, testNow, domain.SourceBybit), nil
}

func seedCandles(t *testing.T, env *testEnv, symbol string, tf domain.Timeframe, bars []domain.Candle) {
	t.Helper()
	snap := domain.NewMarketSnapshot(symbol, tf, bars, testNow, domain.SourceBinance)
	require.NoError(t, env.repo.SaveSnapshot(context.Background(), snap))
}
