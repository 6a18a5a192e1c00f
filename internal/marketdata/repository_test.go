package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
	testingpkg "github.com/aristath/cryptodash/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	return NewRepository(testingpkg.NewTestDB(t).Conn())
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	first := domain.NewMarketSnapshot("BTCUSDT", domain.Timeframe1H, []domain.Candle{
		{Timestamp: 1000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Timestamp: 2000, Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 11},
	}, now, domain.SourceBinance)
	require.NoError(t, repo.SaveSnapshot(ctx, first))

	// overlapping refresh updates the last bar and appends a new one
	second := domain.NewMarketSnapshot("BTCUSDT", domain.Timeframe1H, []domain.Candle{
		{Timestamp: 2000, Open: 1.5, High: 3, Low: 1, Close: 2.8, Volume: 20},
		{Timestamp: 3000, Open: 2.8, High: 3, Low: 2.5, Close: 2.9, Volume: 5},
	}, now.Add(time.Hour), domain.SourceBybit)
	require.NoError(t, repo.SaveSnapshot(ctx, second))

	got, err := repo.GetCandles(ctx, "btcusdt", domain.Timeframe1H, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1000), got[0].Timestamp)
	assert.Equal(t, 2.8, got[1].Close)
	assert.Equal(t, 20.0, got[1].Volume)

	latest, err := repo.GetCandles(ctx, "BTCUSDT", domain.Timeframe1H, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, int64(2000), latest[0].Timestamp)
	assert.Equal(t, int64(3000), latest[1].Timestamp)

	none, err := repo.GetCandles(ctx, "BTCUSDT", domain.Timeframe4H, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.NoError(t, repo.SaveSnapshot(ctx, nil))
}

func TestSaveSnapshot_SyntheticBarsNeverReplaceExchangeBars(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	exchange := domain.Candle{Timestamp: 1000, Open: 100, High: 120, Low: 90, Close: 110, Volume: 500}
	require.NoError(t, repo.SaveSnapshot(ctx, domain.NewMarketSnapshot("BTCUSDT", domain.Timeframe1H,
		[]domain.Candle{exchange}, now, domain.SourceBinance)))

	for _, src := range []domain.Source{domain.SourceLiveCoinWatch, domain.SourceCoinMarketCap} {
		require.NoError(t, repo.SaveSnapshot(ctx, domain.NewMarketSnapshot("BTCUSDT", domain.Timeframe1H, []domain.Candle{
			{Timestamp: 1000, Open: 111, High: 111, Low: 111, Close: 111},
			{Timestamp: 2000, Open: 112, High: 112, Low: 112, Close: 112},
		}, now.Add(time.Minute), src)))
	}

	got, err := repo.GetCandles(ctx, "BTCUSDT", domain.Timeframe1H, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, exchange, got[0])
	// the gap is filled by the synthetic bar
	assert.Equal(t, 112.0, got[1].Close)

	// an exchange bar replaces the synthetic one
	require.NoError(t, repo.SaveSnapshot(ctx, domain.NewMarketSnapshot("BTCUSDT", domain.Timeframe1H, []domain.Candle{
		{Timestamp: 2000, Open: 110, High: 115, Low: 108, Close: 113, Volume: 42},
	}, now.Add(time.Hour), domain.SourceBybit)))

	got, err = repo.GetCandles(ctx, "BTCUSDT", domain.Timeframe1H, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 113.0, got[1].Close)
	assert.Equal(t, 42.0, got[1].Volume)
}

func TestQuotes(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveQuote(ctx, domain.PriceQuote{Symbol: "ETHUSDT", Source: domain.SourceBybit, Price: 2000, QuotedAt: at}))
	require.NoError(t, repo.SaveQuote(ctx, domain.PriceQuote{Symbol: "ETHUSDT", Source: domain.SourceBinance, Price: 2010, QuotedAt: at.Add(time.Minute)}))
	require.NoError(t, repo.SaveQuote(ctx, domain.PriceQuote{Symbol: "BTCUSDT", Source: domain.SourceBinance, Price: 42000, Change24h: 1.5, QuotedAt: at}))

	quotes, err := repo.ListQuotes(ctx)
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "BTCUSDT", quotes[0].Symbol)
	assert.Equal(t, 1.5, quotes[0].Change24h)
	assert.Equal(t, 2010.0, quotes[1].Price)
	assert.Equal(t, domain.SourceBinance, quotes[1].Source)
	assert.Equal(t, at.Add(time.Minute), quotes[1].QuotedAt)
}

func TestIndicators(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveIndicators(ctx, []domain.IndicatorValue{
		{Symbol: "SOLUSDT", Timeframe: domain.Timeframe4H, Name: "rsi_14", Value: 55, CandleTime: 1, ComputedAt: at},
		{Symbol: "SOLUSDT", Timeframe: domain.Timeframe4H, Name: "ema_20", Value: 100, CandleTime: 1, ComputedAt: at},
	}))
	require.NoError(t, repo.SaveIndicators(ctx, []domain.IndicatorValue{
		{Symbol: "SOLUSDT", Timeframe: domain.Timeframe4H, Name: "rsi_14", Value: 61, CandleTime: 2, ComputedAt: at},
	}))

	got, err := repo.GetIndicators(ctx, "SOLUSDT", domain.Timeframe4H)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 61.0, got["rsi_14"].Value)
	assert.Equal(t, int64(2), got["rsi_14"].CandleTime)
	assert.Equal(t, domain.Timeframe4H, got["ema_20"].Timeframe)
}

func TestPatterns(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SavePatterns(ctx, []domain.Pattern{
		{Symbol: "BTCUSDT", Timeframe: domain.Timeframe1H, Name: "doji", Direction: domain.Neutral, Strength: 0.5, CandleTime: 1000, DetectedAt: at},
		{Symbol: "BTCUSDT", Timeframe: domain.Timeframe1H, Name: "bullish_engulfing", Direction: domain.Bullish, Strength: 0.8, CandleTime: 2000, DetectedAt: at},
		{Symbol: "BTCUSDT", Timeframe: domain.Timeframe1H, Name: "bullish_engulfing", Direction: domain.Bullish, Strength: 0.9, CandleTime: 2000, DetectedAt: at},
		{Symbol: "ETHUSDT", Timeframe: domain.Timeframe1H, Name: "hammer", Direction: domain.Bullish, Strength: 0.6, CandleTime: 2000, DetectedAt: at},
	}))

	got, err := repo.ListPatterns(ctx, "BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bullish_engulfing", got[0].Name)
	assert.Equal(t, 0.9, got[0].Strength)
	assert.Equal(t, domain.Neutral, got[1].Direction)
}

func TestSignals(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveSignal(ctx, domain.Signal{
		ID: "a", Symbol: "BTCUSDT", Timeframe: domain.Timeframe4H, Action: domain.ActionBuy,
		Confidence: 0.7, Price: 42000, Reasons: []string{"rsi oversold"}, CreatedAt: at,
	}))
	require.NoError(t, repo.SaveSignal(ctx, domain.Signal{
		ID: "b", Symbol: "ETHUSDT", Timeframe: domain.Timeframe4H, Action: domain.ActionHold,
		Confidence: 0.3, Price: 2000, Reasons: []string{}, CreatedAt: at.Add(time.Minute),
	}))

	all, err := repo.ListSignals(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID)

	btc, err := repo.ListSignals(ctx, "btcusdt", 10)
	require.NoError(t, err)
	require.Len(t, btc, 1)
	assert.Equal(t, domain.ActionBuy, btc[0].Action)
	assert.Equal(t, []string{"rsi oversold"}, btc[0].Reasons)

	err = repo.SaveSignal(ctx, domain.Signal{ID: "a", Symbol: "BTCUSDT", Action: domain.ActionSell, CreatedAt: at})
	assert.Error(t, err, "signal ids are unique")
}
