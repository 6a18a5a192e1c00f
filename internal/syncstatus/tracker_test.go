package syncstatus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
	testingpkg "github.com/aristath/cryptodash/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *SQLRepository {
	t.Helper()
	return NewSQLRepository(testingpkg.NewTestDB(t).Conn())
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		retries int
		want    time.Duration
	}{
		{0, 0},
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{6, 16 * time.Minute},
		{7, 30 * time.Minute},
		{50, 30 * time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.retries), "retries=%d", tt.retries)
	}
}

func TestTracker_Lifecycle(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewTracker(newTestRepository(t), zerolog.Nop()).WithClock(clock.Now)
	key := NewKey(DataTypeCandles, "btcusdt", domain.Timeframe1H, "binance")

	ok, err := tracker.ShouldSync(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, tracker.MarkSyncing(ctx, key))
	rec, err := tracker.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, StatusSyncing, rec.Status)
	assert.Equal(t, "BTCUSDT", rec.Symbol)

	ok, err = tracker.ShouldSync(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "a fresh syncing record blocks new attempts")

	require.NoError(t, tracker.MarkError(ctx, key, errors.New("timeout")))
	rec, err = tracker.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, StatusError, rec.Status)
	assert.Equal(t, 1, rec.RetryCount)
	assert.Equal(t, "timeout", rec.ErrorMessage)
	require.NotNil(t, rec.NextSyncAt)
	assert.Equal(t, clock.now.Add(30*time.Second), *rec.NextSyncAt)

	ok, err = tracker.ShouldSync(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tracker.MarkError(ctx, key, errors.New("timeout again")))
	rec, err = tracker.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.RetryCount)
	assert.Equal(t, clock.now.Add(time.Minute), *rec.NextSyncAt)

	clock.now = clock.now.Add(time.Minute)
	ok, err = tracker.ShouldSync(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, tracker.MarkSuccess(ctx, key, map[string]string{"candles": "100"}))
	rec, err = tracker.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, rec.Status)
	assert.Zero(t, rec.RetryCount)
	assert.Nil(t, rec.NextSyncAt)
	assert.Empty(t, rec.ErrorMessage)
	assert.Equal(t, map[string]string{"candles": "100"}, rec.Metadata)
	assert.Equal(t, clock.now, rec.LastSyncAt)
}

func TestTracker_StaleSyncingIsRetried(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewTracker(newTestRepository(t), zerolog.Nop()).WithClock(clock.Now)
	key := NewKey(DataTypePrices, "ETHUSDT", "", "bybit")

	require.NoError(t, tracker.MarkSyncing(ctx, key))
	clock.now = clock.now.Add(StaleSyncing)

	ok, err := tracker.ShouldSync(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	tracker := NewTracker(repo, zerolog.Nop())

	require.NoError(t, tracker.MarkSuccess(ctx, NewKey(DataTypePrices, "BTCUSDT", "", "binance"), nil))
	require.NoError(t, tracker.MarkSuccess(ctx, NewKey(DataTypeCandles, "BTCUSDT", domain.Timeframe1H, "binance"), nil))
	require.NoError(t, tracker.MarkError(ctx, NewKey(DataTypeCandles, "ETHUSDT", domain.Timeframe4H, "bybit"), errors.New("502")))

	all, err := tracker.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	candles, err := tracker.List(ctx, Filter{DataType: DataTypeCandles})
	require.NoError(t, err)
	assert.Len(t, candles, 2)

	btc, err := tracker.List(ctx, Filter{Symbol: "btcusdt"})
	require.NoError(t, err)
	assert.Len(t, btc, 2)

	failed, err := tracker.List(ctx, Filter{Status: StatusError})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "ETHUSDT", failed[0].Symbol)
	assert.Equal(t, domain.Timeframe4H, failed[0].Timeframe)
	assert.Equal(t, map[string]string{}, failed[0].Metadata)
}

func TestSQLRepository_GetNotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.Get(context.Background(), NewKey(DataTypeSignals, "BTCUSDT", domain.Timeframe1D, "rules"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("error")
	require.NoError(t, err)
	assert.Equal(t, StatusError, st)

	st, err = ParseStatus("")
	require.NoError(t, err)
	assert.Empty(t, st)

	_, err = ParseStatus("done")
	assert.Error(t, err)
}
