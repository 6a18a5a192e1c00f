package syncstatus

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormRecordConversion(t *testing.T) {
	next := time.Date(2024, 1, 1, 12, 0, 30, 0, time.UTC)
	rec := Record{
		DataType:     DataTypeCandles,
		Symbol:       "SUIUSDT",
		Timeframe:    domain.Timeframe15m,
		Source:       "bybit",
		Status:       StatusError,
		LastSyncAt:   time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		NextSyncAt:   &next,
		RetryCount:   1,
		ErrorMessage: "retCode 10006",
	}

	row := toGorm(rec)
	assert.Equal(t, "15m", row.Timeframe)
	require.NotNil(t, row.ErrorMessage)
	assert.Equal(t, "retCode 10006", *row.ErrorMessage)
	assert.NotNil(t, row.Metadata)

	back := fromGorm(row)
	assert.Equal(t, rec.Key(), back.Key())
	assert.Equal(t, rec.Status, back.Status)
	assert.Equal(t, rec.ErrorMessage, back.ErrorMessage)
	assert.Equal(t, next, *back.NextSyncAt)
	assert.Equal(t, map[string]string{}, back.Metadata)

	assert.Nil(t, toGorm(Record{}).ErrorMessage)
	assert.Equal(t, "sync_status", gormRecord{}.TableName())
}

// TestGormStore_Postgres runs against a real database when CRYPTODASH_TEST_POSTGRES_DSN is set.
func TestGormStore_Postgres(t *testing.T) {
	dsn := os.Getenv("CRYPTODASH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CRYPTODASH_TEST_POSTGRES_DSN not set")
	}

	store, err := OpenGormStore(dsn)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	tracker := NewTracker(store, zerolog.Nop())
	key := NewKey(DataTypeCandles, "AVAXUSDT", domain.Timeframe1D, "test-"+time.Now().Format("150405.000"))

	require.NoError(t, tracker.MarkError(ctx, key, errors.New("boom")))
	require.NoError(t, tracker.MarkSuccess(ctx, key, map[string]string{"candles": "3"}))

	rec, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, rec.Status)
	assert.Equal(t, "3", rec.Metadata["candles"])

	list, err := store.List(ctx, Filter{Symbol: "AVAXUSDT", Status: StatusSuccess})
	require.NoError(t, err)
	assert.NotEmpty(t, list)
}
