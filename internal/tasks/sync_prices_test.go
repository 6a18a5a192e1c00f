package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/aristath/cryptodash/internal/domain"
	"github.com/aristath/cryptodash/internal/syncstatus"
	testingpkg "github.com/aristath/cryptodash/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncPrices_FallsBackPerSymbol(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	primary := testingpkg.NewMockSource(domain.SourceBinance)
	primary.SetPrice("BTCUSDT", 42000)
	secondary := testingpkg.NewMockSource(domain.SourceBybit)
	secondary.SetPrice("BTCUSDT", 1)
	secondary.SetPrice("ETHUSDT", 2200)

	task := NewSyncPricesTask([]PriceSource{primary, secondary}, env.repo, env.tracker, []string{"btcusdt", "ETHUSDT"}, zerolog.Nop())
	require.NoError(t, task.Run(ctx))

	// only the symbol the primary missed reaches the secondary
	assert.Equal(t, [][]string{{"ETHUSDT"}}, secondary.QuoteRequests())

	quotes, err := env.repo.ListQuotes(ctx)
	require.NoError(t, err)
	prices := map[string]float64{}
	for _, q := range quotes {
		prices[q.Symbol] = q.Price
	}
	assert.Equal(t, map[string]float64{"BTCUSDT": 42000, "ETHUSDT": 2200}, prices)

	missed := env.status(t, syncstatus.NewKey(syncstatus.DataTypePrices, "ETHUSDT", "", "binance"))
	assert.Equal(t, syncstatus.StatusError, missed.Status)
	assert.Contains(t, missed.ErrorMessage, "not quoted")

	ok := env.status(t, syncstatus.NewKey(syncstatus.DataTypePrices, "ETHUSDT", "", "bybit"))
	assert.Equal(t, syncstatus.StatusSuccess, ok.Status)
	assert.Equal(t, "2200", ok.Metadata["price"])
}

func TestSyncPrices_AllSourcesFail(t *testing.T) {
	env := newTestEnv(t)
	down := testingpkg.NewMockSource(domain.SourceBinance)
	down.SetError(errors.New("503"))

	task := NewSyncPricesTask([]PriceSource{down}, env.repo, env.tracker, []string{"BTCUSDT"}, zerolog.Nop())
	err := task.Run(context.Background())

	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, NameSyncPrices, taskErr.Task)
	assert.Equal(t, 1, taskErr.Failed)
}

func TestSyncPrices_RespectsBackoff(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	down := testingpkg.NewMockSource(domain.SourceBinance)
	down.SetError(errors.New("503"))
	up := testingpkg.NewMockSource(domain.SourceBybit)
	up.SetPrice("BTCUSDT", 42000)

	task := NewSyncPricesTask([]PriceSource{down, up}, env.repo, env.tracker, []string{"BTCUSDT"}, zerolog.Nop())
	require.NoError(t, task.Run(ctx))
	require.NoError(t, task.Run(ctx))

	// the failing source is in backoff for the second run
	assert.Len(t, down.QuoteRequests(), 1)
	assert.Len(t, up.QuoteRequests(), 2)
}
