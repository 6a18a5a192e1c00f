package tasks

import (
	"context"
	"strconv"
	"sync"

	"github.com/aristath/cryptodash/internal/candles"
	"github.com/aristath/cryptodash/internal/domain"
	"github.com/aristath/cryptodash/internal/marketdata"
	"github.com/aristath/cryptodash/internal/syncstatus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SourceAuto labels sync records of fetches that had no preferred source.
const SourceAuto = "auto"

// fetchConcurrency bounds the symbol×timeframe fetches in flight.
const fetchConcurrency = 4

// CandleFetcher resolves snapshots (candles.Fetcher).
type CandleFetcher interface {
	GetCandles(ctx context.Context, req candles.Request) (*domain.MarketSnapshot, error)
}

// FetchCandlesTask refreshes every symbol×timeframe through the fetcher, warming the
// snapshot cache, and persists the candles.
type FetchCandlesTask struct {
	fetcher    CandleFetcher
	repo       *marketdata.Repository
	tracker    StatusTracker
	symbols    []string
	timeframes []domain.Timeframe
	preferred  domain.Source
	limit      int
	log        zerolog.Logger
}

// NewFetchCandlesTask creates the fetch-candles task.
func NewFetchCandlesTask(fetcher CandleFetcher, repo *marketdata.Repository, tracker StatusTracker, symbols []string, timeframes []domain.Timeframe, preferred domain.Source, limit int, log zerolog.Logger) *FetchCandlesTask {
	return &FetchCandlesTask{
		fetcher:    fetcher,
		repo:       repo,
		tracker:    tracker,
		symbols:    symbols,
		timeframes: timeframes,
		preferred:  preferred,
		limit:      limit,
		log:        log.With().Str("job", NameFetchCandles).Logger(),
	}
}

// Name returns the task name.
func (t *FetchCandlesTask) Name() string {
	return NameFetchCandles
}

// Run fetches every unit. Units fail independently.
func (t *FetchCandlesTask) Run(ctx context.Context) error {
	source := string(t.preferred)
	if source == "" {
		source = SourceAuto
	}

	var (
		mu    sync.Mutex
		stats unitStats
		g     errgroup.Group
	)
	g.SetLimit(fetchConcurrency)

	for _, symbol := range t.symbols {
		for _, tf := range t.timeframes {
			symbol, tf := symbol, tf
			g.Go(func() error {
				key := syncstatus.NewKey(syncstatus.DataTypeCandles, symbol, tf, source)
				err := tracked(ctx, t.tracker, t.log, key, func() (map[string]string, error) {
					return t.fetch(ctx, symbol, tf)
				})
				mu.Lock()
				stats.record(err)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	t.log.Info().
		Int("succeeded", stats.succeeded).
		Int("failed", stats.failed).
		Int("skipped", stats.skipped).
		Msg("Candles fetched")
	return stats.err(NameFetchCandles)
}

func (t *FetchCandlesTask) fetch(ctx context.Context, symbol string, tf domain.Timeframe) (map[string]string, error) {
	snap, err := t.fetcher.GetCandles(ctx, candles.Request{
		Symbol:          symbol,
		Timeframe:       tf,
		PreferredSource: t.preferred,
		BypassCache:     true,
		Limit:           t.limit,
	})
	if err != nil {
		return nil, err
	}

	if err := t.repo.SaveSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	metadata := map[string]string{
		"resolved_source": string(snap.Source),
		"candles":         strconv.Itoa(len(snap.Candles)),
	}
	if latest, ok := snap.Latest(); ok {
		metadata["last_candle"] = strconv.FormatInt(latest.Timestamp, 10)
	}
	return metadata, nil
}
