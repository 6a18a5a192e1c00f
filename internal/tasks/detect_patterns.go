package tasks

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
	"github.com/aristath/cryptodash/internal/marketdata"
	"github.com/aristath/cryptodash/internal/syncstatus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// patternHistory covers the volume lookback plus the bars being inspected.
const patternHistory = volumeLookback + 5

// DetectPatternsTask scans the latest stored bar of every series for formations.
type DetectPatternsTask struct {
	repo       *marketdata.Repository
	tracker    StatusTracker
	symbols    []string
	timeframes []domain.Timeframe
	now        func() time.Time
	log        zerolog.Logger
}

// NewDetectPatternsTask creates the detect-patterns task.
func NewDetectPatternsTask(repo *marketdata.Repository, tracker StatusTracker, symbols []string, timeframes []domain.Timeframe, log zerolog.Logger) *DetectPatternsTask {
	return &DetectPatternsTask{
		repo:       repo,
		tracker:    tracker,
		symbols:    symbols,
		timeframes: timeframes,
		now:        time.Now,
		log:        log.With().Str("job", NameDetectPatterns).Logger(),
	}
}

// Name returns the task name.
func (t *DetectPatternsTask) Name() string {
	return NameDetectPatterns
}

// Run detects and stores patterns per symbol×timeframe.
func (t *DetectPatternsTask) Run(ctx context.Context) error {
	var (
		mu    sync.Mutex
		stats unitStats
		found int
		g     errgroup.Group
	)
	g.SetLimit(fetchConcurrency)

	for _, symbol := range t.symbols {
		for _, tf := range t.timeframes {
			symbol, tf := symbol, tf
			g.Go(func() error {
				key := syncstatus.NewKey(syncstatus.DataTypePatterns, symbol, tf, SourceTalib)
				var n int
				err := tracked(ctx, t.tracker, t.log, key, func() (map[string]string, error) {
					var err error
					n, err = t.detect(ctx, symbol, tf)
					if err != nil {
						return nil, err
					}
					return map[string]string{"patterns": strconv.Itoa(n)}, nil
				})
				mu.Lock()
				stats.record(err)
				found += n
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	t.log.Info().
		Int("succeeded", stats.succeeded).
		Int("failed", stats.failed).
		Int("patterns", found).
		Msg("Patterns detected")
	return stats.err(NameDetectPatterns)
}

func (t *DetectPatternsTask) detect(ctx context.Context, symbol string, tf domain.Timeframe) (int, error) {
	symbol = domain.NormalizeSymbol(symbol)
	candles, err := t.repo.GetCandles(ctx, symbol, tf, patternHistory)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, fmt.Errorf("no stored candles for %s %s", symbol, tf)
	}

	patterns := DetectPatterns(symbol, tf, candles, t.now())
	if err := t.repo.SavePatterns(ctx, patterns); err != nil {
		return 0, err
	}
	return len(patterns), nil
}
