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
	"github.com/aristath/cryptodash/pkg/formulas"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SourceTalib labels sync records of locally computed data.
const SourceTalib = "talib"

// indicatorHistory is the number of stored candles read per series.
const indicatorHistory = 300

// Indicator names as stored.
const (
	IndicatorRSI14      = "rsi_14"
	IndicatorEMA20      = "ema_20"
	IndicatorEMA50      = "ema_50"
	IndicatorSMA200     = "sma_200"
	IndicatorMACD       = "macd"
	IndicatorMACDSignal = "macd_signal"
	IndicatorMACDHist   = "macd_hist"
	IndicatorBBUpper    = "bb_upper"
	IndicatorBBMiddle   = "bb_middle"
	IndicatorBBLower    = "bb_lower"
)

// ComputeIndicators derives every indicator the closes allow from candles
// (ascending). Indicators without enough history are omitted.
func ComputeIndicators(symbol string, tf domain.Timeframe, candles []domain.Candle, now time.Time) []domain.IndicatorValue {
	if len(candles) == 0 {
		return nil
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	candleTime := candles[len(candles)-1].Timestamp

	var out []domain.IndicatorValue
	add := func(name string, v *float64) {
		if v == nil {
			return
		}
		out = append(out, domain.IndicatorValue{
			Symbol:     symbol,
			Timeframe:  tf,
			Name:       name,
			Value:      *v,
			CandleTime: candleTime,
			ComputedAt: now,
		})
	}

	add(IndicatorRSI14, formulas.CalculateRSI(closes, 14))
	add(IndicatorEMA20, formulas.CalculateEMA(closes, 20))
	add(IndicatorEMA50, formulas.CalculateEMA(closes, 50))
	add(IndicatorSMA200, formulas.CalculateSMA(closes, 200))

	if m := formulas.CalculateMACD(closes, 12, 26, 9); m != nil {
		add(IndicatorMACD, &m.MACD)
		add(IndicatorMACDSignal, &m.Signal)
		add(IndicatorMACDHist, &m.Histogram)
	}
	if bb := formulas.CalculateBollingerBands(closes, 20, 2); bb != nil {
		add(IndicatorBBUpper, &bb.Upper)
		add(IndicatorBBMiddle, &bb.Middle)
		add(IndicatorBBLower, &bb.Lower)
	}
	return out
}

// CalculateIndicatorsTask computes indicators from the stored candles.
type CalculateIndicatorsTask struct {
	repo       *marketdata.Repository
	tracker    StatusTracker
	symbols    []string
	timeframes []domain.Timeframe
	now        func() time.Time
	log        zerolog.Logger
}

// NewCalculateIndicatorsTask creates the calculate-indicators task.
func NewCalculateIndicatorsTask(repo *marketdata.Repository, tracker StatusTracker, symbols []string, timeframes []domain.Timeframe, log zerolog.Logger) *CalculateIndicatorsTask {
	return &CalculateIndicatorsTask{
		repo:       repo,
		tracker:    tracker,
		symbols:    symbols,
		timeframes: timeframes,
		now:        time.Now,
		log:        log.With().Str("job", NameCalculateIndicators).Logger(),
	}
}

// Name returns the task name.
func (t *CalculateIndicatorsTask) Name() string {
	return NameCalculateIndicators
}

// Run computes and stores indicators per symbol×timeframe.
func (t *CalculateIndicatorsTask) Run(ctx context.Context) error {
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
				key := syncstatus.NewKey(syncstatus.DataTypeIndicators, symbol, tf, SourceTalib)
				err := tracked(ctx, t.tracker, t.log, key, func() (map[string]string, error) {
					return t.calculate(ctx, symbol, tf)
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
		Msg("Indicators calculated")
	return stats.err(NameCalculateIndicators)
}

func (t *CalculateIndicatorsTask) calculate(ctx context.Context, symbol string, tf domain.Timeframe) (map[string]string, error) {
	symbol = domain.NormalizeSymbol(symbol)
	candles, err := t.repo.GetCandles(ctx, symbol, tf, indicatorHistory)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no stored candles for %s %s", symbol, tf)
	}

	values := ComputeIndicators(symbol, tf, candles, t.now())
	if len(values) == 0 {
		return nil, fmt.Errorf("not enough candles for %s %s: %d", symbol, tf, len(candles))
	}
	if err := t.repo.SaveIndicators(ctx, values); err != nil {
		return nil, err
	}

	return map[string]string{
		"indicators": strconv.Itoa(len(values)),
		"candles":    strconv.Itoa(len(candles)),
	}, nil
}
