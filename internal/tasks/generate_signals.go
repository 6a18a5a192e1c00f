package tasks

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
	"github.com/aristath/cryptodash/internal/marketdata"
	"github.com/aristath/cryptodash/internal/syncstatus"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultSignalTimeframe is the series signals are generated on.
const DefaultSignalTimeframe = domain.Timeframe4H

// patternScan bounds the stored patterns read per symbol.
const patternScan = 50

// GenerateSignalsTask scores the stored indicators and patterns of each symbol and
// records a BUY/SELL/HOLD signal.
type GenerateSignalsTask struct {
	repo      *marketdata.Repository
	tracker   StatusTracker
	symbols   []string
	timeframe domain.Timeframe
	now       func() time.Time
	log       zerolog.Logger
}

// NewGenerateSignalsTask creates the generate-signals task. An empty timeframe
// selects DefaultSignalTimeframe.
func NewGenerateSignalsTask(repo *marketdata.Repository, tracker StatusTracker, symbols []string, tf domain.Timeframe, log zerolog.Logger) *GenerateSignalsTask {
	if tf == "" {
		tf = DefaultSignalTimeframe
	}
	return &GenerateSignalsTask{
		repo:      repo,
		tracker:   tracker,
		symbols:   symbols,
		timeframe: tf,
		now:       time.Now,
		log:       log.With().Str("job", NameGenerateSignals).Logger(),
	}
}

// Name returns the task name.
func (t *GenerateSignalsTask) Name() string {
	return NameGenerateSignals
}

// Run generates one signal per symbol.
func (t *GenerateSignalsTask) Run(ctx context.Context) error {
	var stats unitStats
	for _, symbol := range t.symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := syncstatus.NewKey(syncstatus.DataTypeSignals, symbol, t.timeframe, SourceTalib)
		err := tracked(ctx, t.tracker, t.log, key, func() (map[string]string, error) {
			return t.generate(ctx, symbol)
		})
		stats.record(err)
	}

	t.log.Info().
		Int("succeeded", stats.succeeded).
		Int("failed", stats.failed).
		Msg("Signals generated")
	return stats.err(NameGenerateSignals)
}

func (t *GenerateSignalsTask) generate(ctx context.Context, symbol string) (map[string]string, error) {
	symbol = domain.NormalizeSymbol(symbol)

	candles, err := t.repo.GetCandles(ctx, symbol, t.timeframe, 1)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no stored candles for %s %s", symbol, t.timeframe)
	}
	latest := candles[len(candles)-1]

	stored, err := t.repo.GetIndicators(ctx, symbol, t.timeframe)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("no indicators for %s %s", symbol, t.timeframe)
	}
	indicators := make(map[string]float64, len(stored))
	for name, v := range stored {
		indicators[name] = v.Value
	}

	all, err := t.repo.ListPatterns(ctx, symbol, patternScan)
	if err != nil {
		return nil, err
	}
	var current []domain.Pattern
	for _, p := range all {
		if p.Timeframe == t.timeframe && p.CandleTime == latest.Timestamp {
			current = append(current, p)
		}
	}

	eval := Evaluate(latest.Close, indicators, current)
	signal := domain.Signal{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Timeframe:  t.timeframe,
		Action:     eval.Action,
		Confidence: eval.Confidence,
		Price:      latest.Close,
		Reasons:    eval.Reasons,
		CreatedAt:  t.now(),
	}
	if err := t.repo.SaveSignal(ctx, signal); err != nil {
		return nil, err
	}

	t.log.Debug().
		Str("symbol", symbol).
		Str("action", string(signal.Action)).
		Float64("confidence", signal.Confidence).
		Msg("Signal generated")

	return map[string]string{
		"signal_id":  signal.ID,
		"action":     string(signal.Action),
		"confidence": strconv.FormatFloat(signal.Confidence, 'f', 2, 64),
	}, nil
}
