// Package tasks implements the scheduled fetch and compute jobs and the runner that
// invokes them by name.
package tasks

import (
	"context"
	"errors"

	"github.com/aristath/cryptodash/internal/domain"
	"github.com/aristath/cryptodash/internal/syncstatus"
	"github.com/rs/zerolog"
)

// Task names accepted by the runner.
const (
	NameSyncPrices          = "sync-prices"
	NameFetchCandles        = "fetch-candles"
	NameCalculateIndicators = "calculate-indicators"
	NameDetectPatterns      = "detect-patterns"
	NameGenerateSignals     = "generate-signals"
)

// Names lists every task in the order a full run executes them.
var Names = []string{
	NameSyncPrices,
	NameFetchCandles,
	NameCalculateIndicators,
	NameDetectPatterns,
	NameGenerateSignals,
}

// Task is one scheduled unit of work.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// PriceSource quotes the latest price of several symbols at once.
// Symbols the source does not know are left out of the result.
type PriceSource interface {
	Name() domain.Source
	FetchQuotes(ctx context.Context, symbols []string) (map[string]domain.PriceQuote, error)
}

// StatusTracker is the subset of syncstatus.Tracker the tasks write through.
type StatusTracker interface {
	ShouldSync(ctx context.Context, key syncstatus.Key) (bool, error)
	MarkSyncing(ctx context.Context, key syncstatus.Key) error
	MarkSuccess(ctx context.Context, key syncstatus.Key, metadata map[string]string) error
	MarkError(ctx context.Context, key syncstatus.Key, err error) error
}

// errSkipped marks a unit whose backoff window is still open.
var errSkipped = errors.New("skipped: backoff window open")

// tracked runs fn between MarkSyncing and MarkSuccess/MarkError for key.
// Status write failures are logged and never fail the unit.
func tracked(ctx context.Context, tracker StatusTracker, log zerolog.Logger, key syncstatus.Key, fn func() (map[string]string, error)) error {
	ok, err := tracker.ShouldSync(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("symbol", key.Symbol).Msg("Failed to read sync status, syncing anyway")
	} else if !ok {
		log.Debug().
			Str("symbol", key.Symbol).
			Str("timeframe", string(key.Timeframe)).
			Str("source", key.Source).
			Msg("Skipping, backoff window open")
		return errSkipped
	}

	if err := tracker.MarkSyncing(ctx, key); err != nil {
		log.Warn().Err(err).Str("symbol", key.Symbol).Msg("Failed to mark syncing")
	}

	metadata, runErr := fn()
	if runErr != nil {
		if err := tracker.MarkError(ctx, key, runErr); err != nil {
			log.Warn().Err(err).Str("symbol", key.Symbol).Msg("Failed to mark error")
		}
		return runErr
	}

	if err := tracker.MarkSuccess(ctx, key, metadata); err != nil {
		log.Warn().Err(err).Str("symbol", key.Symbol).Msg("Failed to mark success")
	}
	return nil
}

// unitStats counts unit outcomes of one task run.
type unitStats struct {
	succeeded int
	failed    int
	skipped   int
	lastErr   error
}

func (s *unitStats) record(err error) {
	switch {
	case err == nil:
		s.succeeded++
	case errors.Is(err, errSkipped):
		s.skipped++
	default:
		s.failed++
		s.lastErr = err
	}
}

// err fails the run only when units were attempted and none succeeded.
func (s *unitStats) err(task string) error {
	if s.succeeded == 0 && s.failed > 0 {
		return &TaskError{Task: task, Failed: s.failed, Last: s.lastErr}
	}
	return nil
}
