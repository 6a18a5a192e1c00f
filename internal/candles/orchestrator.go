package candles

import (
	"context"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// CandleFetcher is what the orchestrator needs from the fetcher.
type CandleFetcher interface {
	GetCandles(ctx context.Context, req Request) (*domain.MarketSnapshot, error)
}

// LoadResult carries the snapshots that resolved and the error of every timeframe that did not.
type LoadResult struct {
	Snapshots map[domain.Timeframe]*domain.MarketSnapshot
	Failures  map[domain.Timeframe]error
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorClock replaces time.Now in freshness checks.
func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithFreshnessThresholds overrides entries of the freshness table.
func WithFreshnessThresholds(thresholds map[domain.Timeframe]time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		for tf, d := range thresholds {
			o.thresholds[tf] = d
		}
	}
}

// WithPreferredSource sets the source asked first on every load.
func WithPreferredSource(src domain.Source) OrchestratorOption {
	return func(o *Orchestrator) {
		o.preferred = src
	}
}

// WithLimit sets the number of bars requested per timeframe.
func WithLimit(limit int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.limit = limit
	}
}

// Orchestrator loads several timeframes of one symbol concurrently. It holds no state
// between calls besides its configuration.
type Orchestrator struct {
	fetcher    CandleFetcher
	thresholds map[domain.Timeframe]time.Duration
	preferred  domain.Source
	limit      int
	now        func() time.Time
	log        zerolog.Logger
}

// NewOrchestrator creates an orchestrator over fetcher.
func NewOrchestrator(fetcher CandleFetcher, log zerolog.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		fetcher:    fetcher,
		thresholds: DefaultFreshnessThresholds(),
		now:        time.Now,
		log:        log.With().Str("component", "timeframe_orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Thresholds returns a copy of the freshness table in use.
func (o *Orchestrator) Thresholds() map[domain.Timeframe]time.Duration {
	out := make(map[domain.Timeframe]time.Duration, len(o.thresholds))
	for tf, d := range o.thresholds {
		out[tf] = d
	}
	return out
}

// LoadAllTimeframes fetches every timeframe concurrently, reading the cache first.
// Failed timeframes are absent from the result; only total failure is an error.
func (o *Orchestrator) LoadAllTimeframes(ctx context.Context, symbol string, timeframes []domain.Timeframe) (map[domain.Timeframe]*domain.MarketSnapshot, error) {
	return o.load(ctx, symbol, timeframes, false)
}

// RefreshTimeframes is LoadAllTimeframes with the cache read bypassed.
// Results still go through the cache.
func (o *Orchestrator) RefreshTimeframes(ctx context.Context, symbol string, timeframes []domain.Timeframe) (map[domain.Timeframe]*domain.MarketSnapshot, error) {
	return o.load(ctx, symbol, timeframes, true)
}

func (o *Orchestrator) load(ctx context.Context, symbol string, timeframes []domain.Timeframe, bypassCache bool) (map[domain.Timeframe]*domain.MarketSnapshot, error) {
	res := o.LoadTimeframes(ctx, symbol, timeframes, bypassCache)
	if len(res.Snapshots) == 0 && len(res.Failures) > 0 {
		return nil, &AllTimeframesFailedError{
			Symbol:   domain.NormalizeSymbol(symbol),
			Failures: res.Failures,
		}
	}
	return res.Snapshots, nil
}

// LoadTimeframes fans out one fetch per distinct timeframe and waits for all of them.
// One failing fetch never cancels the others.
func (o *Orchestrator) LoadTimeframes(ctx context.Context, symbol string, timeframes []domain.Timeframe, bypassCache bool) LoadResult {
	unique := dedupeTimeframes(timeframes)

	type outcome struct {
		snap *domain.MarketSnapshot
		err  error
	}
	outcomes := make([]outcome, len(unique))

	var g errgroup.Group
	for i, tf := range unique {
		i, tf := i, tf
		g.Go(func() error {
			snap, err := o.fetcher.GetCandles(ctx, Request{
				Symbol:          symbol,
				Timeframe:       tf,
				PreferredSource: o.preferred,
				BypassCache:     bypassCache,
				Limit:           o.limit,
			})
			outcomes[i] = outcome{snap: snap, err: err}
			return nil
		})
	}
	_ = g.Wait()

	res := LoadResult{
		Snapshots: make(map[domain.Timeframe]*domain.MarketSnapshot, len(unique)),
		Failures:  make(map[domain.Timeframe]error),
	}
	for i, tf := range unique {
		if outcomes[i].err != nil {
			o.log.Warn().
				Err(outcomes[i].err).
				Str("symbol", symbol).
				Str("timeframe", string(tf)).
				Msg("Timeframe load failed")
			res.Failures[tf] = outcomes[i].err
			continue
		}
		res.Snapshots[tf] = outcomes[i].snap
	}
	return res
}

// CheckFreshness reports the age of every snapshot against the freshness table.
func (o *Orchestrator) CheckFreshness(snapshots map[domain.Timeframe]*domain.MarketSnapshot) map[domain.Timeframe]Freshness {
	return checkFreshness(o.now(), o.thresholds, snapshots)
}

func dedupeTimeframes(tfs []domain.Timeframe) []domain.Timeframe {
	seen := make(map[domain.Timeframe]bool, len(tfs))
	out := make([]domain.Timeframe, 0, len(tfs))
	for _, tf := range tfs {
		if parsed, err := domain.ParseTimeframe(string(tf)); err == nil {
			tf = parsed
		}
		if seen[tf] {
			continue
		}
		seen[tf] = true
		out = append(out, tf)
	}
	return out
}

// ValidateFreshnessPolicy checks the cache TTLs against this orchestrator's freshness table.
func (o *Orchestrator) ValidateFreshnessPolicy(ttls map[domain.Timeframe]time.Duration) error {
	return ValidateFreshnessPolicy(ttls, o.thresholds)
}
