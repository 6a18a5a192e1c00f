package tasks

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aristath/cryptodash/internal/domain"
	"github.com/aristath/cryptodash/internal/marketdata"
	"github.com/aristath/cryptodash/internal/syncstatus"
	"github.com/rs/zerolog"
)

// SyncPricesTask stores the latest quote of every symbol.
// Sources are asked in order; each only for the symbols still unresolved.
type SyncPricesTask struct {
	sources []PriceSource
	repo    *marketdata.Repository
	tracker StatusTracker
	symbols []string
	log     zerolog.Logger
}

// NewSyncPricesTask creates the sync-prices task.
func NewSyncPricesTask(sources []PriceSource, repo *marketdata.Repository, tracker StatusTracker, symbols []string, log zerolog.Logger) *SyncPricesTask {
	return &SyncPricesTask{
		sources: sources,
		repo:    repo,
		tracker: tracker,
		symbols: symbols,
		log:     log.With().Str("job", NameSyncPrices).Logger(),
	}
}

// Name returns the task name.
func (t *SyncPricesTask) Name() string {
	return NameSyncPrices
}

// Run fetches and stores quotes.
func (t *SyncPricesTask) Run(ctx context.Context) error {
	resolved := make(map[string]bool, len(t.symbols))
	var stats unitStats

	for _, src := range t.sources {
		remaining := t.unresolved(resolved)
		if len(remaining) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		eligible := t.begin(ctx, src, remaining)
		if len(eligible) == 0 {
			continue
		}

		quotes, err := src.FetchQuotes(ctx, eligible)
		if err != nil {
			t.log.Warn().Err(err).Str("source", string(src.Name())).Msg("Price source failed, trying next source")
			for _, symbol := range eligible {
				t.markError(ctx, src, symbol, err)
			}
			continue
		}

		for _, symbol := range eligible {
			q, ok := quotes[symbol]
			if !ok {
				t.markError(ctx, src, symbol, fmt.Errorf("%s not quoted by %s", symbol, src.Name()))
				continue
			}
			q.Symbol = symbol
			if err := t.repo.SaveQuote(ctx, q); err != nil {
				t.markError(ctx, src, symbol, err)
				continue
			}

			key := syncstatus.NewKey(syncstatus.DataTypePrices, symbol, "", string(src.Name()))
			if err := t.tracker.MarkSuccess(ctx, key, map[string]string{
				"price": strconv.FormatFloat(q.Price, 'f', -1, 64),
			}); err != nil {
				t.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to mark success")
			}
			resolved[symbol] = true
		}
	}

	unresolved := t.unresolved(resolved)
	stats.succeeded = len(resolved)
	stats.failed = len(unresolved)
	if len(unresolved) > 0 {
		stats.lastErr = fmt.Errorf("no source quoted %s", strings.Join(unresolved, ", "))
		t.log.Warn().Strs("symbols", unresolved).Msg("Symbols left without a quote")
	}

	t.log.Info().Int("resolved", len(resolved)).Int("unresolved", len(unresolved)).Msg("Prices synced")
	return stats.err(NameSyncPrices)
}

// begin filters out symbols in backoff for src and marks the rest syncing.
func (t *SyncPricesTask) begin(ctx context.Context, src PriceSource, symbols []string) []string {
	eligible := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		key := syncstatus.NewKey(syncstatus.DataTypePrices, symbol, "", string(src.Name()))
		if ok, err := t.tracker.ShouldSync(ctx, key); err == nil && !ok {
			continue
		}
		if err := t.tracker.MarkSyncing(ctx, key); err != nil {
			t.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to mark syncing")
		}
		eligible = append(eligible, symbol)
	}
	return eligible
}

func (t *SyncPricesTask) markError(ctx context.Context, src PriceSource, symbol string, cause error) {
	key := syncstatus.NewKey(syncstatus.DataTypePrices, symbol, "", string(src.Name()))
	if err := t.tracker.MarkError(ctx, key, cause); err != nil {
		t.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to mark error")
	}
}

func (t *SyncPricesTask) unresolved(resolved map[string]bool) []string {
	var out []string
	for _, s := range t.symbols {
		symbol := domain.NormalizeSymbol(s)
		if !resolved[symbol] {
			out = append(out, symbol)
		}
	}
	return out
}
