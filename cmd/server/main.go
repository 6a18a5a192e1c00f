// Package main is the entry point for the crypto market data service.
// It keeps a short-lived snapshot cache in front of the upstream exchanges,
// refreshes market data on cron schedules and serves it over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/cryptodash/internal/candles"
	"github.com/aristath/cryptodash/internal/clients"
	"github.com/aristath/cryptodash/internal/clients/binance"
	"github.com/aristath/cryptodash/internal/clients/bybit"
	"github.com/aristath/cryptodash/internal/clients/coinmarketcap"
	"github.com/aristath/cryptodash/internal/clients/livecoinwatch"
	"github.com/aristath/cryptodash/internal/config"
	"github.com/aristath/cryptodash/internal/database"
	"github.com/aristath/cryptodash/internal/domain"
	"github.com/aristath/cryptodash/internal/marketcache"
	"github.com/aristath/cryptodash/internal/marketdata"
	"github.com/aristath/cryptodash/internal/scheduler"
	"github.com/aristath/cryptodash/internal/server"
	"github.com/aristath/cryptodash/internal/syncstatus"
	"github.com/aristath/cryptodash/internal/tasks"
	"github.com/aristath/cryptodash/pkg/logger"
)

// upstream is implemented by every market data client.
type upstream interface {
	candles.Source
	tasks.PriceSource
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	log.Info().
		Strs("symbols", cfg.Symbols).
		Int("timeframes", len(cfg.Timeframes)).
		Msg("Starting cryptodash")

	marketDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "market.db"),
		Profile: database.ProfileStandard,
		Name:    "market",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open market database")
	}
	defer marketDB.Close()
	if err := marketDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate market database")
	}

	statusStore, closeStatus := openStatusStore(cfg, marketDB, log)
	defer closeStatus()
	tracker := syncstatus.NewTracker(statusStore, log)

	cache := marketcache.New(
		marketcache.WithTTLs(cfg.CacheTTLs()),
		marketcache.WithLogger(log),
	)

	upstreams := buildClients(cfg, log)
	sources := make([]candles.Source, 0, len(upstreams))
	priceSources := make([]tasks.PriceSource, 0, len(upstreams))
	for _, c := range upstreams {
		sources = append(sources, c)
		priceSources = append(priceSources, c)
	}

	fetcherOpts := []candles.FetcherOption{candles.WithPrecedence(cfg.SourcePrecedence)}
	if cfg.SingleFlight {
		// a shared fetch may walk every source, each bounded by the client timeout
		fetcherOpts = append(fetcherOpts, candles.WithSingleFlight(time.Duration(len(sources))*clients.DefaultTimeout))
	}
	fetcher := candles.NewFetcher(cache, sources, log, fetcherOpts...)

	orchestrator := candles.NewOrchestrator(fetcher, log,
		candles.WithFreshnessThresholds(cfg.FreshnessThresholds()),
		candles.WithPreferredSource(cfg.PreferredSource),
		candles.WithLimit(cfg.CandleLimit),
	)
	if err := orchestrator.ValidateFreshnessPolicy(cache.TTLs()); err != nil {
		log.Fatal().Err(err).Msg("Cache TTLs conflict with freshness thresholds")
	}

	repo := marketdata.NewRepository(marketDB.Conn())
	runner := tasks.NewRunner(log,
		tasks.NewSyncPricesTask(priceSources, repo, tracker, cfg.Symbols, log),
		tasks.NewFetchCandlesTask(fetcher, repo, tracker, cfg.Symbols, cfg.Timeframes, cfg.PreferredSource, cfg.CandleLimit, log),
		tasks.NewCalculateIndicatorsTask(repo, tracker, cfg.Symbols, cfg.Timeframes, log),
		tasks.NewDetectPatternsTask(repo, tracker, cfg.Symbols, cfg.Timeframes, log),
		tasks.NewGenerateSignalsTask(repo, tracker, cfg.Symbols, cfg.SignalTimeframe, log),
	)

	sched := scheduler.New(log)
	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Schedules.SyncPrices, tasks.NewJob(runner, tasks.NameSyncPrices, cfg.TaskTimeout)},
		{cfg.Schedules.FetchCandles, tasks.NewJob(runner, tasks.NameFetchCandles, cfg.TaskTimeout)},
		{cfg.Schedules.CalculateIndicators, tasks.NewJob(runner, tasks.NameCalculateIndicators, cfg.TaskTimeout)},
		{cfg.Schedules.DetectPatterns, tasks.NewJob(runner, tasks.NameDetectPatterns, cfg.TaskTimeout)},
		{cfg.Schedules.GenerateSignals, tasks.NewJob(runner, tasks.NameGenerateSignals, cfg.TaskTimeout)},
		{cfg.Schedules.CacheCleanup, marketcache.NewCleanupJob(cache, log)},
		{cfg.Schedules.DBMaintenance, database.NewMaintenanceJob(marketDB, log)},
	}
	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			log.Fatal().Err(err).Str("job", j.job.Name()).Msg("Failed to register job")
		}
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:        log,
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		Symbols:    cfg.Symbols,
		Timeframes: cfg.Timeframes,
		Fetcher:    fetcher,
		Loader:     orchestrator,
		Cache:      cache,
		Status:     tracker,
		Runner:     runner,
		Jobs:       sched,
		Repo:       repo,
		MarketDB:   marketDB,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Warm the store once at startup instead of waiting for the first tick.
	go func() {
		if err := tasks.NewJob(runner, "", cfg.TaskTimeout*time.Duration(len(tasks.Names))).Run(); err != nil {
			log.Warn().Err(err).Msg("Initial task run finished with failures")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// buildClients returns the configured upstream clients in precedence order.
// Key-based providers are skipped when no key is configured.
func buildClients(cfg *config.Config, log zerolog.Logger) []upstream {
	available := map[domain.Source]upstream{
		domain.SourceBinance: binance.NewClient(cfg.Binance, log),
		domain.SourceBybit:   bybit.NewClient(cfg.Bybit, log),
	}
	if cfg.LiveCoinWatch.APIKey != "" {
		available[domain.SourceLiveCoinWatch] = livecoinwatch.NewClient(cfg.LiveCoinWatch, log)
	} else {
		log.Info().Msg("LiveCoinWatch disabled, no API key")
	}
	if cfg.CoinMarketCap.APIKey != "" {
		available[domain.SourceCoinMarketCap] = coinmarketcap.NewClient(cfg.CoinMarketCap, log)
	} else {
		log.Info().Msg("CoinMarketCap disabled, no API key")
	}

	out := make([]upstream, 0, len(available))
	for _, src := range cfg.SourcePrecedence {
		if c, ok := available[src]; ok {
			out = append(out, c)
		}
	}
	return out
}

// openStatusStore selects Postgres when a DSN is configured and the market database otherwise.
func openStatusStore(cfg *config.Config, marketDB *database.DB, log zerolog.Logger) (syncstatus.Store, func()) {
	if cfg.PostgresDSN == "" {
		return syncstatus.NewSQLRepository(marketDB.Conn()), func() {}
	}

	store, err := syncstatus.OpenGormStore(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open sync status store")
	}
	log.Info().Msg("Sync status stored in Postgres")
	return store, func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close sync status store")
		}
	}
}
