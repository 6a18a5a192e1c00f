// Package server provides the HTTP server and routing for the market data API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/cryptodash/internal/candles"
	"github.com/aristath/cryptodash/internal/database"
	"github.com/aristath/cryptodash/internal/domain"
	"github.com/aristath/cryptodash/internal/marketcache"
	"github.com/aristath/cryptodash/internal/marketdata"
	"github.com/aristath/cryptodash/internal/scheduler"
	"github.com/aristath/cryptodash/internal/syncstatus"
	"github.com/aristath/cryptodash/internal/tasks"
)

// CandleFetcher resolves one snapshot (candles.Fetcher).
type CandleFetcher interface {
	GetCandles(ctx context.Context, req candles.Request) (*domain.MarketSnapshot, error)
	Sources() []domain.Source
}

// MarketLoader loads several timeframes at once (candles.Orchestrator).
type MarketLoader interface {
	LoadTimeframes(ctx context.Context, symbol string, timeframes []domain.Timeframe, bypassCache bool) candles.LoadResult
	CheckFreshness(snapshots map[domain.Timeframe]*domain.MarketSnapshot) map[domain.Timeframe]candles.Freshness
}

// SnapshotCache is the cache surface exposed over HTTP (marketcache.Cache).
type SnapshotCache interface {
	Stats() marketcache.Stats
	Clear()
	Len() int
}

// StatusLister lists sync records (syncstatus.Tracker).
type StatusLister interface {
	List(ctx context.Context, filter syncstatus.Filter) ([]syncstatus.Record, error)
}

// TaskRunner runs tasks by name (tasks.Runner).
type TaskRunner interface {
	Run(ctx context.Context, name string) (*tasks.RunReport, error)
}

// JobLister reports the registered schedules (scheduler.Scheduler).
type JobLister interface {
	Entries() []scheduler.Entry
}

// Config holds server configuration
type Config struct {
	Log        zerolog.Logger
	Port       int
	DevMode    bool
	Symbols    []string
	Timeframes []domain.Timeframe

	Fetcher   CandleFetcher
	Loader    MarketLoader
	Cache     SnapshotCache
	Status    StatusLister
	Runner    TaskRunner
	Jobs      JobLister
	Repo      *marketdata.Repository
	MarketDB  *database.DB
	StartedAt time.Time
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now()
	}

	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(55 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/system/status", s.handleSystemStatus)
		r.Get("/symbols", s.handleSymbols)

		r.Get("/candles/{symbol}/{timeframe}", s.handleGetCandles)
		r.Get("/market/{symbol}", s.handleGetMarket)
		r.Post("/market/{symbol}/refresh", s.handleRefreshMarket)

		r.Get("/cache/stats", s.handleCacheStats)
		r.Delete("/cache", s.handleClearCache)

		r.Get("/sync-status", s.handleSyncStatus)
		r.Post("/tasks/run", s.handleRunTasks)

		r.Get("/indicators/{symbol}/{timeframe}", s.handleGetIndicators)
		r.Get("/patterns/{symbol}", s.handleGetPatterns)
		r.Get("/signals", s.handleGetSignals)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
