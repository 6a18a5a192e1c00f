package candles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultLimit is the number of bars requested when a request does not set one.
const DefaultLimit = 100

// DefaultSharedFetchTimeout bounds a de-duplicated upstream fetch, which no single caller can cancel.
const DefaultSharedFetchTimeout = 30 * time.Second

var (
	// ErrInvalidRequest is returned for requests that never reach a source.
	ErrInvalidRequest = errors.New("invalid candle request")

	// ErrSourceNotConfigured is recorded when the preferred source has no client.
	ErrSourceNotConfigured = errors.New("source not configured")
)

// Request describes one snapshot lookup.
// The zero value of BypassCache reads the cache first.
type Request struct {
	Symbol          string
	Timeframe       domain.Timeframe
	PreferredSource domain.Source
	BypassCache     bool
	Limit           int
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithFetcherClock replaces time.Now when stamping snapshots.
func WithFetcherClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) {
		f.now = now
	}
}

// WithPrecedence replaces DefaultSourcePrecedence.
func WithPrecedence(order []domain.Source) FetcherOption {
	return func(f *Fetcher) {
		f.precedence = append([]domain.Source(nil), order...)
	}
}

// WithSingleFlight collapses concurrent upstream fetches for the same request into one call.
// The shared call runs detached from its callers' cancellation, bounded by timeout
// (DefaultSharedFetchTimeout when timeout <= 0).
func WithSingleFlight(timeout time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if timeout <= 0 {
			timeout = DefaultSharedFetchTimeout
		}
		f.group = &singleflight.Group{}
		f.sharedTimeout = timeout
	}
}

// Fetcher resolves snapshots from the cache, falling back to upstream sources in rank order.
type Fetcher struct {
	cache      SnapshotCache
	sources    map[domain.Source]Source
	precedence []domain.Source
	group      *singleflight.Group
	now        func() time.Time

	sharedTimeout time.Duration
	log           zerolog.Logger
}

// NewFetcher creates a fetcher over cache and sources. Sources are addressed by Name();
// a later source with the same name replaces an earlier one.
func NewFetcher(cache SnapshotCache, sources []Source, log zerolog.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		cache:      cache,
		sources:    make(map[domain.Source]Source, len(sources)),
		precedence: append([]domain.Source(nil), domain.DefaultSourcePrecedence...),
		now:        time.Now,
		log:        log.With().Str("component", "candle_fetcher").Logger(),
	}
	for _, src := range sources {
		f.sources[src.Name()] = src
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Sources returns the configured source names in precedence order.
func (f *Fetcher) Sources() []domain.Source {
	out := make([]domain.Source, 0, len(f.sources))
	for _, name := range f.precedence {
		if _, ok := f.sources[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// GetCandles returns the snapshot for req.Symbol/req.Timeframe.
// A cache hit makes no upstream call. Otherwise candidates are tried in order and the first
// success is cached (also when BypassCache is set) and returned. When every candidate fails
// the result is a *NoDataAvailableError and the cache is left untouched.
func (f *Fetcher) GetCandles(ctx context.Context, req Request) (*domain.MarketSnapshot, error) {
	req, err := f.normalizeRequest(req)
	if err != nil {
		return nil, err
	}

	if !req.BypassCache {
		if snap, ok := f.cache.Get(req.Symbol, req.Timeframe); ok {
			f.log.Debug().
				Str("symbol", req.Symbol).
				Str("timeframe", string(req.Timeframe)).
				Msg("Cache hit")
			return snap, nil
		}
	}

	if f.group == nil {
		return f.fetchUpstream(ctx, req)
	}

	// The shared call outlives any one caller; each caller still stops waiting on its own ctx.
	key := fmt.Sprintf("%s\x00%s\x00%s\x00%d", req.Symbol, req.Timeframe, req.PreferredSource, req.Limit)
	ch := f.group.DoChan(key, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.sharedTimeout)
		defer cancel()
		return f.fetchUpstream(shared, req)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("candles %s %s: %w", req.Symbol, req.Timeframe, ctx.Err())
	case res := <-ch:
		if res.Shared {
			f.log.Debug().Str("symbol", req.Symbol).Str("timeframe", string(req.Timeframe)).Msg("Shared in-flight fetch")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.MarketSnapshot), nil
	}
}

func (f *Fetcher) normalizeRequest(req Request) (Request, error) {
	req.Symbol = domain.NormalizeSymbol(req.Symbol)
	if req.Symbol == "" {
		return req, fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}

	tf, err := domain.ParseTimeframe(string(req.Timeframe))
	if err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Timeframe = tf

	if req.PreferredSource != "" {
		src, err := domain.ParseSource(string(req.PreferredSource))
		if err != nil {
			return req, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		req.PreferredSource = src
	}

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	return req, nil
}

// candidates returns the preferred source followed by the precedence list without it.
func (f *Fetcher) candidates(preferred domain.Source) []domain.Source {
	out := make([]domain.Source, 0, len(f.precedence)+1)
	if preferred != "" {
		out = append(out, preferred)
	}
	for _, name := range f.precedence {
		if name == preferred {
			continue
		}
		if _, ok := f.sources[name]; !ok {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (f *Fetcher) fetchUpstream(ctx context.Context, req Request) (*domain.MarketSnapshot, error) {
	var attempts []SourceAttempt

	for _, name := range f.candidates(req.PreferredSource) {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, SourceAttempt{Source: name, Err: err})
			break
		}

		src, ok := f.sources[name]
		if !ok {
			attempts = append(attempts, SourceAttempt{Source: name, Err: ErrSourceNotConfigured})
			continue
		}

		snap, err := f.fetchFrom(ctx, src, req)
		if err != nil {
			f.log.Warn().
				Err(err).
				Str("source", string(name)).
				Str("symbol", req.Symbol).
				Str("timeframe", string(req.Timeframe)).
				Msg("Source fetch failed, trying next source")
			attempts = append(attempts, SourceAttempt{Source: name, Err: err})
			continue
		}

		f.cache.Put(snap)
		f.log.Debug().
			Str("source", string(name)).
			Str("symbol", req.Symbol).
			Str("timeframe", string(req.Timeframe)).
			Int("candles", len(snap.Candles)).
			Msg("Fetched candles")
		return snap, nil
	}

	return nil, &NoDataAvailableError{
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Attempts:  attempts,
	}
}

func (f *Fetcher) fetchFrom(ctx context.Context, src Source, req Request) (*domain.MarketSnapshot, error) {
	raw, err := src.FetchCandles(ctx, req.Symbol, req.Timeframe, req.Limit)
	if err != nil {
		return nil, err
	}

	candles, err := Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	if len(candles) > req.Limit {
		candles = candles[len(candles)-req.Limit:]
	}

	return domain.NewMarketSnapshot(req.Symbol, req.Timeframe, candles, f.now(), src.Name()), nil
}
