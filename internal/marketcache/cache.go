// Package marketcache provides the in-process snapshot cache that sits in front of
// the upstream candle sources. Entries expire per timeframe and are evicted lazily on read.
package marketcache

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
	"github.com/rs/zerolog"
)

// Key addresses one cache entry. Build it with NewKey so equivalent symbol spellings collide.
type Key struct {
	Symbol    string
	Timeframe domain.Timeframe
}

// NewKey normalizes symbol and timeframe into a cache key.
// A timeframe that does not parse is kept verbatim; it can never match a stored snapshot.
func NewKey(symbol string, tf domain.Timeframe) Key {
	if parsed, err := domain.ParseTimeframe(string(tf)); err == nil {
		tf = parsed
	}
	return Key{Symbol: domain.NormalizeSymbol(symbol), Timeframe: tf}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Symbol, k.Timeframe)
}

// Entry wraps a cached snapshot with its absolute expiry in Unix milliseconds.
type Entry struct {
	Snapshot  *domain.MarketSnapshot
	ExpiresAt int64
}

// EntryStats describes one entry in a Stats report.
type EntryStats struct {
	Key         string `json:"key"`
	Symbol      string `json:"symbol"`
	Timeframe   string `json:"timeframe"`
	Source      string `json:"source"`
	ExpiresInMs int64  `json:"expires_in_ms"`
}

// Stats is a read-only occupancy report.
type Stats struct {
	Size    int          `json:"size"`
	Entries []EntryStats `json:"entries"`
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithTTLs overrides the per-timeframe TTL table. Timeframes missing from ttls keep their default.
func WithTTLs(ttls map[domain.Timeframe]time.Duration) Option {
	return func(c *Cache) {
		for tf, ttl := range ttls {
			c.ttls[tf] = ttl
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Cache) {
		c.log = log.With().Str("component", "market_cache").Logger()
	}
}

// Cache is a process-wide snapshot store safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]Entry
	ttls    map[domain.Timeframe]time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// New creates an empty cache using DefaultTTLs.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[Key]Entry),
		ttls:    DefaultTTLs(),
		now:     time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the cache lifetime used for tf when no override is given.
func (c *Cache) TTL(tf domain.Timeframe) time.Duration {
	if ttl, ok := c.ttls[tf]; ok {
		return ttl
	}
	return TTLUnlisted
}

// TTLs returns a copy of the TTL table.
func (c *Cache) TTLs() map[domain.Timeframe]time.Duration {
	out := make(map[domain.Timeframe]time.Duration, len(c.ttls))
	for tf, ttl := range c.ttls {
		out[tf] = ttl
	}
	return out
}

// Put stores snapshot with the TTL of its timeframe, replacing any existing entry.
func (c *Cache) Put(snapshot *domain.MarketSnapshot) {
	if snapshot == nil {
		return
	}
	c.store(snapshot, c.TTL(snapshot.Timeframe))
}

// PutWithTTL stores snapshot with expiry now+ttl. The override is used as given:
// a zero ttl is readable only until the clock moves, a negative one is already expired.
func (c *Cache) PutWithTTL(snapshot *domain.MarketSnapshot, ttl time.Duration) {
	if snapshot == nil {
		return
	}
	c.store(snapshot, ttl)
}

func (c *Cache) store(snapshot *domain.MarketSnapshot, ttl time.Duration) {
	key := NewKey(snapshot.Symbol, snapshot.Timeframe)
	expiresAt := c.now().Add(ttl).UnixMilli()

	c.mu.Lock()
	c.entries[key] = Entry{Snapshot: snapshot, ExpiresAt: expiresAt}
	c.mu.Unlock()

	c.log.Debug().
		Str("key", key.String()).
		Str("source", string(snapshot.Source)).
		Dur("ttl", ttl).
		Msg("Cached snapshot")
}

// Get returns the cached snapshot while now <= expires_at.
// An expired entry is removed and reported as a miss.
// The snapshot is shared with other readers: callers must not modify it or its Candles.
func (c *Cache) Get(symbol string, tf domain.Timeframe) (*domain.MarketSnapshot, bool) {
	key := NewKey(symbol, tf)
	now := c.now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if now > entry.ExpiresAt {
		delete(c.entries, key)
		c.log.Debug().Str("key", key.String()).Msg("Evicted expired snapshot")
		return nil, false
	}
	return entry.Snapshot, true
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[Key]Entry)
	c.mu.Unlock()
}

// ClearExpired removes all entries past their expiry and returns how many were removed.
func (c *Cache) ClearExpired() int {
	now := c.now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if now > entry.ExpiresAt {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats reports current occupancy without evicting anything.
func (c *Cache) Stats() Stats {
	now := c.now().UnixMilli()

	c.mu.Lock()
	entries := make([]EntryStats, 0, len(c.entries))
	for key, entry := range c.entries {
		expiresIn := entry.ExpiresAt - now
		if expiresIn < 0 {
			expiresIn = 0
		}
		entries = append(entries, EntryStats{
			Key:         key.String(),
			Symbol:      key.Symbol,
			Timeframe:   string(key.Timeframe),
			Source:      string(entry.Snapshot.Source),
			ExpiresInMs: expiresIn,
		})
	}
	c.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})

	return Stats{Size: len(entries), Entries: entries}
}
