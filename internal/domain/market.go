// Package domain provides the market data model shared by the cache, the fetcher,
// the scheduled tasks and the HTTP layer.
package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Timeframe is a candle aggregation interval.
type Timeframe string

const (
	Timeframe3m  Timeframe = "3m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1H  Timeframe = "1H"
	Timeframe4H  Timeframe = "4H"
	Timeframe1D  Timeframe = "1D"
)

// AllTimeframes lists every supported timeframe, shortest first.
var AllTimeframes = []Timeframe{
	Timeframe3m,
	Timeframe5m,
	Timeframe15m,
	Timeframe1H,
	Timeframe4H,
	Timeframe1D,
}

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe3m:  3 * time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe1H:  time.Hour,
	Timeframe4H:  4 * time.Hour,
	Timeframe1D:  24 * time.Hour,
}

// ParseTimeframe returns the canonical timeframe for s.
// Minute timeframes are lower-case ("15m"), hour and day timeframes upper-case ("4H", "1D");
// "1h", " 1d " and similar call-site spellings resolve to the same value.
func ParseTimeframe(s string) (Timeframe, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty timeframe")
	}

	unit := s[len(s)-1]
	num := s[:len(s)-1]
	var tf Timeframe
	switch unit {
	case 'm':
		tf = Timeframe(num + "m")
	case 'h', 'H':
		tf = Timeframe(num + "H")
	case 'd', 'D':
		tf = Timeframe(num + "D")
	default:
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}

	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}

// ParseTimeframes parses a comma separated list, ignoring blanks.
func ParseTimeframes(csv string) ([]Timeframe, error) {
	var out []Timeframe
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		tf, err := ParseTimeframe(part)
		if err != nil {
			return nil, err
		}
		out = append(out, tf)
	}
	return out, nil
}

// Valid reports whether tf is one of the supported timeframes.
func (tf Timeframe) Valid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// Duration returns the width of one bar, or zero for unknown timeframes.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

func (tf Timeframe) String() string {
	return string(tf)
}

// Source identifies an upstream price/candle provider.
type Source string

const (
	SourceBinance       Source = "binance"
	SourceBybit         Source = "bybit"
	SourceLiveCoinWatch Source = "livecoinwatch"
	SourceCoinMarketCap Source = "coinmarketcap"
)

// DefaultSourcePrecedence is the fallback order used when no source is preferred.
var DefaultSourcePrecedence = []Source{
	SourceBinance,
	SourceBybit,
	SourceLiveCoinWatch,
	SourceCoinMarketCap,
}

// ParseSource validates a source name. The empty string is returned as-is and means "no preference".
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	if src == "" {
		return "", nil
	}
	for _, known := range DefaultSourcePrecedence {
		if src == known {
			return src, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// Candle is one OHLCV bar. Timestamp is the bar open time in Unix milliseconds.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// RawCandle is a bar as delivered by an upstream API, before numeric coercion.
// Timestamp may be in seconds or milliseconds.
type RawCandle struct {
	Timestamp int64
	Open      string
	High      string
	Low       string
	Close     string
	Volume    string
}

// MarketSnapshot bundles the candles of one symbol/timeframe at a point in time.
// A snapshot is never modified after construction; refreshing data produces a new one.
// Snapshots are shared by the cache, so holders must not write to Candles.
type MarketSnapshot struct {
	Symbol      string    `json:"symbol"`
	Timeframe   Timeframe `json:"timeframe"`
	Candles     []Candle  `json:"candles"`
	LastUpdated int64     `json:"last_updated"`
	Source      Source    `json:"source"`
}

// NewMarketSnapshot builds a snapshot owning its own copy of candles, sorted by timestamp.
func NewMarketSnapshot(symbol string, tf Timeframe, candles []Candle, lastUpdated time.Time, source Source) *MarketSnapshot {
	owned := make([]Candle, len(candles))
	copy(owned, candles)
	sort.SliceStable(owned, func(i, j int) bool {
		return owned[i].Timestamp < owned[j].Timestamp
	})

	return &MarketSnapshot{
		Symbol:      NormalizeSymbol(symbol),
		Timeframe:   tf,
		Candles:     owned,
		LastUpdated: lastUpdated.UnixMilli(),
		Source:      source,
	}
}

// Latest returns the most recent candle.
func (s *MarketSnapshot) Latest() (Candle, bool) {
	if s == nil || len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// Closes returns the close prices in chronological order.
func (s *MarketSnapshot) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// PriceQuote is the latest traded price of a symbol from one source.
type PriceQuote struct {
	Symbol    string    `json:"symbol"`
	Source    Source    `json:"source"`
	Price     float64   `json:"price"`
	Volume24h float64   `json:"volume_24h"`
	Change24h float64   `json:"change_24h"`
	MarketCap float64   `json:"market_cap"`
	QuotedAt  time.Time `json:"quoted_at"`
}
