// Package binance fetches klines and 24h tickers from the Binance USDⓈ-M futures API.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gobinance "github.com/adshao/go-binance/v2/futures"
	"github.com/aristath/cryptodash/internal/clients"
	"github.com/aristath/cryptodash/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultConfig targets the public futures endpoint. Klines weigh up to 5 of the 2400/min budget.
var DefaultConfig = clients.Config{
	BaseURL:   "https://fapi.binance.com",
	RateLimit: 10,
	Burst:     5,
}

var intervals = map[domain.Timeframe]string{
	domain.Timeframe3m:  "3m",
	domain.Timeframe5m:  "5m",
	domain.Timeframe15m: "15m",
	domain.Timeframe1H:  "1h",
	domain.Timeframe4H:  "4h",
	domain.Timeframe1D:  "1d",
}

// Client wraps the go-binance futures client.
type Client struct {
	api     *gobinance.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient creates a Binance client. Public market data needs no API key.
func NewClient(cfg clients.Config, log zerolog.Logger) *Client {
	cfg = cfg.WithDefaults(DefaultConfig)

	api := gobinance.NewClient(cfg.APIKey, "")
	api.HTTPClient = cfg.HTTPClient()
	api.SetApiEndpoint(cfg.BaseURL)

	return &Client{
		api:     api,
		limiter: cfg.Limiter(),
		log:     log.With().Str("client", "binance").Logger(),
	}
}

// Name implements candles.Source.
func (c *Client) Name() domain.Source {
	return domain.SourceBinance
}

// FetchCandles returns up to limit klines, oldest first.
func (c *Client) FetchCandles(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.RawCandle, error) {
	interval, ok := intervals[tf]
	if !ok {
		return nil, fmt.Errorf("binance: unsupported timeframe %q", tf)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	c.log.Debug().Str("symbol", symbol).Str("interval", interval).Int("limit", limit).Msg("Fetching klines")

	klines, err := c.api.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", symbol, interval, err)
	}

	out := make([]domain.RawCandle, 0, len(klines))
	for _, k := range klines {
		out = append(out, domain.RawCandle{
			Timestamp: k.OpenTime,
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
		})
	}
	return out, nil
}

// FetchQuotes returns the 24h ticker of every symbol that resolved.
// Symbols Binance rejects are logged and left out.
func (c *Client) FetchQuotes(ctx context.Context, symbols []string) (map[string]domain.PriceQuote, error) {
	out := make(map[string]domain.PriceQuote, len(symbols))
	var lastErr error

	for _, symbol := range symbols {
		if err := c.limiter.Wait(ctx); err != nil {
			return out, err
		}

		stats, err := c.api.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch ticker")
			lastErr = err
			continue
		}

		for _, s := range stats {
			if s.Symbol != symbol {
				continue
			}
			quote, err := toQuote(s)
			if err != nil {
				c.log.Warn().Err(err).Str("symbol", symbol).Msg("Malformed ticker")
				lastErr = err
				continue
			}
			out[symbol] = quote
		}
	}

	if len(out) == 0 && lastErr != nil {
		return nil, fmt.Errorf("binance tickers: %w", lastErr)
	}
	return out, nil
}

func toQuote(s *gobinance.PriceChangeStats) (domain.PriceQuote, error) {
	price, err := strconv.ParseFloat(s.LastPrice, 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("last price: %w", err)
	}
	change, _ := strconv.ParseFloat(s.PriceChangePercent, 64)
	volume, _ := strconv.ParseFloat(s.QuoteVolume, 64)

	quotedAt := time.Now().UTC()
	if s.CloseTime > 0 {
		quotedAt = time.UnixMilli(s.CloseTime).UTC()
	}

	return domain.PriceQuote{
		Symbol:    s.Symbol,
		Source:    domain.SourceBinance,
		Price:     price,
		Volume24h: volume,
		Change24h: change,
		QuotedAt:  quotedAt,
	}, nil
}
