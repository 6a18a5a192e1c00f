// Package bybit fetches klines and tickers from the Bybit v5 market API (linear contracts).
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aristath/cryptodash/internal/clients"
	"github.com/aristath/cryptodash/internal/domain"
	bybit "github.com/bybit-exchange/bybit.go.api"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const category = "linear"

// DefaultConfig targets the public mainnet endpoint.
var DefaultConfig = clients.Config{
	BaseURL:   "https://api.bybit.com",
	RateLimit: 10,
	Burst:     5,
}

var intervals = map[domain.Timeframe]string{
	domain.Timeframe3m:  "3",
	domain.Timeframe5m:  "5",
	domain.Timeframe15m: "15",
	domain.Timeframe1H:  "60",
	domain.Timeframe4H:  "240",
	domain.Timeframe1D:  "D",
}

// Client wraps the official Bybit connector.
type Client struct {
	api     *bybit.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient creates a Bybit client.
func NewClient(cfg clients.Config, log zerolog.Logger) *Client {
	cfg = cfg.WithDefaults(DefaultConfig)

	api := bybit.NewBybitHttpClient(cfg.APIKey, "", bybit.WithBaseURL(cfg.BaseURL))
	api.HTTPClient = cfg.HTTPClient()

	return &Client{
		api:     api,
		limiter: cfg.Limiter(),
		log:     log.With().Str("client", "bybit").Logger(),
	}
}

// Name implements candles.Source.
func (c *Client) Name() domain.Source {
	return domain.SourceBybit
}

type klineResult struct {
	Symbol string     `json:"symbol"`
	List   [][]string `json:"list"`
}

type tickerResult struct {
	List []struct {
		Symbol       string `json:"symbol"`
		LastPrice    string `json:"lastPrice"`
		Price24hPcnt string `json:"price24hPcnt"`
		Turnover24h  string `json:"turnover24h"`
	} `json:"list"`
}

// FetchCandles returns up to limit klines. Bybit lists them newest first.
func (c *Client) FetchCandles(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.RawCandle, error) {
	interval, ok := intervals[tf]
	if !ok {
		return nil, fmt.Errorf("bybit: unsupported timeframe %q", tf)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	c.log.Debug().Str("symbol", symbol).Str("interval", interval).Int("limit", limit).Msg("Fetching klines")

	params := map[string]interface{}{
		"category": category,
		"symbol":   symbol,
		"interval": interval,
		"limit":    limit,
	}
	resp, err := c.api.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err != nil {
		return nil, fmt.Errorf("bybit kline %s %s: %w", symbol, interval, err)
	}

	var result klineResult
	if err := decodeResult(resp, &result); err != nil {
		return nil, fmt.Errorf("bybit kline %s %s: %w", symbol, interval, err)
	}

	out := make([]domain.RawCandle, 0, len(result.List))
	for i, row := range result.List {
		if len(row) < 6 {
			return nil, fmt.Errorf("bybit kline row %d: expected 6+ fields, got %d", i, len(row))
		}
		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bybit kline row %d start time: %w", i, err)
		}
		out = append(out, domain.RawCandle{
			Timestamp: ts,
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
		})
	}
	return out, nil
}

// FetchQuotes returns tickers for the requested symbols from one linear tickers call.
func (c *Client) FetchQuotes(ctx context.Context, symbols []string) (map[string]domain.PriceQuote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.api.NewUtaBybitServiceWithParams(map[string]interface{}{
		"category": category,
	}).GetMarketTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("bybit tickers: %w", err)
	}

	var result tickerResult
	if err := decodeResult(resp, &result); err != nil {
		return nil, fmt.Errorf("bybit tickers: %w", err)
	}

	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}

	now := time.Now().UTC()
	out := make(map[string]domain.PriceQuote, len(symbols))
	for _, t := range result.List {
		if !wanted[t.Symbol] {
			continue
		}
		price, err := strconv.ParseFloat(t.LastPrice, 64)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", t.Symbol).Msg("Malformed ticker price")
			continue
		}
		change, _ := strconv.ParseFloat(t.Price24hPcnt, 64)
		turnover, _ := strconv.ParseFloat(t.Turnover24h, 64)

		out[t.Symbol] = domain.PriceQuote{
			Symbol:    t.Symbol,
			Source:    domain.SourceBybit,
			Price:     price,
			Volume24h: turnover,
			Change24h: change * 100,
			QuotedAt:  now,
		}
	}
	return out, nil
}

// decodeResult checks the envelope and re-decodes the untyped result into v.
func decodeResult(resp *bybit.ServerResponse, v interface{}) error {
	if resp == nil {
		return fmt.Errorf("empty response")
	}
	if resp.RetCode != 0 {
		return fmt.Errorf("retCode %d: %s", resp.RetCode, resp.RetMsg)
	}

	payload, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
