// Package livecoinwatch fetches spot quotes from the LiveCoinWatch API.
// LiveCoinWatch has no kline endpoint, so candle requests are answered with one
// bar built from the current quote.
package livecoinwatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/cryptodash/internal/clients"
	"github.com/aristath/cryptodash/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultConfig targets the public API. The free plan allows 10k calls per day.
var DefaultConfig = clients.Config{
	BaseURL:   "https://api.livecoinwatch.com",
	RateLimit: 1,
	Burst:     2,
}

// listLimit is how many coins by rank are requested per call.
const listLimit = 300

// Client for api.livecoinwatch.com
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
	log     zerolog.Logger
}

// NewClient creates a LiveCoinWatch client. The API key is required by every endpoint.
func NewClient(cfg clients.Config, log zerolog.Logger) *Client {
	cfg = cfg.WithDefaults(DefaultConfig)
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  cfg.HTTPClient(),
		limiter: cfg.Limiter(),
		now:     time.Now,
		log:     log.With().Str("client", "livecoinwatch").Logger(),
	}
}

// Name implements candles.Source.
func (c *Client) Name() domain.Source {
	return domain.SourceLiveCoinWatch
}

type listRequest struct {
	Currency string `json:"currency"`
	Sort     string `json:"sort"`
	Order    string `json:"order"`
	Offset   int    `json:"offset"`
	Limit    int    `json:"limit"`
	Meta     bool   `json:"meta"`
}

type coin struct {
	Code   string  `json:"code"`
	Rate   float64 `json:"rate"`
	Volume float64 `json:"volume"`
	Cap    float64 `json:"cap"`
	Delta  struct {
		Day float64 `json:"day"`
	} `json:"delta"`
}

// FetchQuotes resolves symbols against the ranked coin list.
// Prices of multiplier contracts (1000PEPEUSDT) are scaled to the contract size.
func (c *Client) FetchQuotes(ctx context.Context, symbols []string) (map[string]domain.PriceQuote, error) {
	coins, err := c.listCoins(ctx)
	if err != nil {
		return nil, err
	}

	byCode := make(map[string]coin, len(coins))
	for _, cn := range coins {
		code := strings.ToUpper(strings.TrimLeft(cn.Code, "_"))
		if _, dup := byCode[code]; !dup {
			byCode[code] = cn
		}
	}

	now := c.now().UTC()
	out := make(map[string]domain.PriceQuote, len(symbols))
	for _, symbol := range symbols {
		base, mult := domain.BaseAsset(symbol)
		cn, ok := byCode[base]
		if !ok || cn.Rate <= 0 {
			continue
		}

		change := 0.0
		if cn.Delta.Day > 0 {
			change = (cn.Delta.Day - 1) * 100
		}
		out[symbol] = domain.PriceQuote{
			Symbol:    symbol,
			Source:    domain.SourceLiveCoinWatch,
			Price:     cn.Rate * mult,
			Volume24h: cn.Volume,
			Change24h: change,
			MarketCap: cn.Cap,
			QuotedAt:  now,
		}
	}
	return out, nil
}

// FetchCandles returns a single bar for the current tf bucket with open=high=low=close=price.
func (c *Client) FetchCandles(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.RawCandle, error) {
	quotes, err := c.FetchQuotes(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	q, ok := quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("livecoinwatch: %s not listed", symbol)
	}

	price := strconv.FormatFloat(q.Price, 'f', -1, 64)
	return []domain.RawCandle{{
		Timestamp: clients.BucketStart(q.QuotedAt, tf),
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
	}}, nil
}

func (c *Client) listCoins(ctx context.Context) ([]coin, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("livecoinwatch: API key not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(listRequest{
		Currency: "USD",
		Sort:     "rank",
		Order:    "ascending",
		Offset:   0,
		Limit:    listLimit,
		Meta:     false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/coins/list", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	c.log.Debug().Int("limit", listLimit).Msg("Fetching coin list")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("livecoinwatch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("livecoinwatch returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var coins []coin
	if err := json.NewDecoder(resp.Body).Decode(&coins); err != nil {
		return nil, fmt.Errorf("failed to parse livecoinwatch response: %w", err)
	}
	return coins, nil
}
