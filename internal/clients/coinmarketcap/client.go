// Package coinmarketcap fetches spot quotes from the CoinMarketCap Pro API.
// Like LiveCoinWatch it has no kline endpoint on the basic plan, so candle
// requests are answered with one bar built from the current quote.
package coinmarketcap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/cryptodash/internal/clients"
	"github.com/aristath/cryptodash/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultConfig targets the Pro API. The basic plan allows 30 calls per minute.
var DefaultConfig = clients.Config{
	BaseURL:   "https://pro-api.coinmarketcap.com",
	RateLimit: 0.5,
	Burst:     1,
}

// listingLimit is how many listings by market cap are requested per call.
const listingLimit = 500

// Client for pro-api.coinmarketcap.com
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
	log     zerolog.Logger
}

// NewClient creates a CoinMarketCap client. The API key is required by every endpoint.
func NewClient(cfg clients.Config, log zerolog.Logger) *Client {
	cfg = cfg.WithDefaults(DefaultConfig)
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  cfg.HTTPClient(),
		limiter: cfg.Limiter(),
		now:     time.Now,
		log:     log.With().Str("client", "coinmarketcap").Logger(),
	}
}

// Name implements candles.Source.
func (c *Client) Name() domain.Source {
	return domain.SourceCoinMarketCap
}

type usdQuote struct {
	Price            float64   `json:"price"`
	Volume24h        float64   `json:"volume_24h"`
	PercentChange24h float64   `json:"percent_change_24h"`
	MarketCap        float64   `json:"market_cap"`
	LastUpdated      time.Time `json:"last_updated"`
}

type listing struct {
	Symbol  string `json:"symbol"`
	CMCRank int    `json:"cmc_rank"`
	Quote   struct {
		USD usdQuote `json:"USD"`
	} `json:"quote"`
}

type listingsResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data []listing `json:"data"`
}

// FetchQuotes resolves symbols against the latest listings.
// When several listings share a ticker the best ranked one wins.
func (c *Client) FetchQuotes(ctx context.Context, symbols []string) (map[string]domain.PriceQuote, error) {
	listings, err := c.latestListings(ctx)
	if err != nil {
		return nil, err
	}

	bySymbol := make(map[string]listing, len(listings))
	for _, l := range listings {
		code := strings.ToUpper(l.Symbol)
		if prev, dup := bySymbol[code]; dup && prev.CMCRank <= l.CMCRank {
			continue
		}
		bySymbol[code] = l
	}

	out := make(map[string]domain.PriceQuote, len(symbols))
	for _, symbol := range symbols {
		base, mult := domain.BaseAsset(symbol)
		l, ok := bySymbol[base]
		if !ok || l.Quote.USD.Price <= 0 {
			continue
		}

		quotedAt := l.Quote.USD.LastUpdated.UTC()
		if quotedAt.IsZero() {
			quotedAt = c.now().UTC()
		}
		out[symbol] = domain.PriceQuote{
			Symbol:    symbol,
			Source:    domain.SourceCoinMarketCap,
			Price:     l.Quote.USD.Price * mult,
			Volume24h: l.Quote.USD.Volume24h,
			Change24h: l.Quote.USD.PercentChange24h,
			MarketCap: l.Quote.USD.MarketCap,
			QuotedAt:  quotedAt,
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
		return nil, fmt.Errorf("coinmarketcap: %s not listed", symbol)
	}

	price := strconv.FormatFloat(q.Price, 'f', -1, 64)
	return []domain.RawCandle{{
		Timestamp: clients.BucketStart(c.now(), tf),
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
	}}, nil
}

func (c *Client) latestListings(ctx context.Context) ([]listing, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("coinmarketcap: API key not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("start", "1")
	params.Set("limit", strconv.Itoa(listingLimit))
	params.Set("convert", "USD")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/cryptocurrency/listings/latest?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)

	c.log.Debug().Int("limit", listingLimit).Msg("Fetching listings")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coinmarketcap request failed: %w", err)
	}
	defer resp.Body.Close()

	var result listingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("coinmarketcap returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to parse coinmarketcap response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || result.Status.ErrorCode != 0 {
		return nil, fmt.Errorf("coinmarketcap error %d (status %d): %s",
			result.Status.ErrorCode, resp.StatusCode, result.Status.ErrorMessage)
	}
	return result.Data, nil
}
