// Package clients holds the settings shared by the upstream market-data clients.
package clients

import (
	"net/http"
	"strings"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single upstream HTTP request.
const DefaultTimeout = 10 * time.Second

// Config configures one upstream client.
type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64 // requests per second; 0 disables limiting
	Burst     int
}

// WithDefaults fills unset fields from def.
func (c Config) WithDefaults(def Config) Config {
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = def.RateLimit
	}
	if c.Burst <= 0 {
		c.Burst = def.Burst
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

// HTTPClient returns an http.Client honoring the configured timeout.
func (c Config) HTTPClient() *http.Client {
	return &http.Client{Timeout: c.Timeout}
}

// Limiter returns the request limiter for the client. A non-positive rate yields an unlimited limiter.
func (c Config) Limiter() *rate.Limiter {
	if c.RateLimit <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(c.RateLimit), c.Burst)
}

// BucketStart returns the open time of the tf bar containing t, in Unix milliseconds.
// Quote-only sources use it to turn a spot price into a single bar.
func BucketStart(t time.Time, tf domain.Timeframe) int64 {
	ms := t.UnixMilli()
	width := tf.Duration().Milliseconds()
	if width <= 0 {
		return ms
	}
	return ms - ms%width
}
