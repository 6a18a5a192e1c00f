package testing

import (
	"context"
	"sync"

	"github.com/aristath/cryptodash/internal/domain"
)

// MockSource is an in-memory upstream serving both candles and quotes.
type MockSource struct {
	mu      sync.RWMutex
	name    domain.Source
	bars    []domain.Candle
	prices  map[string]float64
	err     error
	candles int
	quotes  [][]string
}

// NewMockSource creates a mock source with no data.
func NewMockSource(name domain.Source) *MockSource {
	return &MockSource{name: name, prices: make(map[string]float64)}
}

// SetCandles sets the bars returned for every symbol and timeframe.
func (m *MockSource) SetCandles(bars []domain.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars = bars
}

// SetPrice sets the quote returned for symbol.
func (m *MockSource) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[domain.NormalizeSymbol(symbol)] = price
}

// SetError sets the error to return
func (m *MockSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Name returns the source name.
func (m *MockSource) Name() domain.Source {
	return m.name
}

// FetchCandles returns the configured bars.
func (m *MockSource) FetchCandles(_ context.Context, _ string, _ domain.Timeframe, _ int) ([]domain.RawCandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles++
	if m.err != nil {
		return nil, m.err
	}
	return RawCandles(m.bars), nil
}

// FetchQuotes returns quotes for the requested symbols that have a price.
func (m *MockSource) FetchQuotes(_ context.Context, symbols []string) (map[string]domain.PriceQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes = append(m.quotes, append([]string(nil), symbols...))
	if m.err != nil {
		return nil, m.err
	}

	out := make(map[string]domain.PriceQuote)
	for _, s := range symbols {
		if p, ok := m.prices[s]; ok {
			out[s] = domain.PriceQuote{Symbol: s, Source: m.name, Price: p, QuotedAt: FixedNow}
		}
	}
	return out, nil
}

// CandleCalls returns the number of FetchCandles calls.
func (m *MockSource) CandleCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.candles
}

// QuoteRequests returns the symbol lists passed to FetchQuotes.
func (m *MockSource) QuoteRequests() [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.quotes
}
