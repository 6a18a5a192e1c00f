// Package syncstatus records the outcome of every scheduled fetch per
// (data type, symbol, timeframe, source) with retry bookkeeping.
package syncstatus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
)

// Status is the lifecycle state of one sync unit.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSyncing, StatusSuccess, StatusError:
		return true
	}
	return false
}

// ParseStatus validates a status name. The empty string is returned as-is.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if st == "" || st.Valid() {
		return st, nil
	}
	return "", fmt.Errorf("unknown sync status %q", s)
}

// Data types written by the scheduled tasks.
const (
	DataTypePrices     = "prices"
	DataTypeCandles    = "candles"
	DataTypeIndicators = "indicators"
	DataTypePatterns   = "patterns"
	DataTypeSignals    = "signals"
)

// ErrNotFound is returned by Store.Get for unknown keys.
var ErrNotFound = errors.New("sync status not found")

// Key addresses one record. Timeframe is empty for data that has none (prices).
type Key struct {
	DataType  string
	Symbol    string
	Timeframe domain.Timeframe
	Source    string
}

// NewKey builds a key with the symbol normalized.
func NewKey(dataType, symbol string, tf domain.Timeframe, source string) Key {
	return Key{
		DataType:  dataType,
		Symbol:    domain.NormalizeSymbol(symbol),
		Timeframe: tf,
		Source:    source,
	}
}

// Record is the persisted state of one sync unit.
type Record struct {
	DataType     string            `json:"data_type"`
	Symbol       string            `json:"symbol"`
	Timeframe    domain.Timeframe  `json:"timeframe"`
	Source       string            `json:"source"`
	Status       Status            `json:"status"`
	LastSyncAt   time.Time         `json:"last_sync_at"`
	NextSyncAt   *time.Time        `json:"next_sync_at,omitempty"`
	RetryCount   int               `json:"retry_count"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Metadata     map[string]string `json:"metadata"`
}

// Key returns the record's key.
func (r Record) Key() Key {
	return Key{DataType: r.DataType, Symbol: r.Symbol, Timeframe: r.Timeframe, Source: r.Source}
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	DataType string
	Symbol   string
	Status   Status
}

// Store persists sync records.
type Store interface {
	Get(ctx context.Context, key Key) (*Record, error)
	Upsert(ctx context.Context, rec Record) error
	List(ctx context.Context, filter Filter) ([]Record, error)
}
