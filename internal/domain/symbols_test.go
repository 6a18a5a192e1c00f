package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseAsset(t *testing.T) {
	tests := []struct {
		symbol     string
		wantAsset  string
		wantMultip float64
	}{
		{"BTCUSDT", "BTC", 1},
		{"ethusdt", "ETH", 1},
		{"1000PEPEUSDT", "PEPE", 1000},
		{"SUIUSDC", "SUI", 1},
		{"USDT", "USDT", 1},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			asset, mult := BaseAsset(tt.symbol)
			assert.Equal(t, tt.wantAsset, asset)
			assert.Equal(t, tt.wantMultip, mult)
		})
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "PEPE", DisplayName("1000PEPEUSDT"))
	assert.Equal(t, "BTCUSDT", DisplayName("btcusdt"))
}

func TestCanonicalSymbolsAreNormalized(t *testing.T) {
	for _, s := range CanonicalSymbols {
		assert.Equal(t, NormalizeSymbol(s), s)
	}
}
