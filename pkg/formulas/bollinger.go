package formulas

import (
	"github.com/markcheno/go-talib"
)

// BollingerBands represents Bollinger Bands values
type BollingerBands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// CalculateBollingerBands calculates Bollinger Bands
//
//	Middle Band = N-period SMA
//	Upper Band = Middle + (k × std deviation)
//	Lower Band = Middle - (k × std deviation)
//
// Returns nil if there is insufficient data.
func CalculateBollingerBands(closes []float64, length int, stdDevMultiplier float64) *BollingerBands {
	if length <= 0 || len(closes) < length {
		return nil
	}

	// MAType 0 = SMA
	upper, middle, lower := talib.BBands(closes, length, stdDevMultiplier, stdDevMultiplier, 0)

	u, m, l := last(upper), last(middle), last(lower)
	if u == nil || m == nil || l == nil {
		return nil
	}
	return &BollingerBands{Upper: *u, Middle: *m, Lower: *l}
}

// Position returns where price sits within the bands, clamped to 0.0 (lower) .. 1.0 (upper).
// Collapsed bands report 0.5.
func (b BollingerBands) Position(price float64) float64 {
	width := b.Upper - b.Lower
	if width == 0 {
		return 0.5
	}

	pos := (price - b.Lower) / width
	if pos < 0 {
		return 0
	}
	if pos > 1 {
		return 1
	}
	return pos
}
