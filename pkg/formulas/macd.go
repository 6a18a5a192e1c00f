package formulas

import (
	"github.com/markcheno/go-talib"
)

// MACD holds the latest MACD line, signal line and histogram
type MACD struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// CalculateMACD calculates Moving Average Convergence Divergence (typically 12, 26, 9)
// Returns nil until slow+signal-1 closes are available.
func CalculateMACD(closes []float64, fast, slow, signal int) *MACD {
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow+signal-1 {
		return nil
	}

	macd, sig, hist := talib.Macd(closes, fast, slow, signal)
	m, s, h := last(macd), last(sig), last(hist)
	if m == nil || s == nil || h == nil {
		return nil
	}
	return &MACD{MACD: *m, Signal: *s, Histogram: *h}
}
