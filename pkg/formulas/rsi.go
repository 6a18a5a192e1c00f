package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateRSI calculates the Relative Strength Index
//
// RSI Formula:
//
//	RSI = 100 - (100 / (1 + RS))
//	where RS = Average Gain / Average Loss over N periods
//
// Returns the current RSI value (0-100) or nil if there is insufficient data.
func CalculateRSI(closes []float64, length int) *float64 {
	if length <= 0 || len(closes) < length+1 {
		return nil
	}

	rsi := talib.Rsi(closes, length)
	return last(rsi)
}

// last returns the final element of a talib output series, or nil when it is NaN.
func last(series []float64) *float64 {
	if len(series) == 0 || isNaN(series[len(series)-1]) {
		return nil
	}
	result := series[len(series)-1]
	return &result
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
