package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateEMA calculates the Exponential Moving Average
//
//	EMA_today = (Price_today × multiplier) + (EMA_yesterday × (1 - multiplier))
//	where multiplier = 2 / (period + 1)
//
// Returns nil if there are fewer closes than the period.
func CalculateEMA(closes []float64, length int) *float64 {
	if length <= 0 || len(closes) < length {
		return nil
	}
	return last(talib.Ema(closes, length))
}

// CalculateSMA calculates the Simple Moving Average of the last length closes
func CalculateSMA(closes []float64, length int) *float64 {
	if length <= 0 || len(closes) < length {
		return nil
	}
	return last(talib.Sma(closes, length))
}

// CalculateDistanceFromEMA calculates the percentage distance from EMA
// Returns positive if price is above EMA, negative if below
//
// Formula: (Current Price - EMA) / EMA
func CalculateDistanceFromEMA(closes []float64, length int) *float64 {
	ema := CalculateEMA(closes, length)
	if ema == nil || *ema == 0 {
		return nil
	}

	distance := (closes[len(closes)-1] - *ema) / *ema
	return &distance
}
