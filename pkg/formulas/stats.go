package formulas

import (
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// ZScore returns how many standard deviations the last value sits from the mean of
// the lookback values preceding it. Nil when there is not enough history or no dispersion.
func ZScore(values []float64, lookback int) *float64 {
	if lookback < 2 || len(values) < lookback+1 {
		return nil
	}

	window := values[len(values)-1-lookback : len(values)-1]
	mean, std := stat.MeanStdDev(window, nil)
	if std == 0 || isNaN(std) {
		return nil
	}

	z := (values[len(values)-1] - mean) / std
	return &z
}

// CalculateReturns converts prices to percentage returns
// Returns[i] = (Price[i] - Price[i-1]) / Price[i-1]
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return returns
}
