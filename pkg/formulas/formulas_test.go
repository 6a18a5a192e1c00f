package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestCalculateRSI(t *testing.T) {
	assert.Nil(t, CalculateRSI(linear(10, 1, 1), 14))

	rising := CalculateRSI(linear(50, 100, 1), 14)
	require.NotNil(t, rising)
	assert.InDelta(t, 100, *rising, 1e-6)

	falling := CalculateRSI(linear(50, 100, -1), 14)
	require.NotNil(t, falling)
	assert.InDelta(t, 0, *falling, 1e-6)
}

func TestCalculateSMAAndEMA(t *testing.T) {
	closes := linear(30, 1, 1)

	sma := CalculateSMA(closes, 10)
	require.NotNil(t, sma)
	assert.InDelta(t, 25.5, *sma, 1e-9)

	ema := CalculateEMA(closes, 10)
	require.NotNil(t, ema)
	// SMA-seeded EMA on a straight line lags by (N-1)/2, same as the SMA
	assert.InDelta(t, 25.5, *ema, 1e-6)

	assert.Nil(t, CalculateSMA(closes, 200))
	assert.Nil(t, CalculateEMA(closes, 0))

	flat := CalculateEMA(linear(30, 5, 0), 10)
	require.NotNil(t, flat)
	assert.InDelta(t, 5, *flat, 1e-9)
}

func TestCalculateDistanceFromEMA(t *testing.T) {
	d := CalculateDistanceFromEMA(linear(30, 5, 0), 10)
	require.NotNil(t, d)
	assert.InDelta(t, 0, *d, 1e-9)
	assert.Nil(t, CalculateDistanceFromEMA(nil, 10))
}

func TestCalculateMACD(t *testing.T) {
	assert.Nil(t, CalculateMACD(linear(20, 1, 1), 12, 26, 9))

	m := CalculateMACD(linear(100, 1, 1), 12, 26, 9)
	require.NotNil(t, m)
	// on a straight line the fast EMA leads the slow one by a constant
	assert.Greater(t, m.MACD, 0.0)
	assert.InDelta(t, m.MACD, m.Signal, 1e-6)
	assert.InDelta(t, 0, m.Histogram, 1e-6)
}

func TestCalculateBollingerBands(t *testing.T) {
	flat := CalculateBollingerBands(linear(25, 10, 0), 20, 2)
	require.NotNil(t, flat)
	assert.InDelta(t, 10, flat.Middle, 1e-9)
	assert.InDelta(t, flat.Upper, flat.Lower, 1e-9)
	assert.Equal(t, 0.5, flat.Position(10))

	bands := CalculateBollingerBands(linear(40, 1, 1), 20, 2)
	require.NotNil(t, bands)
	assert.Greater(t, bands.Upper, bands.Middle)
	assert.Less(t, bands.Lower, bands.Middle)
	assert.Equal(t, 1.0, bands.Position(1000))
	assert.Equal(t, 0.0, bands.Position(-1000))

	assert.Nil(t, CalculateBollingerBands(linear(5, 1, 1), 20, 2))
}

func TestZScore(t *testing.T) {
	values := []float64{10, 12, 8, 10, 12, 8, 10, 40}
	z := ZScore(values, 7)
	require.NotNil(t, z)

	mean := 10.0
	std := math.Sqrt((0 + 4 + 4 + 0 + 4 + 4 + 0) / 6.0)
	assert.InDelta(t, (40-mean)/std, *z, 1e-9)

	assert.Nil(t, ZScore([]float64{1, 1, 1, 5}, 3))
	assert.Nil(t, ZScore([]float64{1, 2}, 5))
}

func TestMeanStdDevReturns(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-9)
	assert.InDelta(t, 1.0, StdDev([]float64{1, 2, 3}), 1e-9)
	assert.Equal(t, 0.0, StdDev([]float64{1}))

	assert.Equal(t, []float64{}, CalculateReturns([]float64{1}))
	assert.InDeltaSlice(t, []float64{0.1, -0.5}, CalculateReturns([]float64{10, 11, 5.5}), 1e-9)
}
