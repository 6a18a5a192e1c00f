package testing

import (
	"strconv"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
)

// FixedNow is the reference time used by fixtures.
var FixedNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// TrendCandles returns n consecutive tf bars ending before FixedNow, opening at start
// and rising by step per bar. Volume cycles over three values.
func TrendCandles(n int, tf domain.Timeframe, start, step float64) []domain.Candle {
	width := tf.Duration().Milliseconds()
	base := FixedNow.UnixMilli() - int64(n)*width
	out := make([]domain.Candle, n)
	for i := range out {
		open := start + float64(i)*step
		out[i] = domain.Candle{
			Timestamp: base + int64(i)*width,
			Open:      open,
			High:      open + step*1.2,
			Low:       open - step*0.2,
			Close:     open + step,
			Volume:    1000 + float64(i%3),
		}
	}
	return out
}

// RawCandles converts bars to the string form upstream sources return.
func RawCandles(bars []domain.Candle) []domain.RawCandle {
	format := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	out := make([]domain.RawCandle, len(bars))
	for i, c := range bars {
		out[i] = domain.RawCandle{
			Timestamp: c.Timestamp,
			Open:      format(c.Open),
			High:      format(c.High),
			Low:       format(c.Low),
			Close:     format(c.Close),
			Volume:    format(c.Volume),
		}
	}
	return out
}

// NewSnapshotFixture returns a one-bar snapshot of symbol/tf updated at FixedNow.
func NewSnapshotFixture(symbol string, tf domain.Timeframe, source domain.Source) *domain.MarketSnapshot {
	return domain.NewMarketSnapshot(symbol, tf, []domain.Candle{
		{Timestamp: FixedNow.Add(-time.Hour).UnixMilli(), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
	}, FixedNow, source)
}
