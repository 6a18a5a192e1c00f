package candles

import (
	"fmt"
	"sort"

	"github.com/aristath/cryptodash/internal/domain"
	"github.com/shopspring/decimal"
)

// secondsCutoff separates second timestamps from millisecond ones.
// 1e11 seconds is the year 5138; 1e11 milliseconds is March 1973.
const secondsCutoff = 100_000_000_000

// Normalize converts upstream bars into the canonical candle sequence:
// decimal strings coerced to float64, timestamps in milliseconds, chronological order,
// one bar per timestamp (the last occurrence wins).
func Normalize(raw []domain.RawCandle) ([]domain.Candle, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyResult
	}

	byTime := make(map[int64]domain.Candle, len(raw))
	for i, r := range raw {
		ts := r.Timestamp
		if ts <= 0 {
			return nil, fmt.Errorf("candle[%d]: invalid timestamp %d", i, ts)
		}
		if ts < secondsCutoff {
			ts *= 1000
		}

		var vals [5]float64
		for j, field := range []struct {
			name  string
			value string
		}{
			{"open", r.Open},
			{"high", r.High},
			{"low", r.Low},
			{"close", r.Close},
			{"volume", r.Volume},
		} {
			if field.value == "" && field.name == "volume" {
				continue
			}
			v, err := coerce(field.value)
			if err != nil {
				return nil, fmt.Errorf("candle[%d] %s: %w", i, field.name, err)
			}
			vals[j] = v
		}

		byTime[ts] = domain.Candle{
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		}
	}

	out := make([]domain.Candle, 0, len(byTime))
	for _, c := range byTime {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out, nil
}

// coerce parses a decimal string. Quote-only sources omit volume; every other field is required.
func coerce(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}
