package tasks

import (
	"math"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
	"github.com/aristath/cryptodash/pkg/formulas"
)

// Pattern names as stored.
const (
	PatternBullishEngulfing = "bullish_engulfing"
	PatternBearishEngulfing = "bearish_engulfing"
	PatternDoji             = "doji"
	PatternHammer           = "hammer"
	PatternShootingStar     = "shooting_star"
	PatternVolumeSpike      = "volume_spike"
)

const (
	dojiBodyRatio     = 0.1
	wickToBodyRatio   = 2.0
	volumeLookback    = 20
	volumeSpikeZScore = 2.5
)

// DetectPatterns inspects the last bar of candles (ascending) and reports the
// formations it completes.
func DetectPatterns(symbol string, tf domain.Timeframe, candles []domain.Candle, now time.Time) []domain.Pattern {
	if len(candles) == 0 {
		return nil
	}

	last := candles[len(candles)-1]
	var out []domain.Pattern
	add := func(name string, dir domain.Direction, strength float64) {
		out = append(out, domain.Pattern{
			Symbol:     symbol,
			Timeframe:  tf,
			Name:       name,
			Direction:  dir,
			Strength:   clamp01(strength),
			CandleTime: last.Timestamp,
			DetectedAt: now,
		})
	}

	body := math.Abs(last.Close - last.Open)
	rng := last.High - last.Low
	upper := last.High - math.Max(last.Open, last.Close)
	lower := math.Min(last.Open, last.Close) - last.Low

	if len(candles) >= 2 {
		prev := candles[len(candles)-2]
		prevBody := math.Abs(prev.Close - prev.Open)
		switch {
		case prev.Close < prev.Open && last.Close > last.Open &&
			last.Open <= prev.Close && last.Close >= prev.Open && body > prevBody:
			add(PatternBullishEngulfing, domain.Bullish, engulfStrength(body, prevBody))
		case prev.Close > prev.Open && last.Close < last.Open &&
			last.Open >= prev.Close && last.Close <= prev.Open && body > prevBody:
			add(PatternBearishEngulfing, domain.Bearish, engulfStrength(body, prevBody))
		}
	}

	if rng > 0 {
		switch {
		case body <= rng*dojiBodyRatio:
			add(PatternDoji, domain.Neutral, 1-body/(rng*dojiBodyRatio)*0.5)
		case lower >= body*wickToBodyRatio && upper <= body:
			add(PatternHammer, domain.Bullish, lower/rng)
		case upper >= body*wickToBodyRatio && lower <= body:
			add(PatternShootingStar, domain.Bearish, upper/rng)
		}
	}

	volumes := make([]float64, len(candles))
	for i, c := range candles {
		volumes[i] = c.Volume
	}
	if z := formulas.ZScore(volumes, volumeLookback); z != nil && *z >= volumeSpikeZScore {
		dir := domain.Neutral
		if last.Close > last.Open {
			dir = domain.Bullish
		} else if last.Close < last.Open {
			dir = domain.Bearish
		}
		add(PatternVolumeSpike, dir, *z/(2*volumeSpikeZScore))
	}

	return out
}

func engulfStrength(body, prevBody float64) float64 {
	if body == 0 {
		return 0
	}
	return 1 - prevBody/body*0.5
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
