package tasks

import (
	"fmt"
	"math"

	"github.com/aristath/cryptodash/internal/domain"
	"github.com/aristath/cryptodash/pkg/formulas"
)

const (
	rsiOversold   = 30.0
	rsiOverbought = 70.0
	buyThreshold  = 1.0
	sellThreshold = -1.0
	maxScore      = 3.0
)

// Evaluation is the outcome of scoring one series.
type Evaluation struct {
	Action     domain.Action
	Confidence float64
	Score      float64
	Reasons    []string
}

// Evaluate scores indicators (by name) and the patterns on the latest bar.
// Positive scores are bullish. A score of at least 1 is a BUY, at most -1 a SELL.
func Evaluate(price float64, indicators map[string]float64, patterns []domain.Pattern) Evaluation {
	var (
		score   float64
		reasons []string
	)

	if rsi, ok := indicators[IndicatorRSI14]; ok {
		switch {
		case rsi <= rsiOversold:
			score++
			reasons = append(reasons, fmt.Sprintf("RSI oversold (%.1f)", rsi))
		case rsi >= rsiOverbought:
			score--
			reasons = append(reasons, fmt.Sprintf("RSI overbought (%.1f)", rsi))
		}
	}

	if hist, ok := indicators[IndicatorMACDHist]; ok {
		switch {
		case hist > 0:
			score += 0.5
			reasons = append(reasons, "MACD histogram positive")
		case hist < 0:
			score -= 0.5
			reasons = append(reasons, "MACD histogram negative")
		}
	}

	fast, okFast := indicators[IndicatorEMA20]
	slow, okSlow := indicators[IndicatorEMA50]
	if okFast && okSlow {
		switch {
		case fast > slow && price > fast:
			score += 0.5
			reasons = append(reasons, "Uptrend (price > EMA20 > EMA50)")
		case fast < slow && price < fast:
			score -= 0.5
			reasons = append(reasons, "Downtrend (price < EMA20 < EMA50)")
		}
	}

	upper, okUpper := indicators[IndicatorBBUpper]
	middle, okMiddle := indicators[IndicatorBBMiddle]
	lower, okLower := indicators[IndicatorBBLower]
	if okUpper && okMiddle && okLower {
		pos := formulas.BollingerBands{Upper: upper, Middle: middle, Lower: lower}.Position(price)
		switch {
		case pos <= 0.05:
			score += 0.5
			reasons = append(reasons, "Price at lower Bollinger band")
		case pos >= 0.95:
			score -= 0.5
			reasons = append(reasons, "Price at upper Bollinger band")
		}
	}

	for _, p := range patterns {
		switch p.Direction {
		case domain.Bullish:
			score += p.Strength * 0.5
			reasons = append(reasons, fmt.Sprintf("Pattern %s (bullish)", p.Name))
		case domain.Bearish:
			score -= p.Strength * 0.5
			reasons = append(reasons, fmt.Sprintf("Pattern %s (bearish)", p.Name))
		}
	}

	action := domain.ActionHold
	switch {
	case score >= buyThreshold:
		action = domain.ActionBuy
	case score <= sellThreshold:
		action = domain.ActionSell
	}
	if reasons == nil {
		reasons = []string{}
	}

	return Evaluation{
		Action:     action,
		Confidence: math.Min(1, math.Abs(score)/maxScore),
		Score:      score,
		Reasons:    reasons,
	}
}
