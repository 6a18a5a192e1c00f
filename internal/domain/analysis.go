package domain

import "time"

// IndicatorValue is the latest value of one named indicator on one series.
type IndicatorValue struct {
	Symbol     string    `json:"symbol"`
	Timeframe  Timeframe `json:"timeframe"`
	Name       string    `json:"name"`
	Value      float64   `json:"value"`
	CandleTime int64     `json:"candle_time"`
	ComputedAt time.Time `json:"computed_at"`
}

// Direction is the bias a pattern or signal implies.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// Pattern is a candle formation detected on the bar opening at CandleTime.
type Pattern struct {
	Symbol     string    `json:"symbol"`
	Timeframe  Timeframe `json:"timeframe"`
	Name       string    `json:"pattern"`
	Direction  Direction `json:"direction"`
	Strength   float64   `json:"strength"`
	CandleTime int64     `json:"candle_time"`
	DetectedAt time.Time `json:"detected_at"`
}

// Action is a trade recommendation.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal is a rule-based recommendation derived from indicators and patterns.
type Signal struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Timeframe  Timeframe `json:"timeframe"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"`
	Price      float64   `json:"price"`
	Reasons    []string  `json:"reasons"`
	CreatedAt  time.Time `json:"created_at"`
}
