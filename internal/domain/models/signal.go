package models

import "time"

// SignalType classifies a market signal.
type SignalType string

const (
	SignalPriceSpike      SignalType = "price_spike"
	SignalVolatilityBurst SignalType = "volatility_burst"
)

// Direction of the move behind a signal.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// MarketSignal is a discrete, time-bounded market event.
type MarketSignal struct {
	ID        string        `json:"id"`
	Type      SignalType    `json:"type"`
	Symbol    string        `json:"symbol"`
	Timestamp time.Time     `json:"timestamp"`
	Magnitude float64       `json:"magnitude"`
	Direction Direction     `json:"direction"`
	Priority  int           `json:"priority"`
	Duration  time.Duration `json:"duration"`
}

// ExpiresAt is the end of the signal's active window.
func (s MarketSignal) ExpiresAt() time.Time { return s.Timestamp.Add(s.Duration) }

// ActiveAt reports whether the signal is still active at t.
func (s MarketSignal) ActiveAt(t time.Time) bool { return t.Before(s.ExpiresAt()) }
