package models

import (
	"fmt"
	"math"
	"time"
)

// QuoteKind tags the payload carried by a RawQuote.
type QuoteKind string

const (
	QuoteKindPrice QuoteKind = "price"
	QuoteKindRate  QuoteKind = "rate"
)

// RawQuote is a provider payload after validation at the adapter boundary.
// Price is expressed in Currency (the instrument's quote currency).
type RawQuote struct {
	Kind      QuoteKind
	Source    string
	Symbol    string // upstream symbol
	Price     float64
	Currency  string
	Timestamp time.Time
	Extras    QuoteExtras
}

// QuoteExtras holds optional 24h statistics in the native currency.
type QuoteExtras struct {
	Change24h        *float64
	ChangePercent24h *float64
	Volume24h        *float64
	High24h          *float64
	Low24h           *float64
}

// Validate rejects payloads that must not enter the core.
func (q RawQuote) Validate() error {
	if q.Source == "" {
		return fmt.Errorf("quote source empty")
	}
	if q.Symbol == "" {
		return fmt.Errorf("quote symbol empty")
	}
	if math.IsNaN(q.Price) || math.IsInf(q.Price, 0) || q.Price <= 0 {
		return fmt.Errorf("quote %s: invalid price %v", q.Symbol, q.Price)
	}
	if q.Timestamp.IsZero() {
		return fmt.Errorf("quote %s: timestamp missing", q.Symbol)
	}
	return nil
}

// MarketDataPoint is the per-update snapshot delivered to subscribers.
// PriceHome is NaN when the price could not be converted; Available mirrors that.
type MarketDataPoint struct {
	Symbol           string    `json:"symbol"`
	Category         Category  `json:"category"`
	RawPrice         float64   `json:"raw_price"`
	RawCurrency      string    `json:"raw_currency"`
	PriceHome        float64   `json:"-"`
	HomeCurrency     string    `json:"home_currency"`
	Available        bool      `json:"available"`
	Timestamp        time.Time `json:"timestamp"`
	Source           string    `json:"source"`
	Change24h        *float64  `json:"change_24h,omitempty"`
	ChangePercent24h *float64  `json:"change_percent_24h,omitempty"`
	Volume24h        *float64  `json:"volume_24h,omitempty"`
	High24h          *float64  `json:"high_24h,omitempty"`
	Low24h           *float64  `json:"low_24h,omitempty"`
}

// HomePrice returns the converted price and whether it is usable.
func (p MarketDataPoint) HomePrice() (float64, bool) {
	if !p.Available || math.IsNaN(p.PriceHome) {
		return 0, false
	}
	return p.PriceHome, true
}

// DisplayPrice is the JSON-facing price: nil when unavailable.
func (p MarketDataPoint) DisplayPrice() *float64 {
	v, ok := p.HomePrice()
	if !ok {
		return nil
	}
	return &v
}
