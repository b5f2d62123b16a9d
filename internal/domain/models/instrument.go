package models

import (
	"fmt"
	"strings"
	"time"
)

// Category groups instruments by asset class.
type Category string

const (
	CategoryForex     Category = "forex"
	CategoryCrypto    Category = "crypto"
	CategoryCommodity Category = "commodity"
	CategoryIndex     Category = "index"
)

// FetchMode tells the aggregator how an instrument receives updates.
type FetchMode string

const (
	FetchPush FetchMode = "push"
	FetchPoll FetchMode = "poll"
)

// Instrument is the static definition of a tradeable or displayable symbol.
// Instruments are immutable once the catalog is loaded.
type Instrument struct {
	Symbol          string        `yaml:"symbol" json:"symbol" validate:"required"`
	Category        Category      `yaml:"category" json:"category" validate:"required,oneof=forex crypto commodity index"`
	BaseCurrency    string        `yaml:"base_currency" json:"base_currency" validate:"required,len=3"`
	QuoteCurrency   string        `yaml:"quote_currency" json:"quote_currency" validate:"required,len=3"`
	Source          string        `yaml:"source" json:"source" validate:"required"`
	ProviderSymbol  string        `yaml:"provider_symbol" json:"provider_symbol,omitempty"`
	Priority        int           `yaml:"priority" json:"priority" validate:"gte=0,lte=10"`
	UpdateInterval  time.Duration `yaml:"update_interval" json:"update_interval" default:"60s"`
	Tradeable       bool          `yaml:"tradeable" json:"tradeable"`
	ShowInDashboard bool          `yaml:"show_in_dashboard" json:"show_in_dashboard"`
	Unit            UnitMetadata  `yaml:"unit" json:"unit"`
}

// UnitMetadata describes how a raw provider price maps to the displayed unit.
type UnitMetadata struct {
	Name             string  `yaml:"name" json:"name,omitempty"`
	ConversionFactor float64 `yaml:"conversion_factor" json:"conversion_factor,omitempty" validate:"gte=0"`
	RoundingDecimals *int    `yaml:"rounding_decimals" json:"rounding_decimals,omitempty" validate:"omitempty,gte=0,lte=10"`
}

// Factor returns the configured conversion factor, 1 when unset.
func (u UnitMetadata) Factor() float64 {
	if u.ConversionFactor == 0 {
		return 1
	}
	return u.ConversionFactor
}

// UpstreamSymbol is the symbol the provider knows this instrument by.
func (i Instrument) UpstreamSymbol() string {
	if i.ProviderSymbol != "" {
		return i.ProviderSymbol
	}
	return i.Symbol
}

// Normalize upper-cases currency codes.
func (i Instrument) Normalize() Instrument {
	i.BaseCurrency = strings.ToUpper(strings.TrimSpace(i.BaseCurrency))
	i.QuoteCurrency = strings.ToUpper(strings.TrimSpace(i.QuoteCurrency))
	i.Symbol = strings.TrimSpace(i.Symbol)
	return i
}

// CurrencyPair identifies a BASE/QUOTE rate.
type CurrencyPair struct {
	Base  string
	Quote string
}

// NewPair builds a pair from two currency codes.
func NewPair(base, quote string) CurrencyPair {
	return CurrencyPair{Base: strings.ToUpper(base), Quote: strings.ToUpper(quote)}
}

// ParsePair parses "USD/CAD".
func ParsePair(s string) (CurrencyPair, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || len(parts[0]) != 3 || len(parts[1]) != 3 {
		return CurrencyPair{}, fmt.Errorf("invalid currency pair %q", s)
	}
	return NewPair(parts[0], parts[1]), nil
}

func (p CurrencyPair) String() string { return p.Base + "/" + p.Quote }

// Inverse returns QUOTE/BASE.
func (p CurrencyPair) Inverse() CurrencyPair { return CurrencyPair{Base: p.Quote, Quote: p.Base} }

// RateEntry is a cached rate with its freshness window.
type RateEntry struct {
	Pair      string        `json:"pair"`
	Rate      float64       `json:"rate"`
	Timestamp time.Time     `json:"timestamp"`
	TTL       time.Duration `json:"ttl"`
	Source    string        `json:"source,omitempty"`
}

// FreshAt reports whether the entry is usable at now.
func (e RateEntry) FreshAt(now time.Time) bool {
	return now.Sub(e.Timestamp) < e.TTL
}
