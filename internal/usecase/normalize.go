package usecase

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"MarketBoard/internal/domain/models"
	"MarketBoard/internal/services/rates"
)

// fxObservation is a rate seen in a provider's own FX quotes.
type fxObservation struct {
	rate float64
	at   time.Time
}

// fxTable keeps the latest FX quote per source so a provider can be
// converted with its own rates when the shared cache has no usable leg.
type fxTable struct {
	mu      sync.RWMutex
	bySrc   map[string]map[models.CurrencyPair]fxObservation
	vehicle string
}

func newFXTable(vehicle string) *fxTable {
	return &fxTable{bySrc: make(map[string]map[models.CurrencyPair]fxObservation), vehicle: vehicle}
}

func (t *fxTable) observe(source string, pair models.CurrencyPair, rate float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.bySrc[source]
	if !ok {
		m = make(map[models.CurrencyPair]fxObservation)
		t.bySrc[source] = m
	}
	m[pair] = fxObservation{rate: rate, at: at}
}

func (t *fxTable) lookup(source string, pair models.CurrencyPair, now time.Time, maxAge time.Duration) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m := t.bySrc[source]
	if m == nil {
		return 0, false
	}
	leg := func(p models.CurrencyPair) (float64, bool) {
		if o, ok := m[p]; ok && now.Sub(o.at) < maxAge {
			return o.rate, true
		}
		if o, ok := m[p.Inverse()]; ok && now.Sub(o.at) < maxAge && o.rate != 0 {
			return 1 / o.rate, true
		}
		return 0, false
	}
	if r, ok := leg(pair); ok {
		return r, true
	}
	if pair.Base == t.vehicle || pair.Quote == t.vehicle {
		return 0, false
	}
	a, ok := leg(models.CurrencyPair{Base: pair.Base, Quote: t.vehicle})
	if !ok {
		return 0, false
	}
	b, ok := leg(models.CurrencyPair{Base: t.vehicle, Quote: pair.Quote})
	if !ok {
		return 0, false
	}
	return a * b, true
}

// normalizer converts native prices into the home currency.
type normalizer struct {
	home   string
	cache  *rates.Cache
	fx     *fxTable
	maxAge time.Duration
}

// convert applies the unit factor, then the home rate, then rounding.
// Unavailable results come back as NaN with an error from the domain taxonomy.
func (n *normalizer) convert(inst models.Instrument, q models.RawQuote, now time.Time) (float64, error) {
	currency := q.Currency
	if currency == "" {
		currency = inst.QuoteCurrency
	}
	native := q.Price * inst.Unit.Factor()

	rate, err := n.rate(currency, q.Source, now)
	if err != nil {
		return math.NaN(), err
	}
	return round(native*rate, inst.Unit.RoundingDecimals), nil
}

func (n *normalizer) rate(currency, source string, now time.Time) (float64, error) {
	if currency == n.home {
		return 1, nil
	}
	pair := models.NewPair(currency, n.home)
	if r, ok := n.cache.Get(pair); ok {
		return r, nil
	}
	if r, ok := n.fx.lookup(source, pair, now, n.maxAge); ok {
		return r, nil
	}
	if _, known := n.cache.Entry(pair); known {
		return 0, fmt.Errorf("%w: %s", models.ErrStaleRate, pair)
	}
	return 0, fmt.Errorf("%w: no rate for %s", models.ErrUnconvertible, pair)
}

func round(v float64, decimals *int) float64 {
	if decimals == nil {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(int32(*decimals)).Float64()
	return f
}
