package usecase

import (
	"errors"
	"math"
	"testing"
	"time"

	"MarketBoard/internal/domain/models"
	"MarketBoard/internal/services/rates"
)

func TestFXTableSameSourceCross(t *testing.T) {
	now := time.Now()
	fx := newFXTable("USD")
	fx.observe("oanda", models.NewPair("EUR", "USD"), 1.1, now)
	fx.observe("oanda", models.NewPair("USD", "CAD"), 1.35, now)

	r, ok := fx.lookup("oanda", models.NewPair("EUR", "CAD"), now, time.Minute)
	if !ok || math.Abs(r-1.485) > 1e-9 {
		t.Fatalf("cross = %v, %v", r, ok)
	}
	r, ok = fx.lookup("oanda", models.NewPair("CAD", "USD"), now, time.Minute)
	if !ok || math.Abs(r-1/1.35) > 1e-12 {
		t.Fatalf("inverse = %v, %v", r, ok)
	}
	if _, ok := fx.lookup("other", models.NewPair("EUR", "CAD"), now, time.Minute); ok {
		t.Fatalf("rates leaked across sources")
	}
	if _, ok := fx.lookup("oanda", models.NewPair("EUR", "CAD"), now.Add(2*time.Minute), time.Minute); ok {
		t.Fatalf("stale observation used")
	}
}

func TestNormalizerFallsBackToSourceRates(t *testing.T) {
	now := time.Now()
	n := &normalizer{
		home:   "CAD",
		cache:  rates.NewCache(rates.WithClock(func() time.Time { return now })),
		fx:     newFXTable("USD"),
		maxAge: time.Minute,
	}
	n.fx.observe("oanda", models.NewPair("USD", "CAD"), 1.4, now)
	inst := models.Instrument{Symbol: "SPX", QuoteCurrency: "USD"}

	got, err := n.convert(inst, models.RawQuote{Source: "oanda", Price: 10}, now)
	if err != nil || math.Abs(got-14) > 1e-9 {
		t.Fatalf("convert = %v, %v", got, err)
	}
	_, err = n.convert(inst, models.RawQuote{Source: "other", Price: 10}, now)
	if !errors.Is(err, models.ErrUnconvertible) {
		t.Fatalf("err = %v, want unconvertible", err)
	}
}

func TestRoundOnlyWhenDeclared(t *testing.T) {
	if got := round(1.23456, nil); got != 1.23456 {
		t.Fatalf("round(nil) = %v", got)
	}
	two := 2
	if got := round(1.23556, &two); got != 1.24 {
		t.Fatalf("round(2) = %v", got)
	}
}
