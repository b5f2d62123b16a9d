package rates

import (
	"math"
	"testing"
	"time"

	"MarketBoard/internal/domain/models"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock { return &clock{t: time.Date(2024, 10, 10, 12, 0, 0, 0, time.UTC)} }

var (
	usdCAD = models.NewPair("USD", "CAD")
	eurUSD = models.NewPair("EUR", "USD")
	eurCAD = models.NewPair("EUR", "CAD")
)

func TestPutGetWithinTTL(t *testing.T) {
	clk := newClock()
	c := NewCache(WithClock(clk.Now))
	if err := c.Put(usdCAD, 1.35, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	clk.Advance(59 * time.Second)
	r, ok := c.Get(usdCAD)
	if !ok || r != 1.35 {
		t.Fatalf("get = %v %v", r, ok)
	}
	clk.Advance(time.Second)
	if _, ok := c.Get(usdCAD); ok {
		t.Fatalf("expected miss at exactly ttl")
	}
}

func TestInverseLookup(t *testing.T) {
	clk := newClock()
	c := NewCache(WithClock(clk.Now))
	_ = c.Put(usdCAD, 1.25, time.Minute)
	r, ok := c.Get(usdCAD.Inverse())
	if !ok || math.Abs(r-0.8) > 1e-12 {
		t.Fatalf("inverse = %v %v", r, ok)
	}
}

func TestCrossRateRequiresBothLegsFresh(t *testing.T) {
	clk := newClock()
	c := NewCache(WithClock(clk.Now))
	_ = c.Put(eurUSD, 1.10, time.Minute)
	_ = c.Put(usdCAD, 1.35, 2*time.Minute)

	r, ok := c.Get(eurCAD)
	if !ok || math.Abs(r-1.485) > 1e-12 {
		t.Fatalf("cross = %v %v", r, ok)
	}

	clk.Advance(90 * time.Second)
	if _, ok := c.Get(eurCAD); ok {
		t.Fatalf("cross must fail once a leg expires")
	}
	if _, ok := c.Get(usdCAD); !ok {
		t.Fatalf("fresh leg should still resolve directly")
	}
}

func TestDirectPreferredOverCross(t *testing.T) {
	clk := newClock()
	c := NewCache(WithClock(clk.Now))
	_ = c.Put(eurUSD, 1.10, time.Minute)
	_ = c.Put(usdCAD, 1.35, time.Minute)
	_ = c.Put(eurCAD, 1.50, time.Minute)
	if r, _ := c.Get(eurCAD); r != 1.50 {
		t.Fatalf("expected direct rate, got %v", r)
	}
}

func TestPutRejectsInvalid(t *testing.T) {
	c := NewCache()
	for _, v := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if err := c.Put(usdCAD, v, time.Minute); err == nil {
			t.Fatalf("expected error for %v", v)
		}
	}
	if err := c.Put(usdCAD, 1.3, 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}

func TestSnapshotRestoreKeepsTimestamps(t *testing.T) {
	clk := newClock()
	src := NewCache(WithClock(clk.Now))
	_ = src.Put(usdCAD, 1.35, time.Minute)
	snap := src.Snapshot()

	clk.Advance(2 * time.Minute)
	dst := NewCache(WithClock(clk.Now))
	if n := dst.Restore(snap); n != 1 {
		t.Fatalf("restored %d", n)
	}
	if _, ok := dst.Get(usdCAD); ok {
		t.Fatalf("restored expired entry must stay unusable")
	}
	if e, ok := dst.Entry(usdCAD); !ok || e.Rate != 1.35 {
		t.Fatalf("entry not restored: %+v", e)
	}
	if dst.Age() != 2*time.Minute {
		t.Fatalf("age = %v", dst.Age())
	}
}

func TestIdentityPair(t *testing.T) {
	c := NewCache()
	if r, ok := c.Get(models.NewPair("CAD", "CAD")); !ok || r != 1 {
		t.Fatalf("identity = %v %v", r, ok)
	}
}
