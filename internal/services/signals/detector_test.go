package signals

import (
	"testing"
	"time"

	"MarketBoard/internal/domain/models"
	"MarketBoard/internal/services/timeseries"
)

var base = time.Date(2024, 10, 10, 14, 0, 0, 0, time.UTC)

type feed struct {
	d        *Detector
	buf      *timeseries.Buffer
	i        int
	out      []models.MarketSignal
	extended []models.MarketSignal
}

func (f *feed) push(v float64) {
	now := base.Add(time.Duration(f.i) * time.Second)
	f.i++
	f.buf.Push(v, now)
	started, extended := f.d.Evaluate("BTC", f.buf, now)
	f.out = append(f.out, started...)
	f.extended = append(f.extended, extended...)
}

func (f *feed) count(kind models.SignalType) int {
	n := 0
	for _, s := range f.out {
		if s.Type == kind {
			n++
		}
	}
	return n
}

func TestSpikeOnCalmSeriesEmitsOnce(t *testing.T) {
	cfg := DefaultConfig()
	f := &feed{d: NewDetector(cfg), buf: timeseries.New(100)}
	for i := 0; i < 30; i++ {
		f.push(100)
	}
	f.push(105)
	if n := f.count(models.SignalPriceSpike); n != 1 {
		t.Fatalf("spikes = %d, want 1", n)
	}
	s := f.out[0]
	if s.Priority < cfg.PriorityThreshold {
		t.Fatalf("priority %d below threshold %d", s.Priority, cfg.PriorityThreshold)
	}
	if s.Direction != models.DirectionUp || s.ID == "" || s.Duration != cfg.MinSignalDuration {
		t.Fatalf("unexpected signal %+v", s)
	}
	if f.count(models.SignalVolatilityBurst) != 0 {
		t.Fatalf("flat baseline must not produce a burst")
	}
}

func TestCooldownSuppressesSecondCrossing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PriceChangeWindow = 5
	f := &feed{d: NewDetector(cfg), buf: timeseries.New(100)}
	for i := 0; i < 10; i++ {
		f.push(100)
	}
	f.push(105)
	for i := 0; i < 10; i++ {
		f.push(105)
	}
	f.push(99) // second crossing, still inside the 5m cooldown
	if n := f.count(models.SignalPriceSpike); n != 1 {
		t.Fatalf("spikes = %d, want exactly 1", n)
	}
}

func TestSignalReemitsAfterExpiryAndCooldown(t *testing.T) {
	cfg := Config{
		PriceChangeThreshold: 2,
		PriceChangeWindow:    5,
		MinSignalDuration:    10 * time.Second,
		CooldownPeriod:       30 * time.Second,
	}
	f := &feed{d: NewDetector(cfg), buf: timeseries.New(200)}
	for i := 0; i < 20; i++ {
		f.push(100)
	}
	f.push(110) // t=20
	for f.i < 61 {
		f.push(110)
	}
	f.push(100) // t=61
	if n := f.count(models.SignalPriceSpike); n != 2 {
		t.Fatalf("spikes = %d, want 2", n)
	}
	if f.out[1].Direction != models.DirectionDown {
		t.Fatalf("second spike direction = %s", f.out[1].Direction)
	}
}

func TestActiveExtendsWhileConditionPersists(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PriceChangeWindow = 5
	cfg.MinSignalDuration = 3 * time.Second
	f := &feed{d: NewDetector(cfg), buf: timeseries.New(100)}
	for i := 0; i < 10; i++ {
		f.push(100)
	}
	f.push(110) // t=10
	f.push(110)
	f.push(110)
	f.push(110) // t=13, window still contains 100
	active := f.d.Active(base.Add(15 * time.Second))
	if len(active) != 1 {
		t.Fatalf("expected extended signal to be active, got %d", len(active))
	}
	if active[0].Duration != 6*time.Second {
		t.Fatalf("duration = %v, want 6s", active[0].Duration)
	}
	if len(f.d.Active(base.Add(time.Minute))) != 0 {
		t.Fatalf("signal should have expired")
	}
	if len(f.extended) == 0 {
		t.Fatalf("extensions were not reported")
	}
	last := f.extended[len(f.extended)-1]
	if last.ID != f.out[0].ID || last.Duration != 6*time.Second {
		t.Fatalf("last extension = %+v, want id %s with 6s", last, f.out[0].ID)
	}
}

func TestVolatilityBurst(t *testing.T) {
	cfg := DefaultConfig()
	f := &feed{d: NewDetector(cfg), buf: timeseries.New(500)}
	for i := 0; i < 60; i++ {
		f.push(100 + 0.1*float64(i%2))
	}
	for i := 0; i < 20; i++ {
		f.push(100 + float64(i%2))
	}
	if n := f.count(models.SignalVolatilityBurst); n != 1 {
		t.Fatalf("bursts = %d, want 1", n)
	}
	if f.count(models.SignalPriceSpike) != 0 {
		t.Fatalf("1%% swings must not count as spikes")
	}
}

func TestPriorityMonotonicAndClamped(t *testing.T) {
	prev := -1
	for _, r := range []float64{0, 0.5, 1, 1.5, 2, 10} {
		p := priority(r)
		if p < prev || p < 0 || p > 10 {
			t.Fatalf("priority(%v) = %d after %d", r, p, prev)
		}
		prev = p
	}
}
