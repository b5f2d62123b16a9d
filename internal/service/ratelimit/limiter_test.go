package ratelimit

import (
	"testing"
	"time"
)

func TestAllowConsumesAndRefills(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(WithClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		if !l.Allow("finnhub", 3, 1) {
			t.Fatalf("call %d denied", i)
		}
	}
	if l.Allow("finnhub", 3, 1) {
		t.Fatalf("empty bucket allowed")
	}
	if !l.Allow("other", 3, 1) {
		t.Fatalf("buckets are not independent")
	}

	now = now.Add(1500 * time.Millisecond)
	if !l.Allow("finnhub", 3, 1) {
		t.Fatalf("refill not applied")
	}
	if l.Allow("finnhub", 3, 1) {
		t.Fatalf("refilled more than elapsed time allows")
	}

	now = now.Add(time.Hour)
	if got := l.Allow("finnhub", 3, 1); !got || l.Tokens("finnhub") != 2 {
		t.Fatalf("tokens = %v, want capped at capacity", l.Tokens("finnhub"))
	}
}

func TestZeroCapacityDisablesLimit(t *testing.T) {
	l := New()
	for i := 0; i < 100; i++ {
		if !l.Allow("x", 0, 0) {
			t.Fatalf("limit applied with zero capacity")
		}
	}
}
