package usecase

import (
	"errors"
	"testing"
	"time"

	"MarketBoard/internal/domain/models"
	"MarketBoard/internal/domain/repository"
)

func TestHealthFailuresOnlyDegrade(t *testing.T) {
	h := newHealthTable(2, 0, 0, repository.NopMetrics{})
	now := time.Now()
	h.register("rest", time.Minute, 5*time.Minute, false, now)

	h.failure("rest", errors.New("timeout"))
	if s := h.snapshot()["rest"]; s.State != models.HealthHealthy || s.ConsecutiveErrorCount != 1 {
		t.Fatalf("after one failure: %+v", s)
	}
	for i := 0; i < 10; i++ {
		h.failure("rest", errors.New("timeout"))
	}
	s := h.snapshot()["rest"]
	if s.State != models.HealthDegraded || s.LastError != "timeout" {
		t.Fatalf("after many failures: %+v", s)
	}

	h.success("rest", now)
	if s := h.snapshot()["rest"]; s.State != models.HealthHealthy || s.ConsecutiveErrorCount != 0 || s.LastError != "" {
		t.Fatalf("after success: %+v", s)
	}
}

func TestHealthSilenceUsesRegistration(t *testing.T) {
	h := newHealthTable(3, 0, 0, repository.NopMetrics{})
	start := time.Now()
	h.register("ws", time.Minute, 5*time.Minute, false, start)

	h.check(start.Add(2*time.Minute), 1)
	if got := h.snapshot()["ws"].State; got != models.HealthDegraded {
		t.Fatalf("never-updated source = %s, want degraded", got)
	}
	h.check(start.Add(6*time.Minute), 1)
	if got := h.snapshot()["ws"].State; got != models.HealthError {
		t.Fatalf("state = %s, want error", got)
	}
}

func TestHealthCadenceStretchesPollWindows(t *testing.T) {
	h := newHealthTable(3, 0, 0, repository.NopMetrics{})
	start := time.Now()
	h.register("poll", time.Minute, 5*time.Minute, true, start)
	h.register("push", time.Minute, 5*time.Minute, false, start)

	h.check(start.Add(3*time.Minute), 4)
	per := h.snapshot()
	if per["poll"].State != models.HealthHealthy {
		t.Fatalf("poll = %s, want healthy while slowed down", per["poll"].State)
	}
	if per["push"].State != models.HealthDegraded {
		t.Fatalf("push = %s, want degraded", per["push"].State)
	}
}

func TestOverallHealth(t *testing.T) {
	ph := func(states ...models.HealthState) map[string]models.ProviderHealth {
		out := make(map[string]models.ProviderHealth)
		for i, s := range states {
			out[string(rune('a'+i))] = models.ProviderHealth{State: s}
		}
		return out
	}
	cases := []struct {
		name string
		per  map[string]models.ProviderHealth
		want models.HealthState
	}{
		{"empty", nil, models.HealthHealthy},
		{"all healthy", ph(models.HealthHealthy, models.HealthHealthy), models.HealthHealthy},
		{"one degraded", ph(models.HealthHealthy, models.HealthDegraded), models.HealthDegraded},
		{"partial error", ph(models.HealthHealthy, models.HealthError), models.HealthDegraded},
		{"all error", ph(models.HealthError, models.HealthError), models.HealthError},
	}
	for _, tc := range cases {
		if got := overall(tc.per); got != tc.want {
			t.Fatalf("%s: overall = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestHealthFirstSeenSourceGetsDefaultWindows(t *testing.T) {
	h := newHealthTable(3, time.Minute, 5*time.Minute, repository.NopMetrics{})
	start := time.Now()
	h.success("late", start)

	h.check(start.Add(2*time.Minute), 1)
	if got := h.snapshot()["late"].State; got != models.HealthDegraded {
		t.Fatalf("state = %s, want degraded", got)
	}
	h.check(start.Add(6*time.Minute), 1)
	if got := h.snapshot()["late"].State; got != models.HealthError {
		t.Fatalf("state = %s, want error", got)
	}
}
