package usecase

import (
	"sync"
	"time"

	"MarketBoard/internal/domain/models"
	"MarketBoard/internal/domain/repository"
)

type sourceHealth struct {
	models.ProviderHealth
	registeredAt  time.Time
	degradedAfter time.Duration
	errorAfter    time.Duration
	cadenced      bool // silence windows stretch with the poll cadence
}

// healthTable tracks per-source health. Ingest only upgrades or records
// explicit errors; silence downgrades happen in check alone.
type healthTable struct {
	mu            sync.Mutex
	sources       map[string]*sourceHealth
	threshold     int
	degradedAfter time.Duration
	errorAfter    time.Duration
	metrics       repository.Metrics
}

// newHealthTable builds a table whose sources first seen through
// success, failure or setConnected get the given silence windows.
func newHealthTable(threshold int, degradedAfter, errorAfter time.Duration, metrics repository.Metrics) *healthTable {
	if threshold <= 0 {
		threshold = 3
	}
	return &healthTable{
		sources:       make(map[string]*sourceHealth),
		threshold:     threshold,
		degradedAfter: degradedAfter,
		errorAfter:    errorAfter,
		metrics:       metrics,
	}
}

func (h *healthTable) register(source string, degradedAfter, errorAfter time.Duration, cadenced bool, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sources[source]; ok {
		s.degradedAfter = max(s.degradedAfter, degradedAfter)
		s.errorAfter = max(s.errorAfter, errorAfter)
		s.cadenced = s.cadenced || cadenced
		return
	}
	h.sources[source] = &sourceHealth{
		ProviderHealth: models.ProviderHealth{Source: source, State: models.HealthHealthy},
		registeredAt:   now,
		degradedAfter:  degradedAfter,
		errorAfter:     errorAfter,
		cadenced:       cadenced,
	}
	h.metrics.RecordProviderState(source, models.HealthHealthy)
}

func (h *healthTable) get(source string) *sourceHealth {
	s, ok := h.sources[source]
	if !ok {
		s = &sourceHealth{
			ProviderHealth: models.ProviderHealth{Source: source, State: models.HealthHealthy},
			degradedAfter:  h.degradedAfter,
			errorAfter:     h.errorAfter,
		}
		h.sources[source] = s
		h.metrics.RecordProviderState(source, models.HealthHealthy)
	}
	return s
}

func (h *healthTable) success(source string, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.get(source)
	s.Connected = true
	s.LastUpdateTime = now
	s.ConsecutiveErrorCount = 0
	s.LastError = ""
	h.setState(s, models.HealthHealthy)
}

// failure records an explicit error or a miss. Reaching the threshold
// degrades a healthy source; it never escalates to error.
func (h *healthTable) failure(source string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.get(source)
	s.ConsecutiveErrorCount++
	if err != nil {
		s.LastError = err.Error()
	}
	if s.ConsecutiveErrorCount >= h.threshold && s.State == models.HealthHealthy {
		h.setState(s, models.HealthDegraded)
	}
}

func (h *healthTable) setConnected(source string, connected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.get(source).Connected = connected
}

// check applies silence windows. scale (>= 1) stretches windows of cadenced
// sources while polling is slowed down.
func (h *healthTable) check(now time.Time, scale float64) {
	if scale < 1 {
		scale = 1
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sources {
		ref := s.LastUpdateTime
		if ref.IsZero() {
			ref = s.registeredAt
		}
		if ref.IsZero() {
			continue
		}
		degradedAfter, errorAfter := s.degradedAfter, s.errorAfter
		if s.cadenced {
			degradedAfter = time.Duration(float64(degradedAfter) * scale)
			errorAfter = time.Duration(float64(errorAfter) * scale)
		}
		silence := now.Sub(ref)
		switch {
		case errorAfter > 0 && silence > errorAfter:
			h.setState(s, models.HealthError)
		case degradedAfter > 0 && silence > degradedAfter && s.State == models.HealthHealthy:
			h.setState(s, models.HealthDegraded)
		}
	}
}

func (h *healthTable) setState(s *sourceHealth, state models.HealthState) {
	if s.State == state {
		return
	}
	s.State = state
	h.metrics.RecordProviderState(s.Source, state)
}

func (h *healthTable) snapshot() map[string]models.ProviderHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]models.ProviderHealth, len(h.sources))
	for id, s := range h.sources {
		out[id] = s.ProviderHealth
	}
	return out
}

// overall is healthy when every source is healthy, error when every source is
// in error, and degraded otherwise. No sources counts as healthy.
func overall(per map[string]models.ProviderHealth) models.HealthState {
	if len(per) == 0 {
		return models.HealthHealthy
	}
	healthy, failed := 0, 0
	for _, p := range per {
		switch p.State {
		case models.HealthHealthy:
			healthy++
		case models.HealthError:
			failed++
		}
	}
	switch {
	case healthy == len(per):
		return models.HealthHealthy
	case failed == len(per):
		return models.HealthError
	default:
		return models.HealthDegraded
	}
}
