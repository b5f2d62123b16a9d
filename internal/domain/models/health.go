package models

import "time"

// HealthState of an upstream source.
type HealthState string

const (
	HealthHealthy  HealthState = "healthy"
	HealthDegraded HealthState = "degraded"
	HealthError    HealthState = "error"
)

// Rank orders states from best to worst.
func (s HealthState) Rank() int {
	switch s {
	case HealthHealthy:
		return 0
	case HealthDegraded:
		return 1
	default:
		return 2
	}
}

// ProviderHealth is the per-source health record.
type ProviderHealth struct {
	Source                string      `json:"source"`
	Connected             bool        `json:"connected"`
	LastUpdateTime        time.Time   `json:"last_update_time"`
	ConsecutiveErrorCount int         `json:"consecutive_error_count"`
	State                 HealthState `json:"state"`
	LastError             string      `json:"last_error,omitempty"`
}

// HealthStatus is the aggregate answer to a health query.
type HealthStatus struct {
	Overall   HealthState               `json:"overall"`
	PerSource map[string]ProviderHealth `json:"per_source"`
	CacheAge  time.Duration             `json:"cache_age"`
}
