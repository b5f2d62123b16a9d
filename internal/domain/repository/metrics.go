package repository

import "MarketBoard/internal/domain/models"

type Metrics interface {
	RecordIngest(source, status string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordProviderState(source string, state models.HealthState)
	RecordSignal(kind models.SignalType)
	RecordRotationTick(group string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordIngest(string, string) {}
func (NopMetrics) RecordError(string) {}
func (NopMetrics) RecordLastPrice(string, float64) {}
func (NopMetrics) RecordLatency(string, float64) {}
func (NopMetrics) RecordProviderState(string, models.HealthState) {}
func (NopMetrics) RecordSignal(models.SignalType) {}
func (NopMetrics) RecordRotationTick(string) {}
