package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"MarketBoard/internal/domain/models"
	"MarketBoard/internal/domain/repository"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ingestTotal   *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
	providerState *prometheus.GaugeVec
	signalsTotal  *prometheus.CounterVec
	rotationTicks *prometheus.CounterVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ingestTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketboard_ingest_total",
				Help: "Quotes ingested by source and outcome",
			},
			[]string{"source", "status"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketboard_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketboard_last_price",
				Help: "Last normalized price for a symbol in home currency",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketboard_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		providerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketboard_provider_state",
				Help: "Provider health: 0 healthy, 1 degraded, 2 error",
			},
			[]string{"source"},
		),
		signalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketboard_signals_total",
				Help: "Market signals emitted by type",
			},
			[]string{"type"},
		),
		rotationTicks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketboard_rotation_ticks_total",
				Help: "Rotation ticks by group",
			},
			[]string{"group"},
		),
	}
}

// RecordIngest counts an ingest attempt.
func (r *Recorder) RecordIngest(source, status string) {
	r.ingestTotal.WithLabelValues(source, status).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordProviderState(source string, state models.HealthState) {
	r.providerState.WithLabelValues(source).Set(float64(state.Rank()))
}

func (r *Recorder) RecordSignal(kind models.SignalType) {
	r.signalsTotal.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) RecordRotationTick(group string) {
	r.rotationTicks.WithLabelValues(group).Inc()
}

var _ repository.Metrics = (*Recorder)(nil)
