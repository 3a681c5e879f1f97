package registry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Big0290/memory-context-manager-v2/internal/source"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// healthValue maps health states onto a gauge: 2 healthy, 1 degraded,
// 0 unhealthy.
func healthValue(h HealthStatus) float64 {
	switch h {
	case Healthy:
		return 2
	case Degraded:
		return 1
	default:
		return 0
	}
}

// Metrics holds Prometheus metrics for the source registry.
type Metrics struct {
	SourcesRegistered prometheus.Gauge
	SourceHealth      *prometheus.GaugeVec
	SourceReliability *prometheus.GaugeVec
	OutcomesTotal     *prometheus.CounterVec
	FetchDuration     *prometheus.HistogramVec
	ProbesTotal       *prometheus.CounterVec
}

// NewMetrics creates and registers Prometheus metrics for the registry.
//
// Uses sync.Once so repeated construction (tests, multiple registries) cannot
// trigger duplicate-collector registration panics. All metrics are prefixed
// with "registry_".
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			SourcesRegistered: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "registry_sources_registered",
					Help: "Current number of registered context sources",
				},
			),
			SourceHealth: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "registry_source_health",
					Help: "Source health state (2=healthy, 1=degraded, 0=unhealthy)",
				},
				[]string{"source"},
			),
			SourceReliability: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "registry_source_reliability",
					Help: "Exponentially-weighted source reliability score",
				},
				[]string{"source"},
			),
			OutcomesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "registry_outcomes_total",
					Help: "Total source invocation outcomes by status",
				},
				[]string{"source", "status"},
			),
			FetchDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "registry_fetch_duration_seconds",
					Help:    "Duration of source fetches in seconds",
					Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
				},
				[]string{"source"},
			),
			ProbesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "registry_recovery_probes_total",
					Help: "Total recovery probes issued to unhealthy sources",
				},
				[]string{"source"},
			),
		}
	})
	return globalMetrics
}

// SetRegistered updates the registered-source gauge.
func (m *Metrics) SetRegistered(n int) {
	m.SourcesRegistered.Set(float64(n))
}

// SetSourceHealth updates the per-source health gauge.
func (m *Metrics) SetSourceHealth(id string, h HealthStatus) {
	m.SourceHealth.WithLabelValues(id).Set(healthValue(h))
}

// SetReliability updates the per-source reliability gauge.
func (m *Metrics) SetReliability(id string, score float64) {
	m.SourceReliability.WithLabelValues(id).Set(score)
}

// RecordOutcome records one invocation outcome and its latency.
func (m *Metrics) RecordOutcome(id string, status source.Status, latency time.Duration) {
	m.OutcomesTotal.WithLabelValues(id, string(status)).Inc()
	if latency > 0 {
		m.FetchDuration.WithLabelValues(id).Observe(latency.Seconds())
	}
}

// RecordProbe records a recovery probe of an unhealthy source.
func (m *Metrics) RecordProbe(id string) {
	m.ProbesTotal.WithLabelValues(id).Inc()
}
