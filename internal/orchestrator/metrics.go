package orchestrator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Request outcome labels.
const (
	outcomeLive     = "live"
	outcomeCached   = "cached"
	outcomeFallback = "fallback"
)

// Metrics holds Prometheus metrics for the orchestration engine.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	DegradedTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers Prometheus metrics for the engine.
// Registration happens once globally. All metrics are prefixed with
// "orchestrator_".
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "orchestrator_requests_total",
					Help: "Total context requests by strategy and outcome",
				},
				[]string{"strategy", "outcome"},
			),
			RequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "orchestrator_request_duration_seconds",
					Help:    "End-to-end request handling duration in seconds",
					Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
				},
				[]string{"strategy"},
			),
			DegradedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "orchestrator_degraded_responses_total",
					Help: "Total responses assembled below the strategy's success threshold",
				},
				[]string{"strategy"},
			),
		}
	})
	return globalMetrics
}

// RecordRequest records one handled request.
func (m *Metrics) RecordRequest(strategy, outcome string, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(strategy, outcome).Inc()
	m.RequestDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// RecordDegraded records a degraded response.
func (m *Metrics) RecordDegraded(strategy string) {
	m.DegradedTotal.WithLabelValues(strategy).Inc()
}
