package cache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the response cache.
type Metrics struct {
	HitsTotal    prometheus.Counter
	MissesTotal  prometheus.Counter
	SweptTotal   prometheus.Counter
	EntriesGauge prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics for the response
// cache. Registration happens once globally; repeated calls return the same
// instance. All metrics are prefixed with "response_cache_".
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			HitsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "response_cache_hits_total",
					Help: "Total response cache hits",
				},
			),
			MissesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "response_cache_misses_total",
					Help: "Total response cache misses",
				},
			),
			SweptTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "response_cache_swept_total",
					Help: "Total expired entries removed by the background sweep",
				},
			),
			EntriesGauge: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "response_cache_entries",
					Help: "Current number of cached responses",
				},
			),
		}
	})
	return globalMetrics
}

// RecordHit records a cache hit.
func (m *Metrics) RecordHit() { m.HitsTotal.Inc() }

// RecordMiss records a cache miss.
func (m *Metrics) RecordMiss() { m.MissesTotal.Inc() }

// RecordSwept records entries removed by the background sweep.
func (m *Metrics) RecordSwept(n int) { m.SweptTotal.Add(float64(n)) }

// SetSize updates the entry-count gauge.
func (m *Metrics) SetSize(n int) { m.EntriesGauge.Set(float64(n)) }
