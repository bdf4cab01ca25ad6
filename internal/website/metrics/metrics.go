// Package metrics tracks runtime-config serving outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the website module. All methods are
// nil-safe so tests can pass a nil *Metrics.
type Metrics struct {
	ConfigsServed *prometheus.CounterVec
	Upserts       prometheus.Counter
	CacheLookups  *prometheus.CounterVec
	ServeLatency  prometheus.Histogram
}

// New creates and registers website metrics with the default registry.
func New() *Metrics {
	return &Metrics{
		ConfigsServed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_website_configs_served_total",
			Help: "Runtime config requests by outcome (ok, not_found, invalid, error)",
		}, []string{"outcome"}),
		Upserts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assent_website_upserts_total",
			Help: "Accepted website document upserts",
		}),
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_website_cache_lookups_total",
			Help: "Config cache lookups by result (hit, miss, bypass)",
		}, []string{"result"}),
		ServeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "assent_website_serve_duration_seconds",
			Help:    "Latency of runtime config lookups",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}
}

// IncrementServed records one config request outcome.
func (m *Metrics) IncrementServed(outcome string) {
	if m == nil {
		return
	}
	m.ConfigsServed.WithLabelValues(outcome).Inc()
}

// IncrementUpserts records one accepted document upsert.
func (m *Metrics) IncrementUpserts() {
	if m == nil {
		return
	}
	m.Upserts.Inc()
}

// RecordCacheLookup records one cache lookup result.
func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveServe records the latency of one config lookup.
func (m *Metrics) ObserveServe(start time.Time) {
	if m == nil {
		return
	}
	m.ServeLatency.Observe(time.Since(start).Seconds())
}
