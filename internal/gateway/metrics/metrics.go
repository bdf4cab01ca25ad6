// Package metrics tracks edge gateway outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the gateway host. All methods are
// nil-safe so tests can pass a nil *Metrics.
type Metrics struct {
	PagesRewritten  *prometheus.CounterVec
	Passthrough     *prometheus.CounterVec
	ConsentRequests *prometheus.CounterVec
	ReceiptForwards *prometheus.CounterVec
	RewriteLatency  prometheus.Histogram
}

// New creates and registers gateway metrics with the default registry.
func New() *Metrics {
	return &Metrics{
		PagesRewritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_gateway_pages_rewritten_total",
			Help: "HTML responses run through the consent engine, by outcome (ready, config_failed)",
		}, []string{"outcome"}),
		Passthrough: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_gateway_passthrough_total",
			Help: "Upstream responses served untouched, by reason (not_html, status, too_large, parse_failed)",
		}, []string{"reason"}),
		ConsentRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_gateway_consent_requests_total",
			Help: "Consent endpoint calls by action (accept_all, reject_all, save_preferences, withdraw, read)",
		}, []string{"action"}),
		ReceiptForwards: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_gateway_receipt_forwards_total",
			Help: "Receipts handed to the intake pipeline, by result (ok, error)",
		}, []string{"result"}),
		RewriteLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "assent_gateway_rewrite_duration_seconds",
			Help:    "Time spent booting the engine and re-serializing one page",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementRewritten records one engine-processed page by boot outcome.
func (m *Metrics) IncrementRewritten(outcome string) {
	if m == nil {
		return
	}
	m.PagesRewritten.WithLabelValues(outcome).Inc()
}

// IncrementPassthrough records one response served without rewriting.
func (m *Metrics) IncrementPassthrough(reason string) {
	if m == nil {
		return
	}
	m.Passthrough.WithLabelValues(reason).Inc()
}

// IncrementConsentRequest records one consent endpoint call.
func (m *Metrics) IncrementConsentRequest(action string) {
	if m == nil {
		return
	}
	m.ConsentRequests.WithLabelValues(action).Inc()
}

// IncrementReceiptForward records one receipt handed to intake.
func (m *Metrics) IncrementReceiptForward(result string) {
	if m == nil {
		return
	}
	m.ReceiptForwards.WithLabelValues(result).Inc()
}

// ObserveRewrite records the latency of one page rewrite.
func (m *Metrics) ObserveRewrite(start time.Time) {
	if m == nil {
		return
	}
	m.RewriteLatency.Observe(time.Since(start).Seconds())
}
