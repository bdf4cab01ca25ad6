package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the consent engine. One instance is
// shared by every engine in the process; all methods are nil-safe so hosts
// can run without metrics.
type Metrics struct {
	// Boot outcomes: ready or config_failed
	Boots *prometheus.CounterVec

	// Full boot latency including the config fetch
	BootLatency prometheus.Histogram

	// Captured resources by kind
	ResourcesRegistered *prometheus.CounterVec

	// Delivered resources by kind
	ResourcesDelivered *prometheus.CounterVec

	// Consent actions by kind
	ConsentActions *prometheus.CounterVec

	// Storage failures the engine degraded through, by operation
	StorageDegradations *prometheus.CounterVec
}

// New creates a new Metrics instance with all engine metrics registered.
func New() *Metrics {
	return &Metrics{
		Boots: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_loader_boots_total",
			Help: "Total engine boots by outcome",
		}, []string{"outcome"}), // outcome: "ready", "config_failed"

		BootLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "assent_loader_boot_duration_seconds",
			Help:    "Duration of engine boot including configuration fetch",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		ResourcesRegistered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_loader_resources_registered_total",
			Help: "Total resources captured for gating by kind",
		}, []string{"kind"}),

		ResourcesDelivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_loader_resources_delivered_total",
			Help: "Total resources delivered after consent by kind",
		}, []string{"kind"}),

		ConsentActions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_loader_consent_actions_total",
			Help: "Total consent actions by kind",
		}, []string{"action"}), // action: "accept_all", "reject_all", "save", "withdraw"

		StorageDegradations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_loader_storage_degradations_total",
			Help: "Total storage failures the engine degraded through, by operation",
		}, []string{"op"}), // op: "load", "save", "clear", "language"
	}
}

// IncrementBoot records a boot outcome.
func (m *Metrics) IncrementBoot(outcome string) {
	if m != nil {
		m.Boots.WithLabelValues(outcome).Inc()
	}
}

// ObserveBootLatency records the duration of a full boot.
func (m *Metrics) ObserveBootLatency(d time.Duration) {
	if m != nil {
		m.BootLatency.Observe(d.Seconds())
	}
}

// AddRegistered records captured resources of one kind.
func (m *Metrics) AddRegistered(kind string, n int) {
	if m != nil && n > 0 {
		m.ResourcesRegistered.WithLabelValues(kind).Add(float64(n))
	}
}

// AddDelivered records delivered resources of one kind.
func (m *Metrics) AddDelivered(kind string, n int) {
	if m != nil && n > 0 {
		m.ResourcesDelivered.WithLabelValues(kind).Add(float64(n))
	}
}

// IncrementAction records a consent action.
func (m *Metrics) IncrementAction(action string) {
	if m != nil {
		m.ConsentActions.WithLabelValues(action).Inc()
	}
}

// IncrementStorageDegradation records a storage failure the engine survived.
func (m *Metrics) IncrementStorageDegradation(op string) {
	if m != nil {
		m.StorageDegradations.WithLabelValues(op).Inc()
	}
}
