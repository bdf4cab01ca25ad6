package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the receipt pipeline. A nil *Metrics is a no-op so
// tests can construct the service without a registry.
type Metrics struct {
	Recorded     *prometheus.CounterVec
	Deduped      prometheus.Counter
	Dropped      prometheus.Counter
	SinkFailures prometheus.Counter
	Swept        prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Recorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_receipts_recorded_total",
			Help: "Consent receipts persisted, by action.",
		}, []string{"action"}),
		Deduped: factory.NewCounter(prometheus.CounterOpts{
			Name: "assent_receipts_deduplicated_total",
			Help: "Receipts dropped because an identical state was already recorded inside the dedup window.",
		}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "assent_receipts_dropped_total",
			Help: "Receipts dropped because the intake buffer was full.",
		}),
		SinkFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "assent_receipt_sink_failures_total",
			Help: "Failures publishing receipts to the downstream sink.",
		}),
		Swept: factory.NewCounter(prometheus.CounterOpts{
			Name: "assent_receipts_swept_total",
			Help: "Receipts deleted by the retention sweeper.",
		}),
	}
}

func (m *Metrics) IncrementRecorded(action string) {
	if m == nil {
		return
	}
	m.Recorded.WithLabelValues(action).Inc()
}

func (m *Metrics) IncrementDeduped() {
	if m == nil {
		return
	}
	m.Deduped.Inc()
}

func (m *Metrics) IncrementDropped() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}

func (m *Metrics) IncrementSinkFailures() {
	if m == nil {
		return
	}
	m.SinkFailures.Inc()
}

func (m *Metrics) AddSwept(n int64) {
	if m == nil {
		return
	}
	m.Swept.Add(float64(n))
}
