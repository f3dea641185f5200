package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the fan-out service.
type Metrics struct {
	FanOutsCompleted      prometheus.Counter
	FanOutsPartial        prometheus.Counter
	FanOutsShortCircuited prometheus.Counter
	FanOutDuration        prometheus.Histogram

	GrantsCreated   prometheus.Counter
	GrantsDuplicate prometheus.Counter

	NotificationsEnqueued  prometheus.Counter
	NotificationsDelivered prometheus.Counter
	NotificationsFailed    prometheus.Counter

	RecipientFailures prometheus.Counter
	ResolverFailures  prometheus.Counter

	SweepRuns               prometheus.Counter
	SweepDocumentsRecovered prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		FanOutsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medishare_fanouts_completed_total",
			Help: "Documents whose fan-out reached the complete state",
		}),
		FanOutsPartial: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medishare_fanouts_partial_total",
			Help: "Fan-out runs that left a document in the partial state",
		}),
		FanOutsShortCircuited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medishare_fanouts_short_circuited_total",
			Help: "Fan-out runs skipped because the document was already complete",
		}),
		FanOutDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "medishare_fanout_duration_seconds",
			Help:    "Wall time of a single document fan-out",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GrantsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medishare_grants_created_total",
			Help: "Share ledger rows created",
		}),
		GrantsDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medishare_grants_duplicate_total",
			Help: "Grant attempts absorbed by the ledger uniqueness constraint",
		}),
		NotificationsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medishare_notifications_enqueued_total",
			Help: "Notification entries enqueued",
		}),
		NotificationsDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medishare_notifications_delivered_total",
			Help: "Notification entries marked delivered",
		}),
		NotificationsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medishare_notifications_failed_total",
			Help: "Notification entries marked failed",
		}),
		RecipientFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medishare_recipient_failures_total",
			Help: "Per-recipient grant or enqueue failures during fan-out",
		}),
		ResolverFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medishare_resolver_failures_total",
			Help: "Fan-outs aborted by a resolver configuration error",
		}),
		SweepRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medishare_sweep_runs_total",
			Help: "Retry sweep iterations",
		}),
		SweepDocumentsRecovered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medishare_sweep_documents_recovered_total",
			Help: "Partial documents brought to complete by the retry sweep",
		}),
	}
}

// ObserveFanOut records the duration of one fan-out run.
func (m *Metrics) ObserveFanOut(d time.Duration) {
	if m == nil {
		return
	}
	m.FanOutDuration.Observe(d.Seconds())
}
