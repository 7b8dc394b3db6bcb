package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups all Prometheus instruments used across the pipeline.
// Registered once at startup via New(); passed by pointer wherever needed.
// A nil *Metrics is valid and turns every observation into a no-op, so
// tests can construct services without a registry.
type Metrics struct {
	SubmissionsEnqueued prometheus.Counter
	SubmissionsScored   prometheus.Counter
	DuplicateDeliveries prometheus.Counter
	JobsDeadLettered    prometheus.Counter
	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter
	QueueDepth          *prometheus.GaugeVec
}

// New registers all instruments with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubmissionsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_submissions_enqueued_total",
			Help: "Total number of submissions accepted by intake and enqueued.",
		}),
		SubmissionsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_submissions_scored_total",
			Help: "Total number of submissions scored and persisted.",
		}),
		DuplicateDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_duplicate_deliveries_total",
			Help: "Total number of redeliveries acknowledged by the idempotency check.",
		}),
		JobsDeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_jobs_dead_lettered_total",
			Help: "Total number of scoring jobs that exhausted delivery attempts.",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_notifications_sent_total",
			Help: "Total number of operator alert emails delivered.",
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_notifications_failed_total",
			Help: "Total number of operator alerts that exhausted their retries.",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quiz_queue_depth",
			Help: "Current number of jobs per queue and state.",
		}, []string{"queue", "state"}),
	}

	reg.MustRegister(
		m.SubmissionsEnqueued,
		m.SubmissionsScored,
		m.DuplicateDeliveries,
		m.JobsDeadLettered,
		m.NotificationsSent,
		m.NotificationsFailed,
		m.QueueDepth,
	)

	return m
}

func (m *Metrics) IncEnqueued() {
	if m != nil {
		m.SubmissionsEnqueued.Inc()
	}
}

func (m *Metrics) IncScored() {
	if m != nil {
		m.SubmissionsScored.Inc()
	}
}

func (m *Metrics) IncDuplicate() {
	if m != nil {
		m.DuplicateDeliveries.Inc()
	}
}

func (m *Metrics) IncDeadLettered() {
	if m != nil {
		m.JobsDeadLettered.Inc()
	}
}

func (m *Metrics) IncNotificationSent() {
	if m != nil {
		m.NotificationsSent.Inc()
	}
}

func (m *Metrics) IncNotificationFailed() {
	if m != nil {
		m.NotificationsFailed.Inc()
	}
}

func (m *Metrics) SetQueueDepth(queue, state string, n int64) {
	if m != nil {
		m.QueueDepth.WithLabelValues(queue, state).Set(float64(n))
	}
}
