// Package metrics holds the Prometheus collectors of the checkout pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sakashimaa/checkout-pipeline/internal/domain"
)

const namespace = "checkout"

type Metrics struct {
	jobsSubmitted      prometheus.Counter
	jobsProcessed      *prometheus.CounterVec
	jobDuration        prometheus.Histogram
	jobRetries         prometheus.Counter
	reservationsFailed prometheus.Counter
	paymentsInitiated  *prometheus.CounterVec
	webhooks           *prometheus.CounterVec
	notifications      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Checkout jobs accepted by intake.",
		}),
		jobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Checkout jobs finished by the worker, by outcome.",
		}, []string{"outcome"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time spent processing one checkout job.",
			Buckets:   prometheus.DefBuckets,
		}),
		jobRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_retries_total",
			Help:      "Retries of checkout jobs after transient failures.",
		}),
		reservationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_rejected_total",
			Help:      "Jobs rejected because an inventory line had insufficient stock.",
		}),
		paymentsInitiated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_initiated_total",
			Help:      "Payment initiations by method and result.",
		}, []string{"method", "result"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhooks_total",
			Help:      "Payment webhooks by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by observer, kind and result.",
		}, []string{"observer", "kind", "result"}),
	}

	reg.MustRegister(
		m.jobsSubmitted,
		m.jobsProcessed,
		m.jobDuration,
		m.jobRetries,
		m.reservationsFailed,
		m.paymentsInitiated,
		m.webhooks,
		m.notifications,
	)

	return m
}

func (m *Metrics) JobSubmitted() {
	m.jobsSubmitted.Inc()
}

// JobProcessed records the outcome of one job; err == nil is "completed",
// otherwise the error class.
func (m *Metrics) JobProcessed(err error, took time.Duration) {
	outcome := "completed"
	if err != nil {
		outcome = string(domain.Classify(err))
	}

	m.jobsProcessed.WithLabelValues(outcome).Inc()
	m.jobDuration.Observe(took.Seconds())
}

func (m *Metrics) JobRetried() {
	m.jobRetries.Inc()
}

func (m *Metrics) ReservationRejected() {
	m.reservationsFailed.Inc()
}

func (m *Metrics) PaymentInitiated(method domain.PaymentMethod, err error) {
	m.paymentsInitiated.WithLabelValues(string(method), result(err)).Inc()
}

func (m *Metrics) WebhookHandled(res string) {
	m.webhooks.WithLabelValues(res).Inc()
}

func (m *Metrics) NotificationDelivered(observer string, kind domain.NotificationKind, err error) {
	m.notifications.WithLabelValues(observer, string(kind), result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
