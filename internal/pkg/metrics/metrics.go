package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements billing.Metrics and jobqueue.Observer using Prometheus.
type Metrics struct {
	webhookDeliveriesTotal  *prometheus.CounterVec
	subscriptionEventsTotal *prometheus.CounterVec
	eventProcessingDuration *prometheus.HistogramVec
	jobsTotal               *prometheus.CounterVec
	jobDuration             *prometheus.HistogramVec
	itemCopiesTotal         *prometheus.CounterVec
	providerRequestsTotal   *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		webhookDeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_deliveries_total",
			Help:      "Webhook deliveries by synchronous outcome.",
		}, []string{"provider", "outcome"}),

		subscriptionEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "subscription_events_total",
			Help:      "Processed subscription events by result.",
		}, []string{"event", "result"}),

		eventProcessingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "event_processing_duration_seconds",
			Help:      "Duration of subscription event processing in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),

		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobqueue",
			Name:      "jobs_total",
			Help:      "Processed background jobs by type and resulting status.",
		}, []string{"type", "status"}),

		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobqueue",
			Name:      "job_duration_seconds",
			Help:      "Duration of background job handlers in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),

		itemCopiesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "item_copies_total",
			Help:      "Item code copies by platform and license.",
		}, []string{"platform", "license"}),

		providerRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "provider_requests_total",
			Help:      "Checkout and cancellation requests sent to the billing provider.",
		}, []string{"operation", "status"}),
	}
}

func (m *Metrics) RecordWebhookDelivery(provider, outcome string) {
	m.webhookDeliveriesTotal.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) RecordSubscriptionEvent(eventName, result string) {
	m.subscriptionEventsTotal.WithLabelValues(eventName, result).Inc()
}

func (m *Metrics) RecordProcessingDuration(eventName string, duration time.Duration) {
	m.eventProcessingDuration.WithLabelValues(eventName).Observe(duration.Seconds())
}

func (m *Metrics) ObserveJob(jobType string, status string, duration time.Duration) {
	m.jobsTotal.WithLabelValues(jobType, status).Inc()
	m.jobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

func (m *Metrics) RecordItemCopy(platform, license string) {
	m.itemCopiesTotal.WithLabelValues(platform, license).Inc()
}

func (m *Metrics) RecordProviderRequest(operation, status string) {
	m.providerRequestsTotal.WithLabelValues(operation, status).Inc()
}
