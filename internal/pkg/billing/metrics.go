package billing

import "time"

// Metrics records billing webhook processing. Implementations must be safe
// for concurrent use.
type Metrics interface {
	// RecordWebhookDelivery records the synchronous outcome of a delivery:
	// "accepted", "duplicate", "invalid_signature", "invalid_payload" or "error".
	RecordWebhookDelivery(provider, outcome string)

	// RecordSubscriptionEvent records the asynchronous processing result of an event:
	// "applied", "ignored", "stale", "unprocessable" or "error".
	RecordSubscriptionEvent(eventName, result string)

	RecordProcessingDuration(eventName string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of Metrics.
type NoopMetrics struct{}

func (NoopMetrics) RecordWebhookDelivery(_, _ string)                  {}
func (NoopMetrics) RecordSubscriptionEvent(_, _ string)                {}
func (NoopMetrics) RecordProcessingDuration(_ string, _ time.Duration) {}
