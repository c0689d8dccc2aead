package billing

import (
	"context"
	"fmt"

	"github.com/flomify/flomify/internal/pkg/jobqueue"
)

// Delivery identifies a recorded webhook delivery awaiting processing.
type Delivery struct {
	WebhookEventID         uint
	Provider               string
	EventName              string
	ProviderSubscriptionID string
}

// Dispatcher hands a recorded delivery over for processing after the
// webhook has been acknowledged.
type Dispatcher interface {
	Dispatch(ctx context.Context, d Delivery) error
}

// QueueDispatcher dispatches deliveries through the Redis job queue.
type QueueDispatcher struct {
	queue *jobqueue.Queue
}

// NewQueueDispatcher creates a dispatcher backed by q.
func NewQueueDispatcher(q *jobqueue.Queue) *QueueDispatcher {
	return &QueueDispatcher{queue: q}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, delivery Delivery) error {
	payload := jobqueue.SubscriptionEventJobPayload{
		WebhookEventID:         delivery.WebhookEventID,
		Provider:               delivery.Provider,
		EventName:              delivery.EventName,
		ProviderSubscriptionID: delivery.ProviderSubscriptionID,
	}
	if _, err := d.queue.EnqueueJob(ctx, jobqueue.JobTypeSubscriptionEvent, payload.ToMap()); err != nil {
		return fmt.Errorf("enqueue %s: %w", delivery.EventName, err)
	}
	return nil
}

// InlineDispatcher processes deliveries synchronously within the request.
// Tests use it in place of QueueDispatcher.
type InlineDispatcher struct {
	Service *Service
}

func (d InlineDispatcher) Dispatch(ctx context.Context, delivery Delivery) error {
	// Processing errors are recorded on the event row; they never fail the delivery.
	_ = d.Service.ProcessDelivery(ctx, delivery.WebhookEventID)
	return nil
}

// RegisterJobHandlers wires subscription event jobs to svc.
func RegisterJobHandlers(q *jobqueue.Queue, svc *Service) {
	q.RegisterHandler(jobqueue.JobTypeSubscriptionEvent, SubscriptionEventHandler(svc))
}

// SubscriptionEventHandler processes one subscription event job. Only store
// failures are left retryable; every other error is marked permanent.
func SubscriptionEventHandler(svc *Service) jobqueue.HandlerFunc {
	return func(ctx context.Context, job *jobqueue.Job) error {
		payload, err := jobqueue.SubscriptionEventJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("%w: %v", jobqueue.ErrPermanent, err)
		}
		return jobError(svc.ProcessDelivery(ctx, payload.WebhookEventID))
	}
}

// jobError classifies a processing error for the job queue.
func jobError(err error) error {
	if err == nil || IsRetryable(err) {
		return err
	}
	return fmt.Errorf("%w: %w", jobqueue.ErrPermanent, err)
}
