package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when a required provider credential is missing.
	ErrConfiguration = errors.New("billing configuration error")
	// ErrAuthentication is returned when a webhook delivery cannot be authenticated.
	ErrAuthentication = errors.New("webhook authentication failed")
	// ErrInvalidSignature is returned when the signature header does not match the body.
	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", ErrAuthentication)
	// ErrValidation is returned when a webhook body is malformed.
	ErrValidation = errors.New("webhook validation failed")
	// ErrInvalidPayload is returned when a body is not the expected JSON document.
	ErrInvalidPayload = fmt.Errorf("%w: invalid payload", ErrValidation)
	// ErrUnprocessableEvent is returned when a recognised event has no resolvable target row.
	ErrUnprocessableEvent = errors.New("unprocessable subscription event")
	// ErrStoreWrite is returned when the subscription store rejects a write.
	ErrStoreWrite = errors.New("subscription store write failed")
	// ErrSubscriptionNotFound is returned by repositories when no row matches.
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrWebhookEventNotFound is returned when a dispatched delivery has no event log row.
	ErrWebhookEventNotFound = errors.New("webhook event not found")
	// ErrStaleEvent is returned when an event is older than the stored provider state.
	ErrStaleEvent = errors.New("stale subscription event")
)

// IsRetryable reports whether processing err may succeed on a later attempt.
// Only store failures qualify; everything else is terminal for the delivery.
func IsRetryable(err error) bool {
	return err != nil && errors.Is(err, ErrStoreWrite)
}
