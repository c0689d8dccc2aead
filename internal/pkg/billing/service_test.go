package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flomify/flomify/app/models"
)

func newTestService(t *testing.T) (*Service, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	now := time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC)
	return NewService(repo, WithClock(func() time.Time { return now })), repo
}

func createdBody(t *testing.T) []byte {
	return webhookBody(t, "subscription_created", "", "s1", "u1", map[string]interface{}{
		"status":     "active",
		"renews_at":  "2025-01-01T00:00:00Z",
		"created_at": "2024-12-01T00:00:00Z",
		"updated_at": "2024-12-01T00:00:00Z",
	})
}

func TestService_SubscriptionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	sub, err := svc.ApplyEvent(ctx, mustParse(t, createdBody(t)))
	require.NoError(t, err)
	require.Len(t, repo.Subscriptions(), 1)
	assert.Equal(t, "u1", sub.UserID)
	assert.Equal(t, "s1", sub.ProviderSubscriptionID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "2025-01-01T00:00:00Z", sub.CurrentPeriodEnd.Format(time.RFC3339))
	assert.Equal(t, 0, sub.RenewalAttempts)

	sub, err = svc.ApplyEvent(ctx, mustParse(t, webhookBody(t, "subscription_payment_failed", "subscription-invoices", "inv1", "", map[string]interface{}{
		"subscription_id": "s1",
	})))
	require.NoError(t, err)
	assert.Equal(t, 1, sub.RenewalAttempts)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, models.PaymentStatusFailed, sub.PaymentStatus)

	sub, err = svc.ApplyEvent(ctx, mustParse(t, webhookBody(t, "subscription_cancelled", "", "s1", "", nil)))
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, "u1", sub.UserID)
	require.Len(t, repo.Subscriptions(), 1)
}

func TestService_PaymentSuccessResetsRenewalAttempts(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.ApplyEvent(ctx, mustParse(t, createdBody(t)))
	require.NoError(t, err)

	failed := mustParse(t, webhookBody(t, "subscription_payment_failed", "subscription-invoices", "inv1", "", map[string]interface{}{"subscription_id": "s1"}))
	for i := 0; i < 2; i++ {
		_, err = svc.ApplyEvent(ctx, failed)
		require.NoError(t, err)
	}

	sub, err := svc.ApplyEvent(ctx, mustParse(t, webhookBody(t, "subscription_payment_success", "subscription-invoices", "inv2", "", map[string]interface{}{
		"subscription_id": "s1",
		"created_at":      "2025-01-01T00:00:00Z",
	})))
	require.NoError(t, err)
	assert.Equal(t, 0, sub.RenewalAttempts)
	assert.Equal(t, models.PaymentStatusPaid, sub.PaymentStatus)
	assert.Equal(t, "2025-01-01T00:00:00Z", sub.CurrentPeriodStart.Format(time.RFC3339))
}

func TestService_UpdatedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	_, err := svc.ApplyEvent(ctx, mustParse(t, createdBody(t)))
	require.NoError(t, err)

	updated := mustParse(t, webhookBody(t, "subscription_updated", "", "s1", "u1", map[string]interface{}{
		"status":       "active",
		"renews_at":    "2025-02-01T00:00:00Z",
		"updated_at":   "2024-12-20T00:00:00Z",
		"variant_name": "Yearly",
	}))

	once, err := svc.ApplyEvent(ctx, updated)
	require.NoError(t, err)
	twice, err := svc.ApplyEvent(ctx, updated)
	require.NoError(t, err)

	once.UpdatedAt, twice.UpdatedAt = time.Time{}, time.Time{}
	assert.Equal(t, once, twice)
	assert.Len(t, repo.Subscriptions(), 1)
}

func TestService_UnknownEventWritesNothing(t *testing.T) {
	svc, repo := newTestService(t)

	sub, err := svc.ApplyEvent(context.Background(), mustParse(t, webhookBody(t, "license_key_created", "license-keys", "1", "u1", nil)))
	assert.NoError(t, err)
	assert.Nil(t, sub)
	assert.Equal(t, 0, repo.Writes())
}

func TestService_UserIDRecovery(t *testing.T) {
	ctx := context.Background()

	t.Run("no user and no existing row is unprocessable", func(t *testing.T) {
		svc, repo := newTestService(t)
		_, err := svc.ApplyEvent(ctx, mustParse(t, webhookBody(t, "subscription_created", "", "s9", "", map[string]interface{}{"status": "active"})))
		assert.ErrorIs(t, err, ErrUnprocessableEvent)
		assert.False(t, IsRetryable(err))
		assert.Equal(t, 0, repo.Writes())
	})

	t.Run("user recovered from existing row", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.ApplyEvent(ctx, mustParse(t, createdBody(t)))
		require.NoError(t, err)

		sub, err := svc.ApplyEvent(ctx, mustParse(t, webhookBody(t, "subscription_updated", "", "s1", "", map[string]interface{}{"status": "paused"})))
		require.NoError(t, err)
		assert.Equal(t, "u1", sub.UserID)
		assert.Equal(t, models.SubscriptionStatusPaused, sub.Status)
		assert.NotNil(t, sub.PauseStartsAt)
	})

	t.Run("user id is never reassigned", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.ApplyEvent(ctx, mustParse(t, createdBody(t)))
		require.NoError(t, err)

		sub, err := svc.ApplyEvent(ctx, mustParse(t, webhookBody(t, "subscription_updated", "", "s1", "u2", map[string]interface{}{"status": "active"})))
		require.NoError(t, err)
		assert.Equal(t, "u1", sub.UserID)
	})
}

func TestService_UpdateForUnknownSubscription(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ApplyEvent(context.Background(), mustParse(t, webhookBody(t, "subscription_cancelled", "", "missing", "", nil)))
	assert.ErrorIs(t, err, ErrUnprocessableEvent)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestService_StaleEventIsSkipped(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.ApplyEvent(ctx, mustParse(t, createdBody(t)))
	require.NoError(t, err)

	newer := mustParse(t, webhookBody(t, "subscription_updated", "", "s1", "u1", map[string]interface{}{
		"status":     "cancelled",
		"cancelled":  true,
		"updated_at": "2024-12-10T00:00:00Z",
	}))
	older := mustParse(t, webhookBody(t, "subscription_updated", "", "s1", "u1", map[string]interface{}{
		"status":     "active",
		"updated_at": "2024-12-05T00:00:00Z",
	}))

	_, err = svc.ApplyEvent(ctx, newer)
	require.NoError(t, err)

	_, err = svc.ApplyEvent(ctx, older)
	assert.ErrorIs(t, err, ErrStaleEvent)
	assert.False(t, IsRetryable(err))

	sub, err := svc.FindSubscription(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
}

func TestService_StoreFailureIsRetryable(t *testing.T) {
	svc, repo := newTestService(t)
	repo.SetWriteError(errors.New("connection reset"))

	_, err := svc.ApplyEvent(context.Background(), mustParse(t, createdBody(t)))
	assert.ErrorIs(t, err, ErrStoreWrite)
	assert.True(t, IsRetryable(err))
}

func TestService_RecordAndProcessDelivery(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	raw := createdBody(t)

	ev, dispatch, err := svc.RecordDelivery(ctx, "LemonSqueezy", raw, mustParse(t, raw))
	require.NoError(t, err)
	assert.True(t, dispatch)
	assert.Equal(t, models.BillingProviderLemonSqueezy, ev.Provider)
	assert.Equal(t, "subscription_created", ev.EventName)
	assert.Equal(t, "s1", ev.ProviderSubscriptionID)
	assert.Contains(t, ev.ProviderEventID, "hash:")

	require.NoError(t, svc.ProcessDelivery(ctx, ev.ID))

	events := repo.WebhookEvents()
	require.Len(t, events, 1)
	assert.True(t, events[0].Succeeded())
	assert.Equal(t, 1, events[0].Attempts)

	// A redelivery of a processed event is acknowledged without dispatch.
	again, dispatch, err := svc.RecordDelivery(ctx, "lemonsqueezy", raw, mustParse(t, raw))
	require.NoError(t, err)
	assert.False(t, dispatch)
	assert.Equal(t, ev.ID, again.ID)

	// Processing an already processed event is a no-op.
	require.NoError(t, svc.ProcessDelivery(ctx, ev.ID))
	assert.Equal(t, 1, repo.WebhookEvents()[0].Attempts)
}

func TestService_FailedDeliveryIsDispatchedAgain(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	raw := webhookBody(t, "subscription_created", "", "s2", "", map[string]interface{}{"status": "active"})

	ev, dispatch, err := svc.RecordDelivery(ctx, "lemonsqueezy", raw, mustParse(t, raw))
	require.NoError(t, err)
	require.True(t, dispatch)

	err = svc.ProcessDelivery(ctx, ev.ID)
	assert.ErrorIs(t, err, ErrUnprocessableEvent)
	stored := repo.WebhookEvents()[0]
	assert.False(t, stored.Succeeded())
	assert.NotEmpty(t, stored.ProcessingError)

	_, dispatch, err = svc.RecordDelivery(ctx, "lemonsqueezy", raw, mustParse(t, raw))
	require.NoError(t, err)
	assert.True(t, dispatch)
}

func TestService_ExpireEndedSubscriptions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	// period ends 2024-12-10, clock is 2024-12-15
	_, err := svc.ApplyEvent(ctx, mustParse(t, webhookBody(t, "subscription_created", "", "s1", "u1", map[string]interface{}{
		"status":    "active",
		"cancelled": true,
		"ends_at":   "2024-12-10T00:00:00Z",
	})))
	require.NoError(t, err)
	_, err = svc.ApplyEvent(ctx, mustParse(t, webhookBody(t, "subscription_created", "", "s2", "u2", map[string]interface{}{
		"status":    "active",
		"renews_at": "2025-01-10T00:00:00Z",
	})))
	require.NoError(t, err)

	n, err := svc.ExpireEndedSubscriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	s1, _ := svc.FindSubscription(ctx, "s1")
	s2, _ := svc.FindSubscription(ctx, "s2")
	assert.Equal(t, models.SubscriptionStatusExpired, s1.Status)
	assert.Equal(t, models.SubscriptionStatusActive, s2.Status)
}

func TestService_CanAccessItem(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	free := &models.Item{LicenseType: models.LicenseFree}
	premium := &models.Item{LicenseType: models.LicensePremium}

	ok, err := svc.CanAccessItem(ctx, "u1", free)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.CanAccessItem(ctx, "u1", premium)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.ApplyEvent(ctx, mustParse(t, createdBody(t)))
	require.NoError(t, err)

	ok, err = svc.CanAccessItem(ctx, "u1", premium)
	require.NoError(t, err)
	assert.True(t, ok)

	sub, entitled, err := svc.UserEntitlement(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, entitled)
	assert.Equal(t, "u1", sub.UserID)
}

func TestService_ProcessDeliveryUnknownEvent(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.ProcessDelivery(context.Background(), 999)
	assert.ErrorIs(t, err, ErrWebhookEventNotFound)
	assert.False(t, IsRetryable(err))
}
