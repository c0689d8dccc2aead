package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/flomify/flomify/app/models"
	"github.com/flomify/flomify/internal/pkg/entitlements"
)

// Service reconciles billing provider events into the subscriptions table.
type Service struct {
	repo    Repository
	metrics Metrics
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics sets the metrics collector.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		metrics: NoopMetrics{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	return NewService(NewRepository(db), opts...)
}

// Metrics returns the collector used by the service.
func (s *Service) Metrics() Metrics {
	return s.metrics
}

// ApplyEvent maps a verified payload and writes the resulting transition.
// Unknown events return (nil, nil) without touching the store.
func (s *Service) ApplyEvent(ctx context.Context, p *WebhookPayload) (*models.Subscription, error) {
	t, err := mapEventAt(p, s.now())
	if err != nil {
		return nil, err
	}
	if t == nil {
		log.Infof("[Billing] Ignoring unhandled event %q", p.Meta.EventName)
		return nil, nil
	}

	existing, err := s.repo.FindSubscription(ctx, t.ProviderSubscriptionID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, fmt.Errorf("%w: load %s: %v", ErrStoreWrite, t.ProviderSubscriptionID, err)
	}
	if existing != nil && isStale(existing, t) {
		return nil, fmt.Errorf("%w: %s for %s at %s, stored %s", ErrStaleEvent, t.Event,
			t.ProviderSubscriptionID, t.ProviderUpdatedAt.Format(time.RFC3339), existing.ProviderUpdatedAt.Format(time.RFC3339))
	}

	if t.Upsert {
		return s.upsert(ctx, t, existing)
	}

	if existing == nil {
		return nil, fmt.Errorf("%w: %s for unknown subscription %s: %w", ErrUnprocessableEvent, t.Event, t.ProviderSubscriptionID, ErrSubscriptionNotFound)
	}
	if err := s.repo.UpdateSubscription(ctx, t.ProviderSubscriptionID, t.Update); err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, fmt.Errorf("%w: %s for %s: %w", ErrUnprocessableEvent, t.Event, t.ProviderSubscriptionID, err)
		}
		return nil, fmt.Errorf("%w: update %s: %v", ErrStoreWrite, t.ProviderSubscriptionID, err)
	}
	sub, err := s.repo.FindSubscription(ctx, t.ProviderSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("%w: reload %s: %v", ErrStoreWrite, t.ProviderSubscriptionID, err)
	}
	return sub, nil
}

func (s *Service) upsert(ctx context.Context, t *Transition, existing *models.Subscription) (*models.Subscription, error) {
	userID := t.UserID
	if existing != nil {
		if userID != "" && userID != existing.UserID {
			log.Warnf("[Billing] Event %s for %s carries user %s, keeping owner %s", t.Event, t.ProviderSubscriptionID, userID, existing.UserID)
		}
		userID = existing.UserID
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: %s for %s has no user_id and no existing row", ErrUnprocessableEvent, t.Event, t.ProviderSubscriptionID)
	}

	sub, err := s.repo.UpsertSubscription(ctx, userID, t.ProviderSubscriptionID, t.Update)
	if err != nil {
		return nil, fmt.Errorf("%w: upsert %s: %v", ErrStoreWrite, t.ProviderSubscriptionID, err)
	}
	return sub, nil
}

// isStale reports whether the transition describes an older provider state
// than the one already stored. Equal timestamps are replays and pass.
func isStale(stored *models.Subscription, t *Transition) bool {
	if stored.ProviderUpdatedAt == nil || t.ProviderUpdatedAt == nil {
		return false
	}
	return t.ProviderUpdatedAt.Before(*stored.ProviderUpdatedAt)
}

// RecordDelivery stores a verified delivery in the webhook event log and
// reports whether it still has to be processed. Deliveries already processed
// successfully are not dispatched again.
func (s *Service) RecordDelivery(ctx context.Context, provider string, raw []byte, p *WebhookPayload) (*models.BillingWebhookEvent, bool, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return nil, false, errors.New("provider is required")
	}

	sum := sha256.Sum256(raw)
	event := &models.BillingWebhookEvent{
		Provider:               provider,
		ProviderEventID:        "hash:" + hex.EncodeToString(sum[:]),
		EventName:              p.Meta.EventName,
		ProviderSubscriptionID: SubscriptionIDFor(p),
		PayloadJSON:            string(raw),
	}
	created, stored, err := s.repo.CreateWebhookEventIfNotExists(ctx, event)
	if err != nil {
		return nil, false, err
	}
	if created {
		return stored, true, nil
	}
	if stored.Succeeded() {
		log.Infof("[Billing] Duplicate delivery %s (%s) already processed", stored.ProviderEventID, stored.EventName)
		return stored, false, nil
	}
	return stored, true, nil
}

// ProcessDelivery applies a recorded delivery and stores the outcome on the
// event log row. The returned error is the processing error.
func (s *Service) ProcessDelivery(ctx context.Context, webhookEventID uint) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	ev, err := s.repo.GetWebhookEvent(ctx, webhookEventID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %d", ErrWebhookEventNotFound, webhookEventID)
	}
	if err != nil {
		return fmt.Errorf("%w: load webhook event %d: %v", ErrStoreWrite, webhookEventID, err)
	}
	if ev.Succeeded() {
		return nil
	}

	start := time.Now()
	procErr := s.processPayload(ctx, ev)
	s.metrics.RecordProcessingDuration(ev.EventName, time.Since(start))
	s.metrics.RecordSubscriptionEvent(ev.EventName, resultLabel(ev.EventName, procErr))

	errMsg := ""
	if procErr != nil {
		errMsg = procErr.Error()
		log.Errorf("[Billing] Processing %s (webhook event %d) failed: %v", ev.EventName, ev.ID, procErr)
	}
	if err := s.repo.MarkWebhookProcessed(ctx, ev.ID, errMsg); err != nil {
		log.Errorf("[Billing] Failed to mark webhook event %d processed: %v", ev.ID, err)
	}
	return procErr
}

func (s *Service) processPayload(ctx context.Context, ev *models.BillingWebhookEvent) error {
	p, err := ParseWebhookPayload([]byte(ev.PayloadJSON))
	if err != nil {
		return err
	}
	sub, err := s.ApplyEvent(ctx, p)
	if err != nil {
		return err
	}
	if sub != nil {
		log.Infof("[Billing] Applied %s to %s: status=%s payment_status=%s", p.Meta.EventName, sub.ProviderSubscriptionID, sub.Status, sub.PaymentStatus)
	}
	return nil
}

func resultLabel(eventName string, err error) string {
	switch {
	case err == nil && !IsKnownEvent(eventName):
		return "ignored"
	case err == nil:
		return "applied"
	case errors.Is(err, ErrStaleEvent):
		return "stale"
	case errors.Is(err, ErrUnprocessableEvent):
		return "unprocessable"
	default:
		return "error"
	}
}

// ExpireEndedSubscriptions expires subscriptions whose cancellation took effect.
func (s *Service) ExpireEndedSubscriptions(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireEndedSubscriptions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%w: expire subscriptions: %v", ErrStoreWrite, err)
	}
	if n > 0 {
		log.Infof("[Billing] Expired %d subscriptions at period end", n)
	}
	return n, nil
}

// GetUserSubscription returns the latest subscription of a user.
func (s *Service) GetUserSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user_id is required")
	}
	return s.repo.FindLatestSubscriptionByUser(ctx, userID)
}

// FindSubscription returns the subscription with the given provider id.
func (s *Service) FindSubscription(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	return s.repo.FindSubscription(ctx, strings.TrimSpace(providerSubscriptionID))
}

// UserEntitlement returns the latest subscription of a user (nil when the
// user never subscribed) and whether it currently grants premium access.
func (s *Service) UserEntitlement(ctx context.Context, userID string) (*models.Subscription, bool, error) {
	sub, err := s.GetUserSubscription(ctx, userID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return sub, entitlements.HasPremiumAccess(sub, s.now()), nil
}

// CanAccessItem reports whether the user may copy the item's code.
func (s *Service) CanAccessItem(ctx context.Context, userID string, item *models.Item) (bool, error) {
	if !item.IsPremium() {
		return true, nil
	}
	sub, _, err := s.UserEntitlement(ctx, userID)
	if err != nil {
		return false, err
	}
	return entitlements.CanAccessItem(item, sub, s.now()), nil
}
