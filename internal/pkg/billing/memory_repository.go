package billing

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/flomify/flomify/app/models"
)

// MemoryRepository is an in-process Repository for tests. SetWriteError
// simulates a failing store.
type MemoryRepository struct {
	mu            sync.Mutex
	subscriptions map[string]*models.Subscription
	events        map[uint]*models.BillingWebhookEvent
	eventKeys     map[string]uint
	nextSubID     uint
	nextEventID   uint
	writes        int
	writeErr      error
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		subscriptions: make(map[string]*models.Subscription),
		events:        make(map[uint]*models.BillingWebhookEvent),
		eventKeys:     make(map[string]uint),
	}
}

// SetWriteError makes every following subscription write fail with err.
func (r *MemoryRepository) SetWriteError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeErr = err
}

// Writes returns the number of subscription writes applied so far.
func (r *MemoryRepository) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// Subscriptions returns copies of all stored subscriptions.
func (r *MemoryRepository) Subscriptions() []models.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Subscription, 0, len(r.subscriptions))
	for _, s := range r.subscriptions {
		out = append(out, *s)
	}
	return out
}

func (r *MemoryRepository) FindSubscription(_ context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subscriptions[providerSubscriptionID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (r *MemoryRepository) FindLatestSubscriptionByUser(_ context.Context, userID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Subscription
	for _, s := range r.subscriptions {
		if s.UserID != userID {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) ||
			(s.CreatedAt.Equal(latest.CreatedAt) && s.ID > latest.ID) {
			latest = s
		}
	}
	if latest == nil {
		return nil, ErrSubscriptionNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *MemoryRepository) UpsertSubscription(_ context.Context, userID, providerSubscriptionID string, update SubscriptionUpdate) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return nil, r.writeErr
	}

	now := time.Now().UTC()
	sub, ok := r.subscriptions[providerSubscriptionID]
	if !ok {
		r.nextSubID++
		sub = newSubscription(userID, providerSubscriptionID, update)
		sub.ID = r.nextSubID
		sub.CreatedAt = now
		r.subscriptions[providerSubscriptionID] = sub
	} else {
		// renewal_attempts is never touched by an upsert
		attempts := sub.RenewalAttempts
		update.ApplyTo(sub)
		sub.RenewalAttempts = attempts
	}
	sub.UpdatedAt = now
	r.writes++
	cp := *sub
	return &cp, nil
}

func (r *MemoryRepository) UpdateSubscription(_ context.Context, providerSubscriptionID string, update SubscriptionUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	sub, ok := r.subscriptions[providerSubscriptionID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	update.ApplyTo(sub)
	sub.UpdatedAt = time.Now().UTC()
	r.writes++
	return nil
}

func (r *MemoryRepository) ExpireEndedSubscriptions(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return 0, r.writeErr
	}
	var n int64
	for _, s := range r.subscriptions {
		if !s.CancelAtPeriodEnd || s.CurrentPeriodEnd == nil || s.CurrentPeriodEnd.After(now) {
			continue
		}
		if s.Status != models.SubscriptionStatusActive && s.Status != models.SubscriptionStatusCancelled {
			continue
		}
		s.Status = models.SubscriptionStatusExpired
		s.UpdatedAt = now.UTC()
		n++
	}
	r.writes += int(n)
	return n, nil
}

func (r *MemoryRepository) CreateWebhookEventIfNotExists(_ context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := event.Provider + "|" + event.ProviderEventID
	if id, ok := r.eventKeys[key]; ok {
		cp := *r.events[id]
		return false, &cp, nil
	}
	r.nextEventID++
	stored := *event
	stored.ID = r.nextEventID
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt
	r.events[stored.ID] = &stored
	r.eventKeys[key] = stored.ID
	event.ID = stored.ID
	cp := stored
	return true, &cp, nil
}

func (r *MemoryRepository) GetWebhookEvent(_ context.Context, id uint) (*models.BillingWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *ev
	return &cp, nil
}

func (r *MemoryRepository) MarkWebhookProcessed(_ context.Context, id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now().UTC()
	ev.ProcessedAt = &now
	ev.ProcessingError = processingError
	ev.Attempts++
	ev.UpdatedAt = now
	return nil
}

// WebhookEvents returns copies of all recorded deliveries.
func (r *MemoryRepository) WebhookEvents() []models.BillingWebhookEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.BillingWebhookEvent, 0, len(r.events))
	for id := uint(1); id <= r.nextEventID; id++ {
		if ev, ok := r.events[id]; ok {
			out = append(out, *ev)
		}
	}
	return out
}
