package billing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flomify/flomify/app/models"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	FindSubscription(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)
	FindLatestSubscriptionByUser(ctx context.Context, userID string) (*models.Subscription, error)
	UpsertSubscription(ctx context.Context, userID, providerSubscriptionID string, update SubscriptionUpdate) (*models.Subscription, error)
	UpdateSubscription(ctx context.Context, providerSubscriptionID string, update SubscriptionUpdate) error
	ExpireEndedSubscriptions(ctx context.Context, now time.Time) (int64, error)
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	GetWebhookEvent(ctx context.Context, id uint) (*models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindSubscription(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) FindLatestSubscriptionByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := models.FindLatestSubscriptionByUser(r.db.WithContext(ctx), userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	return sub, err
}

// UpsertSubscription inserts a row for providerSubscriptionID or merges update
// into the existing one. user_id, renewal_attempts and created_at are only
// written on insert.
func (r *gormRepository) UpsertSubscription(ctx context.Context, userID, providerSubscriptionID string, update SubscriptionUpdate) (*models.Subscription, error) {
	sub := newSubscription(userID, providerSubscriptionID, update)

	if err := upsertSubscriptionQuery(r.db.WithContext(ctx), sub, update).Error; err != nil {
		return nil, err
	}

	// Ensure the returned row reflects the merged state.
	var stored models.Subscription
	if err := r.db.WithContext(ctx).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *gormRepository) UpdateSubscription(ctx context.Context, providerSubscriptionID string, update SubscriptionUpdate) error {
	tx := updateSubscriptionQuery(r.db.WithContext(ctx), providerSubscriptionID, update, time.Now())
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// ExpireEndedSubscriptions moves subscriptions scheduled to end at period end
// into the expired status once that period is over.
func (r *gormRepository) ExpireEndedSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	tx := expireSubscriptionsQuery(r.db.WithContext(ctx), now)
	return tx.RowsAffected, tx.Error
}

func upsertSubscriptionQuery(db *gorm.DB, sub *models.Subscription, update SubscriptionUpdate) *gorm.DB {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_subscription_id"}},
		DoUpdates: clause.AssignmentColumns(update.upsertColumns()),
	}).Create(sub)
}

func updateSubscriptionQuery(db *gorm.DB, providerSubscriptionID string, update SubscriptionUpdate, now time.Time) *gorm.DB {
	values := update.columnValues()
	values["updated_at"] = now.UTC()

	return db.Model(&models.Subscription{}).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		Updates(values)
}

func expireSubscriptionsQuery(db *gorm.DB, now time.Time) *gorm.DB {
	return db.Model(&models.Subscription{}).
		Where("cancel_at_period_end = ? AND current_period_end IS NOT NULL AND current_period_end <= ?", true, now.UTC()).
		Where("status IN ?", []string{models.SubscriptionStatusActive, models.SubscriptionStatusCancelled}).
		Updates(map[string]interface{}{
			"status":     models.SubscriptionStatusExpired,
			"updated_at": now.UTC(),
		})
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) GetWebhookEvent(ctx context.Context, id uint) (*models.BillingWebhookEvent, error) {
	var event models.BillingWebhookEvent
	if err := r.db.WithContext(ctx).First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
		"attempts":         gorm.Expr("attempts + ?", 1),
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// newSubscription builds the row inserted when no subscription exists yet.
func newSubscription(userID, providerSubscriptionID string, update SubscriptionUpdate) *models.Subscription {
	sub := &models.Subscription{
		UserID:                 userID,
		ProviderSubscriptionID: providerSubscriptionID,
		Status:                 models.SubscriptionStatusActive,
		PaymentStatus:          models.PaymentStatusPending,
	}
	update.ApplyTo(sub)
	return sub
}
