package models

import (
	"time"

	"gorm.io/gorm"
)

// Subscription status values. Only SubscriptionStatusActive grants premium access.
const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusPaused    = "paused"
)

// Payment status values, informational only.
const (
	PaymentStatusPaid     = "paid"
	PaymentStatusPending  = "pending"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// Subscription mirrors one billing provider subscription. Rows are keyed by
// ProviderSubscriptionID and are never hard-deleted.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UserID                 string     `gorm:"type:varchar(64);not null;index" json:"user_id"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_provider_subscription_id" json:"provider_subscription_id"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	PaymentStatus          string     `gorm:"type:varchar(32);not null;default:'pending'" json:"payment_status"`
	CurrentPeriodStart     *time.Time `gorm:"default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `gorm:"default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool       `gorm:"default:false" json:"cancel_at_period_end"`
	PauseStartsAt          *time.Time `gorm:"default:null" json:"pause_starts_at,omitempty"`
	PauseResumesAt         *time.Time `gorm:"default:null" json:"pause_resumes_at,omitempty"`
	RenewalAttempts        int        `gorm:"not null;default:0" json:"renewal_attempts"`
	CustomerID             string     `gorm:"type:varchar(64);default:''" json:"customer_id"`
	ProductID              string     `gorm:"type:varchar(64);default:''" json:"product_id"`
	VariantID              string     `gorm:"type:varchar(64);default:''" json:"variant_id"`
	VariantName            string     `gorm:"type:varchar(191);default:''" json:"variant_name"`
	CardBrand              string     `gorm:"type:varchar(32);default:''" json:"card_brand"`
	CardLastFour           string     `gorm:"type:varchar(4);default:''" json:"card_last_four"`
	ProviderUpdatedAt      *time.Time `gorm:"default:null" json:"provider_updated_at,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActive reports whether the row is in the only status that gates premium features.
func (s *Subscription) IsActive() bool {
	return s != nil && s.Status == SubscriptionStatusActive
}

// FindLatestSubscriptionByUser returns the most recently created subscription for a user.
func FindLatestSubscriptionByUser(db *gorm.DB, userID string) (*Subscription, error) {
	var sub Subscription
	err := db.Where("user_id = ?", userID).Order("created_at DESC").First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
