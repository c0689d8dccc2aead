package models

import "time"

// BillingProviderLemonSqueezy is the only billing provider served by the webhook endpoint.
const BillingProviderLemonSqueezy = "lemonsqueezy"

// BillingWebhookEvent stores verified provider webhook deliveries together
// with the outcome of their asynchronous processing.
type BillingWebhookEvent struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	Provider               string     `gorm:"type:varchar(20);not null;index:ux_billing_webhook_events_provider_event,unique,priority:1;index" json:"provider"`
	ProviderEventID        string     `gorm:"type:varchar(191);not null;default:'';index:ux_billing_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventName              string     `gorm:"type:varchar(100);not null;index" json:"event_name"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);default:'';index" json:"provider_subscription_id"`
	PayloadJSON            string     `gorm:"type:text;not null" json:"payload_json"`
	Attempts               int        `gorm:"not null;default:0" json:"attempts"`
	ProcessedAt            *time.Time `gorm:"default:null" json:"processed_at,omitempty"`
	ProcessingError        string     `gorm:"type:text" json:"processing_error"`
	CreatedAt              time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Succeeded reports whether the delivery was processed without error.
func (e *BillingWebhookEvent) Succeeded() bool {
	return e != nil && e.ProcessedAt != nil && e.ProcessingError == ""
}
