package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FlexibleString accepts both JSON strings and numbers. The provider sends
// most identifiers as numbers inside attributes but as strings elsewhere.
type FlexibleString string

func (f *FlexibleString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = FlexibleString(n.String())
	return nil
}

func (f FlexibleString) String() string {
	return string(f)
}

// WebhookPayload is the JSON:API document delivered by the billing provider.
type WebhookPayload struct {
	Meta WebhookMeta `json:"meta"`
	Data WebhookData `json:"data"`
}

type WebhookMeta struct {
	EventName  string      `json:"event_name"`
	TestMode   bool        `json:"test_mode"`
	WebhookID  string      `json:"webhook_id"`
	CustomData *CustomData `json:"custom_data,omitempty"`
}

// CustomData carries the values passed through checkout_data.custom.
type CustomData struct {
	UserID FlexibleString `json:"user_id"`
}

type WebhookData struct {
	ID         FlexibleString         `json:"id"`
	Type       string                 `json:"type"`
	Attributes SubscriptionAttributes `json:"attributes"`
}

// PauseAttributes describes a paused subscription's pause window.
type PauseAttributes struct {
	Mode      string     `json:"mode"`
	ResumesAt *time.Time `json:"resumes_at"`
}

// SubscriptionAttributes covers both subscription objects and the
// subscription invoices sent with payment events.
type SubscriptionAttributes struct {
	StoreID      FlexibleString   `json:"store_id"`
	CustomerID   FlexibleString   `json:"customer_id"`
	OrderID      FlexibleString   `json:"order_id"`
	ProductID    FlexibleString   `json:"product_id"`
	VariantID    FlexibleString   `json:"variant_id"`
	ProductName  string           `json:"product_name"`
	VariantName  string           `json:"variant_name"`
	UserName     string           `json:"user_name"`
	UserEmail    string           `json:"user_email"`
	Status       string           `json:"status"`
	Cancelled    bool             `json:"cancelled"`
	Pause        *PauseAttributes `json:"pause"`
	CardBrand    string           `json:"card_brand"`
	CardLastFour string           `json:"card_last_four"`
	TrialEndsAt  *time.Time       `json:"trial_ends_at"`
	RenewsAt     *time.Time       `json:"renews_at"`
	EndsAt       *time.Time       `json:"ends_at"`
	CreatedAt    *time.Time       `json:"created_at"`
	UpdatedAt    *time.Time       `json:"updated_at"`

	// Invoice-only fields.
	SubscriptionID FlexibleString `json:"subscription_id"`
	BillingReason  string         `json:"billing_reason"`
	Refunded       bool           `json:"refunded"`
}

// UserID returns the user id passed through checkout custom data, if any.
func (p *WebhookPayload) UserID() string {
	if p.Meta.CustomData == nil {
		return ""
	}
	return strings.TrimSpace(p.Meta.CustomData.UserID.String())
}

// ParseWebhookPayload decodes a raw webhook body. It must only be called
// after the signature over the same bytes has been verified.
func ParseWebhookPayload(raw []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	p.Meta.EventName = strings.TrimSpace(p.Meta.EventName)
	if p.Meta.EventName == "" {
		return nil, fmt.Errorf("%w: meta.event_name is required", ErrInvalidPayload)
	}
	if strings.TrimSpace(p.Data.ID.String()) == "" {
		return nil, fmt.Errorf("%w: data.id is required", ErrInvalidPayload)
	}
	return &p, nil
}
