package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/flomify/flomify/app/models"
)

// EventName is a billing provider webhook event name.
type EventName string

const (
	EventSubscriptionCreated          EventName = "subscription_created"
	EventSubscriptionUpdated          EventName = "subscription_updated"
	EventSubscriptionCancelled        EventName = "subscription_cancelled"
	EventSubscriptionResumed          EventName = "subscription_resumed"
	EventSubscriptionExpired          EventName = "subscription_expired"
	EventSubscriptionPaused           EventName = "subscription_paused"
	EventSubscriptionUnpaused         EventName = "subscription_unpaused"
	EventSubscriptionPaymentFailed    EventName = "subscription_payment_failed"
	EventSubscriptionPaymentSuccess   EventName = "subscription_payment_success"
	EventSubscriptionPaymentRecovered EventName = "subscription_payment_recovered"
	EventSubscriptionPaymentRefunded  EventName = "subscription_payment_refunded"
	EventSubscriptionPlanChanged      EventName = "subscription_plan_changed"
)

// AllEvents lists every event the mapper understands.
var AllEvents = []EventName{
	EventSubscriptionCreated,
	EventSubscriptionUpdated,
	EventSubscriptionCancelled,
	EventSubscriptionResumed,
	EventSubscriptionExpired,
	EventSubscriptionPaused,
	EventSubscriptionUnpaused,
	EventSubscriptionPaymentFailed,
	EventSubscriptionPaymentSuccess,
	EventSubscriptionPaymentRecovered,
	EventSubscriptionPaymentRefunded,
	EventSubscriptionPlanChanged,
}

const invoiceDataType = "subscription-invoices"

// Transition is the store change produced by one webhook event.
type Transition struct {
	Event                  EventName
	ProviderSubscriptionID string
	// Upsert is set for events carrying the full subscription object. All
	// other transitions only update an existing row.
	Upsert bool
	// UserID comes from checkout custom data and may be empty.
	UserID string
	Update SubscriptionUpdate
	// ProviderUpdatedAt is the provider's last modification time of the
	// subscription object, nil for invoice payloads.
	ProviderUpdatedAt *time.Time
}

type eventMapper func(p *WebhookPayload, now time.Time) (SubscriptionUpdate, error)

var eventMappers = map[EventName]eventMapper{
	EventSubscriptionCreated:          mapCreated,
	EventSubscriptionUpdated:          mapUpdated,
	EventSubscriptionCancelled:        mapCancelled,
	EventSubscriptionResumed:          mapResumed,
	EventSubscriptionExpired:          mapExpired,
	EventSubscriptionPaused:           mapPaused,
	EventSubscriptionUnpaused:         mapUnpaused,
	EventSubscriptionPaymentFailed:    mapPaymentFailed,
	EventSubscriptionPaymentSuccess:   mapPaymentSucceeded,
	EventSubscriptionPaymentRecovered: mapPaymentSucceeded,
	EventSubscriptionPaymentRefunded:  mapPaymentRefunded,
	EventSubscriptionPlanChanged:      mapPlanChanged,
}

var upsertEvents = map[EventName]bool{
	EventSubscriptionCreated: true,
	EventSubscriptionUpdated: true,
}

// IsKnownEvent reports whether name has a mapper.
func IsKnownEvent(name string) bool {
	_, ok := eventMappers[EventName(name)]
	return ok
}

// MapEvent translates a webhook payload into a Transition. Unknown event
// names yield (nil, nil).
func MapEvent(p *WebhookPayload) (*Transition, error) {
	return mapEventAt(p, time.Now().UTC())
}

func mapEventAt(p *WebhookPayload, now time.Time) (*Transition, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}
	name := EventName(p.Meta.EventName)
	mapper, ok := eventMappers[name]
	if !ok {
		return nil, nil
	}

	subID := SubscriptionIDFor(p)
	if subID == "" {
		return nil, fmt.Errorf("%w: %s without subscription id", ErrUnprocessableEvent, name)
	}

	update, err := mapper(p, now)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", name, err)
	}

	t := &Transition{
		Event:                  name,
		ProviderSubscriptionID: subID,
		Upsert:                 upsertEvents[name],
		UserID:                 p.UserID(),
		Update:                 update,
	}
	if !isInvoice(p) && p.Data.Attributes.UpdatedAt != nil {
		t.ProviderUpdatedAt = utcPtr(p.Data.Attributes.UpdatedAt)
		t.Update.ProviderUpdatedAt = t.ProviderUpdatedAt
	}
	return t, nil
}

// SubscriptionIDFor returns the provider subscription id an event targets.
// Payment events carry an invoice whose subscription_id points at the subscription.
func SubscriptionIDFor(p *WebhookPayload) string {
	if isInvoice(p) {
		if id := strings.TrimSpace(p.Data.Attributes.SubscriptionID.String()); id != "" {
			return id
		}
	}
	return strings.TrimSpace(p.Data.ID.String())
}

func isInvoice(p *WebhookPayload) bool {
	return p.Data.Type == invoiceDataType
}

func mapCreated(p *WebhookPayload, now time.Time) (SubscriptionUpdate, error) {
	u, err := mapSubscriptionObject(p, now)
	if err != nil {
		return u, err
	}
	if p.Data.Attributes.CreatedAt != nil {
		u.CurrentPeriodStart = utcPtr(p.Data.Attributes.CreatedAt)
	}
	return u, nil
}

func mapUpdated(p *WebhookPayload, now time.Time) (SubscriptionUpdate, error) {
	return mapSubscriptionObject(p, now)
}

// mapSubscriptionObject mirrors the provider's view of the subscription.
func mapSubscriptionObject(p *WebhookPayload, now time.Time) (SubscriptionUpdate, error) {
	attrs := p.Data.Attributes
	status, ok := NormalizeStatus(attrs.Status)
	if !ok {
		return SubscriptionUpdate{}, fmt.Errorf("%w: unknown provider status %q", ErrUnprocessableEvent, attrs.Status)
	}

	u := SubscriptionUpdate{
		Status:            strPtr(status),
		PaymentStatus:     strPtr(models.PaymentStatusPaid),
		CancelAtPeriodEnd: boolPtr(attrs.Cancelled),
	}
	if end := periodEnd(attrs); end != nil {
		u.CurrentPeriodEnd = end
	}
	if status == models.SubscriptionStatusPaused {
		setPauseWindow(&u, attrs, now)
	} else {
		u.ClearPause = true
	}
	setMetadata(&u, attrs)
	return u, nil
}

func mapCancelled(p *WebhookPayload, _ time.Time) (SubscriptionUpdate, error) {
	u := SubscriptionUpdate{
		Status:            strPtr(models.SubscriptionStatusCancelled),
		CancelAtPeriodEnd: boolPtr(true),
	}
	if p.Data.Attributes.EndsAt != nil {
		u.CurrentPeriodEnd = utcPtr(p.Data.Attributes.EndsAt)
	}
	return u, nil
}

func mapResumed(p *WebhookPayload, _ time.Time) (SubscriptionUpdate, error) {
	u := SubscriptionUpdate{
		Status:            strPtr(models.SubscriptionStatusActive),
		CancelAtPeriodEnd: boolPtr(false),
	}
	if p.Data.Attributes.RenewsAt != nil {
		u.CurrentPeriodEnd = utcPtr(p.Data.Attributes.RenewsAt)
	}
	return u, nil
}

func mapExpired(_ *WebhookPayload, _ time.Time) (SubscriptionUpdate, error) {
	return SubscriptionUpdate{Status: strPtr(models.SubscriptionStatusExpired)}, nil
}

func mapPaused(p *WebhookPayload, now time.Time) (SubscriptionUpdate, error) {
	u := SubscriptionUpdate{Status: strPtr(models.SubscriptionStatusPaused)}
	setPauseWindow(&u, p.Data.Attributes, now)
	return u, nil
}

func mapUnpaused(_ *WebhookPayload, _ time.Time) (SubscriptionUpdate, error) {
	return SubscriptionUpdate{
		Status:     strPtr(models.SubscriptionStatusActive),
		ClearPause: true,
	}, nil
}

func mapPaymentFailed(_ *WebhookPayload, _ time.Time) (SubscriptionUpdate, error) {
	return SubscriptionUpdate{
		PaymentStatus:            strPtr(models.PaymentStatusFailed),
		IncrementRenewalAttempts: true,
	}, nil
}

func mapPaymentSucceeded(p *WebhookPayload, _ time.Time) (SubscriptionUpdate, error) {
	attrs := p.Data.Attributes
	u := SubscriptionUpdate{
		Status:               strPtr(models.SubscriptionStatusActive),
		PaymentStatus:        strPtr(models.PaymentStatusPaid),
		ResetRenewalAttempts: true,
	}
	if attrs.RenewsAt != nil {
		u.CurrentPeriodEnd = utcPtr(attrs.RenewsAt)
	}
	if attrs.CreatedAt != nil {
		u.CurrentPeriodStart = utcPtr(attrs.CreatedAt)
	}
	if attrs.CardBrand != "" {
		u.CardBrand = strPtr(attrs.CardBrand)
	}
	if attrs.CardLastFour != "" {
		u.CardLastFour = strPtr(attrs.CardLastFour)
	}
	return u, nil
}

func mapPaymentRefunded(_ *WebhookPayload, _ time.Time) (SubscriptionUpdate, error) {
	return SubscriptionUpdate{PaymentStatus: strPtr(models.PaymentStatusRefunded)}, nil
}

func mapPlanChanged(p *WebhookPayload, _ time.Time) (SubscriptionUpdate, error) {
	var u SubscriptionUpdate
	setMetadata(&u, p.Data.Attributes)
	return u, nil
}

func periodEnd(attrs SubscriptionAttributes) *time.Time {
	if attrs.RenewsAt != nil {
		return utcPtr(attrs.RenewsAt)
	}
	if attrs.EndsAt != nil {
		return utcPtr(attrs.EndsAt)
	}
	return nil
}

func setPauseWindow(u *SubscriptionUpdate, attrs SubscriptionAttributes, now time.Time) {
	start := now.UTC()
	if attrs.UpdatedAt != nil {
		start = attrs.UpdatedAt.UTC()
	}
	u.PauseStartsAt = &start
	if attrs.Pause != nil && attrs.Pause.ResumesAt != nil {
		u.PauseResumesAt = utcPtr(attrs.Pause.ResumesAt)
	}
}

func setMetadata(u *SubscriptionUpdate, attrs SubscriptionAttributes) {
	set := func(dst **string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = strPtr(v)
		}
	}
	set(&u.CustomerID, attrs.CustomerID.String())
	set(&u.ProductID, attrs.ProductID.String())
	set(&u.VariantID, attrs.VariantID.String())
	set(&u.VariantName, attrs.VariantName)
	set(&u.CardBrand, attrs.CardBrand)
	set(&u.CardLastFour, attrs.CardLastFour)
}
