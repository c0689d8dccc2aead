package billing

import (
	"time"

	"gorm.io/gorm"

	"github.com/flomify/flomify/app/models"
)

// SubscriptionUpdate is the set of column changes produced by one event.
// Nil pointers leave the stored column untouched.
type SubscriptionUpdate struct {
	Status             *string
	PaymentStatus      *string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  *bool
	PauseStartsAt      *time.Time
	PauseResumesAt     *time.Time
	ClearPause         bool

	IncrementRenewalAttempts bool
	ResetRenewalAttempts     bool

	CustomerID   *string
	ProductID    *string
	VariantID    *string
	VariantName  *string
	CardBrand    *string
	CardLastFour *string

	ProviderUpdatedAt *time.Time
}

// IsEmpty reports whether the update changes nothing.
func (u SubscriptionUpdate) IsEmpty() bool {
	return len(u.columnValues()) == 0
}

// columnValues returns the column assignments for a partial update.
// Renewal attempts are expressed relative to the stored value.
func (u SubscriptionUpdate) columnValues() map[string]interface{} {
	values := make(map[string]interface{})
	setString := func(col string, v *string) {
		if v != nil {
			values[col] = *v
		}
	}
	setTime := func(col string, v *time.Time) {
		if v != nil {
			values[col] = v.UTC()
		}
	}

	setString("status", u.Status)
	setString("payment_status", u.PaymentStatus)
	setTime("current_period_start", u.CurrentPeriodStart)
	setTime("current_period_end", u.CurrentPeriodEnd)
	if u.CancelAtPeriodEnd != nil {
		values["cancel_at_period_end"] = *u.CancelAtPeriodEnd
	}
	if u.ClearPause {
		values["pause_starts_at"] = nil
		values["pause_resumes_at"] = nil
	} else {
		setTime("pause_starts_at", u.PauseStartsAt)
		setTime("pause_resumes_at", u.PauseResumesAt)
	}
	switch {
	case u.ResetRenewalAttempts:
		values["renewal_attempts"] = 0
	case u.IncrementRenewalAttempts:
		values["renewal_attempts"] = gorm.Expr("renewal_attempts + ?", 1)
	}
	setString("customer_id", u.CustomerID)
	setString("product_id", u.ProductID)
	setString("variant_id", u.VariantID)
	setString("variant_name", u.VariantName)
	setString("card_brand", u.CardBrand)
	setString("card_last_four", u.CardLastFour)
	setTime("provider_updated_at", u.ProviderUpdatedAt)
	return values
}

// upsertColumns lists the columns an upsert may overwrite on conflict.
// user_id and renewal_attempts are never part of it.
func (u SubscriptionUpdate) upsertColumns() []string {
	values := u.columnValues()
	delete(values, "renewal_attempts")
	cols := make([]string, 0, len(values)+1)
	for _, col := range subscriptionColumnOrder {
		if _, ok := values[col]; ok {
			cols = append(cols, col)
		}
	}
	return append(cols, "updated_at")
}

var subscriptionColumnOrder = []string{
	"status",
	"payment_status",
	"current_period_start",
	"current_period_end",
	"cancel_at_period_end",
	"pause_starts_at",
	"pause_resumes_at",
	"renewal_attempts",
	"customer_id",
	"product_id",
	"variant_id",
	"variant_name",
	"card_brand",
	"card_last_four",
	"provider_updated_at",
}

// ApplyTo merges the update into sub in memory.
func (u SubscriptionUpdate) ApplyTo(sub *models.Subscription) {
	if u.Status != nil {
		sub.Status = *u.Status
	}
	if u.PaymentStatus != nil {
		sub.PaymentStatus = *u.PaymentStatus
	}
	if u.CurrentPeriodStart != nil {
		sub.CurrentPeriodStart = utcPtr(u.CurrentPeriodStart)
	}
	if u.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = utcPtr(u.CurrentPeriodEnd)
	}
	if u.CancelAtPeriodEnd != nil {
		sub.CancelAtPeriodEnd = *u.CancelAtPeriodEnd
	}
	if u.ClearPause {
		sub.PauseStartsAt = nil
		sub.PauseResumesAt = nil
	} else {
		if u.PauseStartsAt != nil {
			sub.PauseStartsAt = utcPtr(u.PauseStartsAt)
		}
		if u.PauseResumesAt != nil {
			sub.PauseResumesAt = utcPtr(u.PauseResumesAt)
		}
	}
	switch {
	case u.ResetRenewalAttempts:
		sub.RenewalAttempts = 0
	case u.IncrementRenewalAttempts:
		sub.RenewalAttempts++
	}
	if u.CustomerID != nil {
		sub.CustomerID = *u.CustomerID
	}
	if u.ProductID != nil {
		sub.ProductID = *u.ProductID
	}
	if u.VariantID != nil {
		sub.VariantID = *u.VariantID
	}
	if u.VariantName != nil {
		sub.VariantName = *u.VariantName
	}
	if u.CardBrand != nil {
		sub.CardBrand = *u.CardBrand
	}
	if u.CardLastFour != nil {
		sub.CardLastFour = *u.CardLastFour
	}
	if u.ProviderUpdatedAt != nil {
		sub.ProviderUpdatedAt = utcPtr(u.ProviderUpdatedAt)
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func strPtr(s string) *string {
	return &s
}

func boolPtr(b bool) *bool {
	return &b
}
