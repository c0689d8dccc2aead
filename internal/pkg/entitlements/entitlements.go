package entitlements

import (
	"time"

	"github.com/flomify/flomify/app/models"
)

type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// HasPremiumAccess reports whether sub currently grants premium content.
// Only active subscriptions qualify, and only until their period end.
func HasPremiumAccess(sub *models.Subscription, now time.Time) bool {
	if !sub.IsActive() {
		return false
	}
	if sub.CurrentPeriodEnd == nil {
		return true
	}
	return sub.CurrentPeriodEnd.After(now)
}

// CanAccessItem combines the item license with the user's subscription.
func CanAccessItem(item *models.Item, sub *models.Subscription, now time.Time) bool {
	if item == nil {
		return false
	}
	if !item.IsPremium() {
		return true
	}
	return HasPremiumAccess(sub, now)
}
