package billing

import (
	"strings"

	"github.com/flomify/flomify/app/models"
)

// providerStatuses maps every provider subscription status onto the four
// local statuses. on_trial and past_due keep premium access until the
// provider gives up on the subscription.
var providerStatuses = map[string]string{
	"active":    models.SubscriptionStatusActive,
	"on_trial":  models.SubscriptionStatusActive,
	"past_due":  models.SubscriptionStatusActive,
	"cancelled": models.SubscriptionStatusCancelled,
	"expired":   models.SubscriptionStatusExpired,
	"unpaid":    models.SubscriptionStatusExpired,
	"paused":    models.SubscriptionStatusPaused,
}

// NormalizeStatus returns the local status for a provider status.
func NormalizeStatus(providerStatus string) (string, bool) {
	s, ok := providerStatuses[strings.ToLower(strings.TrimSpace(providerStatus))]
	return s, ok
}
