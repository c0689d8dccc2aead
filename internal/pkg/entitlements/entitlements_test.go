package entitlements

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flomify/flomify/app/models"
)

func TestHasPremiumAccess(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name string
		sub  *models.Subscription
		want bool
	}{
		{"nil subscription", nil, false},
		{"active without period end", &models.Subscription{Status: models.SubscriptionStatusActive}, true},
		{"active with future period end", &models.Subscription{Status: models.SubscriptionStatusActive, CurrentPeriodEnd: &future}, true},
		{"active with past period end", &models.Subscription{Status: models.SubscriptionStatusActive, CurrentPeriodEnd: &past}, false},
		{"cancelled", &models.Subscription{Status: models.SubscriptionStatusCancelled, CurrentPeriodEnd: &future}, false},
		{"paused", &models.Subscription{Status: models.SubscriptionStatusPaused}, false},
		{"expired", &models.Subscription{Status: models.SubscriptionStatusExpired}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasPremiumAccess(tt.sub, now))
		})
	}
}

func TestCanAccessItem(t *testing.T) {
	now := time.Now()
	active := &models.Subscription{Status: models.SubscriptionStatusActive}
	free := &models.Item{LicenseType: models.LicenseFree}
	premium := &models.Item{LicenseType: models.LicensePremium}

	assert.True(t, CanAccessItem(free, nil, now))
	assert.False(t, CanAccessItem(premium, nil, now))
	assert.True(t, CanAccessItem(premium, active, now))
	assert.False(t, CanAccessItem(nil, active, now))
}
