package controllers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flomify/flomify/app/models"
	"github.com/flomify/flomify/internal/pkg/billing"
)

type fakeProvider struct {
	checkoutURL string
	err         error

	checkoutUser  string
	checkoutEmail string
	cancelled     []string
}

func (p *fakeProvider) CreateCheckout(_ context.Context, userID, email string) (string, error) {
	p.checkoutUser, p.checkoutEmail = userID, email
	if p.err != nil {
		return "", p.err
	}
	return p.checkoutURL, nil
}

func (p *fakeProvider) CancelSubscription(_ context.Context, id string) error {
	if p.err != nil {
		return p.err
	}
	p.cancelled = append(p.cancelled, id)
	return nil
}

func newSubscriptionApp(provider CheckoutProvider, repo *billing.MemoryRepository, metrics Metrics, userID string) *fiber.App {
	sc := NewSubscriptionController(provider, newTestService(repo), metrics)
	app := fiber.New()
	app.Use(withUser(userID, userID+"@example.com"))
	app.Post("/api/create-checkout", sc.HandleCreateCheckout)
	app.Post("/api/cancel-subscription", sc.HandleCancelSubscription)
	app.Get("/api/subscription", sc.HandleGetSubscription)
	return app
}

func seedSubscription(t *testing.T, repo *billing.MemoryRepository, userID, subID, status string, periodEnd time.Time) {
	t.Helper()
	_, err := repo.UpsertSubscription(context.Background(), userID, subID, billing.SubscriptionUpdate{
		Status:           &status,
		CurrentPeriodEnd: &periodEnd,
	})
	require.NoError(t, err)
}

func TestCreateCheckout(t *testing.T) {
	provider := &fakeProvider{checkoutURL: "https://store.example.com/checkout/abc"}
	metrics := &recordingMetrics{}
	app := newSubscriptionApp(provider, billing.NewMemoryRepository(), metrics, "user-1")

	resp, err := app.Test(jsonRequest("POST", "/api/create-checkout", `{"user_id":"user-1","email":"ada@example.com"}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://store.example.com/checkout/abc", decodeBody(t, resp)["url"])
	assert.Equal(t, "user-1", provider.checkoutUser)
	assert.Equal(t, "ada@example.com", provider.checkoutEmail)
	assert.Equal(t, []string{"create_checkout/ok"}, metrics.requests)
}

func TestCreateCheckoutDefaultsToCaller(t *testing.T) {
	provider := &fakeProvider{checkoutURL: "https://store.example.com/checkout/abc"}
	app := newSubscriptionApp(provider, billing.NewMemoryRepository(), nil, "user-1")

	resp, err := app.Test(jsonRequest("POST", "/api/create-checkout", `{}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "user-1", provider.checkoutUser)
	assert.Equal(t, "user-1@example.com", provider.checkoutEmail)
}

func TestCreateCheckoutErrors(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		body     string
		provider *fakeProvider
		status   int
	}{
		{name: "other user", userID: "user-1", body: `{"user_id":"user-2","email":"x@example.com"}`, provider: &fakeProvider{}, status: fiber.StatusForbidden},
		{name: "malformed body", userID: "user-1", body: `{`, provider: &fakeProvider{}, status: fiber.StatusBadRequest},
		{name: "provider failure", userID: "user-1", body: `{}`, provider: &fakeProvider{err: billing.ErrProviderRequest}, status: fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newSubscriptionApp(tt.provider, billing.NewMemoryRepository(), nil, tt.userID)
			resp, err := app.Test(jsonRequest("POST", "/api/create-checkout", tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestCancelSubscription(t *testing.T) {
	repo := billing.NewMemoryRepository()
	seedSubscription(t, repo, "user-1", "sub_1", models.SubscriptionStatusActive, testNow.AddDate(0, 1, 0))
	seedSubscription(t, repo, "user-2", "sub_2", models.SubscriptionStatusActive, testNow.AddDate(0, 1, 0))

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "missing id", body: `{}`, status: fiber.StatusBadRequest},
		{name: "unknown", body: `{"subscription_id":"sub_404"}`, status: fiber.StatusNotFound},
		{name: "not owner", body: `{"subscription_id":"sub_2"}`, status: fiber.StatusNotFound},
		{name: "owner", body: `{"subscription_id":"sub_1"}`, status: fiber.StatusOK},
	}

	provider := &fakeProvider{}
	app := newSubscriptionApp(provider, repo, nil, "user-1")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(jsonRequest("POST", "/api/cancel-subscription", tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
	assert.Equal(t, []string{"sub_1"}, provider.cancelled)

	// the row only changes once the provider's webhook arrives
	sub, err := repo.FindSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
}

func TestCancelSubscriptionProviderFailure(t *testing.T) {
	repo := billing.NewMemoryRepository()
	seedSubscription(t, repo, "user-1", "sub_1", models.SubscriptionStatusActive, testNow.AddDate(0, 1, 0))
	app := newSubscriptionApp(&fakeProvider{err: errors.New("boom")}, repo, nil, "user-1")

	resp, err := app.Test(jsonRequest("POST", "/api/cancel-subscription", `{"subscription_id":"sub_1"}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.NotEmpty(t, decodeBody(t, resp)["message"])
}

func TestGetSubscription(t *testing.T) {
	repo := billing.NewMemoryRepository()
	seedSubscription(t, repo, "user-1", "sub_1", models.SubscriptionStatusActive, testNow.AddDate(0, 1, 0))
	seedSubscription(t, repo, "user-2", "sub_2", models.SubscriptionStatusCancelled, testNow.AddDate(0, 1, 0))

	tests := []struct {
		userID  string
		premium bool
		hasSub  bool
	}{
		{userID: "user-1", premium: true, hasSub: true},
		{userID: "user-2", premium: false, hasSub: true},
		{userID: "user-3", premium: false, hasSub: false},
	}

	for _, tt := range tests {
		t.Run(tt.userID, func(t *testing.T) {
			app := newSubscriptionApp(&fakeProvider{}, repo, nil, tt.userID)
			resp, err := app.Test(jsonRequest("GET", "/api/subscription", ""))
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)

			body := decodeBody(t, resp)
			assert.Equal(t, tt.premium, body["has_premium"])
			if tt.hasSub {
				assert.NotNil(t, body["subscription"])
			} else {
				assert.Nil(t, body["subscription"])
				assert.Equal(t, "free", body["plan"])
			}
		})
	}
}
