package controllers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/flomify/flomify/internal/pkg/billing"
	"github.com/flomify/flomify/internal/pkg/entitlements"
	"github.com/flomify/flomify/internal/pkg/usercontext"
)

// CheckoutProvider is the outbound billing provider API.
type CheckoutProvider interface {
	CreateCheckout(ctx context.Context, userID, email string) (string, error)
	CancelSubscription(ctx context.Context, providerSubscriptionID string) error
}

// SubscriptionController serves checkout, cancellation and the caller's
// subscription state. Subscription rows only change through webhooks.
type SubscriptionController struct {
	provider CheckoutProvider
	service  *billing.Service
	metrics  Metrics
}

func NewSubscriptionController(provider CheckoutProvider, svc *billing.Service, metrics Metrics) *SubscriptionController {
	return &SubscriptionController{provider: provider, service: svc, metrics: orNoop(metrics)}
}

type checkoutRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type cancelRequest struct {
	SubscriptionID string `json:"subscription_id"`
}

// HandleCreateCheckout serves POST /api/create-checkout
func (sc *SubscriptionController) HandleCreateCheckout(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)

	var req checkoutRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
		}
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = user.UserID
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = user.Email
	}
	if userID == "" || email == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Missing required fields")
	}
	if userID != user.UserID {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "user_id does not match the authenticated user")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	url, err := sc.provider.CreateCheckout(ctx, userID, email)
	if err != nil {
		sc.metrics.RecordProviderRequest("create_checkout", "error")
		log.Errorf("[Billing] Checkout for user %s failed: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "checkout_failed", "Failed to create checkout session")
	}
	sc.metrics.RecordProviderRequest("create_checkout", "ok")
	return c.JSON(fiber.Map{"url": url})
}

// HandleCancelSubscription serves POST /api/cancel-subscription
func (sc *SubscriptionController) HandleCancelSubscription(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)

	var req cancelRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}
	subID := strings.TrimSpace(req.SubscriptionID)
	if subID == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Missing subscription_id")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	sub, err := sc.service.FindSubscription(ctx, subID)
	if err != nil {
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "subscription not found")
		}
		log.Errorf("[Billing] Subscription lookup %s failed: %v", subID, err)
		return jsonError(c, fiber.StatusInternalServerError, "lookup_failed", "")
	}
	// Do not leak subscriptions of other users
	if sub.UserID != user.UserID {
		return jsonError(c, fiber.StatusNotFound, "not_found", "subscription not found")
	}

	if err := sc.provider.CancelSubscription(ctx, subID); err != nil {
		sc.metrics.RecordProviderRequest("cancel_subscription", "error")
		log.Errorf("[Billing] Cancel of subscription %s failed: %v", subID, err)
		return jsonError(c, fiber.StatusInternalServerError, "cancel_failed", "Failed to cancel subscription")
	}
	sc.metrics.RecordProviderRequest("cancel_subscription", "ok")
	return c.JSON(fiber.Map{"success": true})
}

// HandleGetSubscription serves GET /api/subscription
func (sc *SubscriptionController) HandleGetSubscription(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)

	ctx, cancel := requestContext(c)
	defer cancel()

	sub, premium, err := sc.service.UserEntitlement(ctx, user.UserID)
	if err != nil {
		log.Errorf("[Billing] Subscription lookup for user %s failed: %v", user.UserID, err)
		return jsonError(c, fiber.StatusInternalServerError, "lookup_failed", "")
	}

	plan := entitlements.PlanFree
	if premium {
		plan = entitlements.PlanPremium
	}
	return c.JSON(fiber.Map{
		"subscription": sub,
		"has_premium":  premium,
		"plan":         plan,
	})
}
