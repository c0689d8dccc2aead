package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/flomify/flomify/app/models"
	"github.com/flomify/flomify/internal/pkg/billing"
)

const signatureHeader = "X-Signature"

// Delivery outcomes reported to metrics.
const (
	outcomeAccepted         = "accepted"
	outcomeDuplicate        = "duplicate"
	outcomeInvalidSignature = "invalid_signature"
	outcomeInvalidPayload   = "invalid_payload"
	outcomeError            = "error"
)

// WebhookController receives billing provider webhooks. Deliveries are
// verified, parsed, recorded and dispatched before they are acknowledged;
// the subscription update itself happens after the response.
type WebhookController struct {
	verifier   *billing.SignatureVerifier
	service    *billing.Service
	dispatcher billing.Dispatcher
}

func NewWebhookController(verifier *billing.SignatureVerifier, svc *billing.Service, dispatcher billing.Dispatcher) *WebhookController {
	return &WebhookController{verifier: verifier, service: svc, dispatcher: dispatcher}
}

// HandleWebhook serves POST /api/webhooks/:provider
func (wc *WebhookController) HandleWebhook(c *fiber.Ctx) error {
	provider := strings.ToLower(strings.TrimSpace(c.Params("provider")))
	if provider != models.BillingProviderLemonSqueezy {
		return jsonError(c, fiber.StatusNotFound, "not_found", "unknown webhook provider")
	}
	metrics := wc.service.Metrics()

	// the body buffer is reused by fasthttp after the handler returns
	rawBody := append([]byte(nil), c.BodyRaw()...)

	if err := wc.verifier.Verify(rawBody, c.Get(signatureHeader)); err != nil {
		if errors.Is(err, billing.ErrConfiguration) {
			log.Errorf("[Webhook] Verifier not configured: %v", err)
			metrics.RecordWebhookDelivery(provider, outcomeError)
			return jsonError(c, fiber.StatusInternalServerError, "webhook_not_configured", "")
		}
		log.Warnf("[Webhook] Rejected %s delivery from %s: %v", provider, GetClientIP(c), err)
		metrics.RecordWebhookDelivery(provider, outcomeInvalidSignature)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	payload, err := billing.ParseWebhookPayload(rawBody)
	if err != nil {
		log.Warnf("[Webhook] Invalid %s payload: %v", provider, err)
		metrics.RecordWebhookDelivery(provider, outcomeInvalidPayload)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	stored, dispatch, err := wc.service.RecordDelivery(ctx, provider, rawBody, payload)
	if err != nil {
		log.Errorf("[Webhook] Failed to record %s delivery: %v", payload.Meta.EventName, err)
		metrics.RecordWebhookDelivery(provider, outcomeError)
		return jsonError(c, fiber.StatusInternalServerError, "webhook_persist_failed", "")
	}
	if !dispatch {
		metrics.RecordWebhookDelivery(provider, outcomeDuplicate)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
	}

	err = wc.dispatcher.Dispatch(ctx, billing.Delivery{
		WebhookEventID:         stored.ID,
		Provider:               provider,
		EventName:              stored.EventName,
		ProviderSubscriptionID: stored.ProviderSubscriptionID,
	})
	if err != nil {
		log.Errorf("[Webhook] Failed to dispatch %s (webhook event %d): %v", stored.EventName, stored.ID, err)
		metrics.RecordWebhookDelivery(provider, outcomeError)
		return jsonError(c, fiber.StatusInternalServerError, "dispatch_failed", "")
	}

	log.Infof("[Webhook] Accepted %s for subscription %s (webhook event %d)", stored.EventName, stored.ProviderSubscriptionID, stored.ID)
	metrics.RecordWebhookDelivery(provider, outcomeAccepted)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}
