package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

const requestTimeout = 15 * time.Second

// Metrics is the instrumentation used by the HTTP handlers.
type Metrics interface {
	RecordItemCopy(platform, license string)
	RecordProviderRequest(operation, status string)
}

type noopMetrics struct{}

func (noopMetrics) RecordItemCopy(_, _ string)        {}
func (noopMetrics) RecordProviderRequest(_, _ string) {}

func orNoop(m Metrics) Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

// requestContext derives a bounded context from the request's user context.
func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	body := fiber.Map{"error": code}
	if message != "" {
		body["message"] = message
	}
	return c.Status(status).JSON(body)
}

// GetClientIP determines the client IP address considering proxies.
// Cloudflare's header wins over X-Forwarded-For, which wins over the peer address.
func GetClientIP(c *fiber.Ctx) string {
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		// the first entry is the original client
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(c.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return strings.TrimPrefix(c.IP(), "::ffff:")
}
