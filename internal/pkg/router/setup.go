package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flomify/flomify/app/controllers"
	"github.com/flomify/flomify/internal/pkg/config"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the handlers and settings the routers wire together.
type Dependencies struct {
	Config         *config.Config
	Webhook        *controllers.WebhookController
	Subscription   *controllers.SubscriptionController
	Items          *controllers.ItemController
	Health         *controllers.HealthController
	Gatherer       prometheus.Gatherer
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// operational routes first so they are never rate limited
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
