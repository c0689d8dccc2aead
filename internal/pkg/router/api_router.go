package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/flomify/flomify/app/controllers"
	"github.com/flomify/flomify/internal/pkg/middleware"
)

const (
	apiRateLimit       = 120
	apiRateLimitWindow = time.Minute
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	deps := h.deps

	// Provider webhooks bypass CORS, auth and the per-IP limiter; the
	// signature is their authentication.
	if deps.Webhook != nil {
		app.Post("/api/webhooks/:provider", deps.Webhook.HandleWebhook)
	}

	api := app.Group("/api",
		cors.New(cors.Config{
			AllowOrigins: h.allowOrigins(),
			AllowHeaders: "Origin, Content-Type, Accept, Authorization",
			AllowMethods: "GET,POST,OPTIONS",
		}),
		limiter.New(limiter.Config{
			Max:          apiRateLimit,
			Expiration:   apiRateLimitWindow,
			KeyGenerator: controllers.GetClientIP,
			Storage:      deps.LimiterStorage,
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error":   "rate_limited",
					"message": "too many requests",
				})
			},
		}),
	)
	if deps.Config != nil {
		api.Use(middleware.AuthMiddleware(deps.Config.Auth.JWTSecret))
	}

	api.Get("/test", controllers.HandleAPITest)

	if items := deps.Items; items != nil {
		api.Get("/items", items.HandleListItems)
		api.Get("/items/filter-options", items.HandleFilterOptions)
		api.Post("/items", middleware.RequireAPIAuth, items.HandleCreateItem)
		api.Get("/items/:id", items.HandleGetItem)
		api.Get("/items/:id/related", items.HandleRelatedItems)
		api.Get("/items/:id/collection", items.HandleCollectionItems)
		api.Get("/items/:id/copy/:platform", items.HandleCopyPlatformCode)
		api.Get("/categories", items.HandleListCategories)
		api.Get("/tags", items.HandleListTags)
	}

	if subs := deps.Subscription; subs != nil {
		api.Post("/create-checkout", middleware.RequireAPIAuth, subs.HandleCreateCheckout)
		api.Post("/cancel-subscription", middleware.RequireAPIAuth, subs.HandleCancelSubscription)
		api.Get("/subscription", middleware.RequireAPIAuth, subs.HandleGetSubscription)
	}
}

func (h ApiRouter) allowOrigins() string {
	if cfg := h.deps.Config; cfg != nil {
		if cfg.App.CORSOrigins != "" {
			return cfg.App.CORSOrigins
		}
		if cfg.App.ClientURL != "" {
			return cfg.App.ClientURL
		}
	}
	return "*"
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
