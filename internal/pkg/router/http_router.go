package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HttpRouter serves the operational endpoints outside /api.
type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	if h.deps.Health != nil {
		app.Get("/health", h.deps.Health.HandleHealth)
	}

	if h.deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// fiber monitor only when credentials are configured
	if cfg := h.deps.Config; cfg != nil && cfg.Monitor.User != "" && cfg.Monitor.Password != "" {
		app.Get("/monitor", basicauth.New(basicauth.Config{
			Users: map[string]string{
				cfg.Monitor.User: cfg.Monitor.Password,
			},
		}), monitor.New(monitor.Config{Title: "Flomify Monitor"}))
	}
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
