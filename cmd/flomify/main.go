package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/flomify/flomify/app/controllers"
	"github.com/flomify/flomify/app/repository"
	"github.com/flomify/flomify/internal/pkg/billing"
	"github.com/flomify/flomify/internal/pkg/cache"
	"github.com/flomify/flomify/internal/pkg/config"
	"github.com/flomify/flomify/internal/pkg/database"
	"github.com/flomify/flomify/internal/pkg/env"
	"github.com/flomify/flomify/internal/pkg/jobqueue"
	"github.com/flomify/flomify/internal/pkg/metrics"
	"github.com/flomify/flomify/internal/pkg/metrics/counter"
	"github.com/flomify/flomify/internal/pkg/router"
)

func main() {
	app, manager, cfg := NewApplication()
	manager.Start()

	go func() {
		if err := app.Listen(cfg.ListenAddr()); err != nil {
			log.Fatalf("[Server] %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Server] Shutting down")
	manager.Stop()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorf("[Server] Shutdown failed: %v", err)
	}
}

func NewApplication() (*fiber.App, *jobqueue.Manager, *config.Config) {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Config] %v", err)
	}

	rdb := cache.SetupCache(cfg.Cache)
	if err := database.SetupDatabase(cfg.Database, cfg.IsDev()); err != nil {
		log.Fatalf("[Database] %v", err)
	}
	db := database.GetDB()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, "flomify")

	svc := billing.NewService(billing.NewRepository(db), billing.WithMetrics(m))

	queue := jobqueue.NewQueue(rdb, cfg.Queue.Workers)
	queue.SetObserver(m)
	billing.RegisterJobHandlers(queue, svc)

	copies := counter.New(rdb, db)
	manager := jobqueue.NewManager(queue)
	manager.AddTask(jobqueue.PeriodicTask{
		Name:     "subscription-expiry",
		Interval: cfg.Queue.ExpirySweepInterval,
		Run: func(ctx context.Context) error {
			_, err := svc.ExpireEndedSubscriptions(ctx)
			return err
		},
	})
	manager.AddTask(jobqueue.PeriodicTask{
		Name:     "copy-counter-flush",
		Interval: cfg.Queue.CounterFlushInterval,
		Run:      copies.FlushAll,
	})

	verifier, err := billing.NewSignatureVerifier(cfg.Billing.WebhookSecret)
	if err != nil {
		log.Fatalf("[Billing] %v", err)
	}
	checkout, err := billing.NewLemonSqueezyClient(cfg.Billing, cfg.App.ClientURL)
	if err != nil {
		log.Fatalf("[Billing] %v", err)
	}

	repos := repository.NewFactory(db).GetRepositories()

	app := fiber.New(fiber.Config{
		AppName:   "Flomify",
		BodyLimit: 4 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if basePath, ok := findBasePath(); ok {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + "public/docs/v1/openapi.yml",
			Path:     "v1",
		}))
	} else {
		log.Warn("[Server] OpenAPI document not found, /docs/api disabled")
	}

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Config:         cfg,
		Webhook:        controllers.NewWebhookController(verifier, svc, billing.NewQueueDispatcher(queue)),
		Subscription:   controllers.NewSubscriptionController(checkout, svc, m),
		Items:          controllers.NewItemController(repos, svc, copies, m),
		Health:         controllers.NewHealthController(db, rdb, queue),
		Gatherer:       reg,
		LimiterStorage: cache.NewFiberStorage(cfg.Cache, cache.LimiterDatabase),
	})

	return app, manager, cfg
}

func findBasePath() (string, bool) {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/flomify to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			return path, true
		}
	}
	return "", false
}
