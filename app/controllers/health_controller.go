package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/flomify/flomify/internal/pkg/jobqueue"
)

// QueueStats is the part of the job queue the health check reports on.
type QueueStats interface {
	GetQueueSize(ctx context.Context) (int64, error)
	GetProcessingSize(ctx context.Context) (int64, error)
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
}

// HealthController reports liveness of the service and its backing stores.
type HealthController struct {
	db    *gorm.DB
	rdb   *redis.Client
	queue QueueStats
}

func NewHealthController(db *gorm.DB, rdb *redis.Client, queue QueueStats) *HealthController {
	return &HealthController{db: db, rdb: rdb, queue: queue}
}

// HandleHealth serves GET /health. Any failing dependency turns it into a 503.
func (hc *HealthController) HandleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	checks := fiber.Map{}
	healthy := true

	if hc.db != nil {
		checks["database"] = "ok"
		sqlDB, err := hc.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			checks["database"] = "down"
			healthy = false
		}
	}
	if hc.rdb != nil {
		checks["cache"] = "ok"
		if err := hc.rdb.Ping(ctx).Err(); err != nil {
			checks["cache"] = "down"
			healthy = false
		}
	}

	resp := fiber.Map{}
	if hc.queue != nil {
		queue, err := hc.queueStats(ctx)
		if err != nil {
			checks["queue"] = "down"
			healthy = false
		} else {
			checks["queue"] = "ok"
			resp["queue"] = queue
		}
	}

	status := "ok"
	code := fiber.StatusOK
	if !healthy {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}
	resp["status"] = status
	resp["checks"] = checks
	resp["time"] = time.Now().UTC()
	return c.Status(code).JSON(resp)
}

func (hc *HealthController) queueStats(ctx context.Context) (fiber.Map, error) {
	pending, err := hc.queue.GetQueueSize(ctx)
	if err != nil {
		return nil, err
	}
	processing, err := hc.queue.GetProcessingSize(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := hc.queue.GetJobStats(ctx)
	if err != nil {
		return nil, err
	}
	return fiber.Map{
		"pending":    pending,
		"processing": processing,
		"jobs":       stats,
	}, nil
}

// HandleAPITest serves GET /api/test
func HandleAPITest(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message":   "API is working",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
