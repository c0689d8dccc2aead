package cache

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"

	"github.com/flomify/flomify/internal/pkg/config"
)

// LimiterDatabase keeps rate limiter counters apart from application keys.
const LimiterDatabase = 1

// NewFiberStorage returns a fiber.Storage on the configured Redis server,
// used by middlewares that keep state between requests.
// It panics when Redis is unreachable.
func NewFiberStorage(cfg config.CacheConfig, database int) fiber.Storage {
	return redis.New(redis.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		Database: database,
		Reset:    false,
	})
}
