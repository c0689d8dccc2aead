package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/flomify/flomify/internal/pkg/config"
)

var client *redis.Client

// SetupCache initializes the connection to the Redis cache server
func SetupCache(cfg config.CacheConfig) *redis.Client {
	client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("Could not connect to Redis cache: %v", err)
	} else {
		log.Infof("Successfully connected to Redis cache: %s", pong)
	}
	return client
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	return client
}

// SetJSON stores value JSON encoded.
func SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return GetClient().Set(ctx, key, data, expiration).Err()
}

// GetJSON decodes a JSON value into dst. It returns redis.Nil on a miss.
func GetJSON(ctx context.Context, key string, dst interface{}) error {
	data, err := GetClient().Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// Delete removes a value from the cache by key
func Delete(ctx context.Context, key string) error {
	return GetClient().Del(ctx, key).Err()
}
