// Package ratelimit throttles guest endpoints per client IP. Counters live in
// Redis so every server instance shares the same window.
package ratelimit

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/TableFox/internal/pkg/config"
)

// StorageDatabase keeps limiter counters apart from the cache and job queue.
const StorageDatabase = 2

// NewRedisStorage builds limiter storage on the same Redis server as opts.
func NewRedisStorage(opts *redis.Options) fiber.Storage {
	host, port := "localhost", 6379
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: StorageDatabase,
		Reset:    false,
	})
}

// New returns the guest limiter. A nil storage falls back to Fiber's
// in-memory store.
func New(cfg config.RateLimitConfig, storage fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Window,
		Storage:    storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "guest:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Warnf("[RateLimit] limit reached for %s %s", c.IP(), c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "too many requests, slow down",
			})
		},
	})
}
