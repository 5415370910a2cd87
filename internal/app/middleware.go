package app

import (
	"errors"
	"sync"
	"time"

	"idsheet/internal/export"
	u "idsheet/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	redisStorage "github.com/gofiber/storage/redis/v2"
	"github.com/rs/xid"
)

var (
	tokenLimiterCache struct {
		sync.RWMutex
		handlers map[int]fiber.Handler
	}
	rateLimitStore fiber.Storage
)

// getTokenLimiter returns a cached limiter for the given token limit, creating one if needed.
func getTokenLimiter(limit int) fiber.Handler {
	tokenLimiterCache.RLock()
	h, ok := tokenLimiterCache.handlers[limit]
	tokenLimiterCache.RUnlock()
	if ok {
		return h
	}

	appCfg := u.GetConfig()
	cfg := limiter.Config{
		Max:               limit,
		Expiration:        appCfg.RateLimiter.Interval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           rateLimitStore,
		KeyGenerator:      clientKey,
		LimitReached:      tooManyRequests,
	}

	h = limiter.New(cfg)

	tokenLimiterCache.Lock()
	if tokenLimiterCache.handlers == nil {
		tokenLimiterCache.handlers = make(map[int]fiber.Handler)
	}
	tokenLimiterCache.handlers[limit] = h
	tokenLimiterCache.Unlock()

	return h
}

// rateLimitMiddleware applies per-token rate limits from the api_tokens table.
func rateLimitMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := c.Locals("api_key").(string)
		if !ok || token == "" {
			return c.Next()
		}
		limit := u.Tokens.RateLimit(token)
		if limit == 0 {
			return c.Next()
		}
		return getTokenLimiter(limit)(c)
	}
}

// clientKey identifies the caller the same way the export guard does, so a
// client's rate limit and its in-flight export share one key.
func clientKey(c *fiber.Ctx) string {
	token, _ := c.Locals("api_key").(string)
	return export.ClientKey(token, c.IP(), c.Get(fiber.HeaderUserAgent))
}

func tooManyRequests(c *fiber.Ctx) error {
	u.Warn("Rate limit exceeded", "client", clientKey(c), "path", c.Path())
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    fiber.StatusTooManyRequests,
			"message": "Too Many Requests",
		},
	})
}

// userRateLimitMiddleware limits requests based on client information when enabled.
func userRateLimitMiddleware(cfg u.Config) fiber.Handler {
	if cfg.RateLimiter.UserLimit <= 0 {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}
	hcfg := limiter.Config{
		Max:               cfg.RateLimiter.UserLimit,
		Expiration:        cfg.RateLimiter.Interval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           rateLimitStore,
		KeyGenerator:      clientKey,
		LimitReached:      tooManyRequests,
	}
	userLimiter := limiter.New(hcfg)
	return func(c *fiber.Ctx) error {
		// Token limits were applied earlier.
		if token, ok := c.Locals("api_key").(string); ok && token != "" {
			return c.Next()
		}
		return userLimiter(c)
	}
}

// authConfigured reports whether API tokens are expected from Postgres.
func authConfigured(cfg u.Config) bool {
	return cfg.Auth.Postgres.Host != ""
}

// RegisterMiddleware attaches global middleware to the app
func RegisterMiddleware(app *fiber.App, cfg u.Config) {
	rateLimitStore = memoryStorage.New() // safe default

	func() {
		defer func() {
			if r := recover(); r != nil {
				u.Error("Redis limiter store init panicked, falling back to memory", "panic", r)
			}
		}()
		rateLimitStore = redisStorage.New(redisStorage.Config{
			Addrs:    []string{cfg.Cache.RedisHost},
			Database: cfg.Cache.RateLimitDB,
		})
		u.Info("Using Redis for rate limiting", "addr", cfg.Cache.RedisHost, "db", cfg.Cache.RateLimitDB)
	}()

	app.Use(cors.New())

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(healthcheck.New(healthcheck.Config{
		ReadinessProbe: func(c *fiber.Ctx) bool {
			return u.Tokens.Ready() || !authConfigured(cfg)
		},
	}))

	app.Use(keyauth.New(keyauth.Config{
		KeyLookup:  "header:X-API-Key",
		ContextKey: "api_key",
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			// keyauth may hand a nil error to ErrorHandler, so always return one.
			if !u.Tokens.Ready() {
				return false, u.ErrTokenStoreNotReady
			}
			if !u.Tokens.Validate(key) {
				return false, u.ErrInvalidAPIKey
			}
			return true, nil
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || c.Get("X-API-Key") == ""
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Keyauth can call ErrorHandler with a nil error.
			status := fiber.StatusUnauthorized
			if err == nil {
				err = fiber.ErrUnauthorized
			}
			if errors.Is(err, u.ErrTokenStoreNotReady) {
				status = fiber.StatusServiceUnavailable
			}
			return c.Status(status).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    status,
					"message": err.Error(),
				},
			})
		},
	}))

	app.Use(rateLimitMiddleware())

	if cfg.RateLimiter.EnableUserLimiter || cfg.RateLimiter.UserLimit > 0 {
		app.Use(userRateLimitMiddleware(cfg))
	}

	app.Use(requestLogger)
}

// requestLogger logs each request once it has been handled.
func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	requestID := c.Get(fiber.HeaderXRequestID)
	if requestID == "" {
		requestID = c.GetRespHeader(fiber.HeaderXRequestID)
	}
	status := c.Response().StatusCode()
	if fe := (*fiber.Error)(nil); errors.As(err, &fe) {
		status = fe.Code
	}
	kv := []any{
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", requestID,
	}
	if status >= fiber.StatusInternalServerError {
		u.Warn("Request failed", kv...)
	} else {
		u.Info("Request handled", kv...)
	}
	return err
}
