package app

import (
	"idsheet/internal/handlers"
	u "idsheet/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/redis/go-redis/v9"
)

// multipart overhead allowed on top of the image itself
const formOverheadBytes = 1 << 20

// SetupApp creates and configures a new Fiber app instance
func SetupApp(cfg u.Config, redis *redis.Client) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		BodyLimit:             cfg.Limits.MaxImageBytes + formOverheadBytes,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "Internal Server Error"

			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				msg = e.Message
			}

			u.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)

			return c.Status(code).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    code,
					"message": msg,
				},
			})
		},
	})

	RegisterMiddleware(app, cfg)
	RegisterRoutes(app, cfg, redis)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts all route handlers to the app
func RegisterRoutes(app *fiber.App, cfg u.Config, redis *redis.Client) {
	v1 := app.Group("/v1")

	// One shared service so every route sees the same Chrome pool and export guard.
	svc := handlers.NewSheetService(cfg, redis)
	app.Hooks().OnShutdown(func() error {
		svc.Close()
		return nil
	})

	v1.Get("/pages", svc.HandlePages)
	v1.Get("/layout", svc.HandleLayout)
	v1.Post("/sheet", svc.HandleExport)
	v1.Get("/chrome/stats", svc.HandleChromeStats)

	v1.Get("/monitor", monitor.New(monitor.Config{Title: "idsheet"}))
}
