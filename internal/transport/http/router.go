package http

import (
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sakashimaa/checkout-pipeline/internal/transport/http/handler"
)

type Handlers struct {
	Checkout *handler.CheckoutHandler
	Webhook  *handler.WebhookHandler
	Health   *handler.HealthHandler
}

type LimiterConfig struct {
	Max        int
	Expiration time.Duration
}

func NewApp(timeout time.Duration) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	app.Use(otelfiber.Middleware())

	return app
}

func RegisterRoutes(app *fiber.App, h *Handlers, gatherer prometheus.Gatherer, limits LimiterConfig) {
	app.Get("/health", h.Health.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	app.Post("/webhooks/payment", h.Webhook.Payment)

	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        limits.Max,
		Expiration: limits.Expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Try again later.",
			})
		},
	}))

	checkout := api.Group("/checkout")
	checkout.Post("", h.Checkout.Submit)
	checkout.Get("/jobs/:id", h.Checkout.GetJob)
}
