package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks  map[string]Check
	timeout time.Duration
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		timeout: 2 * time.Second,
	}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	code, overall := fiber.StatusOK, "ok"
	report := make(fiber.Map, len(h.checks))

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			code, overall = fiber.StatusServiceUnavailable, "degraded"
			report[name] = err.Error()
			continue
		}
		report[name] = "ok"
	}

	return c.Status(code).JSON(fiber.Map{
		"status": overall,
		"checks": report,
	})
}
