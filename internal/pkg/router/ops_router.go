package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/ManuelReschke/TableFox/internal/pkg/metrics"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func() error

// OpsRouter serves health and metrics endpoints for operators.
type OpsRouter struct {
	checks map[string]HealthCheck
}

func (h OpsRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", h.health)
	app.Get("/metrics", monitor.New())
	app.Get("/metrics/prometheus", metrics.Handler())
}

func (h OpsRouter) health(c *fiber.Ctx) error {
	status := fiber.Map{}
	healthy := true
	for name, check := range h.checks {
		if err := check(); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(status)
	}
	return c.JSON(status)
}

func NewOpsRouter(checks map[string]HealthCheck) *OpsRouter {
	return &OpsRouter{checks: checks}
}
