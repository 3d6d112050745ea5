package router

import (
	"github.com/gofiber/fiber/v2"

	apiv1 "github.com/ManuelReschke/TableFox/internal/api/v1"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter mounts the operator endpoints first so they stay outside the
// guest rate limiter, then the versioned API.
func InstallRouter(app *fiber.App, server *apiv1.APIServer, mw apiv1.Middlewares, checks map[string]HealthCheck) {
	setup(app, NewOpsRouter(checks), NewApiRouter(server, mw))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
