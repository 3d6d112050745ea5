package router

import (
	apiv1 "github.com/ManuelReschke/TableFox/internal/api/v1"

	"github.com/gofiber/fiber/v2"
)

type ApiRouter struct {
	server *apiv1.APIServer
	mw     apiv1.Middlewares
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiv1.RegisterHandlers(v1, h.server, h.mw)
}

func NewApiRouter(server *apiv1.APIServer, mw apiv1.Middlewares) *ApiRouter {
	return &ApiRouter{server: server, mw: mw}
}
