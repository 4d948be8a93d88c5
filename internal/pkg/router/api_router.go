package router

import (
	apiv1 "github.com/ManuelReschke/MemberFox/internal/api/v1"
	"github.com/ManuelReschke/MemberFox/internal/pkg/middleware"
	"github.com/ManuelReschke/MemberFox/internal/pkg/usercontext"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiServer := apiv1.NewAPIServer()

	v1.Get("/ping", apiServer.GetPing)
	v1.Get("/me/membership", middleware.RequireAPISessionAuth, apiServer.GetMyMembership)
	v1.Get("/admin/memberships/:user_id", middleware.RequireAPISessionAuth, requireAPIAdmin, apiServer.GetAdminMembership)
}

func requireAPIAdmin(c *fiber.Ctx) error {
	if !usercontext.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "admin access required",
		})
	}
	return c.Next()
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
