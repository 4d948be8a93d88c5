package router

import (
	"github.com/ManuelReschke/MemberFox/app/controllers"
	"github.com/ManuelReschke/MemberFox/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

func (h HttpRouter) registerAdminRoutes(app *fiber.App) {
	adminGroup := app.Group("/admin", middleware.RequireAdmin)
	adminGroup.Get("/", controllers.HandleAdminDashboard)
	adminGroup.Get("/memberships", controllers.HandleAdminMemberships)
	adminGroup.Post("/memberships/downgrade/:user_id", controllers.HandleAdminMembershipDowngrade)
	adminGroup.Get("/webhook-events", controllers.HandleAdminWebhookEvents)
}
