package router

import (
	"github.com/ManuelReschke/MemberFox/app/controllers"
	"github.com/ManuelReschke/MemberFox/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Public static pages
	app.Get("/about", loggedInMiddleware, controllers.HandleAbout)

	// Auth
	app.Post("/logout", middleware.RequireAuth, controllers.HandleAuthLogout)

	// Social OAuth
	app.Get("/auth/:provider", controllers.HandleOAuthBegin)
	app.Get("/auth/:provider/callback", controllers.HandleOAuthCallback)

	// Gateway return/cancel URLs. No CSRF: the gateway redirects the
	// browser here with its own token.
	app.Get("/checkout/return", loggedInMiddleware, controllers.HandleCheckoutReturn)
	app.Get("/checkout/cancelled", loggedInMiddleware, controllers.HandleCheckoutCancelled)

	// Billing gateway webhooks (no CSRF, signature-verified in controller)
	app.Post("/webhooks/paypal", controllers.HandlePayPalWebhook)
}
