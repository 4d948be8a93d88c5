package router

import (
	"strings"
	"time"

	"github.com/ManuelReschke/MemberFox/app/controllers"
	"github.com/ManuelReschke/MemberFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/MemberFox/internal/pkg/env"
	"github.com/ManuelReschke/MemberFox/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/csrf"
)

func (h HttpRouter) registerCSRFProtectedRoutes(app *fiber.App) {
	csrfConf := csrf.Config{
		KeyLookup:      "form:_csrf",
		ContextKey:     "csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		Expiration:     1 * time.Hour,
		CookieSecure:   !env.IsDev(),
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/api/") ||
				strings.HasPrefix(c.Path(), "/webhooks/")
		},
	}

	group := app.Group("", cors.New(), csrf.New(csrfConf))
	group.Get("/", loggedInMiddleware, controllers.HandleStart)
	group.Get("/login", loggedInMiddleware, controllers.HandleAuthLogin)
	group.Post("/login", loggedInMiddleware, controllers.HandleAuthLogin)
	group.Get("/register", loggedInMiddleware, controllers.HandleAuthRegister)
	group.Post("/register", loggedInMiddleware, controllers.HandleAuthRegister)

	// Checkout
	group.Get("/upgrade", loggedInMiddleware, controllers.HandleUpgrade)
	group.Post("/checkout/order", middleware.RequireAuth, controllers.HandleCheckoutOrder)
	group.Post("/checkout/subscribe", middleware.RequireAuth, controllers.HandleCheckoutSubscribe)

	// Account
	group.Get("/account/membership", middleware.RequireAuth, controllers.HandleAccountMembership)
	group.Post("/account/membership/cancel", middleware.RequireAuth, controllers.HandleMembershipCancel)

	// Gated member content
	group.Get("/members/bronze", middleware.RequireTier(entitlements.TierBronze), controllers.HandleMembersBronze)
	group.Get("/members/silver", middleware.RequireTier(entitlements.TierSilver), controllers.HandleMembersSilver)
	group.Get("/members/gold", middleware.RequireTier(entitlements.TierGold), controllers.HandleMembersGold)
}
