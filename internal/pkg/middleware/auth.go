package middleware

import (
	"net/url"

	"github.com/ManuelReschke/MemberFox/app/controllers"
	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/MemberFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

// RequireAuth ensures a logged-in web session; redirects to /login if missing.
func RequireAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}
	return c.Next()
}

// RequireAdmin ensures a logged-in admin; redirects otherwise.
func RequireAdmin(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}
	if !usercontext.IsAdmin(c) {
		return c.Redirect("/", fiber.StatusSeeOther)
	}
	return c.Next()
}

// RequireAPISessionAuth ensures a logged-in session for API routes and returns JSON 401 instead of redirect.
func RequireAPISessionAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}

// RequireTier gates a route on a minimum membership tier. Denials redirect:
// anonymous users to the login page, everyone else to the upgrade page with
// the required tier as a query parameter for the UI.
func RequireTier(required entitlements.Tier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCtx := usercontext.GetUserContext(c)

		var m *models.Membership
		if v := c.Locals(controllers.USER_MEMBERSHIP); v != nil {
			m, _ = v.(*models.Membership)
		}

		decision := entitlements.Check(userCtx.IsLoggedIn, m, required)
		if decision.Allowed {
			return c.Next()
		}

		if decision.Reason == entitlements.DenialNotLoggedIn {
			return c.Redirect("/login", fiber.StatusSeeOther)
		}

		q := url.Values{}
		q.Set("required", string(required))
		q.Set("reason", string(decision.Reason))
		return c.Redirect("/upgrade?"+q.Encode(), fiber.StatusSeeOther)
	}
}
