package middleware

import (
	"strings"

	"github.com/ManuelReschke/MemberFox/app/controllers"
	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/internal/pkg/database"
	"github.com/ManuelReschke/MemberFox/internal/pkg/session"
	"github.com/ManuelReschke/MemberFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware sets up the complete user context for every request.
// The membership snapshot is read from the store on each request so that
// status changes landed by webhooks (suspension in particular) take effect
// immediately, not when the session happens to refresh.
func UserContextMiddleware(c *fiber.Ctx) error {
	// Goth uses its own fiber session store on the OAuth routes; skip our
	// app session there to prevent cross-store collisions.
	if strings.HasPrefix(c.Path(), "/auth/") {
		return c.Next()
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return anonymous(c)
	}

	userID := sess.Get(controllers.USER_ID)
	if userID == nil {
		return anonymous(c)
	}

	username := session.GetSessionValue(c, controllers.USER_NAME)
	email := session.GetSessionValue(c, controllers.USER_EMAIL)
	isAdmin := sess.Get(controllers.USER_IS_ADMIN)

	tier := "free"
	status := models.MembershipStatusNone
	if db := database.GetDB(); db != nil {
		if m, err := models.GetOrCreateMembership(db, userID.(uint)); err == nil && m != nil {
			tier = m.Tier
			status = m.Status
			c.Locals(controllers.USER_MEMBERSHIP, m)
		}
	}

	userCtx := usercontext.UserContext{
		UserID:           userID.(uint),
		Username:         username,
		Email:            email,
		IsLoggedIn:       true,
		IsAdmin:          isAdmin != nil && isAdmin.(bool),
		Tier:             tier,
		MembershipStatus: status,
	}
	c.Locals(usercontext.KeyUserContext, userCtx)
	c.Locals(usercontext.KeyFromProtected, true)
	c.Locals(usercontext.KeyIsAdmin, userCtx.IsAdmin)

	return c.Next()
}

func anonymous(c *fiber.Ctx) error {
	c.Locals(usercontext.KeyUserContext, usercontext.UserContext{
		IsLoggedIn: false,
		IsAdmin:    false,
		Tier:       "free",
	})
	c.Locals(usercontext.KeyFromProtected, false)
	c.Locals(usercontext.KeyIsAdmin, false)
	return c.Next()
}
