package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/ManuelReschke/MemberFox/internal/pkg/usercontext"
	"github.com/ManuelReschke/MemberFox/internal/pkg/utils"
)

func isLoggedIn(c *fiber.Ctx) bool {
	var fromProtected bool
	if protectedValue := c.Locals(usercontext.KeyFromProtected); protectedValue != nil {
		fromProtected = protectedValue.(bool)
	}

	return fromProtected
}

// ExtractUsername gets the username from Locals (set by middleware)
func ExtractUsername(c *fiber.Ctx) string {
	return usercontext.GetUserContext(c).Username
}

// viewData builds the common template binding: flash message, login state
// and membership snapshot, merged with page-specific values.
func viewData(c *fiber.Ctx, page fiber.Map) fiber.Map {
	userCtx := usercontext.GetUserContext(c)

	data := fiber.Map{
		"IsLoggedIn": userCtx.IsLoggedIn,
		"IsAdmin":    userCtx.IsAdmin,
		"Username":   userCtx.Username,
		"Tier":       userCtx.Tier,
		"Status":     userCtx.MembershipStatus,
	}

	if userCtx.IsLoggedIn && userCtx.Email != "" {
		data["AvatarURL"] = utils.GetGravatarURL(userCtx.Email, 80)
	}

	if token := c.Locals("csrf"); token != nil {
		data["CSRFToken"] = token
	}

	fm := flash.Get(c)
	if msg, ok := fm["message"]; ok {
		data["FlashMessage"] = msg
		data["FlashType"] = fm["type"]
	}

	for k, v := range page {
		data[k] = v
	}

	return data
}
