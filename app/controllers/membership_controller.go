package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/internal/pkg/billing"
	"github.com/ManuelReschke/MemberFox/internal/pkg/database"
	"github.com/ManuelReschke/MemberFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/MemberFox/internal/pkg/usercontext"
)

// HandleUpgrade renders the plan selection page with the current price table.
func HandleUpgrade(c *fiber.Ctx) error {
	cfg := billing.DefaultCatalogConfig()

	type planOffer struct {
		Plan         string
		MonthlyPrice string
		AnnualPrice  string
	}

	var offers []planOffer
	for _, plan := range []string{"bronze", "silver", "gold"} {
		offers = append(offers, planOffer{
			Plan:         plan,
			MonthlyPrice: billing.FormatAmount(cfg.Prices[plan+"_monthly"]),
			AnnualPrice:  billing.FormatAmount(cfg.Prices[plan+"_annual"]),
		})
	}

	return c.Render("membership/upgrade", viewData(c, fiber.Map{
		"Title":        "Mitglied werden",
		"Offers":       offers,
		"Currency":     cfg.Currency,
		"RequiredTier": c.Query("required"),
		"DenialReason": c.Query("reason"),
	}))
}

// HandleAccountMembership shows the user's own membership state.
func HandleAccountMembership(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}

	membership, err := models.GetOrCreateMembership(database.GetDB(), userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).Render("errors/500", viewData(c, fiber.Map{
			"Title": "Fehler",
		}))
	}

	expiresAt := ""
	if membership.ExpiresAt != nil {
		expiresAt = membership.ExpiresAt.Format("02.01.2006")
	}

	return c.Render("membership/account", viewData(c, fiber.Map{
		"Title":           "Meine Mitgliedschaft",
		"MembershipTier":  membership.Tier,
		"Status":          membership.Status,
		"Cycle":           membership.BillingCycle,
		"ExpiresAt":       expiresAt,
		"HasSubscription": membership.GatewaySubscriptionID != "",
	}))
}

// Gated member area pages. The tier requirement is enforced by the router
// middleware; these just render.

func HandleMembersBronze(c *fiber.Ctx) error {
	return c.Render("members/area", viewData(c, fiber.Map{
		"Title": "Bronze-Bereich",
		"Area":  string(entitlements.TierBronze),
	}))
}

func HandleMembersSilver(c *fiber.Ctx) error {
	return c.Render("members/area", viewData(c, fiber.Map{
		"Title": "Silber-Bereich",
		"Area":  string(entitlements.TierSilver),
	}))
}

func HandleMembersGold(c *fiber.Ctx) error {
	return c.Render("members/area", viewData(c, fiber.Map{
		"Title": "Gold-Bereich",
		"Area":  string(entitlements.TierGold),
	}))
}
