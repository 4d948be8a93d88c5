package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/internal/pkg/database"
	"github.com/ManuelReschke/MemberFox/internal/pkg/entitlements"
)

// HandleAdminDashboard shows membership counts per tier and the aggregated
// billing counters.
func HandleAdminDashboard(c *fiber.Ctx) error {
	db := database.GetDB()

	type tierCount struct {
		Tier  string
		Count int64
	}
	var tiers []tierCount
	db.Model(&models.Membership{}).
		Select("tier, COUNT(*) as count").
		Group("tier").
		Scan(&tiers)

	var stats []models.BillingEventStat
	db.Order("metric asc").Find(&stats)

	var pendingEvents int64
	db.Model(&models.BillingWebhookEvent{}).
		Where("processed_at IS NULL").
		Count(&pendingEvents)

	return c.Render("admin/dashboard", viewData(c, fiber.Map{
		"Title":         "Admin",
		"TierCounts":    tiers,
		"EventStats":    stats,
		"PendingEvents": pendingEvents,
	}))
}

// HandleAdminWebhookEvents lists the most recent ledger rows for debugging
// delivery problems.
func HandleAdminWebhookEvents(c *fiber.Ctx) error {
	var events []models.BillingWebhookEvent
	database.GetDB().
		Order("id desc").
		Limit(50).
		Find(&events)

	return c.Render("admin/webhook_events", viewData(c, fiber.Map{
		"Title":  "Webhook-Ereignisse",
		"Events": events,
	}))
}

// HandleAdminMemberships lists memberships, optionally filtered by tier.
func HandleAdminMemberships(c *fiber.Ctx) error {
	db := database.GetDB()

	query := db.Model(&models.Membership{}).Order("updated_at desc").Limit(100)
	if tier := c.Query("tier"); tier != "" {
		query = query.Where("tier = ?", entitlements.NormalizeTier(tier))
	}

	var memberships []models.Membership
	query.Find(&memberships)

	return c.Render("admin/memberships", viewData(c, fiber.Map{
		"Title":       "Mitgliedschaften",
		"Memberships": memberships,
	}))
}

// HandleAdminMembershipDowngrade lets an admin force a user back to free,
// e.g. after a chargeback outside the gateway's webhook flow.
func HandleAdminMembershipDowngrade(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("user_id"), 10, 32)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Ungültige Benutzer-ID"}).Redirect("/admin/memberships")
	}

	db := database.GetDB()
	membership, err := models.GetOrCreateMembership(db, uint(userID))
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Mitgliedschaft nicht gefunden"}).Redirect("/admin/memberships")
	}

	membership.Tier = string(entitlements.TierFree)
	membership.Plan = ""
	membership.BillingCycle = ""
	membership.Status = models.MembershipStatusNone
	membership.GatewaySubscriptionID = ""
	membership.ExpiresAt = nil
	if err := db.Save(membership).Error; err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Speichern fehlgeschlagen"}).Redirect("/admin/memberships")
	}

	return flash.WithSuccess(c, fiber.Map{
		"type":    "success",
		"message": "Mitgliedschaft wurde zurückgesetzt",
	}).Redirect("/admin/memberships")
}
