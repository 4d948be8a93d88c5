package apiv1

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/internal/pkg/database"
	"github.com/ManuelReschke/MemberFox/internal/pkg/usercontext"
)

// APIServer holds the JSON API handlers.
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// Pong is the ping response payload.
type Pong struct {
	Ping string `json:"ping"`
}

// membershipSnapshot is the JSON shape for membership reads.
type membershipSnapshot struct {
	UserID       uint   `json:"user_id"`
	Tier         string `json:"tier"`
	Plan         string `json:"plan,omitempty"`
	BillingCycle string `json:"billing_cycle,omitempty"`
	Status       string `json:"status"`
	ExpiresAt    string `json:"expires_at,omitempty"`
}

func snapshotFromModel(m *models.Membership) membershipSnapshot {
	s := membershipSnapshot{
		UserID:       m.UserID,
		Tier:         m.Tier,
		Plan:         m.Plan,
		BillingCycle: m.BillingCycle,
		Status:       m.Status,
	}
	if m.ExpiresAt != nil {
		s.ExpiresAt = m.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return s
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetMyMembership returns the authenticated user's membership snapshot.
// Security is enforced via session middleware attached in the router.
func (s *APIServer) GetMyMembership(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	membership, err := models.GetOrCreateMembership(database.GetDB(), userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "membership_lookup_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(snapshotFromModel(membership))
}

// GetAdminMembership returns any user's membership snapshot (admin only).
func (s *APIServer) GetAdminMembership(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("user_id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "user_id must be numeric"})
	}

	var membership models.Membership
	if err := database.GetDB().Where("user_id = ?", uint(userID)).First(&membership).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}

	return c.Status(fiber.StatusOK).JSON(snapshotFromModel(&membership))
}
