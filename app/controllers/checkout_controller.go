package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/internal/pkg/billing"
	"github.com/ManuelReschke/MemberFox/internal/pkg/database"
	"github.com/ManuelReschke/MemberFox/internal/pkg/usercontext"
)

const checkoutTimeout = 30 * time.Second

var checkoutValidate = validator.New()

type checkoutRequest struct {
	Plan  string `form:"plan" validate:"required,oneof=bronze silver gold"`
	Cycle string `form:"cycle" validate:"required,oneof=monthly annual"`
}

func parseCheckoutRequest(c *fiber.Ctx) (*checkoutRequest, error) {
	req := &checkoutRequest{
		Plan:  strings.ToLower(strings.TrimSpace(c.FormValue("plan", c.Query("plan")))),
		Cycle: strings.ToLower(strings.TrimSpace(c.FormValue("cycle", c.Query("cycle")))),
	}
	if err := checkoutValidate.Struct(req); err != nil {
		return nil, err
	}
	return req, nil
}

// HandleCheckoutOrder starts a one-time purchase and sends the user to the
// gateway approval page.
func HandleCheckoutOrder(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}

	req, err := parseCheckoutRequest(c)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Ungültige Plan-Auswahl"}).Redirect("/upgrade")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), checkoutTimeout)
	defer cancel()

	orchestrator := billing.NewOrchestratorFromEnv()
	redirect, err := orchestrator.CreateOrder(ctx, userCtx.UserID, req.Plan, req.Cycle)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": checkoutErrorMessage(err)}).Redirect("/upgrade")
	}

	return c.Redirect(redirect.ApprovalURL, fiber.StatusSeeOther)
}

// HandleCheckoutSubscribe starts a recurring subscription checkout.
func HandleCheckoutSubscribe(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}

	req, err := parseCheckoutRequest(c)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Ungültige Plan-Auswahl"}).Redirect("/upgrade")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), checkoutTimeout)
	defer cancel()

	orchestrator := billing.NewOrchestratorFromEnv()
	redirect, err := orchestrator.CreateSubscription(ctx, userCtx.UserID, userCtx.Email, req.Plan, req.Cycle)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": checkoutErrorMessage(err)}).Redirect("/upgrade")
	}

	return c.Redirect(redirect.ApprovalURL, fiber.StatusSeeOther)
}

// HandleCheckoutReturn is the gateway return URL after the user approved a
// one-time order. The order is captured here; subscriptions are activated by
// webhook only, so their return just shows a pending notice.
func HandleCheckoutReturn(c *fiber.Ctx) error {
	orderID := strings.TrimSpace(c.Query("token"))
	if orderID == "" {
		// Subscription returns carry subscription_id instead of an order token.
		if c.Query("subscription_id") != "" {
			return flash.WithSuccess(c, fiber.Map{
				"type":    "success",
				"message": "Danke! Dein Abo wird aktiviert, sobald die Zahlung bestätigt ist.",
			}).Redirect("/account/membership")
		}
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Ungültige Rückleitung vom Zahlungsanbieter"}).Redirect("/upgrade")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), checkoutTimeout)
	defer cancel()

	orchestrator := billing.NewOrchestratorFromEnv()
	result, err := orchestrator.CaptureOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, billing.ErrGatewayRejected) {
			return flash.WithError(c, fiber.Map{
				"type":    "error",
				"message": "Die Zahlung wurde nicht abgeschlossen, es wurde nichts abgebucht.",
			}).Redirect("/upgrade")
		}
		return flash.WithError(c, fiber.Map{"type": "error", "message": checkoutErrorMessage(err)}).Redirect("/upgrade")
	}

	if result.AlreadyProcessed {
		return flash.WithSuccess(c, fiber.Map{
			"type":    "success",
			"message": "Diese Zahlung wurde bereits verarbeitet.",
		}).Redirect("/account/membership")
	}

	return flash.WithSuccess(c, fiber.Map{
		"type":    "success",
		"message": "Zahlung erfolgreich! Deine Mitgliedschaft ist jetzt aktiv.",
	}).Redirect("/account/membership")
}

// HandleCheckoutCancelled is the gateway cancel URL; nothing was charged.
func HandleCheckoutCancelled(c *fiber.Ctx) error {
	return flash.WithInfo(c, fiber.Map{
		"type":    "info",
		"message": "Checkout abgebrochen, es wurde nichts abgebucht.",
	}).Redirect("/upgrade")
}

// HandleMembershipCancel requests cancellation of the user's subscription at
// the gateway. Entitlement status only changes when the gateway confirms via
// webhook; access remains until the paid period runs out.
func HandleMembershipCancel(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}

	var membership models.Membership
	err := database.GetDB().Where("user_id = ?", userCtx.UserID).First(&membership).Error
	if err != nil || membership.GatewaySubscriptionID == "" {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Kein aktives Abo gefunden"}).Redirect("/account/membership")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), checkoutTimeout)
	defer cancel()

	orchestrator := billing.NewOrchestratorFromEnv()
	if err := orchestrator.CancelSubscription(ctx, membership.GatewaySubscriptionID); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": checkoutErrorMessage(err)}).Redirect("/account/membership")
	}

	return flash.WithSuccess(c, fiber.Map{
		"type":    "success",
		"message": "Kündigung beauftragt. Dein Zugang bleibt bis zum Ende des bezahlten Zeitraums bestehen.",
	}).Redirect("/account/membership")
}

func checkoutErrorMessage(err error) string {
	switch {
	case errors.Is(err, billing.ErrUnknownPlan):
		return "Dieser Plan ist nicht verfügbar"
	case errors.Is(err, billing.ErrIntentNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return "Dieser Checkout ist nicht mehr gültig, bitte starte ihn neu"
	case errors.Is(err, billing.ErrGatewayRejected):
		return "Der Zahlungsanbieter hat die Anfrage abgelehnt"
	case errors.Is(err, billing.ErrGatewayUnavailable):
		return "Der Zahlungsanbieter ist gerade nicht erreichbar, bitte versuche es später erneut"
	default:
		return "Beim Checkout ist etwas schiefgelaufen"
	}
}
