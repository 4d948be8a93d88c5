package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MemberFox/internal/pkg/billing"
	"github.com/ManuelReschke/MemberFox/internal/pkg/env"
)

const webhookTimeout = 15 * time.Second

// HandlePayPalWebhook receives gateway event deliveries. The delivery is
// always acked with 200 once it sits in the ledger, even when processing
// failed; only a ledger persist failure returns 5xx so the gateway
// redelivers.
func HandlePayPalWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	// Fallback ledger key only; the processor prefers the envelope's own
	// event id, which is stable across redelivery attempts.
	eventID := firstHeaderValue(c, "Paypal-Transmission-Id", "X-Webhook-Delivery-Id")
	signature := strings.TrimSpace(c.Get("Paypal-Transmission-Sig"))
	secret := env.GetEnv("PAYPAL_WEBHOOK_SECRET", "")

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	signatureValid := billing.VerifyWebhookSignature(rawBody, signature, secret)

	processor := billing.NewProcessorFromEnv()
	outcome, err := processor.Handle(ctx, billing.RawEvent{
		EventID:        eventID,
		Payload:        rawBody,
		SignatureValid: signatureValid,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if outcome.Duplicate {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if !signatureValid {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}
	if outcome.Ignored {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}
	if outcome.Err != nil {
		// The error is on the ledger row; ack so the redelivery backoff
		// stays bounded. A redelivered event retries the mutation.
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "deferred": true})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

func firstHeaderValue(c *fiber.Ctx, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(c.Get(name)); v != "" {
			return v
		}
	}
	return ""
}
