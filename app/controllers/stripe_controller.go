package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/uproot-labs/uproot/app/models"
	"github.com/uproot-labs/uproot/internal/pkg/payment"
)

// HandleStripeWebhook verifies, deduplicates and reconciles Stripe
// subscription events.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))

	gateway := payment.NewStripeGatewayFromEnv()
	svc := paymentService()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// The event id is inside the payload; parse the envelope up front so the
	// dedup row carries it even when the signature fails.
	ev, parseErr := gateway.ParseEvent(ctx, rawBody)
	eventID := ""
	eventType := ""
	if ev != nil {
		eventID = ev.ProviderEventID
		eventType = ev.EventType
	}

	signatureValid := gateway.VerifySignature(rawBody, signature)
	created, stored, err := svc.RecordWebhookEvent(ctx, models.PaymentMethodStripe, eventID, eventType, string(rawBody), signatureValid)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if !signatureValid {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, errors.New("invalid webhook signature"))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}
	if parseErr != nil {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, parseErr)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	if !strings.HasPrefix(ev.EventType, "customer.subscription.") {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	_, syncErr := svc.Reconcile(ctx, ev)
	_ = svc.MarkWebhookProcessed(ctx, stored.ID, syncErr)
	if syncErr != nil {
		if errors.Is(syncErr, payment.ErrUserNotFound) {
			// No local account for this customer; ack so Stripe stops retrying.
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconcile_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
