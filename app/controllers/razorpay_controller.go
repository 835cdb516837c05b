package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/uproot-labs/uproot/app/models"
	"github.com/uproot-labs/uproot/app/repository"
	"github.com/uproot-labs/uproot/internal/pkg/payment"
)

// HandleRazorpayCreateOrder creates a one-time order for a tier purchase and
// returns the checkout parameters for the client.
func HandleRazorpayCreateOrder(c *fiber.Ctx) error {
	userCtx, ok := requireUser(c)
	if !ok {
		return nil
	}

	var req struct {
		Tier string `json:"tier"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if !payment.IsPurchasableTier(req.Tier) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_tier"})
	}

	gateway := payment.NewRazorpayGatewayFromEnv()
	if !gateway.IsConfigured() {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "razorpay_not_configured"})
	}

	user, err := repository.GetGlobalRepositories().User.GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user_not_found"})
	}

	amount := payment.UsdToInrSubunits(payment.TierPriceUSD[req.Tier])
	receipt := "rcpt_" + uuid.NewString()[:18]
	notes := map[string]string{
		"userId": fmt.Sprintf("%d", user.ID),
		"tier":   req.Tier,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	order, err := gateway.CreateOrder(ctx, amount, "INR", receipt, notes)
	if err != nil {
		log.Errorf("[Razorpay] order creation failed for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "order_creation_failed"})
	}

	return c.JSON(fiber.Map{
		"order_id": order.ID,
		"amount":   order.Amount,
		"currency": order.Currency,
		"key_id":   gateway.KeyID,
		"prefill": fiber.Map{
			"name":    user.Name,
			"email":   user.Email,
			"contact": user.PhoneNumber,
		},
	})
}

// HandleRazorpayVerifyPayment verifies the checkout callback signature and
// reconciles the subscription from the paid order.
func HandleRazorpayVerifyPayment(c *fiber.Ctx) error {
	userCtx, ok := requireUser(c)
	if !ok {
		return nil
	}

	var req struct {
		RazorpayOrderID   string `json:"razorpay_order_id"`
		RazorpayPaymentID string `json:"razorpay_payment_id"`
		RazorpaySignature string `json:"razorpay_signature"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	gateway := payment.NewRazorpayGatewayFromEnv()
	if !gateway.VerifyPaymentSignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	order, err := gateway.FetchOrder(ctx, req.RazorpayOrderID)
	if err != nil {
		log.Errorf("[Razorpay] order fetch failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "order_fetch_failed"})
	}

	ev, err := gateway.EventFromOrder(order, req.RazorpayPaymentID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_order_data"})
	}
	if ev.UserID != userCtx.UserID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "order_user_mismatch"})
	}

	sub, err := paymentService().Reconcile(ctx, ev)
	if err != nil {
		log.Errorf("[Razorpay] reconcile failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconcile_failed"})
	}

	refreshSessionTier(c, sub)
	return c.JSON(fiber.Map{"subscription": sub, "tier": sub.EffectiveTier()})
}

// HandleRazorpayWebhook verifies, deduplicates and reconciles Razorpay
// payment events.
func HandleRazorpayWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Razorpay-Signature"))
	eventID := strings.TrimSpace(c.Get("X-Razorpay-Event-Id"))

	gateway := payment.NewRazorpayGatewayFromEnv()
	svc := paymentService()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	signatureValid := gateway.VerifySignature(rawBody, signature)
	created, stored, err := svc.RecordWebhookEvent(ctx, models.PaymentMethodRazorpay, eventID, "", string(rawBody), signatureValid)
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

	ev, err := gateway.ParseEvent(ctx, rawBody)
	if err != nil {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, err)
		if errors.Is(err, payment.ErrMissingData) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_order_data"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_parse_failed"})
	}

	if ev.UserID == 0 {
		// Non-payment event; nothing to reconcile.
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	_, syncErr := svc.Reconcile(ctx, ev)
	_ = svc.MarkWebhookProcessed(ctx, stored.ID, syncErr)
	if syncErr != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconcile_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
