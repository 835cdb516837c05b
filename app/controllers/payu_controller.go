package controllers

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/sujit-baniya/flash"

	"github.com/uproot-labs/uproot/app/models"
	"github.com/uproot-labs/uproot/app/repository"
	"github.com/uproot-labs/uproot/internal/pkg/env"
	"github.com/uproot-labs/uproot/internal/pkg/payment"
)

// HandlePayUCreatePayment prepares the signed PayU form for a tier purchase.
// The client renders it and posts it to the returned payment URL.
func HandlePayUCreatePayment(c *fiber.Ctx) error {
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

	gateway := payment.NewPayUGatewayFromEnv()
	if !gateway.IsConfigured() {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "payu_not_configured"})
	}

	user, err := repository.GetGlobalRepositories().User.GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user_not_found"})
	}

	txnid := "txn_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	appBaseURL := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:3000"), "/")

	params, err := gateway.BuildPaymentRequest(user, req.Tier, txnid, appBaseURL)
	if err != nil {
		log.Errorf("[PayU] payment request build failed for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "payment_request_failed"})
	}

	return c.JSON(fiber.Map{
		"payment_url": gateway.PaymentURL(),
		"params":      params,
	})
}

// HandlePayUPaymentSuccess verifies the response hash PayU posts back and
// reconciles the subscription, then redirects into the app.
func HandlePayUPaymentSuccess(c *fiber.Ctx) error {
	rawBody := payuResponseBody(c)

	gateway := payment.NewPayUGatewayFromEnv()
	if !gateway.VerifySignature(rawBody, "") {
		return payuRedirectError(c, "invalid_hash")
	}

	svc := paymentService()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	ev, err := gateway.ParseEvent(ctx, rawBody)
	if err != nil {
		if errors.Is(err, payment.ErrMissingData) {
			return payuRedirectError(c, "missing_payment_data")
		}
		return payuRedirectError(c, "invalid_response")
	}

	created, stored, err := svc.RecordWebhookEvent(ctx, models.PaymentMethodPayU, "txn:"+ev.ProviderTxnID, ev.EventType, string(rawBody), true)
	if err != nil {
		return payuRedirectError(c, "persist_failed")
	}
	if !created {
		// Replayed response; the first delivery already reconciled.
		return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Payment already processed"}).Redirect("/subscription/success")
	}

	if ev.Status != models.SubscriptionStatusActive {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, errors.New("payment status "+ev.Status))
		return payuRedirectError(c, "payment_not_successful")
	}

	_, syncErr := svc.Reconcile(ctx, ev)
	_ = svc.MarkWebhookProcessed(ctx, stored.ID, syncErr)
	if syncErr != nil {
		log.Errorf("[PayU] reconcile failed for txn %s: %v", ev.ProviderTxnID, syncErr)
		return payuRedirectError(c, "reconcile_failed")
	}

	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Payment successful"}).Redirect("/subscription/success")
}

// HandlePayUPaymentFailure handles the failure redirect from PayU.
func HandlePayUPaymentFailure(c *fiber.Ctx) error {
	rawBody := payuResponseBody(c)
	if params, err := payuParams(rawBody); err == nil {
		log.Warnf("[PayU] payment failed: txnid=%s status=%s error=%s",
			params["txnid"], params["status"], params["error_Message"])
	}
	return payuRedirectError(c, "payment_failed")
}

// HandlePayUPaymentCancel handles the user-cancelled redirect from PayU.
func HandlePayUPaymentCancel(c *fiber.Ctx) error {
	return payuRedirectError(c, "payment_cancelled")
}

// payuResponseBody returns the form body for POST callbacks, or the query
// string when PayU falls back to GET.
func payuResponseBody(c *fiber.Ctx) []byte {
	if body := c.BodyRaw(); len(body) > 0 {
		return append([]byte(nil), body...)
	}
	return []byte(c.Context().QueryArgs().String())
}

func payuParams(rawBody []byte) (map[string]string, error) {
	values, err := url.ParseQuery(string(rawBody))
	if err != nil {
		return nil, err
	}
	params := make(map[string]string, len(values))
	for k := range values {
		params[k] = values.Get(k)
	}
	return params, nil
}

func payuRedirectError(c *fiber.Ctx, code string) error {
	return flash.WithError(c, fiber.Map{"type": "error", "message": "Payment was not completed"}).
		Redirect("/subscription/cancel?error=" + code)
}
