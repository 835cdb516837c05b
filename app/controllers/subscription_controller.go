package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/uproot-labs/uproot/app/models"
	"github.com/uproot-labs/uproot/app/repository"
	"github.com/uproot-labs/uproot/internal/pkg/database"
	"github.com/uproot-labs/uproot/internal/pkg/payment"
	"github.com/uproot-labs/uproot/internal/pkg/session"
)

func paymentService() *payment.Service {
	return payment.NewServiceFromDB(database.GetDB(), payment.NewStripeGatewayFromEnv())
}

// HandleGetSubscription returns the user's subscription, lazily creating the
// Free default.
func HandleGetSubscription(c *fiber.Ctx) error {
	userCtx, ok := requireUser(c)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub, err := paymentService().GetOrCreate(ctx, userCtx.UserID)
	if err != nil {
		log.Errorf("[Subscription] load failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "subscription_load_failed"})
	}

	return c.JSON(fiber.Map{"subscription": sub, "tier": sub.EffectiveTier()})
}

// HandleCancelSubscription flags the subscription for cancellation at period
// end. Gateway-billed subscriptions are cancelled upstream first.
func HandleCancelSubscription(c *fiber.Ctx) error {
	return handleCancelFlag(c, true)
}

// HandleReactivateSubscription clears a pending cancellation.
func HandleReactivateSubscription(c *fiber.Ctx) error {
	return handleCancelFlag(c, false)
}

func handleCancelFlag(c *fiber.Ctx, cancelFlag bool) error {
	userCtx, ok := requireUser(c)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	svc := paymentService()
	var sub *models.Subscription
	var err error
	if cancelFlag {
		sub, err = svc.Cancel(ctx, userCtx.UserID)
	} else {
		sub, err = svc.Reactivate(ctx, userCtx.UserID)
	}
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrNoSubscription):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_subscription"})
		case errors.Is(err, payment.ErrUnsupportedMethod):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported_payment_method"})
		case errors.Is(err, payment.ErrUnconfigured):
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stripe_not_configured"})
		default:
			log.Errorf("[Subscription] cancel flag update failed for user %d: %v", userCtx.UserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "subscription_update_failed"})
		}
	}

	refreshSessionTier(c, sub)
	return c.JSON(fiber.Map{"subscription": sub})
}

// HandleVerifyStripeSubscription re-syncs the subscription against Stripe.
// Used after checkout returns, before the webhook lands.
func HandleVerifyStripeSubscription(c *fiber.Ctx) error {
	userCtx, ok := requireUser(c)
	if !ok {
		return nil
	}

	repos := repository.GetGlobalRepositories()
	sub, err := repos.Subscription.GetByUserID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_subscription"})
	}
	if sub.PaymentMethod != models.PaymentMethodStripe || sub.StripeSubscriptionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "not_a_stripe_subscription"})
	}

	gateway := payment.NewStripeGatewayFromEnv()
	if !gateway.IsConfigured() {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stripe_not_configured"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	ev, err := gateway.FetchSubscriptionEvent(ctx, sub.StripeSubscriptionID)
	if err != nil {
		log.Errorf("[Subscription] stripe verify failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stripe_verify_failed"})
	}
	ev.UserID = userCtx.UserID

	updated, err := paymentService().Reconcile(ctx, ev)
	if err != nil {
		log.Errorf("[Subscription] reconcile after verify failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconcile_failed"})
	}

	refreshSessionTier(c, updated)
	return c.JSON(fiber.Map{"subscription": updated, "tier": updated.EffectiveTier()})
}

// refreshSessionTier keeps the session-cached tier in sync after
// subscription mutations.
func refreshSessionTier(c *fiber.Ctx, sub *models.Subscription) {
	if sub == nil {
		return
	}
	_ = session.SetSessionValue(c, "user_tier", sub.EffectiveTier())
}
