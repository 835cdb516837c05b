package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/uproot-labs/uproot/app/models"
	"github.com/uproot-labs/uproot/internal/pkg/env"
)

// StripeGateway verifies and parses Stripe subscription webhooks and manages
// recurring subscriptions upstream.
type StripeGateway struct {
	SecretKey     string
	WebhookSecret string

	client *stripe.Client
}

// NewStripeGatewayFromEnv builds the gateway from STRIPE_SECRET_KEY and
// STRIPE_WEBHOOK_SECRET. An unconfigured gateway still parses payloads but
// rejects every signature and refuses remote calls.
func NewStripeGatewayFromEnv() *StripeGateway {
	g := &StripeGateway{
		SecretKey:     strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
	}
	if g.SecretKey != "" {
		g.client = stripe.NewClient(g.SecretKey, nil)
	}
	return g
}

func (g *StripeGateway) Provider() string { return models.PaymentMethodStripe }

// IsConfigured reports whether API credentials are present.
func (g *StripeGateway) IsConfigured() bool {
	return g.client != nil
}

// VerifySignature checks the Stripe-Signature header over the raw payload.
func (g *StripeGateway) VerifySignature(payload []byte, signature string) bool {
	if strings.TrimSpace(signature) == "" || g.WebhookSecret == "" {
		return false
	}
	_, err := webhook.ConstructEventWithOptions(payload, signature, g.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	return err == nil
}

// stripeSubscriptionPayload is the subset of the subscription object we
// consume. Parsed locally so API version drift in unrelated fields cannot
// break webhook handling.
type stripeSubscriptionPayload struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CanceledAt         int64  `json:"canceled_at"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

// ParseEvent extracts a normalized event from a Stripe webhook envelope.
// Only customer.subscription.* events carry subscription state; everything
// else yields an event with just the envelope fields so callers can ack it.
func (g *StripeGateway) ParseEvent(ctx context.Context, payload []byte) (*Event, error) {
	_ = ctx
	var envelope struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("parse stripe event: %w", err)
	}

	ev := &Event{
		Provider:        models.PaymentMethodStripe,
		ProviderEventID: envelope.ID,
		EventType:       envelope.Type,
	}

	if !strings.HasPrefix(envelope.Type, "customer.subscription.") {
		return ev, nil
	}

	var sub stripeSubscriptionPayload
	if err := json.Unmarshal(envelope.Data.Object, &sub); err != nil {
		return nil, fmt.Errorf("parse stripe subscription: %w", err)
	}
	if sub.ID == "" || sub.Customer == "" {
		return nil, ErrMissingData
	}

	ev.StripeCustomerID = sub.Customer
	ev.StripeSubscriptionID = sub.ID
	ev.ProviderTxnID = sub.ID
	ev.Status = sub.Status
	ev.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	if envelope.Type == "customer.subscription.deleted" {
		ev.Status = models.SubscriptionStatusCanceled
	}

	if len(sub.Items.Data) > 0 {
		ev.StripePriceID = sub.Items.Data[0].Price.ID
	}
	ev.Tier = TierFromPriceID(ev.StripePriceID)

	// Billing periods moved from the subscription to its items in newer API
	// versions; accept either location.
	periodStart := sub.CurrentPeriodStart
	periodEnd := sub.CurrentPeriodEnd
	if periodStart == 0 && len(sub.Items.Data) > 0 {
		periodStart = sub.Items.Data[0].CurrentPeriodStart
		periodEnd = sub.Items.Data[0].CurrentPeriodEnd
	}
	if periodStart > 0 {
		t := time.Unix(periodStart, 0)
		ev.CurrentPeriodStart = &t
	}
	if periodEnd > 0 {
		t := time.Unix(periodEnd, 0)
		ev.CurrentPeriodEnd = &t
	}
	if sub.CanceledAt > 0 {
		t := time.Unix(sub.CanceledAt, 0)
		ev.CanceledAt = &t
	}

	return ev, nil
}

// EnsureCustomer returns the user's Stripe customer id, creating the customer
// upstream and persisting the id when the user has none yet.
func (g *StripeGateway) EnsureCustomer(ctx context.Context, user *models.User) (string, error) {
	if !g.IsConfigured() {
		return "", ErrUnconfigured
	}

	if user.StripeCustomerID != "" {
		customer, err := g.client.V1Customers.Retrieve(ctx, user.StripeCustomerID, nil)
		if err == nil && customer != nil && !customer.Deleted {
			return customer.ID, nil
		}
		// Stale id: fall through and create a fresh customer.
	}

	customer, err := g.client.V1Customers.Create(ctx, &stripe.CustomerCreateParams{
		Name:  stripe.String(user.Name),
		Email: stripe.String(user.Email),
		Metadata: map[string]string{
			"user_id": fmt.Sprintf("%d", user.ID),
		},
	})
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return customer.ID, nil
}

// FetchSubscriptionEvent retrieves the subscription upstream and normalizes
// it to the same event shape webhooks produce, so the verify endpoint can
// reuse the reconciliation path.
func (g *StripeGateway) FetchSubscriptionEvent(ctx context.Context, subscriptionID string) (*Event, error) {
	if !g.IsConfigured() {
		return nil, ErrUnconfigured
	}
	if strings.TrimSpace(subscriptionID) == "" {
		return nil, ErrMissingData
	}

	sub, err := g.client.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieve stripe subscription %s: %w", subscriptionID, err)
	}

	ev := &Event{
		Provider:             models.PaymentMethodStripe,
		EventType:            "subscription.verify",
		StripeSubscriptionID: sub.ID,
		ProviderTxnID:        sub.ID,
		Status:               string(sub.Status),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		ev.StripeCustomerID = sub.Customer.ID
	}
	if sub.CanceledAt > 0 {
		t := time.Unix(sub.CanceledAt, 0)
		ev.CanceledAt = &t
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			ev.StripePriceID = item.Price.ID
		}
		if item.CurrentPeriodStart > 0 {
			t := time.Unix(item.CurrentPeriodStart, 0)
			ev.CurrentPeriodStart = &t
		}
		if item.CurrentPeriodEnd > 0 {
			t := time.Unix(item.CurrentPeriodEnd, 0)
			ev.CurrentPeriodEnd = &t
		}
	}
	ev.Tier = TierFromPriceID(ev.StripePriceID)

	return ev, nil
}

// SetCancelAtPeriodEnd flips the upstream cancellation flag on a Stripe
// subscription. Implements RemoteManager.
func (g *StripeGateway) SetCancelAtPeriodEnd(ctx context.Context, providerSubscriptionID string, cancel bool) error {
	if !g.IsConfigured() {
		return ErrUnconfigured
	}
	if strings.TrimSpace(providerSubscriptionID) == "" {
		return ErrMissingData
	}
	_, err := g.client.V1Subscriptions.Update(ctx, providerSubscriptionID, &stripe.SubscriptionUpdateParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	})
	if err != nil {
		return fmt.Errorf("update stripe subscription %s: %w", providerSubscriptionID, err)
	}
	return nil
}
