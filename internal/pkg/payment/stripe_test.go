package payment

import (
	"context"
	"testing"
	"time"

	"github.com/uproot-labs/uproot/app/models"
	"github.com/uproot-labs/uproot/internal/pkg/env"
)

func TestStripeVerifySignature_FailsClosed(t *testing.T) {
	g := &StripeGateway{}
	if g.VerifySignature([]byte(`{}`), "t=1,v1=deadbeef") {
		t.Fatalf("expected missing webhook secret to fail closed")
	}

	g = &StripeGateway{WebhookSecret: "whsec_test"}
	if g.VerifySignature([]byte(`{}`), "") {
		t.Fatalf("expected empty signature to fail")
	}
	if g.VerifySignature([]byte(`{}`), "garbage") {
		t.Fatalf("expected malformed signature to fail")
	}
}

func TestStripeParseEvent_SubscriptionUpdated(t *testing.T) {
	env.Env = map[string]string{
		"STRIPE_PRICE_ID_BASIC": "price_basic",
		"STRIPE_PRICE_ID_PRO":   "price_pro",
	}
	defer func() { env.Env = nil }()

	g := &StripeGateway{}
	payload := []byte(`{
		"id": "evt_1",
		"type": "customer.subscription.updated",
		"data": {
			"object": {
				"id": "sub_1",
				"customer": "cus_1",
				"status": "active",
				"cancel_at_period_end": true,
				"canceled_at": 1700003600,
				"items": {
					"data": [{
						"price": {"id": "price_pro"},
						"current_period_start": 1700000000,
						"current_period_end": 1702592000
					}]
				}
			}
		}
	}`)

	ev, err := g.ParseEvent(context.Background(), payload)
	if err != nil {
		t.Fatalf("ParseEvent returned error: %v", err)
	}
	if ev.ProviderEventID != "evt_1" || ev.EventType != "customer.subscription.updated" {
		t.Fatalf("unexpected envelope: %s / %s", ev.ProviderEventID, ev.EventType)
	}
	if ev.Tier != models.TierPro {
		t.Fatalf("expected Pro tier from price_pro, got %s", ev.Tier)
	}
	if !ev.CancelAtPeriodEnd {
		t.Fatalf("expected cancel_at_period_end to carry through")
	}
	if ev.CurrentPeriodStart == nil || !ev.CurrentPeriodStart.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("expected period start from item, got %v", ev.CurrentPeriodStart)
	}
	if ev.CanceledAt == nil {
		t.Fatalf("expected canceled_at to be set")
	}
}

func TestStripeParseEvent_UnknownPriceMapsToFree(t *testing.T) {
	env.Env = map[string]string{
		"STRIPE_PRICE_ID_BASIC": "price_basic",
		"STRIPE_PRICE_ID_PRO":   "price_pro",
	}
	defer func() { env.Env = nil }()

	g := &StripeGateway{}
	payload := []byte(`{
		"id": "evt_2",
		"type": "customer.subscription.created",
		"data": {
			"object": {
				"id": "sub_2",
				"customer": "cus_2",
				"status": "active",
				"items": {"data": [{"price": {"id": "price_mystery"}}]}
			}
		}
	}`)

	ev, err := g.ParseEvent(context.Background(), payload)
	if err != nil {
		t.Fatalf("ParseEvent returned error: %v", err)
	}
	if ev.Tier != models.TierFree {
		t.Fatalf("expected unknown price to map to Free, got %s", ev.Tier)
	}
}

func TestStripeParseEvent_DeletedForcesCanceled(t *testing.T) {
	g := &StripeGateway{}
	payload := []byte(`{
		"id": "evt_3",
		"type": "customer.subscription.deleted",
		"data": {
			"object": {"id": "sub_3", "customer": "cus_3", "status": "canceled"}
		}
	}`)

	ev, err := g.ParseEvent(context.Background(), payload)
	if err != nil {
		t.Fatalf("ParseEvent returned error: %v", err)
	}
	if ev.Status != models.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled status, got %s", ev.Status)
	}
}

func TestStripeParseEvent_IgnoresNonSubscriptionEvents(t *testing.T) {
	g := &StripeGateway{}
	ev, err := g.ParseEvent(context.Background(), []byte(`{"id":"evt_4","type":"invoice.paid","data":{"object":{}}}`))
	if err != nil {
		t.Fatalf("ParseEvent returned error: %v", err)
	}
	if ev.StripeSubscriptionID != "" || ev.UserID != 0 {
		t.Fatalf("expected empty event body for non-subscription events")
	}
}
