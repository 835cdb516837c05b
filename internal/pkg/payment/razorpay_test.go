package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func signHMACSHA256(message []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestRazorpayVerifySignature(t *testing.T) {
	g := &RazorpayGateway{WebhookSecret: "whsec_test"}
	payload := []byte(`{"event":"payment.captured"}`)
	validSig := signHMACSHA256(payload, "whsec_test")

	if !g.VerifySignature(payload, validSig) {
		t.Fatalf("expected valid signature to verify")
	}
	if g.VerifySignature(payload, signHMACSHA256(payload, "other-secret")) {
		t.Fatalf("expected signature with wrong secret to fail")
	}
	if g.VerifySignature(payload, "not-hex") {
		t.Fatalf("expected malformed signature to fail")
	}
	if g.VerifySignature(payload, "") {
		t.Fatalf("expected empty signature to fail")
	}

	unconfigured := &RazorpayGateway{}
	if unconfigured.VerifySignature(payload, validSig) {
		t.Fatalf("expected missing secret to fail closed")
	}
}

func TestRazorpayVerifyPaymentSignature(t *testing.T) {
	g := &RazorpayGateway{KeySecret: "key_secret"}
	sig := signHMACSHA256([]byte("order_1|pay_1"), "key_secret")

	if !g.VerifyPaymentSignature("order_1", "pay_1", sig) {
		t.Fatalf("expected checkout signature to verify")
	}
	if g.VerifyPaymentSignature("order_1", "pay_2", sig) {
		t.Fatalf("expected signature over different payment id to fail")
	}
}

func TestRazorpayParseEvent_OrderPaid(t *testing.T) {
	g := &RazorpayGateway{KeyID: "key", KeySecret: "secret"}
	payload := []byte(`{
		"event": "order.paid",
		"payload": {
			"order": {
				"entity": {
					"id": "order_123",
					"amount": 82900,
					"notes": {"userId": "42", "tier": "Basic"}
				}
			}
		}
	}`)

	ev, err := g.ParseEvent(context.Background(), payload)
	if err != nil {
		t.Fatalf("ParseEvent returned error: %v", err)
	}
	if ev.UserID != 42 || ev.Tier != "Basic" {
		t.Fatalf("expected user 42 / Basic, got %d / %s", ev.UserID, ev.Tier)
	}
	if ev.ProviderTxnID != "order_123" {
		t.Fatalf("expected transaction ref order_123, got %s", ev.ProviderTxnID)
	}
	if ev.AmountSubunits != 82900 {
		t.Fatalf("expected amount 82900, got %d", ev.AmountSubunits)
	}
}

func TestRazorpayParseEvent_MissingNotes(t *testing.T) {
	g := &RazorpayGateway{KeyID: "key", KeySecret: "secret"}
	payload := []byte(`{
		"event": "order.paid",
		"payload": {
			"order": {
				"entity": {"id": "order_123", "amount": 82900, "notes": {}}
			}
		}
	}`)

	if _, err := g.ParseEvent(context.Background(), payload); !errors.Is(err, ErrMissingData) {
		t.Fatalf("expected ErrMissingData, got %v", err)
	}
}

func TestRazorpayParseEvent_PaymentCapturedFetchesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/order_777" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if user, _, ok := r.BasicAuth(); !ok || user != "key_id" {
			t.Fatalf("expected basic auth with key id")
		}
		fmt.Fprint(w, `{"id":"order_777","amount":165800,"notes":{"userId":"7","tier":"Pro"}}`)
	}))
	defer srv.Close()

	g := &RazorpayGateway{
		KeyID:      "key_id",
		KeySecret:  "key_secret",
		APIBaseURL: srv.URL,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}

	payload := []byte(`{
		"event": "payment.captured",
		"payload": {
			"payment": {
				"entity": {"id": "pay_1", "order_id": "order_777", "amount": 165800}
			}
		}
	}`)

	ev, err := g.ParseEvent(context.Background(), payload)
	if err != nil {
		t.Fatalf("ParseEvent returned error: %v", err)
	}
	if ev.UserID != 7 || ev.Tier != "Pro" {
		t.Fatalf("expected user 7 / Pro, got %d / %s", ev.UserID, ev.Tier)
	}
	if ev.ProviderTxnID != "order_777" {
		t.Fatalf("expected transaction ref order_777, got %s", ev.ProviderTxnID)
	}
}

func TestRazorpayCreateOrder_Unconfigured(t *testing.T) {
	g := &RazorpayGateway{}
	if _, err := g.CreateOrder(context.Background(), 1000, "INR", "rcpt", nil); !errors.Is(err, ErrUnconfigured) {
		t.Fatalf("expected ErrUnconfigured, got %v", err)
	}
}
