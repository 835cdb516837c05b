package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/uproot-labs/uproot/app/models"
	"github.com/uproot-labs/uproot/internal/pkg/env"
)

const defaultRazorpayAPIBaseURL = "https://api.razorpay.com/v1"

// RazorpayGateway talks to the Razorpay orders API and verifies webhook and
// checkout signatures. Payments are one-time orders; the user id and tier
// travel in order notes set at creation time.
type RazorpayGateway struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	APIBaseURL    string

	HTTPClient *http.Client
}

// RazorpayOrder is the subset of the provider order object we consume.
type RazorpayOrder struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes"`
}

func NewRazorpayGatewayFromEnv() *RazorpayGateway {
	return &RazorpayGateway{
		KeyID:         strings.TrimSpace(env.GetEnv("RAZORPAY_KEY_ID", "")),
		KeySecret:     strings.TrimSpace(env.GetEnv("RAZORPAY_KEY_SECRET", "")),
		WebhookSecret: strings.TrimSpace(env.GetEnv("RAZORPAY_WEBHOOK_SECRET", "")),
		APIBaseURL:    strings.TrimSpace(env.GetEnv("RAZORPAY_API_BASE_URL", defaultRazorpayAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (g *RazorpayGateway) Provider() string { return models.PaymentMethodRazorpay }

// IsConfigured reports whether API credentials are present.
func (g *RazorpayGateway) IsConfigured() bool {
	return g.KeyID != "" && g.KeySecret != ""
}

// VerifySignature checks the X-Razorpay-Signature header: HMAC-SHA256 over
// the raw webhook body keyed with the webhook secret.
func (g *RazorpayGateway) VerifySignature(payload []byte, signature string) bool {
	return verifyHexHMAC(payload, signature, g.WebhookSecret)
}

// VerifyPaymentSignature checks the checkout callback signature: HMAC-SHA256
// over "order_id|payment_id" keyed with the API key secret.
func (g *RazorpayGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	message := fmt.Sprintf("%s|%s", orderID, paymentID)
	return verifyHexHMAC([]byte(message), signature, g.KeySecret)
}

func verifyHexHMAC(message []byte, signature, secret string) bool {
	sig := strings.TrimSpace(signature)
	if sig == "" || strings.TrimSpace(secret) == "" {
		return false
	}
	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}

// CreateOrder creates a one-time order carrying the user id and tier in its
// notes so the webhook can resolve them later.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, amountSubunits int64, currency, receipt string, notes map[string]string) (*RazorpayOrder, error) {
	if !g.IsConfigured() {
		return nil, ErrUnconfigured
	}

	body, err := json.Marshal(map[string]interface{}{
		"amount":   amountSubunits,
		"currency": currency,
		"receipt":  receipt,
		"notes":    notes,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.APIBaseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.KeyID, g.KeySecret)

	var order RazorpayOrder
	if err := g.doJSON(req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// FetchOrder retrieves an order by id, including its notes.
func (g *RazorpayGateway) FetchOrder(ctx context.Context, orderID string) (*RazorpayOrder, error) {
	if !g.IsConfigured() {
		return nil, ErrUnconfigured
	}
	if strings.TrimSpace(orderID) == "" {
		return nil, ErrMissingData
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.APIBaseURL+"/orders/"+orderID, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(g.KeyID, g.KeySecret)

	var order RazorpayOrder
	if err := g.doJSON(req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (g *RazorpayGateway) doJSON(req *http.Request, out interface{}) error {
	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("razorpay request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("razorpay response read failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("razorpay returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.Unmarshal(data, out)
}

// ParseEvent extracts a normalized event from a verified webhook body. For
// payment.captured the order is fetched upstream to recover the notes; for
// order.paid the notes are already in the payload.
func (g *RazorpayGateway) ParseEvent(ctx context.Context, payload []byte) (*Event, error) {
	var body struct {
		Event   string `json:"event"`
		Payload struct {
			Payment struct {
				Entity struct {
					ID      string `json:"id"`
					OrderID string `json:"order_id"`
					Amount  int64  `json:"amount"`
				} `json:"entity"`
			} `json:"payment"`
			Order struct {
				Entity RazorpayOrder `json:"entity"`
			} `json:"order"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("parse razorpay event: %w", err)
	}

	ev := &Event{
		Provider:  models.PaymentMethodRazorpay,
		EventType: body.Event,
		Status:    models.SubscriptionStatusActive,
		Currency:  "INR",
	}

	switch body.Event {
	case "payment.captured":
		orderID := body.Payload.Payment.Entity.OrderID
		if orderID == "" {
			return nil, ErrMissingData
		}
		order, err := g.FetchOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		ev.AmountSubunits = body.Payload.Payment.Entity.Amount
		ev.ProviderTxnID = orderID
		return fillEventFromNotes(ev, order.Notes)
	case "order.paid":
		order := body.Payload.Order.Entity
		if order.ID == "" {
			return nil, ErrMissingData
		}
		ev.AmountSubunits = order.Amount
		ev.ProviderTxnID = order.ID
		return fillEventFromNotes(ev, order.Notes)
	default:
		// Other events (subscription.*) are acknowledged without state changes.
		return ev, nil
	}
}

// EventFromOrder normalizes a fetched order into an event. Used by the
// checkout-callback verification flow, where no webhook body exists.
func (g *RazorpayGateway) EventFromOrder(order *RazorpayOrder, paymentID string) (*Event, error) {
	if order == nil || order.ID == "" {
		return nil, ErrMissingData
	}
	ev := &Event{
		Provider:        models.PaymentMethodRazorpay,
		ProviderEventID: "checkout:" + paymentID,
		EventType:       "checkout.verified",
		Status:          models.SubscriptionStatusActive,
		Currency:        "INR",
		AmountSubunits:  order.Amount,
		ProviderTxnID:   order.ID,
	}
	return fillEventFromNotes(ev, order.Notes)
}

// fillEventFromNotes resolves user id and tier from order notes. Their
// absence is a hard error so a mislabeled order can never grant access.
func fillEventFromNotes(ev *Event, notes map[string]string) (*Event, error) {
	rawUserID := strings.TrimSpace(notes["userId"])
	tier := strings.TrimSpace(notes["tier"])
	if rawUserID == "" || tier == "" {
		return nil, ErrMissingData
	}
	userID, err := strconv.ParseUint(rawUserID, 10, 64)
	if err != nil || userID == 0 {
		return nil, ErrMissingData
	}
	ev.UserID = uint(userID)
	ev.Tier = tier
	return ev, nil
}
