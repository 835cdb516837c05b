package payment

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/uproot-labs/uproot/app/models"
	"github.com/uproot-labs/uproot/internal/pkg/env"
)

const (
	payuLiveBaseURL = "https://secure.payu.in"
	payuTestBaseURL = "https://test.payu.in"
)

var nonDigits = regexp.MustCompile(`[^0-9]`)

// PayUGateway implements the PayU non-seamless flow: the server prepares a
// signed form the browser posts to PayU, and PayU posts the outcome back to
// our success/failure URLs with its own hash chain.
type PayUGateway struct {
	Key      string
	Salt     string
	TestMode bool
	BaseURL  string
}

func NewPayUGatewayFromEnv() *PayUGateway {
	testMode := env.GetEnv("PAYU_TEST_MODE", "") == "true"
	baseURL := payuLiveBaseURL
	if testMode {
		baseURL = payuTestBaseURL
	}
	return &PayUGateway{
		Key:      strings.TrimSpace(env.GetEnv("PAYU_KEY", "")),
		Salt:     strings.TrimSpace(env.GetEnv("PAYU_SALT", "")),
		TestMode: testMode,
		BaseURL:  baseURL,
	}
}

func (g *PayUGateway) Provider() string { return models.PaymentMethodPayU }

// IsConfigured reports whether merchant credentials are present.
func (g *PayUGateway) IsConfigured() bool {
	return g.Key != "" && g.Salt != ""
}

// PaymentURL is the form action the browser posts the signed request to.
func (g *PayUGateway) PaymentURL() string {
	return g.BaseURL + "/_payment"
}

// BuildPaymentRequest prepares the signed form parameters for a tier
// purchase. The user id and tier ride along in udf1/udf2 so the response
// handler can resolve them without local order state.
func (g *PayUGateway) BuildPaymentRequest(user *models.User, tier, txnid, appBaseURL string) (map[string]string, error) {
	if !g.IsConfigured() {
		return nil, ErrUnconfigured
	}
	usd, ok := TierPriceUSD[tier]
	if !ok {
		return nil, ErrMissingData
	}

	firstname := "User"
	lastname := ""
	if fields := strings.Fields(user.Name); len(fields) > 0 {
		firstname = fields[0]
		lastname = strings.Join(fields[1:], " ")
	}
	phone := nonDigits.ReplaceAllString(user.PhoneNumber, "")
	if phone == "" {
		phone = "0000000000"
	}

	params := map[string]string{
		"key":              g.Key,
		"txnid":            txnid,
		"amount":           strconv.FormatInt(UsdToInrSubunits(usd), 10),
		"productinfo":      fmt.Sprintf("%s Subscription Plan", tier),
		"firstname":        firstname,
		"lastname":         lastname,
		"email":            user.Email,
		"phone":            phone,
		"surl":             appBaseURL + "/api/payu/payment-success",
		"furl":             appBaseURL + "/api/payu/payment-failure",
		"curl":             appBaseURL + "/api/payu/payment-cancel",
		"service_provider": "payu_paisa",
		"udf1":             strconv.FormatUint(uint64(user.ID), 10),
		"udf2":             tier,
		"udf3":             "subscription",
	}
	params["hash"] = g.RequestHash(params)
	return params, nil
}

// RequestHash computes the SHA-512 hash chain PayU expects on outbound
// payment requests.
func (g *PayUGateway) RequestHash(params map[string]string) string {
	hashString := fmt.Sprintf("%s|%s|%s|%s|%s|%s|||||||||||%s",
		params["key"], params["txnid"], params["amount"], params["productinfo"],
		params["firstname"], params["email"], g.Salt)
	sum := sha512.Sum512([]byte(hashString))
	return hex.EncodeToString(sum[:])
}

// VerifyResponseHash checks the reversed hash chain PayU sends on payment
// responses. Fails closed on missing salt or hash.
func (g *PayUGateway) VerifyResponseHash(params map[string]string) bool {
	got := strings.TrimSpace(params["hash"])
	if got == "" || g.Salt == "" {
		return false
	}
	hashString := fmt.Sprintf("%s|%s|||||||||||%s|%s|%s|%s|%s|%s",
		g.Salt, params["status"], params["email"], params["firstname"],
		params["productinfo"], params["amount"], params["txnid"], params["key"])
	sum := sha512.Sum512([]byte(hashString))
	want := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(got)), []byte(want)) == 1
}

// VerifySignature treats the payload as the form-encoded response body; the
// signature travels inside it as the hash field.
func (g *PayUGateway) VerifySignature(payload []byte, signature string) bool {
	params, err := parseFormParams(payload)
	if err != nil {
		return false
	}
	if signature != "" {
		params["hash"] = signature
	}
	return g.VerifyResponseHash(params)
}

// ParseEvent extracts a normalized event from a form-encoded PayU response.
func (g *PayUGateway) ParseEvent(ctx context.Context, payload []byte) (*Event, error) {
	_ = ctx
	params, err := parseFormParams(payload)
	if err != nil {
		return nil, fmt.Errorf("parse payu response: %w", err)
	}

	status := params["status"]
	ev := &Event{
		Provider:      models.PaymentMethodPayU,
		EventType:     "payment." + status,
		Currency:      "INR",
		ProviderTxnID: fmt.Sprintf("%s|%s", params["txnid"], status),
	}
	if status == "success" {
		ev.Status = models.SubscriptionStatusActive
	} else {
		ev.Status = status
	}
	if amount, err := strconv.ParseInt(params["amount"], 10, 64); err == nil {
		ev.AmountSubunits = amount
	}

	rawUserID := strings.TrimSpace(params["udf1"])
	tier := strings.TrimSpace(params["udf2"])
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

func parseFormParams(payload []byte) (map[string]string, error) {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, err
	}
	params := make(map[string]string, len(values))
	for k := range values {
		params[k] = values.Get(k)
	}
	return params, nil
}
