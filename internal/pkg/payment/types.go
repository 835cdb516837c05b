package payment

import (
	"errors"
	"time"
)

// Sentinel errors forming the shared failure taxonomy for payment handling.
var (
	// ErrSignatureInvalid means the webhook or redirect authenticity check failed.
	ErrSignatureInvalid = errors.New("payment: invalid signature")
	// ErrMissingData means a required field (user id, tier) was absent from the payload.
	ErrMissingData = errors.New("payment: missing required payment data")
	// ErrUnconfigured means the provider credentials are not present in the environment.
	ErrUnconfigured = errors.New("payment: provider is not configured")
	// ErrUnsupportedMethod means the stored payment method has no gateway implementation.
	ErrUnsupportedMethod = errors.New("payment: unsupported payment method")
	// ErrUserNotFound means the event could not be resolved to a local user.
	ErrUserNotFound = errors.New("payment: user not found for event")
	// ErrNoSubscription means the user has no subscription record to operate on.
	ErrNoSubscription = errors.New("payment: no subscription found")
)

// Event is the provider-neutral result of parsing a verified payment payload.
// The reconciliation engine consumes only this shape.
type Event struct {
	Provider        string
	ProviderEventID string
	EventType       string
	UserID          uint
	Tier            string
	Status          string
	AmountSubunits  int64
	Currency        string
	ProviderTxnID   string

	// Stripe-only fields; zero for one-time-payment providers.
	StripeCustomerID     string
	StripeSubscriptionID string
	StripePriceID        string
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    bool
	CanceledAt           *time.Time
}
