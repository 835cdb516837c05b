package payment

import "context"

// Gateway is the per-provider capability: verify an inbound payload's
// authenticity and turn it into a provider-neutral Event. Implementations
// hold no state beyond configuration and never touch the database.
type Gateway interface {
	Provider() string
	// VerifySignature fails closed: a missing secret or malformed signature
	// yields false.
	VerifySignature(payload []byte, signature string) bool
	// ParseEvent extracts the normalized event from a verified payload.
	ParseEvent(ctx context.Context, payload []byte) (*Event, error)
}

// RemoteManager is the optional capability of gateways that bill recurringly
// and therefore must be told about cancellations upstream before any local
// flag changes.
type RemoteManager interface {
	SetCancelAtPeriodEnd(ctx context.Context, providerSubscriptionID string, cancel bool) error
}
