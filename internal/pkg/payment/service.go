package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/uproot-labs/uproot/app/models"
	"github.com/uproot-labs/uproot/app/repository"
)

// Service is the reconciliation engine: it converts verified provider events
// into durable subscription state and runs the user-initiated lifecycle
// operations. All writes go through the injected repositories.
type Service struct {
	users   repository.UserRepository
	subs    repository.SubscriptionRepository
	events  repository.WebhookEventRepository
	remotes map[string]RemoteManager
}

// NewService creates a payment service from injected repositories. remotes
// maps a payment method to its upstream manager; methods without an entry
// are treated as one-time-payment methods.
func NewService(users repository.UserRepository, subs repository.SubscriptionRepository, events repository.WebhookEventRepository, remotes map[string]RemoteManager) *Service {
	if remotes == nil {
		remotes = map[string]RemoteManager{}
	}
	return &Service{users: users, subs: subs, events: events, remotes: remotes}
}

// NewServiceFromDB creates a payment service from a GORM DB handle with the
// Stripe gateway wired as the only remote manager.
func NewServiceFromDB(db *gorm.DB, stripe *StripeGateway) *Service {
	repos := repository.NewRepositories(db)
	remotes := map[string]RemoteManager{}
	if stripe != nil {
		remotes[models.PaymentMethodStripe] = stripe
	}
	return NewService(repos.User, repos.Subscription, repos.WebhookEvent, remotes)
}

// GetOrCreate returns the user's subscription, creating the free-tier
// default on first access.
func (s *Service) GetOrCreate(ctx context.Context, userID uint) (*models.Subscription, error) {
	_ = ctx
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}
	return s.subs.GetOrCreateByUserID(userID)
}

// Reconcile converts a normalized event into a subscription upsert keyed by
// user id. A successful payment always supersedes a prior cancellation
// request, so the pending-cancel flags are cleared for one-time providers
// and taken verbatim from the payload for Stripe.
func (s *Service) Reconcile(ctx context.Context, ev *Event) (*models.Subscription, error) {
	_ = ctx
	if ev == nil {
		return nil, ErrMissingData
	}

	userID, err := s.resolveUser(ev)
	if err != nil {
		return nil, err
	}

	tier := ev.Tier
	if !models.IsValidTier(tier) {
		tier = models.TierFree
	}
	status := strings.TrimSpace(ev.Status)
	if status == "" {
		status = models.SubscriptionStatusActive
	}

	sub := &models.Subscription{
		UserID:          userID,
		Tier:            tier,
		Status:          status,
		PaymentMethod:   ev.Provider,
		TransactionHash: ev.ProviderTxnID,
	}

	if ev.Provider == models.PaymentMethodStripe {
		sub.StripeSubscriptionID = ev.StripeSubscriptionID
		sub.StripePriceID = ev.StripePriceID
		sub.CurrentPeriodStart = ev.CurrentPeriodStart
		sub.CurrentPeriodEnd = ev.CurrentPeriodEnd
		sub.CancelAtPeriodEnd = ev.CancelAtPeriodEnd
		sub.CanceledAt = ev.CanceledAt
	} else {
		// One-time payment: the paid period starts now and runs one month.
		now := time.Now()
		end := now.AddDate(0, 1, 0)
		sub.CurrentPeriodStart = &now
		sub.CurrentPeriodEnd = &end
		sub.CancelAtPeriodEnd = false
		sub.CanceledAt = nil
	}

	if err := s.subs.Upsert(sub); err != nil {
		return nil, fmt.Errorf("upsert subscription for user %d: %w", userID, err)
	}
	return sub, nil
}

func (s *Service) resolveUser(ev *Event) (uint, error) {
	if ev.UserID != 0 {
		if _, err := s.users.GetByID(ev.UserID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, ErrUserNotFound
			}
			return 0, err
		}
		return ev.UserID, nil
	}
	if ev.StripeCustomerID != "" {
		user, err := s.users.GetByStripeCustomerID(ev.StripeCustomerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, ErrUserNotFound
			}
			return 0, err
		}
		return user.ID, nil
	}
	return 0, ErrUserNotFound
}

// Cancel requests cancellation at period end. Gateway-billed subscriptions
// must be cancelled upstream first; the local flag changes only after the
// gateway accepts, so local and remote state cannot diverge.
func (s *Service) Cancel(ctx context.Context, userID uint) (*models.Subscription, error) {
	return s.setCancelAtPeriodEnd(ctx, userID, true)
}

// Reactivate clears a pending cancellation while still within the paid
// period. Symmetric to Cancel.
func (s *Service) Reactivate(ctx context.Context, userID uint) (*models.Subscription, error) {
	return s.setCancelAtPeriodEnd(ctx, userID, false)
}

func (s *Service) setCancelAtPeriodEnd(ctx context.Context, userID uint, cancel bool) (*models.Subscription, error) {
	sub, err := s.subs.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSubscription
		}
		return nil, err
	}

	// A gateway-billed method without a provider subscription id cannot be
	// managed upstream or locally.
	if sub.PaymentMethod == models.PaymentMethodStripe && sub.StripeSubscriptionID == "" {
		return nil, ErrUnsupportedMethod
	}

	if remote, ok := s.remotes[sub.PaymentMethod]; ok {
		if err := remote.SetCancelAtPeriodEnd(ctx, sub.StripeSubscriptionID, cancel); err != nil {
			return nil, err
		}
	} else {
		switch sub.PaymentMethod {
		case models.PaymentMethodRazorpay, models.PaymentMethodPayU, models.PaymentMethodWeb3:
			// One-time payments have nothing to cancel upstream.
		case models.PaymentMethodStripe:
			// Stripe-billed but no gateway configured: refuse rather than
			// let local state drift from the provider.
			return nil, ErrUnconfigured
		default:
			return nil, ErrUnsupportedMethod
		}
	}

	sub.CancelAtPeriodEnd = cancel
	if err := s.subs.Save(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// RecordWebhookEvent persists webhook payloads idempotently: a replayed
// delivery returns the stored row with created=false. A replay only counts
// as a duplicate once the first delivery was processed cleanly; rows whose
// processing failed (or never finished) are reopened for a signed retry, so
// a provider redelivery after a transient reconcile error is not lost. This
// also stops an unsigned request from occupying an event id ahead of the
// genuine delivery.
func (s *Service) RecordWebhookEvent(ctx context.Context, provider, providerEventID, eventType, payloadJSON string, signatureValid bool) (bool, *models.WebhookEvent, error) {
	_ = ctx
	p := strings.ToLower(strings.TrimSpace(provider))
	if p == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(providerEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(payloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Provider:        p,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(eventType),
		PayloadJSON:     payloadJSON,
		SignatureValid:  signatureValid,
	}
	created, stored, err := s.events.CreateIfNotExists(event)
	if err != nil || created {
		return created, stored, err
	}

	if signatureValid && (stored.ProcessedAt == nil || stored.ProcessingError != "") {
		if err := s.events.Reopen(stored.ID, payloadJSON, signatureValid); err != nil {
			return false, nil, err
		}
		stored.PayloadJSON = payloadJSON
		stored.SignatureValid = signatureValid
		stored.ProcessedAt = nil
		stored.ProcessingError = ""
		return true, stored, nil
	}
	return false, stored, nil
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.events.MarkProcessed(webhookEventID, errMsg)
}
