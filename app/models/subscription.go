package models

import "time"

const (
	TierFree  = "Free"
	TierBasic = "Basic"
	TierPro   = "Pro"
)

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusExpired  = "expired"
)

const (
	PaymentMethodStripe   = "stripe"
	PaymentMethodRazorpay = "razorpay"
	PaymentMethodPayU     = "payu"
	PaymentMethodWeb3     = "web3"
)

// Subscription is the single entitlement record per user. It is created
// lazily with the free tier and mutated only by payment reconciliation or
// the user-initiated cancel/reactivate operations.
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"not null;uniqueIndex:ux_subscriptions_user" json:"user_id"`
	Tier                 string     `gorm:"type:varchar(20);not null;default:'Free';index" json:"tier"`
	Status               string     `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	PaymentMethod        string     `gorm:"type:varchar(20);default:null" json:"payment_method,omitempty"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);default:null;index" json:"-"`
	StripePriceID        string     `gorm:"type:varchar(191);default:null" json:"-"`
	CurrentPeriodStart   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CanceledAt           *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	TransactionHash      string     `gorm:"type:varchar(191);default:null;index" json:"transaction_hash,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPaid reports whether the subscription grants a paid tier right now.
func (s *Subscription) IsPaid() bool {
	if s.Tier == TierFree || s.Status != SubscriptionStatusActive {
		return false
	}
	if s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.Before(time.Now()) {
		return false
	}
	return true
}

// EffectiveTier returns the tier the user is entitled to, falling back to
// free once the paid period has lapsed.
func (s *Subscription) EffectiveTier() string {
	if s.IsPaid() {
		return s.Tier
	}
	return TierFree
}

// IsValidTier reports whether t is a known entitlement tier.
func IsValidTier(t string) bool {
	switch t {
	case TierFree, TierBasic, TierPro:
		return true
	}
	return false
}

// IsValidPaymentMethod reports whether m is a supported payment method.
func IsValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodStripe, PaymentMethodRazorpay, PaymentMethodPayU, PaymentMethodWeb3:
		return true
	}
	return false
}
