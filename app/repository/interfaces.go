package repository

import (
	"github.com/uproot-labs/uproot/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByStripeCustomerID(customerID string) (*models.User, error)
	GetByResetToken(token string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	Count() (int64, error)
}

// SubscriptionRepository defines the interface for subscription state
type SubscriptionRepository interface {
	GetByUserID(userID uint) (*models.Subscription, error)
	GetOrCreateByUserID(userID uint) (*models.Subscription, error)
	GetByStripeSubscriptionID(subscriptionID string) (*models.Subscription, error)
	Upsert(sub *models.Subscription) error
	Save(sub *models.Subscription) error
}

// WebhookEventRepository persists provider webhook payloads for deduplication
type WebhookEventRepository interface {
	CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
	// Reopen clears the processing outcome of a stored event and replaces its
	// payload so a redelivery can be processed again.
	Reopen(id uint, payloadJSON string, signatureValid bool) error
}

// CallRepository defines the interface for scheduled calls and call logs
type CallRepository interface {
	CreateScheduledCall(call *models.ScheduledCall) error
	GetScheduledCallByID(id uint) (*models.ScheduledCall, error)
	ListScheduledCallsByUser(userID uint) ([]models.ScheduledCall, error)
	ListUpcomingByUser(userID uint) ([]models.ScheduledCall, error)
	SaveScheduledCall(call *models.ScheduledCall) error
	GetCallLogByScheduledCallID(scheduledCallID uint) (*models.CallLog, error)
	ListCallLogsByUser(userID uint) ([]models.CallLog, error)
	// ReconcileOutcome upserts the call log and updates the scheduled call
	// status in a single transaction so both rows carry the same status.
	ReconcileOutcome(call *models.ScheduledCall, log *models.CallLog) error
}

// ResumeRepository defines the interface for the per-user resume document
type ResumeRepository interface {
	GetByUserID(userID uint) (*models.Resume, error)
	Upsert(resume *models.Resume) error
	Delete(userID uint) error
}

// Repositories holds all repository instances
type Repositories struct {
	User         UserRepository
	Subscription SubscriptionRepository
	WebhookEvent WebhookEventRepository
	Call         CallRepository
	Resume       ResumeRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Subscription: NewSubscriptionRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
		Call:         NewCallRepository(db),
		Resume:       NewResumeRepository(db),
	}
}
