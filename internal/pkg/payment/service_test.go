package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/uproot-labs/uproot/app/models"
)

type fakeUserRepo struct {
	users map[uint]*models.User
}

func (f *fakeUserRepo) Create(u *models.User) error { f.users[u.ID] = u; return nil }
func (f *fakeUserRepo) GetByID(id uint) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeUserRepo) GetByEmail(email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeUserRepo) GetByStripeCustomerID(customerID string) (*models.User, error) {
	for _, u := range f.users {
		if u.StripeCustomerID == customerID && customerID != "" {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeUserRepo) GetByResetToken(token string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeUserRepo) Update(u *models.User) error { f.users[u.ID] = u; return nil }
func (f *fakeUserRepo) Delete(id uint) error        { delete(f.users, id); return nil }
func (f *fakeUserRepo) Count() (int64, error)       { return int64(len(f.users)), nil }

type fakeSubRepo struct {
	subs   map[uint]*models.Subscription
	nextID uint
}

func (f *fakeSubRepo) GetByUserID(userID uint) (*models.Subscription, error) {
	if s, ok := f.subs[userID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeSubRepo) GetOrCreateByUserID(userID uint) (*models.Subscription, error) {
	if s, err := f.GetByUserID(userID); err == nil {
		return s, nil
	}
	f.nextID++
	f.subs[userID] = &models.Subscription{
		ID:     f.nextID,
		UserID: userID,
		Tier:   models.TierFree,
		Status: models.SubscriptionStatusActive,
	}
	cp := *f.subs[userID]
	return &cp, nil
}
func (f *fakeSubRepo) GetByStripeSubscriptionID(subscriptionID string) (*models.Subscription, error) {
	for _, s := range f.subs {
		if s.StripeSubscriptionID == subscriptionID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeSubRepo) Upsert(sub *models.Subscription) error {
	if existing, ok := f.subs[sub.UserID]; ok {
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
	} else {
		f.nextID++
		sub.ID = f.nextID
	}
	cp := *sub
	f.subs[sub.UserID] = &cp
	return nil
}
func (f *fakeSubRepo) Save(sub *models.Subscription) error {
	cp := *sub
	f.subs[sub.UserID] = &cp
	return nil
}

type fakeEventRepo struct {
	events map[string]*models.WebhookEvent
	nextID uint
}

func (f *fakeEventRepo) CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	key := event.Provider + "/" + event.ProviderEventID
	if stored, ok := f.events[key]; ok {
		return false, stored, nil
	}
	f.nextID++
	event.ID = f.nextID
	f.events[key] = event
	return true, event, nil
}
func (f *fakeEventRepo) MarkProcessed(id uint, processingError string) error {
	for _, e := range f.events {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}
func (f *fakeEventRepo) Reopen(id uint, payloadJSON string, signatureValid bool) error {
	for _, e := range f.events {
		if e.ID == id {
			e.PayloadJSON = payloadJSON
			e.SignatureValid = signatureValid
			e.ProcessedAt = nil
			e.ProcessingError = ""
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeRemote struct {
	calls []bool
	err   error
}

func (f *fakeRemote) SetCancelAtPeriodEnd(ctx context.Context, providerSubscriptionID string, cancel bool) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, cancel)
	return nil
}

func newTestService(remotes map[string]RemoteManager) (*Service, *fakeUserRepo, *fakeSubRepo, *fakeEventRepo) {
	users := &fakeUserRepo{users: map[uint]*models.User{
		1: {ID: 1, Name: "Ada", Email: "ada@example.com", StripeCustomerID: "cus_1"},
	}}
	subs := &fakeSubRepo{subs: map[uint]*models.Subscription{}}
	events := &fakeEventRepo{events: map[string]*models.WebhookEvent{}}
	return NewService(users, subs, events, remotes), users, subs, events
}

func TestReconcileIdempotentReplay(t *testing.T) {
	svc, _, subs, _ := newTestService(nil)
	ev := &Event{
		Provider:      models.PaymentMethodRazorpay,
		UserID:        1,
		Tier:          models.TierBasic,
		ProviderTxnID: "order_abc",
	}

	first, err := svc.Reconcile(context.Background(), ev)
	if err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.Reconcile(context.Background(), ev); err != nil {
			t.Fatalf("replay %d failed: %v", i, err)
		}
	}

	stored := subs.subs[1]
	if stored.ID != first.ID {
		t.Fatalf("replay created a new row: %d vs %d", stored.ID, first.ID)
	}
	if stored.Tier != models.TierBasic || stored.TransactionHash != "order_abc" {
		t.Fatalf("replay changed the row: %+v", stored)
	}
	if stored.PaymentMethod != models.PaymentMethodRazorpay {
		t.Fatalf("expected razorpay payment method, got %s", stored.PaymentMethod)
	}
}

func TestReconcileClearsPendingCancellation(t *testing.T) {
	svc, _, subs, _ := newTestService(nil)
	canceledAt := time.Now().Add(-time.Hour)
	subs.subs[1] = &models.Subscription{
		ID: 1, UserID: 1, Tier: models.TierBasic,
		Status:            models.SubscriptionStatusActive,
		PaymentMethod:     models.PaymentMethodRazorpay,
		CancelAtPeriodEnd: true,
		CanceledAt:        &canceledAt,
	}
	subs.nextID = 1

	ev := &Event{
		Provider:      models.PaymentMethodPayU,
		UserID:        1,
		Tier:          models.TierPro,
		ProviderTxnID: "txn|success",
	}
	sub, err := svc.Reconcile(context.Background(), ev)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if sub.CancelAtPeriodEnd || sub.CanceledAt != nil {
		t.Fatalf("expected new payment to supersede cancellation, got %+v", sub)
	}
	if sub.CurrentPeriodStart == nil || sub.CurrentPeriodEnd == nil {
		t.Fatalf("expected one-month period to be set")
	}
	wantEnd := sub.CurrentPeriodStart.AddDate(0, 1, 0)
	if !sub.CurrentPeriodEnd.Equal(wantEnd) {
		t.Fatalf("expected period end one month after start, got %v", sub.CurrentPeriodEnd)
	}
}

func TestReconcileUnknownTierDowngradesToFree(t *testing.T) {
	svc, _, _, _ := newTestService(nil)
	ev := &Event{
		Provider:      models.PaymentMethodRazorpay,
		UserID:        1,
		Tier:          "Platinum",
		ProviderTxnID: "order_x",
	}
	sub, err := svc.Reconcile(context.Background(), ev)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if sub.Tier != models.TierFree {
		t.Fatalf("expected unknown tier to resolve to Free, got %s", sub.Tier)
	}
}

func TestReconcileUserNotFound(t *testing.T) {
	svc, _, _, _ := newTestService(nil)
	ev := &Event{Provider: models.PaymentMethodRazorpay, UserID: 99, Tier: models.TierBasic}
	if _, err := svc.Reconcile(context.Background(), ev); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	ev = &Event{Provider: models.PaymentMethodStripe, StripeCustomerID: "cus_unknown"}
	if _, err := svc.Reconcile(context.Background(), ev); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for unknown customer, got %v", err)
	}
}

func TestReconcileResolvesUserByStripeCustomer(t *testing.T) {
	svc, _, subs, _ := newTestService(nil)
	start := time.Unix(1700000000, 0)
	end := time.Unix(1702592000, 0)
	ev := &Event{
		Provider:             models.PaymentMethodStripe,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_1",
		Tier:                 models.TierPro,
		Status:               models.SubscriptionStatusActive,
		ProviderTxnID:        "sub_1",
		CurrentPeriodStart:   &start,
		CurrentPeriodEnd:     &end,
	}
	sub, err := svc.Reconcile(context.Background(), ev)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if sub.UserID != 1 {
		t.Fatalf("expected customer cus_1 to resolve to user 1, got %d", sub.UserID)
	}
	// Stripe periods are taken verbatim from the payload.
	if !sub.CurrentPeriodEnd.Equal(end) {
		t.Fatalf("expected provider period end, got %v", sub.CurrentPeriodEnd)
	}
	if subs.subs[1].StripeSubscriptionID != "sub_1" {
		t.Fatalf("expected stripe subscription id to persist")
	}
}

func TestCancelWeb3IsLocalOnly(t *testing.T) {
	svc, _, subs, _ := newTestService(nil)
	subs.subs[1] = &models.Subscription{
		ID: 1, UserID: 1, Tier: models.TierPro,
		Status:        models.SubscriptionStatusActive,
		PaymentMethod: models.PaymentMethodWeb3,
	}

	sub, err := svc.Cancel(context.Background(), 1)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !sub.CancelAtPeriodEnd {
		t.Fatalf("expected cancel flag to be set locally")
	}
}

func TestCancelStripeUnconfiguredLeavesStateUntouched(t *testing.T) {
	svc, _, subs, _ := newTestService(map[string]RemoteManager{
		models.PaymentMethodStripe: &StripeGateway{},
	})
	subs.subs[1] = &models.Subscription{
		ID: 1, UserID: 1, Tier: models.TierPro,
		Status:               models.SubscriptionStatusActive,
		PaymentMethod:        models.PaymentMethodStripe,
		StripeSubscriptionID: "sub_1",
	}

	if _, err := svc.Cancel(context.Background(), 1); !errors.Is(err, ErrUnconfigured) {
		t.Fatalf("expected ErrUnconfigured, got %v", err)
	}
	if subs.subs[1].CancelAtPeriodEnd {
		t.Fatalf("cancel flag must not change when the gateway call fails")
	}
}

func TestCancelStripeDelegatesUpstream(t *testing.T) {
	remote := &fakeRemote{}
	svc, _, subs, _ := newTestService(map[string]RemoteManager{
		models.PaymentMethodStripe: remote,
	})
	subs.subs[1] = &models.Subscription{
		ID: 1, UserID: 1, Tier: models.TierPro,
		Status:               models.SubscriptionStatusActive,
		PaymentMethod:        models.PaymentMethodStripe,
		StripeSubscriptionID: "sub_1",
	}

	if _, err := svc.Cancel(context.Background(), 1); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if len(remote.calls) != 1 || remote.calls[0] != true {
		t.Fatalf("expected one upstream cancel call, got %v", remote.calls)
	}
	if !subs.subs[1].CancelAtPeriodEnd {
		t.Fatalf("expected local flag set after gateway accepted")
	}

	if _, err := svc.Reactivate(context.Background(), 1); err != nil {
		t.Fatalf("reactivate failed: %v", err)
	}
	if len(remote.calls) != 2 || remote.calls[1] != false {
		t.Fatalf("expected upstream reactivate call, got %v", remote.calls)
	}
	if subs.subs[1].CancelAtPeriodEnd {
		t.Fatalf("expected local flag cleared after reactivation")
	}
}

func TestCancelUnsupportedMethod(t *testing.T) {
	svc, _, subs, _ := newTestService(nil)
	subs.subs[1] = &models.Subscription{
		ID: 1, UserID: 1, PaymentMethod: "paypal",
		Status: models.SubscriptionStatusActive,
	}
	if _, err := svc.Cancel(context.Background(), 1); !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
}

func TestCancelStripeWithoutSubscriptionIDIsUnsupported(t *testing.T) {
	remote := &fakeRemote{}
	svc, _, subs, _ := newTestService(map[string]RemoteManager{
		models.PaymentMethodStripe: remote,
	})
	subs.subs[1] = &models.Subscription{
		ID: 1, UserID: 1, Tier: models.TierPro,
		Status:        models.SubscriptionStatusActive,
		PaymentMethod: models.PaymentMethodStripe,
	}

	if _, err := svc.Cancel(context.Background(), 1); !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod for stripe without subscription id, got %v", err)
	}
	if len(remote.calls) != 0 {
		t.Fatalf("gateway must not be called without a subscription id")
	}
	if subs.subs[1].CancelAtPeriodEnd {
		t.Fatalf("cancel flag must not change")
	}
}

func TestCancelWithoutSubscription(t *testing.T) {
	svc, _, _, _ := newTestService(nil)
	if _, err := svc.Cancel(context.Background(), 1); !errors.Is(err, ErrNoSubscription) {
		t.Fatalf("expected ErrNoSubscription, got %v", err)
	}
}

func TestRecordWebhookEventDeduplicates(t *testing.T) {
	svc, _, _, _ := newTestService(nil)

	created, first, err := svc.RecordWebhookEvent(context.Background(), "razorpay", "evt_1", "payment.captured", `{}`, true)
	if err != nil || !created {
		t.Fatalf("expected first delivery to create, got created=%v err=%v", created, err)
	}
	if err := svc.MarkWebhookProcessed(context.Background(), first.ID, nil); err != nil {
		t.Fatalf("mark processed failed: %v", err)
	}

	created, second, err := svc.RecordWebhookEvent(context.Background(), "razorpay", "evt_1", "payment.captured", `{}`, true)
	if err != nil {
		t.Fatalf("replay errored: %v", err)
	}
	if created {
		t.Fatalf("expected replay of a processed event to be deduplicated")
	}
	if first.ID != second.ID {
		t.Fatalf("expected the stored row to be returned on replay")
	}
}

func TestRecordWebhookEventReopensAfterFailedProcessing(t *testing.T) {
	svc, users, subs, _ := newTestService(nil)

	// First delivery arrives before the account exists, so reconciliation
	// fails and the event is recorded with an error.
	ev := &Event{Provider: models.PaymentMethodRazorpay, UserID: 7, Tier: models.TierBasic, ProviderTxnID: "order_late"}
	created, stored, err := svc.RecordWebhookEvent(context.Background(), "razorpay", "evt_retry", "payment.captured", `{}`, true)
	if err != nil || !created {
		t.Fatalf("expected first delivery to create, got created=%v err=%v", created, err)
	}
	_, syncErr := svc.Reconcile(context.Background(), ev)
	if !errors.Is(syncErr, ErrUserNotFound) {
		t.Fatalf("expected reconcile to fail, got %v", syncErr)
	}
	if err := svc.MarkWebhookProcessed(context.Background(), stored.ID, syncErr); err != nil {
		t.Fatalf("mark processed failed: %v", err)
	}

	// The provider redelivers after the user signed up. The replay must be
	// reopened for processing, not acked as a duplicate.
	users.users[7] = &models.User{ID: 7, Name: "Eve", Email: "eve@example.com"}
	created, reopened, err := svc.RecordWebhookEvent(context.Background(), "razorpay", "evt_retry", "payment.captured", `{}`, true)
	if err != nil {
		t.Fatalf("redelivery errored: %v", err)
	}
	if !created {
		t.Fatalf("expected redelivery of a failed event to be reprocessable")
	}
	if reopened.ID != stored.ID {
		t.Fatalf("expected the original row to be reopened, got id %d", reopened.ID)
	}
	if reopened.ProcessedAt != nil || reopened.ProcessingError != "" {
		t.Fatalf("expected processing outcome to be cleared, got %+v", reopened)
	}

	if _, err := svc.Reconcile(context.Background(), ev); err != nil {
		t.Fatalf("reconcile after redelivery failed: %v", err)
	}
	if got := subs.subs[7]; got == nil || got.Tier != models.TierBasic {
		t.Fatalf("expected the retried event to activate the subscription, got %+v", got)
	}
}

func TestRecordWebhookEventUnsignedCannotOccupyEventID(t *testing.T) {
	svc, _, _, _ := newTestService(nil)

	// An unsigned request lands first and is recorded with a signature error.
	created, squatted, err := svc.RecordWebhookEvent(context.Background(), "stripe", "evt_sq", "customer.subscription.updated", `{}`, false)
	if err != nil || !created {
		t.Fatalf("expected unsigned request to create a row, got created=%v err=%v", created, err)
	}
	if err := svc.MarkWebhookProcessed(context.Background(), squatted.ID, errors.New("invalid webhook signature")); err != nil {
		t.Fatalf("mark processed failed: %v", err)
	}

	// The genuine signed delivery must still be processable.
	created, stored, err := svc.RecordWebhookEvent(context.Background(), "stripe", "evt_sq", "customer.subscription.updated", `{"real":true}`, true)
	if err != nil {
		t.Fatalf("signed delivery errored: %v", err)
	}
	if !created {
		t.Fatalf("expected the signed delivery to reopen the squatted row")
	}
	if !stored.SignatureValid || stored.PayloadJSON != `{"real":true}` {
		t.Fatalf("expected the stored row to carry the signed payload, got %+v", stored)
	}

	// A second unsigned request must not reopen anything.
	created, _, err = svc.RecordWebhookEvent(context.Background(), "stripe", "evt_sq", "customer.subscription.updated", `{}`, false)
	if err != nil {
		t.Fatalf("unsigned replay errored: %v", err)
	}
	if created {
		t.Fatalf("unsigned replay must stay deduplicated")
	}
}

func TestRecordWebhookEventHashesEmptyID(t *testing.T) {
	svc, _, _, _ := newTestService(nil)
	_, ev, err := svc.RecordWebhookEvent(context.Background(), "payu", "", "payment.success", `a=b`, true)
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if ev.ProviderEventID == "" {
		t.Fatalf("expected a derived event id for payloads without one")
	}
}
