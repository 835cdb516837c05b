package calls

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/uproot-labs/uproot/app/models"
)

type fakeCallRepo struct {
	calls  map[uint]*models.ScheduledCall
	logs   map[uint]*models.CallLog
	nextID uint
}

func newFakeCallRepo() *fakeCallRepo {
	return &fakeCallRepo{
		calls: map[uint]*models.ScheduledCall{},
		logs:  map[uint]*models.CallLog{},
	}
}

func (f *fakeCallRepo) CreateScheduledCall(call *models.ScheduledCall) error {
	f.nextID++
	call.ID = f.nextID
	cp := *call
	f.calls[call.ID] = &cp
	return nil
}

func (f *fakeCallRepo) GetScheduledCallByID(id uint) (*models.ScheduledCall, error) {
	if c, ok := f.calls[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCallRepo) ListScheduledCallsByUser(userID uint) ([]models.ScheduledCall, error) {
	var out []models.ScheduledCall
	for _, c := range f.calls {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCallRepo) ListUpcomingByUser(userID uint) ([]models.ScheduledCall, error) {
	var out []models.ScheduledCall
	for _, c := range f.calls {
		if c.UserID == userID && c.Status == models.CallStatusUpcoming {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCallRepo) SaveScheduledCall(call *models.ScheduledCall) error {
	cp := *call
	f.calls[call.ID] = &cp
	return nil
}

func (f *fakeCallRepo) GetCallLogByScheduledCallID(scheduledCallID uint) (*models.CallLog, error) {
	if l, ok := f.logs[scheduledCallID]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCallRepo) ListCallLogsByUser(userID uint) ([]models.CallLog, error) {
	var out []models.CallLog
	for _, l := range f.logs {
		if l.UserID == userID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeCallRepo) ReconcileOutcome(call *models.ScheduledCall, log *models.CallLog) error {
	if log.ScheduledCallID == nil {
		return errors.New("log missing scheduled call id")
	}
	cp := *log
	f.logs[*log.ScheduledCallID] = &cp
	if stored, ok := f.calls[call.ID]; ok {
		stored.Status = call.Status
	}
	return nil
}

func newTestClient(srvURL string) *Client {
	return &Client{
		APIKey:      "xi_test_key",
		AgentID:     "agent_1",
		PhoneNumber: "+18005550000",
		BaseURL:     srvURL,
		HTTPClient:  &http.Client{Timeout: 5 * time.Second},
	}
}

func TestScheduleCall(t *testing.T) {
	var submitted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/phone-numbers":
			fmt.Fprint(w, `[{"phone_number":"+18005550000","phone_number_id":"pn_1"}]`)
		case "/batch-calling/submit":
			if r.Header.Get("xi-api-key") != "xi_test_key" {
				t.Fatalf("missing api key header")
			}
			submitted = true
			fmt.Fprint(w, `{"id":"batch_123"}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	repo := newFakeCallRepo()
	svc := NewService(newTestClient(srv.URL), repo, nil)

	call, err := svc.ScheduleCall(context.Background(), 1, "+14155551234", "Ada", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ScheduleCall failed: %v", err)
	}
	if !submitted {
		t.Fatalf("expected batch submission to reach the provider")
	}
	if call.BatchID != "batch_123" {
		t.Fatalf("expected batch id to persist, got %q", call.BatchID)
	}
	if call.Status != models.CallStatusUpcoming {
		t.Fatalf("expected Upcoming status, got %s", call.Status)
	}
	if call.ID == 0 {
		t.Fatalf("expected call to be persisted")
	}
}

func TestScheduleCallRejectsPastTime(t *testing.T) {
	svc := NewService(newTestClient("http://unused"), newFakeCallRepo(), nil)
	_, err := svc.ScheduleCall(context.Background(), 1, "+14155551234", "", time.Now().Add(-time.Minute))
	if !errors.Is(err, ErrPastScheduledTime) {
		t.Fatalf("expected ErrPastScheduledTime, got %v", err)
	}
}

func TestScheduleCallUnknownOutboundNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"phone_number":"+10000000000","phone_number_id":"pn_other"}]`)
	}))
	defer srv.Close()

	svc := NewService(newTestClient(srv.URL), newFakeCallRepo(), nil)
	_, err := svc.ScheduleCall(context.Background(), 1, "+14155551234", "", time.Now().Add(time.Hour))
	if !errors.Is(err, ErrPhoneNumberNotFound) {
		t.Fatalf("expected ErrPhoneNumberNotFound, got %v", err)
	}
}

func TestResolveCallCompletedWithTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/batch-calling/batch_9":
			fmt.Fprint(w, `{
				"id": "batch_9",
				"scheduled_time_unix": 1700000000,
				"recipients": [{
					"conversation_id": "conv_9",
					"status": "completed",
					"recording_url": "https://cdn.example.com/rec_9.mp3"
				}]
			}`)
		case "/conversations/conv_9":
			fmt.Fprint(w, `{
				"conversation_id": "conv_9",
				"transcript": [
					{"role": "agent", "message": "Hello."},
					{"role": "user", "message": "Hi."}
				],
				"metadata": {"call_duration_secs": 125, "start_time_unix_secs": 1700000010},
				"duration_seconds": 999
			}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	repo := newFakeCallRepo()
	svc := NewService(newTestClient(srv.URL), repo, nil)

	call := &models.ScheduledCall{
		UserID:        1,
		PhoneNumber:   "+14155551234",
		ScheduledTime: time.Unix(1700000000, 0),
		Status:        models.CallStatusUpcoming,
		BatchID:       "batch_9",
	}
	if err := repo.CreateScheduledCall(call); err != nil {
		t.Fatalf("seed call: %v", err)
	}

	if err := svc.ResolveCall(context.Background(), call); err != nil {
		t.Fatalf("ResolveCall failed: %v", err)
	}

	stored := repo.calls[call.ID]
	if stored.Status != models.CallStatusCompleted {
		t.Fatalf("expected call status Completed, got %s", stored.Status)
	}

	entry := repo.logs[call.ID]
	if entry == nil {
		t.Fatalf("expected a call log to be written")
	}
	if entry.Status != "completed" {
		t.Fatalf("expected lowercase log status, got %q", entry.Status)
	}
	if entry.DurationSeconds != 125 {
		t.Fatalf("expected metadata duration 125, got %d", entry.DurationSeconds)
	}
	if entry.Transcript != "Agent: Hello.\n\nUser: Hi." {
		t.Fatalf("unexpected transcript %q", entry.Transcript)
	}
	if entry.RecordingURL != "https://cdn.example.com/rec_9.mp3" {
		t.Fatalf("unexpected recording url %q", entry.RecordingURL)
	}
}

func TestResolveCallTranscriptFailureIsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/batch-calling/batch_5":
			fmt.Fprint(w, `{
				"id": "batch_5",
				"scheduled_time_unix": 1700000000,
				"recipients": [{"conversation_id": "conv_5", "status": "voicemail"}]
			}`)
		case "/conversations/conv_5":
			http.Error(w, "internal error", http.StatusInternalServerError)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	repo := newFakeCallRepo()
	svc := NewService(newTestClient(srv.URL), repo, nil)

	call := &models.ScheduledCall{
		UserID:        1,
		PhoneNumber:   "+14155551234",
		ScheduledTime: time.Unix(1700000000, 0),
		Status:        models.CallStatusUpcoming,
		BatchID:       "batch_5",
	}
	if err := repo.CreateScheduledCall(call); err != nil {
		t.Fatalf("seed call: %v", err)
	}

	if err := svc.ResolveCall(context.Background(), call); err != nil {
		t.Fatalf("expected transcript failure to be non-fatal, got %v", err)
	}
	entry := repo.logs[call.ID]
	if entry == nil || entry.Status != "noresponse" {
		t.Fatalf("expected voicemail to resolve to NoResponse log, got %+v", entry)
	}
	if entry.Transcript != "" {
		t.Fatalf("expected empty transcript after fetch failure")
	}
}

func TestProcessDueCallsSkipsFailuresAndContinues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/batch-calling/batch_bad":
			http.Error(w, "not found", http.StatusNotFound)
		case "/batch-calling/batch_good":
			fmt.Fprint(w, `{
				"id": "batch_good",
				"scheduled_time_unix": 1700000000,
				"recipients": [{"status": "completed"}]
			}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	repo := newFakeCallRepo()
	svc := NewService(newTestClient(srv.URL), repo, nil)

	past := time.Now().Add(-time.Hour)
	bad := &models.ScheduledCall{UserID: 1, PhoneNumber: "+1", ScheduledTime: past, Status: models.CallStatusUpcoming, BatchID: "batch_bad"}
	good := &models.ScheduledCall{UserID: 1, PhoneNumber: "+2", ScheduledTime: past, Status: models.CallStatusUpcoming, BatchID: "batch_good"}
	future := &models.ScheduledCall{UserID: 1, PhoneNumber: "+3", ScheduledTime: time.Now().Add(time.Hour), Status: models.CallStatusUpcoming, BatchID: "batch_future"}
	for _, c := range []*models.ScheduledCall{bad, good, future} {
		if err := repo.CreateScheduledCall(c); err != nil {
			t.Fatalf("seed call: %v", err)
		}
	}

	svc.ProcessDueCalls(context.Background(), 1)

	if repo.calls[good.ID].Status != models.CallStatusCompleted {
		t.Fatalf("expected good call resolved despite earlier failure, got %s", repo.calls[good.ID].Status)
	}
	if repo.calls[bad.ID].Status != models.CallStatusUpcoming {
		t.Fatalf("expected failed call to stay Upcoming")
	}
	if repo.calls[future.ID].Status != models.CallStatusUpcoming {
		t.Fatalf("expected future call to be untouched")
	}
}
