package calls

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/uproot-labs/uproot/app/models"
	"github.com/uproot-labs/uproot/app/repository"
)

var (
	// ErrPastScheduledTime means the requested call time already passed.
	ErrPastScheduledTime = errors.New("calls: scheduled time must be in the future")
	// ErrCallNotFound means no scheduled call matches the batch id.
	ErrCallNotFound = errors.New("calls: scheduled call not found")
)

// RecordingArchiver copies a provider-hosted recording into our own storage
// and returns the durable URL.
type RecordingArchiver interface {
	Archive(ctx context.Context, userID, callID uint, sourceURL string) (string, error)
}

// Service schedules outbound calls and reconciles their outcomes against the
// provider's batch-calling API.
type Service struct {
	client     *Client
	repo       repository.CallRepository
	recordings RecordingArchiver
}

// NewService creates a call service. recordings may be nil; archival is then
// skipped and the provider URL is stored as-is.
func NewService(client *Client, repo repository.CallRepository, recordings RecordingArchiver) *Service {
	return &Service{client: client, repo: repo, recordings: recordings}
}

// ScheduleCall submits a batch-calling job for one recipient and persists
// the scheduled call with the provider's correlation id.
func (s *Service) ScheduleCall(ctx context.Context, userID uint, phoneNumber, recipientName string, scheduledTime time.Time) (*models.ScheduledCall, error) {
	if !scheduledTime.After(time.Now()) {
		return nil, ErrPastScheduledTime
	}

	callName := phoneNumber
	if name := strings.TrimSpace(recipientName); name != "" {
		callName = fmt.Sprintf("%s - %s", name, phoneNumber)
	} else {
		callName = fmt.Sprintf("Call - %s", phoneNumber)
	}

	batchID, err := s.client.SubmitBatchCall(ctx, callName, phoneNumber, scheduledTime.Unix())
	if err != nil {
		return nil, err
	}

	call := &models.ScheduledCall{
		UserID:        userID,
		PhoneNumber:   phoneNumber,
		RecipientName: strings.TrimSpace(recipientName),
		ScheduledTime: scheduledTime,
		Status:        models.CallStatusUpcoming,
		BatchID:       batchID,
	}
	if err := s.repo.CreateScheduledCall(call); err != nil {
		return nil, err
	}
	return call, nil
}

// ProcessDueCalls resolves every Upcoming call of the user whose scheduled
// time has passed. Failures on one call are logged and skipped so the
// remaining due calls still get processed.
func (s *Service) ProcessDueCalls(ctx context.Context, userID uint) {
	upcoming, err := s.repo.ListUpcomingByUser(userID)
	if err != nil {
		log.Errorf("list upcoming calls for user %d: %v", userID, err)
		return
	}

	now := time.Now()
	for i := range upcoming {
		call := &upcoming[i]
		if !call.IsDue(now) || call.BatchID == "" {
			continue
		}
		if err := s.ResolveCall(ctx, call); err != nil {
			log.Errorf("resolve call %d (batch %s): %v", call.ID, call.BatchID, err)
		}
	}
}

// ResolveCall fetches the batch state for one scheduled call, resolves the
// local status and outcome, and persists call log and status together.
func (s *Service) ResolveCall(ctx context.Context, call *models.ScheduledCall) error {
	batch, err := s.client.GetBatch(ctx, call.BatchID)
	if err != nil {
		return err
	}
	if len(batch.Recipients) == 0 {
		return fmt.Errorf("batch %s has no recipients", call.BatchID)
	}
	recipient := &batch.Recipients[0]

	status := ResolveStatus(recipient.Status, batch.ScheduledTimeUnix, time.Now().Unix())

	// The transcript fetch is best-effort: a provider failure here must not
	// block the status update.
	var conv *Conversation
	if recipient.ConversationID != "" {
		conv, err = s.client.GetConversation(ctx, recipient.ConversationID)
		if err != nil {
			log.Warnf("fetch conversation %s for call %d: %v", recipient.ConversationID, call.ID, err)
			conv = nil
		}
	}

	outcome := ResolveOutcome(conv, recipient)

	recordingURL := recipient.RecordingURL
	if recordingURL != "" && s.recordings != nil {
		archived, err := s.recordings.Archive(ctx, call.UserID, call.ID, recordingURL)
		if err != nil {
			log.Warnf("archive recording for call %d: %v", call.ID, err)
		} else {
			recordingURL = archived
		}
	}

	errorMessage := ""
	if status == models.CallStatusFailed {
		errorMessage = recipient.ErrorMessage
		if errorMessage == "" {
			errorMessage = "Call failed"
		}
	}

	scheduledCallID := call.ID
	entry := &models.CallLog{
		UserID:          call.UserID,
		ScheduledCallID: &scheduledCallID,
		PhoneNumber:     call.PhoneNumber,
		RecipientName:   call.RecipientName,
		Status:          strings.ToLower(status),
		DurationSeconds: outcome.DurationSeconds,
		StartedAt:       outcome.StartedAt,
		EndedAt:         outcome.EndedAt,
		RecordingURL:    recordingURL,
		Transcript:      BuildTranscript(conv),
		ErrorMessage:    errorMessage,
	}

	call.Status = status
	return s.repo.ReconcileOutcome(call, entry)
}

// Logs returns the user's call logs after first reconciling any due calls,
// together with scheduled calls that have no log yet so callers can present
// upcoming entries alongside finished ones.
func (s *Service) Logs(ctx context.Context, userID uint) ([]models.CallLog, []models.ScheduledCall, error) {
	s.ProcessDueCalls(ctx, userID)

	logs, err := s.repo.ListCallLogsByUser(userID)
	if err != nil {
		return nil, nil, err
	}

	scheduled, err := s.repo.ListScheduledCallsByUser(userID)
	if err != nil {
		return nil, nil, err
	}

	withLog := make(map[uint]struct{}, len(logs))
	for _, entry := range logs {
		if entry.ScheduledCallID != nil {
			withLog[*entry.ScheduledCallID] = struct{}{}
		}
	}
	pending := make([]models.ScheduledCall, 0, len(scheduled))
	for _, sc := range scheduled {
		if _, ok := withLog[sc.ID]; !ok {
			pending = append(pending, sc)
		}
	}
	return logs, pending, nil
}

// Upcoming returns the user's calls still in the Upcoming state.
func (s *Service) Upcoming(ctx context.Context, userID uint) ([]models.ScheduledCall, error) {
	_ = ctx
	return s.repo.ListUpcomingByUser(userID)
}
