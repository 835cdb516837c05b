package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/uproot-labs/uproot/app/models"
)

// callRepository implements the CallRepository interface
type callRepository struct {
	db *gorm.DB
}

// NewCallRepository creates a new call repository instance
func NewCallRepository(db *gorm.DB) CallRepository {
	return &callRepository{db: db}
}

// CreateScheduledCall persists a new scheduled call
func (r *callRepository) CreateScheduledCall(call *models.ScheduledCall) error {
	return r.db.Create(call).Error
}

// GetScheduledCallByID retrieves a scheduled call by ID
func (r *callRepository) GetScheduledCallByID(id uint) (*models.ScheduledCall, error) {
	var call models.ScheduledCall
	err := r.db.First(&call, id).Error
	if err != nil {
		return nil, err
	}
	return &call, nil
}

// ListScheduledCallsByUser returns all scheduled calls for a user, newest first
func (r *callRepository) ListScheduledCallsByUser(userID uint) ([]models.ScheduledCall, error) {
	var calls []models.ScheduledCall
	err := r.db.Where("user_id = ?", userID).Order("scheduled_time DESC").Find(&calls).Error
	return calls, err
}

// ListUpcomingByUser returns the user's calls still in the Upcoming state
func (r *callRepository) ListUpcomingByUser(userID uint) ([]models.ScheduledCall, error) {
	var calls []models.ScheduledCall
	err := r.db.Where("user_id = ? AND status = ?", userID, models.CallStatusUpcoming).
		Order("scheduled_time ASC").Find(&calls).Error
	return calls, err
}

// SaveScheduledCall persists in-place mutations of a scheduled call
func (r *callRepository) SaveScheduledCall(call *models.ScheduledCall) error {
	return r.db.Save(call).Error
}

// GetCallLogByScheduledCallID retrieves the log linked to a scheduled call
func (r *callRepository) GetCallLogByScheduledCallID(scheduledCallID uint) (*models.CallLog, error) {
	var log models.CallLog
	err := r.db.Where("scheduled_call_id = ?", scheduledCallID).First(&log).Error
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// ListCallLogsByUser returns all call logs for a user, newest first
func (r *callRepository) ListCallLogsByUser(userID uint) ([]models.CallLog, error) {
	var logs []models.CallLog
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&logs).Error
	return logs, err
}

// ReconcileOutcome upserts the call log (one per scheduled call) and updates
// the scheduled call status inside one transaction so both rows agree.
func (r *callRepository) ReconcileOutcome(call *models.ScheduledCall, log *models.CallLog) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "scheduled_call_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"status",
				"duration_seconds",
				"started_at",
				"ended_at",
				"recording_url",
				"transcript",
				"error_message",
				"updated_at",
			}),
		}).Create(log).Error; err != nil {
			return err
		}

		return tx.Model(&models.ScheduledCall{}).
			Where("id = ?", call.ID).
			Update("status", call.Status).Error
	})
}
