package models

import "time"

const (
	CallStatusUpcoming   = "Upcoming"
	CallStatusCompleted  = "Completed"
	CallStatusFailed     = "Failed"
	CallStatusCancelled  = "Cancelled"
	CallStatusNoResponse = "NoResponse"
)

// ScheduledCall is a pending outbound coaching call. BatchID correlates the
// record with the calling provider's batch job; once the status leaves
// Upcoming the record is terminal.
type ScheduledCall struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index" json:"user_id"`
	PhoneNumber   string    `gorm:"type:varchar(20);not null" json:"phone_number"`
	RecipientName string    `gorm:"type:varchar(150);default:null" json:"recipient_name,omitempty"`
	ScheduledTime time.Time `gorm:"type:timestamp;not null;index" json:"scheduled_time"`
	Status        string    `gorm:"type:varchar(20);not null;default:'Upcoming';index" json:"status"`
	BatchID       string    `gorm:"type:varchar(191);default:null;index" json:"batch_id,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the call reached a final status.
func (s *ScheduledCall) IsTerminal() bool {
	return s.Status != CallStatusUpcoming
}

// IsDue reports whether the scheduled time has passed.
func (s *ScheduledCall) IsDue(now time.Time) bool {
	return !s.ScheduledTime.After(now)
}

// IsValidCallStatus reports whether st is a known call status.
func IsValidCallStatus(st string) bool {
	switch st {
	case CallStatusUpcoming, CallStatusCompleted, CallStatusFailed, CallStatusCancelled, CallStatusNoResponse:
		return true
	}
	return false
}
