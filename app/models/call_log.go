package models

import "time"

// CallLog stores the outcome of one call. At most one log exists per
// ScheduledCall; the poller creates it on the first definitive provider
// report and updates it on later reconciliations.
type CallLog struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"not null;index" json:"user_id"`
	ScheduledCallID *uint      `gorm:"default:null;uniqueIndex:ux_call_logs_scheduled_call" json:"scheduled_call_id,omitempty"`
	PhoneNumber     string     `gorm:"type:varchar(20);default:null" json:"phone_number,omitempty"`
	RecipientName   string     `gorm:"type:varchar(150);default:null" json:"recipient_name,omitempty"`
	Status          string     `gorm:"type:varchar(20);not null;index" json:"status"`
	DurationSeconds int        `gorm:"default:0" json:"duration_seconds"`
	StartedAt       *time.Time `gorm:"type:timestamp;default:null" json:"started_at,omitempty"`
	EndedAt         *time.Time `gorm:"type:timestamp;default:null" json:"ended_at,omitempty"`
	RecordingURL    string     `gorm:"type:varchar(500);default:null" json:"recording_url,omitempty"`
	Transcript      string     `gorm:"type:longtext" json:"transcript,omitempty"`
	ErrorMessage    string     `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
