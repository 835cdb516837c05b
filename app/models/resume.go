package models

import "time"

// Resume holds one resume document per user. Content is stored as markdown;
// rendering is up to the client. ATSScore and Feedback are filled in by the
// improvement flow.
type Resume struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:ux_resumes_user" json:"user_id"`
	Content   string    `gorm:"type:longtext" json:"content"`
	ATSScore  int       `gorm:"default:0" json:"ats_score"`
	Feedback  string    `gorm:"type:text" json:"feedback"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
