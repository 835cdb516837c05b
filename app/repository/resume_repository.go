package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/uproot-labs/uproot/app/models"
)

// resumeRepository implements the ResumeRepository interface
type resumeRepository struct {
	db *gorm.DB
}

// NewResumeRepository creates a new resume repository instance
func NewResumeRepository(db *gorm.DB) ResumeRepository {
	return &resumeRepository{db: db}
}

// GetByUserID retrieves the resume of a user
func (r *resumeRepository) GetByUserID(userID uint) (*models.Resume, error) {
	var resume models.Resume
	err := r.db.Where("user_id = ?", userID).First(&resume).Error
	if err != nil {
		return nil, err
	}
	return &resume, nil
}

// Upsert writes the user's single resume row, keyed by user_id.
func (r *resumeRepository) Upsert(resume *models.Resume) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"content", "ats_score", "feedback", "updated_at",
		}),
	}).Create(resume).Error
	if err != nil {
		return err
	}
	// Re-read so the caller sees the existing row's ID on conflict.
	return r.db.Where("user_id = ?", resume.UserID).First(resume).Error
}

// Delete removes a user's resume
func (r *resumeRepository) Delete(userID uint) error {
	return r.db.Where("user_id = ?", userID).Delete(&models.Resume{}).Error
}
