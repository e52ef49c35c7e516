package model

import "time"

// UserCohort links an external LMS user to a locally-owned cohort record.
// Rows are written by the applicant store; the pipeline only reads them.
type UserCohort struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalUserID string    `gorm:"size:64;not null;uniqueIndex" json:"externalUserId"`
	CohortID       string    `gorm:"size:64;not null" json:"cohortId"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName sets the table name
func (UserCohort) TableName() string {
	return "user_cohorts"
}
