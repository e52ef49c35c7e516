package model

import "time"

// Enrollment mirrors one external LMS enrollment in the local system of
// record. At most one row exists per (external_enrollment_id, course_id);
// once Completed is set the row is terminal and no further updates apply.
type Enrollment struct {
	ID                   uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalEnrollmentID *string    `gorm:"size:64;uniqueIndex:uk_enrollment_course" json:"externalEnrollmentId"`
	CourseID             string     `gorm:"size:64;not null;uniqueIndex:uk_enrollment_course" json:"courseId"`
	CourseName           string     `gorm:"size:255" json:"courseName"`
	UserCohortID         string     `gorm:"size:64;index" json:"userCohortId"` // linkage to the locally-owned user/cohort record
	UserID               *string    `gorm:"size:64;index" json:"userId"`
	Enrolled             bool       `gorm:"not null;default:false" json:"enrolled"`
	Completed            bool       `gorm:"not null;default:false" json:"completed"`
	Expired              bool       `gorm:"not null;default:false" json:"expired"`
	IsFreeTrial          bool       `gorm:"not null;default:false" json:"isFreeTrial"`
	PercentageCompleted  float64    `gorm:"not null;default:0" json:"percentageCompleted"`
	ActivatedAt          *time.Time `json:"activatedAt"`
	CompletedAt          *time.Time `json:"completedAt"`
	StartedAt            *time.Time `json:"startedAt"`
	ExpiryDate           *time.Time `json:"expiryDate"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName sets the table name
func (Enrollment) TableName() string {
	return "enrollments"
}
