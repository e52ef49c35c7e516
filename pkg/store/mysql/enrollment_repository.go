package mysql

import (
	"context"
	"errors"
	"fmt"

	storemodel "enrollsync/pkg/store/mysql/model"

	"gorm.io/gorm"
)

// ErrAlreadyCompleted is returned when an update targets a row that has
// reached its terminal completed state. Callers report the job as skipped.
var ErrAlreadyCompleted = errors.New("enrollment already completed")

// EnrollmentRepository handles enrollment persistence in MySQL
type EnrollmentRepository struct {
	ds *Datastore
}

// NewEnrollmentRepository creates a new enrollment repository
func NewEnrollmentRepository(ds *Datastore) *EnrollmentRepository {
	return &EnrollmentRepository{ds: ds}
}

// Find retrieves an enrollment by its natural key. Returns nil when absent.
func (r *EnrollmentRepository) Find(ctx context.Context, externalEnrollmentID, courseID string) (*storemodel.Enrollment, error) {
	var enrollment storemodel.Enrollment
	err := r.ds.DB(ctx).
		Where("external_enrollment_id = ? AND course_id = ?", externalEnrollmentID, courseID).
		First(&enrollment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find enrollment: %w", err)
	}
	return &enrollment, nil
}

// Upsert applies a partial update keyed on (external_enrollment_id,
// course_id), creating the row when absent. The update is guarded on
// completed = false so a latched row can never be mutated, regardless of
// delivery order. A concurrent insert on the same key surfaces as
// gorm.ErrDuplicatedKey, which the worker classifies as retryable.
func (r *EnrollmentRepository) Upsert(ctx context.Context, record *storemodel.Enrollment, updates map[string]interface{}) error {
	if record.ExternalEnrollmentID == nil || *record.ExternalEnrollmentID == "" {
		return fmt.Errorf("external enrollment id is required for upsert")
	}

	result := r.ds.DB(ctx).Model(&storemodel.Enrollment{}).
		Where("external_enrollment_id = ? AND course_id = ? AND completed = ?",
			*record.ExternalEnrollmentID, record.CourseID, false).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update enrollment: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// No writable row: either the key is new or the row is latched
	existing, err := r.Find(ctx, *record.ExternalEnrollmentID, record.CourseID)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Completed {
			return ErrAlreadyCompleted
		}
		// MySQL counts changed rows, not matched rows: the update hit a
		// live row but every value was already in place. Nothing to do.
		return nil
	}

	if err := r.ds.DB(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create enrollment: %w", err)
	}
	return nil
}

// Create inserts a new enrollment row.
func (r *EnrollmentRepository) Create(ctx context.Context, record *storemodel.Enrollment) error {
	if err := r.ds.DB(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create enrollment: %w", err)
	}
	return nil
}

// Migrate creates or updates the enrollments table.
func (r *EnrollmentRepository) Migrate() error {
	return r.ds.db.AutoMigrate(&storemodel.Enrollment{})
}
