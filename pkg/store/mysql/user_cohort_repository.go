package mysql

import (
	"context"
	"errors"
	"fmt"

	storemodel "enrollsync/pkg/store/mysql/model"

	"gorm.io/gorm"
)

// ErrLinkageNotFound is returned when no user/cohort linkage exists for an
// external user id.
var ErrLinkageNotFound = errors.New("user cohort linkage not found")

// UserCohortRepository resolves external LMS user ids to the locally-owned
// user/cohort linkage. The linkage rows themselves are owned by the
// applicant store; this repository only reads them.
type UserCohortRepository struct {
	ds *Datastore
}

// NewUserCohortRepository creates a new user cohort repository
func NewUserCohortRepository(ds *Datastore) *UserCohortRepository {
	return &UserCohortRepository{ds: ds}
}

// ResolveCohort returns the cohort linkage id for an external user id.
func (r *UserCohortRepository) ResolveCohort(ctx context.Context, externalUserID string) (string, error) {
	var linkage storemodel.UserCohort
	err := r.ds.DB(ctx).
		Where("external_user_id = ?", externalUserID).
		First(&linkage).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("user %s: %w", externalUserID, ErrLinkageNotFound)
		}
		return "", fmt.Errorf("failed to resolve user cohort: %w", err)
	}
	return linkage.CohortID, nil
}

// Migrate creates or updates the user_cohorts table.
func (r *UserCohortRepository) Migrate() error {
	return r.ds.db.AutoMigrate(&storemodel.UserCohort{})
}
