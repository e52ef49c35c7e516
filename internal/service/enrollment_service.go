package service

import (
	"context"
	"fmt"
	"time"

	"enrollsync/internal/model"
	"enrollsync/pkg/lms"
	"enrollsync/pkg/logger"
	"enrollsync/pkg/queue"
	storemodel "enrollsync/pkg/store/mysql/model"
)

// EnrollmentAPI is the subset of the LMS client used for outbound calls.
type EnrollmentAPI interface {
	CreateEnrollment(ctx context.Context, req *lms.CreateEnrollmentRequest) (*model.EnrollmentData, error)
	HealthCheck(ctx context.Context) bool
}

// EnrollmentService handles outbound enrollment creation and local record
// lookups.
type EnrollmentService struct {
	api   EnrollmentAPI
	store EnrollmentStore
	queue queue.Queue
}

// NewEnrollmentService creates the enrollment service.
func NewEnrollmentService(api EnrollmentAPI, store EnrollmentStore, q queue.Queue) *EnrollmentService {
	return &EnrollmentService{api: api, store: store, queue: q}
}

// Create creates an enrollment on the LMS, then queues a created event so
// the local record converges without waiting for the webhook round trip.
func (s *EnrollmentService) Create(ctx context.Context, courseID, userID string, activatedAt *time.Time) (*model.EnrollmentData, error) {
	data, err := s.api.CreateEnrollment(ctx, &lms.CreateEnrollmentRequest{
		CourseID:    courseID,
		UserID:      userID,
		ActivatedAt: activatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create enrollment on lms: %w", err)
	}

	payload := &model.JobPayload{
		EventID:     "create-" + data.ID,
		EventType:   model.EventEnrollmentCreated,
		Enrollment:  *data,
		ProcessedAt: time.Now(),
	}
	if err := s.queue.Enqueue(ctx, payload.EventID, payload, queue.EnqueueOptions{
		Priority: model.EventPriority(model.EventEnrollmentCreated),
	}); err != nil && err != queue.ErrDuplicateJob {
		// The LMS holds the enrollment; the webhook or reconciliation will
		// converge the local record, so a queue hiccup here is not fatal
		logger.WarnCtx(ctx, "failed to queue created event for enrollment %s: %v", data.ID, err)
	}

	return data, nil
}

// GetRecord looks up the local record by its natural key. Returns nil when
// absent.
func (s *EnrollmentService) GetRecord(ctx context.Context, externalEnrollmentID, courseID string) (*storemodel.Enrollment, error) {
	return s.store.Find(ctx, externalEnrollmentID, courseID)
}

// LMSHealthy reports whether the external LMS is reachable.
func (s *EnrollmentService) LMSHealthy(ctx context.Context) bool {
	return s.api.HealthCheck(ctx)
}
