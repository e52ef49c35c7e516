package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"enrollsync/internal/model"
	"enrollsync/pkg/lms"
	"enrollsync/pkg/logger"
	"enrollsync/pkg/metrics"
	"enrollsync/pkg/notification"
	"enrollsync/pkg/store/mysql"
	storemodel "enrollsync/pkg/store/mysql/model"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

// ErrUnresolvedLinkage marks an event whose user cannot be linked to a
// locally-owned cohort record. This is a data-quality condition requiring
// operator attention, never silently papered over with a placeholder.
var ErrUnresolvedLinkage = errors.New("user cohort linkage unresolved")

// EnrollmentStore is the system-of-record interface the worker writes to.
type EnrollmentStore interface {
	Find(ctx context.Context, externalEnrollmentID, courseID string) (*storemodel.Enrollment, error)
	Upsert(ctx context.Context, record *storemodel.Enrollment, updates map[string]interface{}) error
}

// LinkageResolver resolves an external user id to the locally-owned
// user/cohort linkage. Returns ErrUnresolvedLinkage when no linkage exists.
type LinkageResolver interface {
	ResolveCohort(ctx context.Context, externalUserID string) (string, error)
}

// MetricsSink receives per-attempt processing outcomes.
type MetricsSink interface {
	Record(outcome metrics.Outcome, latency time.Duration)
	RecordRetry()
}

// DeadLetterNotifier alerts operators when a job fails terminally.
type DeadLetterNotifier interface {
	SendDeadLetterNotification(ctx context.Context, n *notification.DeadLetterNotification) error
}

// ProcessStatus is the observable result of one job execution.
type ProcessStatus string

const (
	StatusSuccess ProcessStatus = "success"
	StatusSkipped ProcessStatus = "skipped"
)

// ProcessResult summarizes a completed job execution.
type ProcessResult struct {
	Status     ProcessStatus   `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	EventType  model.EventType `json:"eventType"`
	DurationMs int64           `json:"durationMs"`
}

// Processor consumes enrollment jobs and applies them to the system of
// record idempotently. Delivery is at-least-once; correctness relies on the
// guarded upsert and the completed-state latch, not on delivery order.
type Processor struct {
	store    EnrollmentStore
	linkage  LinkageResolver
	metrics  MetricsSink
	notifier DeadLetterNotifier
}

// NewProcessor creates the enrollment processor.
func NewProcessor(store EnrollmentStore, linkage LinkageResolver, sink MetricsSink) *Processor {
	return &Processor{
		store:   store,
		linkage: linkage,
		metrics: sink,
	}
}

// SetNotifier enables dead-letter alerting.
func (p *Processor) SetNotifier(n DeadLetterNotifier) {
	p.notifier = n
}

// ProcessTask is the asynq handler entrypoint for enrollment jobs.
func (p *Processor) ProcessTask(ctx context.Context, task *asynq.Task) error {
	start := time.Now()

	var payload model.JobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		p.metrics.Record(metrics.OutcomeFailure, time.Since(start))
		return fmt.Errorf("malformed job payload: %v: %w", err, asynq.SkipRetry)
	}

	result, err := p.Process(ctx, &payload)
	latency := time.Since(start)

	if err != nil {
		p.metrics.Record(metrics.OutcomeFailure, latency)
		if IsRetryable(err) {
			p.metrics.RecordRetry()
			logger.WarnCtx(ctx, "retryable failure processing event %s (%s): %v",
				payload.EventID, payload.EventType, err)
			return err
		}
		logger.ErrorCtx(ctx, "terminal failure processing event %s (%s), enrollment %s, course %s: %v",
			payload.EventID, payload.EventType, payload.Enrollment.ID, payload.Enrollment.CourseID, err)
		p.notifyDeadLetter(ctx, &payload, err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	p.metrics.Record(metrics.OutcomeSuccess, latency)
	result.DurationMs = latency.Milliseconds()
	logger.InfoCtx(ctx, "processed event %s (%s): %s %s in %dms",
		payload.EventID, payload.EventType, result.Status, result.Reason, result.DurationMs)

	if w := task.ResultWriter(); w != nil {
		if data, err := json.Marshal(result); err == nil {
			w.Write(data) //nolint:errcheck // result retention is best effort
		}
	}
	return nil
}

// notifyDeadLetter sends a best-effort operator alert for a job that will
// not be retried.
func (p *Processor) notifyDeadLetter(ctx context.Context, payload *model.JobPayload, cause error) {
	if p.notifier == nil {
		return
	}
	err := p.notifier.SendDeadLetterNotification(ctx, &notification.DeadLetterNotification{
		EventID:      payload.EventID,
		EventType:    string(payload.EventType),
		EnrollmentID: payload.Enrollment.ID,
		CourseID:     payload.Enrollment.CourseID,
		Reason:       cause.Error(),
		FailedAt:     time.Now(),
	})
	if err != nil {
		logger.WarnCtx(ctx, "failed to send dead-letter notification for event %s: %v", payload.EventID, err)
	}
}

// Process applies one enrollment event. It performs at most one upsert, or
// none when the record is already in its terminal completed state.
func (p *Processor) Process(ctx context.Context, payload *model.JobPayload) (*ProcessResult, error) {
	event, err := payload.Event()
	if err != nil {
		// Malformed event data is terminal
		return nil, err
	}

	// Validating: the completed flag is a one-way latch
	existing, err := p.store.Find(ctx, event.EnrollmentID(), event.CourseID())
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Completed {
		return &ProcessResult{
			Status:    StatusSkipped,
			Reason:    "already_completed",
			EventType: event.Type(),
		}, nil
	}

	patch := event.Patch()
	updates := buildUpdates(patch)

	record := &storemodel.Enrollment{
		ExternalEnrollmentID: strPtr(event.EnrollmentID()),
		CourseID:             event.CourseID(),
		Enrolled:             true,
	}
	applyPatch(record, patch)

	if existing == nil {
		// Creating a new row requires the user/cohort linkage. Course name
		// falls back to a derived label until the catalog sync fills it in.
		if patch.UserID == nil {
			return nil, fmt.Errorf("event %s: %w: no user id on event", event.EventID(), ErrUnresolvedLinkage)
		}
		cohortID, err := p.linkage.ResolveCohort(ctx, *patch.UserID)
		if err != nil {
			if errors.Is(err, mysql.ErrLinkageNotFound) {
				return nil, fmt.Errorf("event %s: %w: %v", event.EventID(), ErrUnresolvedLinkage, err)
			}
			return nil, fmt.Errorf("event %s: %w", event.EventID(), err)
		}
		record.UserCohortID = cohortID
		record.CourseName = "Course " + event.CourseID()
	}

	if err := p.store.Upsert(ctx, record, updates); err != nil {
		if errors.Is(err, mysql.ErrAlreadyCompleted) {
			// Lost the race against a completion event; same as the latch check
			return &ProcessResult{
				Status:    StatusSkipped,
				Reason:    "already_completed",
				EventType: event.Type(),
			}, nil
		}
		return nil, err
	}

	return &ProcessResult{Status: StatusSuccess, EventType: event.Type()}, nil
}

// buildUpdates maps only the fields present on the event, so absence never
// clobbers existing data.
func buildUpdates(patch model.EnrollmentPatch) map[string]interface{} {
	updates := map[string]interface{}{
		"enrolled": true,
	}
	if patch.UserID != nil {
		updates["user_id"] = *patch.UserID
	}
	if patch.ActivatedAt != nil {
		updates["activated_at"] = *patch.ActivatedAt
	}
	if patch.CompletedAt != nil {
		updates["completed_at"] = *patch.CompletedAt
	}
	if patch.StartedAt != nil {
		updates["started_at"] = *patch.StartedAt
	}
	if patch.ExpiryDate != nil {
		updates["expiry_date"] = *patch.ExpiryDate
	}
	if patch.PercentageCompleted != nil {
		updates["percentage_completed"] = *patch.PercentageCompleted
	}
	if patch.IsFreeTrial != nil {
		updates["is_free_trial"] = *patch.IsFreeTrial
	}
	if patch.Completed != nil {
		updates["completed"] = *patch.Completed
	}
	if patch.Expired != nil {
		updates["expired"] = *patch.Expired
	}
	return updates
}

func applyPatch(record *storemodel.Enrollment, patch model.EnrollmentPatch) {
	record.UserID = patch.UserID
	record.ActivatedAt = patch.ActivatedAt
	record.CompletedAt = patch.CompletedAt
	record.StartedAt = patch.StartedAt
	record.ExpiryDate = patch.ExpiryDate
	if patch.PercentageCompleted != nil {
		record.PercentageCompleted = *patch.PercentageCompleted
	}
	if patch.IsFreeTrial != nil {
		record.IsFreeTrial = *patch.IsFreeTrial
	}
	if patch.Completed != nil {
		record.Completed = *patch.Completed
	}
	if patch.Expired != nil {
		record.Expired = *patch.Expired
	}
}

// IsRetryable classifies an error against the closed set of transient
// conditions: unique-constraint races, rows not yet visible, timeouts, and
// connection-level failures. Everything else is terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnresolvedLinkage) {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *lms.APIError
	if errors.As(err, &apiErr) {
		return true
	}
	var decodeErr *lms.DecodeError
	if errors.As(err, &decodeErr) {
		return false
	}
	msg := err.Error()
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") {
		return true
	}
	return false
}

func strPtr(s string) *string { return &s }
