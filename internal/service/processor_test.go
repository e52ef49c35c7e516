package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"enrollsync/internal/model"
	"enrollsync/pkg/lms"
	"enrollsync/pkg/metrics"
	"enrollsync/pkg/store/mysql"
	storemodel "enrollsync/pkg/store/mysql/model"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeStore is an in-memory EnrollmentStore keyed by enrollment+course.
type fakeStore struct {
	records    map[string]*storemodel.Enrollment
	findErr    error
	upsertErr  error
	upserts    int
	lastRecord *storemodel.Enrollment
	lastUpdate map[string]interface{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*storemodel.Enrollment)}
}

func storeKey(enrollmentID, courseID string) string {
	return enrollmentID + "/" + courseID
}

func (s *fakeStore) Find(ctx context.Context, externalEnrollmentID, courseID string) (*storemodel.Enrollment, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.records[storeKey(externalEnrollmentID, courseID)], nil
}

func (s *fakeStore) Upsert(ctx context.Context, record *storemodel.Enrollment, updates map[string]interface{}) error {
	s.upserts++
	s.lastRecord = record
	s.lastUpdate = updates
	if s.upsertErr != nil {
		return s.upsertErr
	}

	key := storeKey(*record.ExternalEnrollmentID, record.CourseID)
	existing, ok := s.records[key]
	if !ok {
		clone := *record
		s.records[key] = &clone
		return nil
	}
	if existing.Completed {
		return mysql.ErrAlreadyCompleted
	}
	if v, ok := updates["completed"].(bool); ok {
		existing.Completed = v
	}
	if v, ok := updates["percentage_completed"].(float64); ok {
		existing.PercentageCompleted = v
	}
	if v, ok := updates["user_id"].(string); ok {
		existing.UserID = &v
	}
	return nil
}

type fakeResolver struct {
	cohorts map[string]string
	err     error
}

func (r *fakeResolver) ResolveCohort(ctx context.Context, externalUserID string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	cohort, ok := r.cohorts[externalUserID]
	if !ok {
		return "", mysql.ErrLinkageNotFound
	}
	return cohort, nil
}

type fakeSink struct {
	successes int
	failures  int
	retries   int
}

func (s *fakeSink) Record(outcome metrics.Outcome, latency time.Duration) {
	if outcome == metrics.OutcomeSuccess {
		s.successes++
	} else {
		s.failures++
	}
}

func (s *fakeSink) RecordRetry() { s.retries++ }

func payloadFor(t *testing.T, eventID string, eventType model.EventType, data model.EnrollmentData) *model.JobPayload {
	t.Helper()
	return &model.JobPayload{
		EventID:     eventID,
		EventType:   eventType,
		Enrollment:  data,
		ProcessedAt: time.Now(),
	}
}

func createdData(enrollmentID, userID string) model.EnrollmentData {
	return model.EnrollmentData{ID: enrollmentID, UserID: userID, CourseID: "course-1"}
}

func TestProcessor_CreatesRecordWithLinkage(t *testing.T) {
	store := newFakeStore()
	resolver := &fakeResolver{cohorts: map[string]string{"user-1": "cohort-7"}}
	sink := &fakeSink{}
	p := NewProcessor(store, resolver, sink)

	result, err := p.Process(context.Background(), payloadFor(t, "evt-1", model.EventEnrollmentCreated, createdData("enr-1", "user-1")))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)

	record := store.records[storeKey("enr-1", "course-1")]
	require.NotNil(t, record)
	assert.Equal(t, "cohort-7", record.UserCohortID)
	assert.Equal(t, "Course course-1", record.CourseName)
	assert.True(t, record.Enrolled)
}

func TestProcessor_UnresolvedLinkageIsTerminal(t *testing.T) {
	store := newFakeStore()
	resolver := &fakeResolver{cohorts: map[string]string{}}
	p := NewProcessor(store, resolver, &fakeSink{})

	_, err := p.Process(context.Background(), payloadFor(t, "evt-1", model.EventEnrollmentCreated, createdData("enr-1", "user-unknown")))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedLinkage)
	assert.False(t, IsRetryable(err))
	assert.Zero(t, store.upserts, "no write may happen without a resolved linkage")
}

func TestProcessor_ProgressUpdatesExistingRecord(t *testing.T) {
	store := newFakeStore()
	uid := "user-1"
	store.records[storeKey("enr-1", "course-1")] = &storemodel.Enrollment{
		ExternalEnrollmentID: &uid,
		CourseID:             "course-1",
		UserID:               &uid,
	}
	p := NewProcessor(store, &fakeResolver{}, &fakeSink{})

	pct := 40.0
	data := createdData("enr-1", "user-1")
	data.PercentageCompleted = &pct

	result, err := p.Process(context.Background(), payloadFor(t, "evt-2", model.EventEnrollmentProgress, data))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)

	// Progress on an existing record never consults the linkage resolver
	assert.Equal(t, 40.0, store.records[storeKey("enr-1", "course-1")].PercentageCompleted)
}

func TestProcessor_CompletedLatchSkipsLaterEvents(t *testing.T) {
	store := newFakeStore()
	resolver := &fakeResolver{cohorts: map[string]string{"user-1": "cohort-7"}}
	p := NewProcessor(store, resolver, &fakeSink{})
	ctx := context.Background()

	// Completion arrives first
	completed := true
	data := createdData("enr-1", "user-1")
	data.Completed = &completed
	result, err := p.Process(ctx, payloadFor(t, "evt-complete", model.EventEnrollmentCompleted, data))
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, result.Status)
	require.True(t, store.records[storeKey("enr-1", "course-1")].Completed)

	// A stale progress event for the same enrollment is skipped, not applied
	pct := 50.0
	progress := createdData("enr-1", "user-1")
	progress.PercentageCompleted = &pct
	result, err = p.Process(ctx, payloadFor(t, "evt-progress", model.EventEnrollmentProgress, progress))
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, "already_completed", result.Reason)
	assert.True(t, store.records[storeKey("enr-1", "course-1")].Completed)
}

func TestProcessor_CompletedEventDefaultsCompletedTrue(t *testing.T) {
	store := newFakeStore()
	resolver := &fakeResolver{cohorts: map[string]string{"user-1": "cohort-7"}}
	p := NewProcessor(store, resolver, &fakeSink{})

	// No explicit completed flag on the event payload
	_, err := p.Process(context.Background(), payloadFor(t, "evt-1", model.EventEnrollmentCompleted, createdData("enr-1", "user-1")))
	require.NoError(t, err)
	assert.Equal(t, true, store.lastUpdate["completed"])
}

func TestProcessor_UpsertRaceReportsSkipped(t *testing.T) {
	store := newFakeStore()
	uid := "user-1"
	store.records[storeKey("enr-1", "course-1")] = &storemodel.Enrollment{
		ExternalEnrollmentID: &uid,
		CourseID:             "course-1",
		Completed:            false,
	}
	p := NewProcessor(store, &fakeResolver{}, &fakeSink{})

	// Latch flips between the Find and the Upsert
	store.upsertErr = mysql.ErrAlreadyCompleted

	result, err := p.Process(context.Background(), payloadFor(t, "evt-1", model.EventEnrollmentProgress, createdData("enr-1", "user-1")))
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, result.Status)
}

func TestProcessor_ReprocessingIsIdempotent(t *testing.T) {
	store := newFakeStore()
	resolver := &fakeResolver{cohorts: map[string]string{"user-1": "cohort-7"}}
	p := NewProcessor(store, resolver, &fakeSink{})
	ctx := context.Background()

	payload := payloadFor(t, "evt-1", model.EventEnrollmentCreated, createdData("enr-1", "user-1"))
	_, err := p.Process(ctx, payload)
	require.NoError(t, err)

	// Redelivery of the same job converges to the same state
	_, err = p.Process(ctx, payload)
	require.NoError(t, err)
	assert.Len(t, store.records, 1)
}

func TestProcessTask_TerminalFailureSkipsRetry(t *testing.T) {
	store := newFakeStore()
	resolver := &fakeResolver{cohorts: map[string]string{}}
	sink := &fakeSink{}
	p := NewProcessor(store, resolver, sink)

	payload := payloadFor(t, "evt-1", model.EventEnrollmentCreated, createdData("enr-1", "user-unknown"))
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	err = p.ProcessTask(context.Background(), asynq.NewTask("enrollment:process", data))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, 1, sink.failures)
	assert.Zero(t, sink.retries)
}

func TestProcessTask_RetryableFailurePropagates(t *testing.T) {
	store := newFakeStore()
	store.findErr = &lms.APIError{StatusCode: 503, Message: "unavailable"}
	sink := &fakeSink{}
	p := NewProcessor(store, &fakeResolver{}, sink)

	payload := payloadFor(t, "evt-1", model.EventEnrollmentProgress, createdData("enr-1", "user-1"))
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	err = p.ProcessTask(context.Background(), asynq.NewTask("enrollment:process", data))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, 1, sink.failures)
	assert.Equal(t, 1, sink.retries)
}

func TestProcessTask_MalformedPayloadSkipsRetry(t *testing.T) {
	sink := &fakeSink{}
	p := NewProcessor(newFakeStore(), &fakeResolver{}, sink)

	err := p.ProcessTask(context.Background(), asynq.NewTask("enrollment:process", []byte("{broken")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, 1, sink.failures)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"duplicate key race", gorm.ErrDuplicatedKey, true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"lms api error", &lms.APIError{StatusCode: 500}, true},
		{"lms decode error", &lms.DecodeError{Err: errors.New("bad json")}, false},
		{"unresolved linkage", ErrUnresolvedLinkage, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"timeout in message", errors.New("i/o timeout"), true},
		{"plain validation error", errors.New("course id is required"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}
