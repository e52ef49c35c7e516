package asynq

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"enrollsync/internal/model"
	"enrollsync/pkg/config"
	"enrollsync/pkg/queue"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, mutate func(*config.Config)) *Manager {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := &config.Config{}
	cfg.Redis.Addr = mr.Addr()
	cfg.ApplyDefaults()
	if mutate != nil {
		mutate(cfg)
	}

	m, err := NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func testPayload(eventID string) *model.JobPayload {
	return &model.JobPayload{
		EventID:   eventID,
		EventType: model.EventEnrollmentProgress,
		Enrollment: model.EnrollmentData{
			ID:       "e-1",
			UserID:   "user-1",
			CourseID: "course-1",
		},
		ProcessedAt: time.Now(),
	}
}

func TestQueueNames(t *testing.T) {
	assert.Equal(t, "critical", queueNames[model.PriorityCritical])
	assert.Equal(t, "high", queueNames[model.PriorityHigh])
	assert.Equal(t, "default", queueNames[model.PriorityDefault])
	assert.Equal(t, "low", queueNames[model.PriorityLow])

	// Unknown priorities are not in the map; Enqueue falls back to "low"
	_, ok := queueNames[model.JobPriority(99)]
	assert.False(t, ok)
}

func TestConvertState(t *testing.T) {
	tests := []struct {
		in  asynq.TaskState
		out queue.JobState
	}{
		{asynq.TaskStateActive, queue.JobStateActive},
		{asynq.TaskStatePending, queue.JobStatePending},
		{asynq.TaskStateScheduled, queue.JobStateScheduled},
		{asynq.TaskStateRetry, queue.JobStateRetry},
		{asynq.TaskStateArchived, queue.JobStateFailed},
		{asynq.TaskStateCompleted, queue.JobStateCompleted},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.out, convertState(tt.in))
	}
}

func TestConvertTaskInfo(t *testing.T) {
	info := &asynq.TaskInfo{
		ID:       "evt-1",
		Queue:    "critical",
		State:    asynq.TaskStateArchived,
		MaxRetry: 3,
		Retried:  3,
		LastErr:  "lms api error (status 500)",
	}

	ji := convertTaskInfo(info)
	assert.Equal(t, "evt-1", ji.ID)
	assert.Equal(t, queue.JobStateFailed, ji.State)
	assert.Equal(t, 3, ji.Retried)
	assert.Nil(t, ji.CompletedAt)
}

func TestRetryDelay(t *testing.T) {
	fn := retryDelay(2 * time.Second)
	assert.Equal(t, 4*time.Second, fn(1, nil, nil))
	assert.Equal(t, 8*time.Second, fn(2, nil, nil))
	assert.Equal(t, 16*time.Second, fn(3, nil, nil))
	// Deep retry counts hit the ceiling instead of overflowing
	assert.Equal(t, 5*time.Minute, fn(10, nil, nil))
}

func TestCapLimit(t *testing.T) {
	assert.Equal(t, 50, capLimit(200, 50))
	assert.Equal(t, 10, capLimit(10, 50))
	assert.Equal(t, 200, capLimit(200, 0))
}

func TestManager_EnqueueDeduplicatesByJobID(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	err := m.Enqueue(ctx, "evt-1", testPayload("evt-1"), queue.EnqueueOptions{Priority: model.PriorityDefault})
	require.NoError(t, err)

	err = m.Enqueue(ctx, "evt-1", testPayload("evt-1"), queue.EnqueueOptions{Priority: model.PriorityDefault})
	assert.ErrorIs(t, err, queue.ErrDuplicateJob)
}

func TestManager_EnqueueAppliesRetryPolicy(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	err := m.Enqueue(ctx, "evt-2", testPayload("evt-2"), queue.EnqueueOptions{Priority: model.PriorityCritical})
	require.NoError(t, err)

	info, err := m.GetJob(ctx, "evt-2")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "critical", info.Queue)
	assert.Equal(t, 3, info.MaxRetry)
	assert.Equal(t, queue.JobStatePending, info.State)
}

func TestManager_RetryExhaustionArchivesJob(t *testing.T) {
	var attempts int32
	m := newTestManager(t, func(cfg *config.Config) {
		cfg.Queue.Concurrency = 1
		// Exhausted after the first attempt, so the test needs no delays
		cfg.Queue.MaxRetry = 0
	})
	m.RegisterHandler(TypeEnrollmentProcess, asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("connection refused")
	}))
	require.NoError(t, m.Start())
	defer m.Stop()

	ctx := context.Background()
	require.NoError(t, m.Enqueue(ctx, "evt-3", testPayload("evt-3"), queue.EnqueueOptions{Priority: model.PriorityHigh}))

	require.Eventually(t, func() bool {
		info, err := m.GetJob(ctx, "evt-3")
		return err == nil && info != nil && info.State == queue.JobStateFailed
	}, 5*time.Second, 50*time.Millisecond, "job must land in the failed set once retries are exhausted")
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestManager_SkipRetryArchivesImmediately(t *testing.T) {
	var attempts int32
	m := newTestManager(t, func(cfg *config.Config) {
		cfg.Queue.Concurrency = 1
	})
	m.RegisterHandler(TypeEnrollmentProcess, asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		atomic.AddInt32(&attempts, 1)
		return fmt.Errorf("user cohort not found: %w", asynq.SkipRetry)
	}))
	require.NoError(t, m.Start())
	defer m.Stop()

	ctx := context.Background()
	require.NoError(t, m.Enqueue(ctx, "evt-4", testPayload("evt-4"), queue.EnqueueOptions{Priority: model.PriorityCritical}))

	require.Eventually(t, func() bool {
		info, err := m.GetJob(ctx, "evt-4")
		return err == nil && info != nil && info.State == queue.JobStateFailed
	}, 5*time.Second, 50*time.Millisecond, "terminal failure must dead-letter without retrying")

	info, err := m.GetJob(ctx, "evt-4")
	require.NoError(t, err)
	assert.Zero(t, info.Retried)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}
