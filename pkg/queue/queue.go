package queue

import (
	"context"
	"errors"
	"time"

	"enrollsync/internal/model"
)

// ErrDuplicateJob is returned by Enqueue when a job with the same
// idempotency key is already held by the queue (pending, in-flight, or
// retained after completion). Callers treat it as a dedup skip, not a
// failure.
var ErrDuplicateJob = errors.New("job already enqueued")

// EnqueueOptions control placement of a job.
type EnqueueOptions struct {
	Priority model.JobPriority
	Delay    time.Duration
}

// Queue is the durable at-least-once handoff between event sources and the
// worker pool. Implementations must guarantee that a given job id is stored
// at most once.
type Queue interface {
	// Enqueue stores a job under the given idempotency key.
	Enqueue(ctx context.Context, jobID string, payload *model.JobPayload, opts EnqueueOptions) error

	// GetJob returns queue-level info for a job, or nil if the id is unknown.
	GetJob(ctx context.Context, jobID string) (*JobInfo, error)

	// Stats returns live queue counters.
	Stats(ctx context.Context) (*Stats, error)

	// RecentFailed lists the most recent dead-lettered jobs.
	RecentFailed(ctx context.Context, n int) ([]*JobSummary, error)

	// RecentCompleted lists the most recent completed jobs.
	RecentCompleted(ctx context.Context, n int) ([]*JobSummary, error)
}

// JobState is the queue-level lifecycle state of a job.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateActive    JobState = "active"
	JobStateScheduled JobState = "scheduled"
	JobStateRetry     JobState = "retry"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// JobInfo is queue-level information about a single job.
type JobInfo struct {
	ID          string     `json:"id"`
	Queue       string     `json:"queue"`
	State       JobState   `json:"state"`
	MaxRetry    int        `json:"maxRetry"`
	Retried     int        `json:"retried"`
	LastErr     string     `json:"lastErr,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Stats are live queue counters. Failed is the dead-letter set size.
type Stats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Delayed   int `json:"delayed"`
	Retry     int `json:"retry"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// JobSummary is a compact view of a finished job for operator inspection.
type JobSummary struct {
	ID          string     `json:"id"`
	Queue       string     `json:"queue"`
	Retried     int        `json:"retried"`
	LastErr     string     `json:"lastErr,omitempty"`
	LastFailed  *time.Time `json:"lastFailedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Result      string     `json:"result,omitempty"`
}
