package metrics

import (
	"context"
	"sync"
	"time"

	"enrollsync/pkg/queue"
)

// Outcome is the terminal result of one job processing attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// QueueIntrospector supplies live queue counters merged into snapshots.
type QueueIntrospector interface {
	Stats(ctx context.Context) (*queue.Stats, error)
}

// Snapshot is a point-in-time view of the pipeline's processing counters.
// QueueSize and DLQSize are recomputed from the queue on every read; they
// are never persisted in the aggregator.
type Snapshot struct {
	TotalProcessed   int64     `json:"totalProcessed"`
	Successful       int64     `json:"successful"`
	Failed           int64     `json:"failed"`
	Retries          int64     `json:"retries"`
	AverageLatencyMs float64   `json:"averageLatencyMs"`
	QueueSize        int       `json:"queueSize"`
	DLQSize          int       `json:"dlqSize"`
	LastProcessedAt  time.Time `json:"lastProcessedAt"`
}

// Aggregator accumulates process-local processing counters. It is advisory
// operational state, not authoritative across worker processes. Safe for
// concurrent use by the worker pool.
type Aggregator struct {
	mu sync.Mutex

	totalProcessed  int64
	successful      int64
	failed          int64
	retries         int64
	avgLatencyMs    float64
	lastProcessedAt time.Time

	queues QueueIntrospector
}

// NewAggregator creates a metrics aggregator backed by the given queue
// introspector.
func NewAggregator(queues QueueIntrospector) *Aggregator {
	return &Aggregator{queues: queues}
}

// Record registers one processing attempt's outcome and latency.
func (a *Aggregator) Record(outcome Outcome, latency time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalProcessed++
	switch outcome {
	case OutcomeSuccess:
		a.successful++
	case OutcomeFailure:
		a.failed++
	}

	// Incremental running average over all attempts
	ms := float64(latency.Milliseconds())
	a.avgLatencyMs += (ms - a.avgLatencyMs) / float64(a.totalProcessed)
	a.lastProcessedAt = time.Now()
}

// RecordRetry counts a retryable failure handed back to the queue.
func (a *Aggregator) RecordRetry() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.retries++
}

// Snapshot returns current counters merged with live queue sizes.
func (a *Aggregator) Snapshot(ctx context.Context) (*Snapshot, error) {
	a.mu.Lock()
	snap := &Snapshot{
		TotalProcessed:   a.totalProcessed,
		Successful:       a.successful,
		Failed:           a.failed,
		Retries:          a.retries,
		AverageLatencyMs: a.avgLatencyMs,
		LastProcessedAt:  a.lastProcessedAt,
	}
	a.mu.Unlock()

	if a.queues != nil {
		stats, err := a.queues.Stats(ctx)
		if err != nil {
			return nil, err
		}
		snap.QueueSize = stats.Waiting
		snap.DLQSize = stats.Failed
	}
	return snap, nil
}

// Reset zeroes all counters. Queue contents are unaffected.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalProcessed = 0
	a.successful = 0
	a.failed = 0
	a.retries = 0
	a.avgLatencyMs = 0
	a.lastProcessedAt = time.Time{}
}
