package asynq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"enrollsync/internal/model"
	"enrollsync/pkg/config"
	"enrollsync/pkg/logger"
	"enrollsync/pkg/queue"

	"github.com/hibiken/asynq"
)

const (
	// TypeEnrollmentProcess is the task type consumed by the enrollment worker.
	TypeEnrollmentProcess = "enrollment:process"
)

// Queue names in descending priority order. Webhook-originated jobs land in
// the upper three depending on event type; reconciliation pulls always use
// the low queue so live events win.
var queueNames = map[model.JobPriority]string{
	model.PriorityCritical: "critical",
	model.PriorityHigh:     "high",
	model.PriorityDefault:  "default",
	model.PriorityLow:      "low",
}

var allQueues = []string{"critical", "high", "default", "low"}

// Manager is the asynq-backed job queue.
type Manager struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
	cfg       *config.Config
}

// NewManager creates the queue manager.
func NewManager(cfg *config.Config) (*Manager, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	client := asynq.NewClient(redisOpt)
	inspector := asynq.NewInspector(redisOpt)

	baseDelay := time.Duration(cfg.Queue.RetryBaseDelay) * time.Second

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Queues: map[string]int{
				"critical": 6,
				"high":     3,
				"default":  2,
				"low":      1,
			},
			RetryDelayFunc: retryDelay(baseDelay),
		},
	)

	return &Manager{
		client:    client,
		server:    server,
		mux:       asynq.NewServeMux(),
		inspector: inspector,
		cfg:       cfg,
	}, nil
}

// retryDelay doubles the backoff from the configured base on every retry,
// capped at five minutes.
func retryDelay(base time.Duration) asynq.RetryDelayFunc {
	return func(n int, err error, task *asynq.Task) time.Duration {
		delay := base << n
		if max := 5 * time.Minute; delay > max {
			delay = max
		}
		return delay
	}
}

// Enqueue stores a job under its idempotency key. A key already held by the
// queue yields queue.ErrDuplicateJob.
func (m *Manager) Enqueue(ctx context.Context, jobID string, payload *model.JobPayload, opts queue.EnqueueOptions) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	queueName, ok := queueNames[opts.Priority]
	if !ok {
		queueName = "low"
	}

	taskOpts := []asynq.Option{
		asynq.TaskID(jobID),
		asynq.Queue(queueName),
		asynq.MaxRetry(m.cfg.Queue.MaxRetry),
		asynq.Timeout(time.Duration(m.cfg.Queue.JobTimeout) * time.Second),
		// Retain completed jobs so GetJob keeps deduplicating replays and
		// the metrics endpoint can list recent activity.
		asynq.Retention(24 * time.Hour),
	}
	if opts.Delay > 0 {
		taskOpts = append(taskOpts, asynq.ProcessIn(opts.Delay))
	}

	task := asynq.NewTask(TypeEnrollmentProcess, data)
	info, err := m.client.EnqueueContext(ctx, task, taskOpts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return queue.ErrDuplicateJob
		}
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	logger.InfoCtx(ctx, "job enqueued, job_id: %s, queue: %s", jobID, info.Queue)
	return nil
}

// GetJob looks up a job across all priority queues. Returns nil if unknown.
func (m *Manager) GetJob(ctx context.Context, jobID string) (*queue.JobInfo, error) {
	for _, q := range allQueues {
		info, err := m.inspector.GetTaskInfo(q, jobID)
		if err != nil {
			continue
		}
		return convertTaskInfo(info), nil
	}
	return nil, nil
}

// Stats aggregates live counters across the priority queues.
func (m *Manager) Stats(ctx context.Context) (*queue.Stats, error) {
	stats := &queue.Stats{}
	for _, q := range allQueues {
		info, err := m.inspector.GetQueueInfo(q)
		if err != nil {
			// Queue not created yet (no job has touched it)
			continue
		}
		stats.Waiting += info.Pending
		stats.Active += info.Active
		stats.Delayed += info.Scheduled
		stats.Retry += info.Retry
		stats.Completed += info.Completed
		stats.Failed += info.Archived
	}
	stats.Total = stats.Waiting + stats.Active + stats.Delayed + stats.Retry + stats.Completed + stats.Failed
	return stats, nil
}

// RecentFailed lists the most recent dead-lettered jobs across queues,
// bounded by the configured failed-job retention count.
func (m *Manager) RecentFailed(ctx context.Context, n int) ([]*queue.JobSummary, error) {
	return m.listRecent(capLimit(n, m.cfg.Queue.FailedRetention), m.listArchived)
}

// RecentCompleted lists the most recent completed jobs across queues,
// bounded by the configured completed-job retention count.
func (m *Manager) RecentCompleted(ctx context.Context, n int) ([]*queue.JobSummary, error) {
	return m.listRecent(capLimit(n, m.cfg.Queue.CompletedRetention), m.listCompleted)
}

// capLimit clamps a listing request to the retained count.
func capLimit(n, retained int) int {
	if retained > 0 && n > retained {
		return retained
	}
	return n
}

func (m *Manager) listRecent(n int, list func(q string, n int) ([]*asynq.TaskInfo, error)) ([]*queue.JobSummary, error) {
	summaries := make([]*queue.JobSummary, 0, n)
	for _, q := range allQueues {
		if len(summaries) >= n {
			break
		}
		infos, err := list(q, n-len(summaries))
		if err != nil {
			continue
		}
		for _, info := range infos {
			summaries = append(summaries, convertSummary(info))
		}
	}
	return summaries, nil
}

func (m *Manager) listArchived(q string, n int) ([]*asynq.TaskInfo, error) {
	return m.inspector.ListArchivedTasks(q, asynq.PageSize(n))
}

func (m *Manager) listCompleted(q string, n int) ([]*asynq.TaskInfo, error) {
	return m.inspector.ListCompletedTasks(q, asynq.PageSize(n))
}

// RegisterHandler registers the task handler for a task type.
func (m *Manager) RegisterHandler(pattern string, handler asynq.Handler) {
	m.mux.Handle(pattern, handler)
}

// Start starts the worker pool.
func (m *Manager) Start() error {
	logger.InfoCtx(context.Background(), "starting queue server, concurrency: %d", m.cfg.Queue.Concurrency)
	return m.server.Start(m.mux)
}

// Stop stops the worker pool, waiting for in-flight jobs.
func (m *Manager) Stop() {
	logger.InfoCtx(context.Background(), "stopping queue server")
	m.server.Stop()
	m.server.Shutdown()
}

// Close closes the queue connections.
func (m *Manager) Close() error {
	if err := m.client.Close(); err != nil {
		return err
	}
	return m.inspector.Close()
}

func convertTaskInfo(info *asynq.TaskInfo) *queue.JobInfo {
	ji := &queue.JobInfo{
		ID:       info.ID,
		Queue:    info.Queue,
		State:    convertState(info.State),
		MaxRetry: info.MaxRetry,
		Retried:  info.Retried,
		LastErr:  info.LastErr,
	}
	if !info.CompletedAt.IsZero() {
		t := info.CompletedAt
		ji.CompletedAt = &t
	}
	return ji
}

func convertSummary(info *asynq.TaskInfo) *queue.JobSummary {
	s := &queue.JobSummary{
		ID:      info.ID,
		Queue:   info.Queue,
		Retried: info.Retried,
		LastErr: info.LastErr,
		Result:  string(info.Result),
	}
	if !info.LastFailedAt.IsZero() {
		t := info.LastFailedAt
		s.LastFailed = &t
	}
	if !info.CompletedAt.IsZero() {
		t := info.CompletedAt
		s.CompletedAt = &t
	}
	return s
}

func convertState(s asynq.TaskState) queue.JobState {
	switch s {
	case asynq.TaskStateActive:
		return queue.JobStateActive
	case asynq.TaskStatePending:
		return queue.JobStatePending
	case asynq.TaskStateScheduled:
		return queue.JobStateScheduled
	case asynq.TaskStateRetry:
		return queue.JobStateRetry
	case asynq.TaskStateArchived:
		return queue.JobStateFailed
	case asynq.TaskStateCompleted:
		return queue.JobStateCompleted
	default:
		return queue.JobStatePending
	}
}
