package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"enrollsync/internal/model"
	"enrollsync/pkg/lms"
	"enrollsync/pkg/logger"
	"enrollsync/pkg/queue"

	"github.com/google/uuid"
)

// EnrollmentLister pulls enrollment pages from the LMS.
type EnrollmentLister interface {
	ListEnrollmentsSince(ctx context.Context, cursor model.SyncCursor, page, limit int) (*lms.ListResponse, error)
}

// CursorStore persists the reconciliation watermark.
type CursorStore interface {
	Load(ctx context.Context) (model.SyncCursor, error)
	Save(ctx context.Context, cursor model.SyncCursor) error
}

// SyncSummary reports one reconciliation run.
type SyncSummary struct {
	RunID     string           `json:"runId"`
	Processed int              `json:"processed"`
	Queued    int              `json:"queued"`
	Skipped   int              `json:"skipped"`
	Cursor    model.SyncCursor `json:"cursor"`
}

// SyncService reconciles enrollment state the webhook channel may have
// missed: it pages through LMS enrollments updated since the cursor,
// deduplicates against already-queued work, and enqueues processing jobs at
// lower priority than live webhook events.
type SyncService struct {
	lister   EnrollmentLister
	cursors  CursorStore
	queue    queue.Queue
	pageSize int
}

// NewSyncService creates the reconciliation sync service.
func NewSyncService(lister EnrollmentLister, cursors CursorStore, q queue.Queue, pageSize int) *SyncService {
	return &SyncService{
		lister:   lister,
		cursors:  cursors,
		queue:    q,
		pageSize: pageSize,
	}
}

// Run executes one reconciliation pass. A mid-batch failure saves the
// cursor up to the last item whose job is safely queued, then returns the
// partial summary alongside the error: the run is re-runnable and dedup
// prevents double-queueing of what already made it in.
func (s *SyncService) Run(ctx context.Context) (*SyncSummary, error) {
	summary := &SyncSummary{RunID: uuid.NewString()}

	cursor, err := s.cursors.Load(ctx)
	if err != nil {
		return summary, err
	}
	logger.InfoCtx(ctx, "reconciliation run %s starting from cursor %s",
		summary.RunID, cursor.LastProcessedAt.Format(time.RFC3339))

	// The listing filter stays frozen for the whole run: the lister turns
	// the watermark into the updated_at_gte filter, so paging against a
	// cursor that advances mid-run shrinks the result set underneath the
	// pagination and skips a window of items.
	since := cursor
	page := 1
	for {
		resp, err := s.lister.ListEnrollmentsSince(ctx, since, page, s.pageSize)
		if err != nil {
			s.savePartial(ctx, summary, cursor)
			return summary, fmt.Errorf("reconciliation run %s: failed to list enrollments: %w", summary.RunID, err)
		}
		if len(resp.Items) == 0 {
			break
		}

		for i := range resp.Items {
			item := &resp.Items[i]
			summary.Processed++

			if err := s.enqueueItem(ctx, item); err != nil {
				if errors.Is(err, queue.ErrDuplicateJob) {
					// Equivalent job already queued or in flight; the event
					// cannot be lost, so the watermark may advance past it
					summary.Skipped++
					advanceCursor(&cursor, item)
					continue
				}
				s.savePartial(ctx, summary, cursor)
				return summary, fmt.Errorf("reconciliation run %s: failed to enqueue enrollment %s: %w",
					summary.RunID, item.ID, err)
			}

			summary.Queued++
			advanceCursor(&cursor, item)
		}

		if page >= resp.Meta.Pagination.TotalPages {
			break
		}
		page++
	}

	cursor.TotalProcessed += int64(summary.Processed)
	if err := s.cursors.Save(ctx, cursor); err != nil {
		return summary, err
	}
	summary.Cursor = cursor

	logger.InfoCtx(ctx, "reconciliation run %s completed: processed=%d queued=%d skipped=%d",
		summary.RunID, summary.Processed, summary.Queued, summary.Skipped)
	return summary, nil
}

func (s *SyncService) enqueueItem(ctx context.Context, item *model.EnrollmentData) error {
	jobID := model.SyncJobID(item.ID)
	payload := &model.JobPayload{
		EventID:     jobID,
		EventType:   model.EventEnrollmentProgress,
		Enrollment:  *item,
		ProcessedAt: time.Now(),
	}
	return s.queue.Enqueue(ctx, jobID, payload, queue.EnqueueOptions{
		Priority: model.PriorityLow,
	})
}

// savePartial persists the watermark covering only safely-queued items.
func (s *SyncService) savePartial(ctx context.Context, summary *SyncSummary, cursor model.SyncCursor) {
	cursor.TotalProcessed += int64(summary.Processed)
	if err := s.cursors.Save(ctx, cursor); err != nil {
		logger.ErrorCtx(ctx, "reconciliation run %s: failed to save partial cursor: %v", summary.RunID, err)
	}
	summary.Cursor = cursor
}

func advanceCursor(cursor *model.SyncCursor, item *model.EnrollmentData) {
	processedAt := cursor.LastProcessedAt
	if item.ActivatedAt != nil {
		processedAt = *item.ActivatedAt
	}
	cursor.Advance(processedAt, item.ID)
}
