package jobs

import (
	"context"
	"time"

	"enrollsync/internal/service"
)

// ReconcileJob runs the reconciliation sync on a timer, catching events the
// webhook channel may have missed. Runs are idempotent thanks to queue-level
// dedup, so overlap with the on-demand trigger is harmless.
type ReconcileJob struct {
	sync     *service.SyncService
	interval time.Duration
}

// NewReconcileJob creates the periodic reconciliation job.
func NewReconcileJob(sync *service.SyncService, interval time.Duration) *ReconcileJob {
	return &ReconcileJob{sync: sync, interval: interval}
}

func (j *ReconcileJob) Name() string {
	return "enrollment-reconcile"
}

func (j *ReconcileJob) Interval() time.Duration {
	return j.interval
}

func (j *ReconcileJob) Run(ctx context.Context) error {
	_, err := j.sync.Run(ctx)
	return err
}
