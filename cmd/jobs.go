package main

import (
	"time"

	"enrollsync/internal/jobs"
	"enrollsync/pkg/logger"
)

// initJobs initializes background jobs
func (app *Application) initJobs() error {
	app.jobsManager = jobs.NewManager(app.ctx)

	if app.config.Sync.Enabled {
		interval := time.Duration(app.config.Sync.IntervalSec) * time.Second
		app.jobsManager.Register(jobs.NewReconcileJob(app.syncService, interval))
		logger.InfoCtx(app.ctx, "Registered enrollment reconcile job (interval: %v)", interval)
	} else {
		logger.InfoCtx(app.ctx, "Periodic reconciliation disabled by configuration")
	}

	return nil
}
