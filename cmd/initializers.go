package main

import (
	"fmt"
	"net/http"
	"time"

	"enrollsync/app/handler"
	"enrollsync/app/router"
	"enrollsync/internal/service"
	"enrollsync/pkg/config"
	"enrollsync/pkg/lms"
	"enrollsync/pkg/logger"
	"enrollsync/pkg/metrics"
	"enrollsync/pkg/notification"
	asynqqueue "enrollsync/pkg/queue/asynq"
	mysqlstore "enrollsync/pkg/store/mysql"
	redisstore "enrollsync/pkg/store/redis"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.Sync()
		logger.InfoCtx(app.ctx, "Logging system has been closed")
	})
	return nil
}

// initMySQL initializes MySQL and runs schema migrations
func (app *Application) initMySQL() error {
	ds, err := mysqlstore.NewDatastore(mysqlstore.DSN(&app.config.MySQL))
	if err != nil {
		return err
	}

	app.datastore = ds
	app.registerCleanup(func() {
		ds.Close()
		logger.InfoCtx(app.ctx, "MySQL connection has been closed")
	})

	app.enrollmentRepo = mysqlstore.NewEnrollmentRepository(ds)
	app.userCohortRepo = mysqlstore.NewUserCohortRepository(ds)

	if err := app.enrollmentRepo.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate enrollments: %w", err)
	}
	if err := app.userCohortRepo.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate user cohorts: %w", err)
	}

	return nil
}

// initRedis initializes Redis
func (app *Application) initRedis() error {
	client, err := redisstore.NewRedisClient(app.config)
	if err != nil {
		return err
	}

	app.redisClient = client
	app.registerCleanup(func() {
		client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})

	app.cursorRepo = redisstore.NewCursorRepository(
		client,
		time.Duration(app.config.Sync.CursorTTLh)*time.Hour,
		time.Duration(app.config.Sync.LookbackH)*time.Hour,
	)

	return nil
}

// initQueue initializes the asynq client, inspector and worker server
func (app *Application) initQueue() error {
	manager, err := asynqqueue.NewManager(app.config)
	if err != nil {
		return err
	}

	app.queueManager = manager
	app.registerCleanup(func() {
		manager.Close()
		logger.InfoCtx(app.ctx, "Queue connections have been closed")
	})

	return nil
}

// initLMSClient initializes the rate-limited LMS API client
func (app *Application) initLMSClient() error {
	app.lmsClient = lms.NewClient(&app.config.LMS)
	return nil
}

// initServices initializes service layer
func (app *Application) initServices() error {
	app.aggregator = metrics.NewAggregator(app.queueManager)

	// Worker-side processor, registered on the queue's mux
	app.processor = service.NewProcessor(app.enrollmentRepo, app.userCohortRepo, app.aggregator)
	app.processor.SetNotifier(notification.NewFeishuNotifier())
	app.queueManager.RegisterHandler(asynqqueue.TypeEnrollmentProcess, asynq.HandlerFunc(app.processor.ProcessTask))

	app.webhookService = service.NewWebhookService(app.queueManager, app.config.Server.WebhookSecret)
	app.syncService = service.NewSyncService(app.lmsClient, app.cursorRepo, app.queueManager, app.config.Sync.PageSize)
	app.enrollmentService = service.NewEnrollmentService(app.lmsClient, app.enrollmentRepo, app.queueManager)

	return nil
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	app.webhookHandler = handler.NewWebhookHandler(app.webhookService, app.queueManager)
	app.syncHandler = handler.NewSyncHandler(app.syncService, app.cursorRepo, app.queueManager)
	app.metricsHandler = handler.NewMetricsHandler(app.aggregator, app.queueManager, app.redisClient)
	app.enrollmentHandler = handler.NewEnrollmentHandler(app.enrollmentService)
	return nil
}

// initHTTPServer initializes the gin engine and HTTP server
func (app *Application) initHTTPServer() error {
	gin.SetMode(app.config.Server.Mode)
	app.ginEngine = gin.New()

	r := router.NewRouter(app.webhookHandler, app.syncHandler, app.metricsHandler, app.enrollmentHandler)
	r.Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.ginEngine,
	}

	return nil
}
