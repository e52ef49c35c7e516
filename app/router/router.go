package router

import (
	"net/http"

	"enrollsync/app/handler"
	"enrollsync/app/middleware"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	webhookHandler    *handler.WebhookHandler
	syncHandler       *handler.SyncHandler
	metricsHandler    *handler.MetricsHandler
	enrollmentHandler *handler.EnrollmentHandler
}

// NewRouter creates a new Router
func NewRouter(webhookHandler *handler.WebhookHandler, syncHandler *handler.SyncHandler, metricsHandler *handler.MetricsHandler, enrollmentHandler *handler.EnrollmentHandler) *Router {
	return &Router{
		webhookHandler:    webhookHandler,
		syncHandler:       syncHandler,
		metricsHandler:    metricsHandler,
		enrollmentHandler: enrollmentHandler,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Webhook ingestion - authenticated by HMAC signature, not API key
	engine.POST("/webhooks/enrollment", r.webhookHandler.Receive)

	v1 := engine.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware())
	{
		v1.POST("/sync", r.syncHandler.Trigger)
		v1.GET("/sync/status", r.syncHandler.Status)

		v1.GET("/metrics", r.metricsHandler.Get)
		v1.POST("/metrics/reset", r.metricsHandler.Reset)

		v1.POST("/enrollments", r.enrollmentHandler.Create)
		v1.GET("/enrollments/:external_id/:course_id", r.enrollmentHandler.Get)

		v1.GET("/lms/health", r.enrollmentHandler.LMSHealth)
	}
}
