package handler

import (
	"net/http"

	"enrollsync/pkg/metrics"
	"enrollsync/pkg/queue"
	"enrollsync/pkg/store/redis"

	"github.com/gin-gonic/gin"
)

const recentActivityLimit = 10

// MetricsHandler exposes processing metrics and queue introspection
type MetricsHandler struct {
	aggregator *metrics.Aggregator
	queue      queue.Queue
	redis      *redis.RedisClient
}

// NewMetricsHandler creates metrics handler
func NewMetricsHandler(aggregator *metrics.Aggregator, q queue.Queue, rc *redis.RedisClient) *MetricsHandler {
	return &MetricsHandler{
		aggregator: aggregator,
		queue:      q,
		redis:      rc,
	}
}

// Get returns the current metrics snapshot
// @Summary Get pipeline metrics
// @Description Processing counters, queue depths and recent activity
// @Tags metrics
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/metrics [get]
func (h *MetricsHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	snapshot, err := h.aggregator.Snapshot(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to collect metrics"})
		return
	}

	resp := gin.H{"metrics": snapshot}

	if stats, err := h.queue.Stats(ctx); err == nil {
		resp["queueMetrics"] = gin.H{
			"waiting":   stats.Waiting,
			"active":    stats.Active,
			"delayed":   stats.Delayed,
			"retry":     stats.Retry,
			"completed": stats.Completed,
			"failed":    stats.Failed,
			"total":     stats.Total,
		}
	}

	var successRate, failureRate float64
	if snapshot.TotalProcessed > 0 {
		successRate = float64(snapshot.Successful) / float64(snapshot.TotalProcessed)
		failureRate = float64(snapshot.Failed) / float64(snapshot.TotalProcessed)
	}
	resp["systemMetrics"] = gin.H{
		"successRate":      successRate,
		"failureRate":      failureRate,
		"redisMemoryUsage": h.redis.MemoryUsage(ctx),
	}

	activity := gin.H{}
	if failed, err := h.queue.RecentFailed(ctx, recentActivityLimit); err == nil {
		activity["failed"] = failed
	}
	if completed, err := h.queue.RecentCompleted(ctx, recentActivityLimit); err == nil {
		activity["completed"] = completed
	}
	resp["recentActivity"] = activity

	c.JSON(http.StatusOK, resp)
}

// Reset clears the aggregated counters
// @Summary Reset pipeline metrics
// @Tags metrics
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/metrics/reset [post]
func (h *MetricsHandler) Reset(c *gin.Context) {
	h.aggregator.Reset()
	c.JSON(http.StatusOK, gin.H{"message": "metrics reset"})
}
