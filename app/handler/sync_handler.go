package handler

import (
	"net/http"

	"enrollsync/internal/service"
	"enrollsync/pkg/logger"
	"enrollsync/pkg/queue"

	"github.com/gin-gonic/gin"
)

// SyncHandler exposes the periodic reconciliation sweep over HTTP
type SyncHandler struct {
	syncService *service.SyncService
	cursors     service.CursorStore
	queue       queue.Queue
}

// NewSyncHandler creates sync handler
func NewSyncHandler(syncService *service.SyncService, cursors service.CursorStore, q queue.Queue) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		cursors:     cursors,
		queue:       q,
	}
}

// Trigger runs one reconciliation sweep
// @Summary Trigger enrollment sync
// @Description Page recently updated enrollments from the LMS and enqueue them
// @Tags sync
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/sync [post]
func (h *SyncHandler) Trigger(c *gin.Context) {
	summary, err := h.syncService.Run(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "sync run failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   err.Error(),
			"partial": summary,
		})
		return
	}

	stats, statsErr := h.queue.Stats(c.Request.Context())
	resp := gin.H{
		"message":   "sync completed",
		"runId":     summary.RunID,
		"processed": summary.Processed,
		"queued":    summary.Queued,
		"skipped":   summary.Skipped,
		"cursor":    summary.Cursor,
	}
	if statsErr == nil {
		resp["queueStatus"] = gin.H{"waiting": stats.Waiting, "failed": stats.Failed}
	}
	c.JSON(http.StatusOK, resp)
}

// Status reports the current sync cursor
// @Summary Get sync status
// @Description Return the persisted sync cursor
// @Tags sync
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/sync/status [get]
func (h *SyncHandler) Status(c *gin.Context) {
	cursor, err := h.cursors.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sync cursor"})
		return
	}

	resp := gin.H{"cursor": cursor}
	if stats, err := h.queue.Stats(c.Request.Context()); err == nil {
		resp["queueStatus"] = gin.H{"waiting": stats.Waiting, "failed": stats.Failed}
	}
	c.JSON(http.StatusOK, resp)
}
