package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"enrollsync/internal/model"
	"enrollsync/internal/service"
	"enrollsync/pkg/logger"
	"enrollsync/pkg/queue"

	"github.com/gin-gonic/gin"
)

const signatureHeader = "X-Webhook-Hmac-Sha256"

// WebhookHandler receives enrollment event deliveries from the LMS
type WebhookHandler struct {
	webhookService *service.WebhookService
	queue          queue.Queue
}

// NewWebhookHandler creates webhook handler
func NewWebhookHandler(webhookService *service.WebhookService, q queue.Queue) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
		queue:          q,
	}
}

// Receive ingests one webhook delivery
// @Summary Receive enrollment webhook
// @Description Verify and enqueue an LMS enrollment event
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /webhooks/enrollment [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if !h.webhookService.VerifySignature(rawBody, c.GetHeader(signatureHeader)) {
		logger.WarnCtx(c.Request.Context(), "webhook delivery with invalid signature rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
		return
	}

	var event model.WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook event structure"})
		return
	}

	result, err := h.webhookService.Admit(c.Request.Context(), &event)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedEventType) {
			// Acknowledge so the LMS does not redeliver event types we ignore
			c.JSON(http.StatusOK, gin.H{"message": "event type not supported, webhook received"})
			return
		}
		logger.ErrorCtx(c.Request.Context(), "failed to admit webhook event %s: %v", event.ID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if result.Duplicate {
		resp := gin.H{
			"message": "event already processed",
			"eventId": result.EventID,
		}
		// Report where the original delivery's job currently stands
		if job, err := h.queue.GetJob(c.Request.Context(), result.EventID); err == nil && job != nil {
			resp["jobState"] = job.State
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "webhook processed successfully",
		"eventId":     result.EventID,
		"eventType":   event.Type,
		"jobId":       result.JobID,
		"queueStatus": h.queueStatus(c),
	})
}

func (h *WebhookHandler) queueStatus(c *gin.Context) gin.H {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		return gin.H{}
	}
	return gin.H{"waiting": stats.Waiting, "failed": stats.Failed}
}
