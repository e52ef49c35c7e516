package handler

import (
	"net/http"
	"time"

	"enrollsync/internal/service"
	"enrollsync/pkg/logger"

	"github.com/gin-gonic/gin"
)

// EnrollmentHandler serves outbound enrollment creation and record lookup
type EnrollmentHandler struct {
	enrollmentService *service.EnrollmentService
}

// NewEnrollmentHandler creates enrollment handler
func NewEnrollmentHandler(enrollmentService *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollmentService: enrollmentService}
}

type createEnrollmentRequest struct {
	CourseID    string     `json:"courseId" binding:"required"`
	UserID      string     `json:"userId" binding:"required"`
	ActivatedAt *time.Time `json:"activatedAt"`
}

// Create creates an enrollment on the LMS
// @Summary Create enrollment
// @Description Create an enrollment on the LMS and queue the local record update
// @Tags enrollments
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req createEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := h.enrollmentService.Create(c.Request.Context(), req.CourseID, req.UserID, req.ActivatedAt)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to create enrollment for user %s course %s: %v", req.UserID, req.CourseID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "enrollment created",
		"enrollment": data,
	})
}

// Get returns the local enrollment record
// @Summary Get enrollment record
// @Tags enrollments
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/enrollments/{external_id}/{course_id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	externalID := c.Param("external_id")
	courseID := c.Param("course_id")

	record, err := h.enrollmentService.GetRecord(c.Request.Context(), externalID, courseID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up enrollment"})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "enrollment not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"enrollment": record})
}

// LMSHealth reports LMS reachability
// @Summary LMS health check
// @Tags enrollments
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/lms/health [get]
func (h *EnrollmentHandler) LMSHealth(c *gin.Context) {
	healthy := h.enrollmentService.LMSHealthy(c.Request.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"healthy": healthy})
}
