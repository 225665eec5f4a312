package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/ticket-bot/internal/middleware"
	"github.com/smarttransit/ticket-bot/internal/models"
)

// JobReporter exposes the scheduler state
type JobReporter interface {
	GetJobStatus() map[string]interface{}
}

// AdminHandler serves the admin REST API
type AdminHandler struct {
	admin  BookingAdmin
	jobs   JobReporter
	logger *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(admin BookingAdmin, jobs JobReporter, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		jobs:   jobs,
		logger: logger,
	}
}

// SetStatusRequest is the body of PATCH /api/v1/admin/bookings/:id/status
type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// RegisterRoutes mounts the admin endpoints on an authenticated group
func (h *AdminHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/bookings", h.ListBookings)
	group.GET("/bookings/export", h.ExportBookings)
	group.GET("/bookings/:id", h.GetBooking)
	group.POST("/bookings/:id/mark-paid", h.MarkPaid)
	group.POST("/bookings/:id/cancel", h.CancelBooking)
	group.PATCH("/bookings/:id/status", h.SetStatus)
	group.DELETE("/bookings/:id", h.DeleteBooking)

	group.GET("/routes", h.ListRoutes)
	group.POST("/routes", h.UpsertRoute)
	group.DELETE("/routes/:id", h.DeleteRoute)

	group.GET("/jobs", h.JobStatus)
}

// ListBookings handles GET /api/v1/admin/bookings
// Supports optional ?status= filter
func (h *AdminHandler) ListBookings(c *gin.Context) {
	var filter *models.BookingStatus
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseBookingStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
			return
		}
		filter = &status
	}

	bookings, err := h.admin.ListBookings(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// ExportBookings handles GET /api/v1/admin/bookings/export
func (h *AdminHandler) ExportBookings(c *gin.Context) {
	filename := fmt.Sprintf("bookings-%s.csv", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)

	if err := h.admin.ExportCSV(c.Request.Context(), c.Writer); err != nil {
		if c.Writer.Written() {
			h.logger.WithError(err).Error("Export aborted mid-stream")
			return
		}
		c.Header("Content-Type", "")
		c.Header("Content-Disposition", "")
		respondError(c, h.logger, err)
	}
}

// GetBooking handles GET /api/v1/admin/bookings/:id
func (h *AdminHandler) GetBooking(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	booking, err := h.admin.GetBooking(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// MarkPaid handles POST /api/v1/admin/bookings/:id/mark-paid
func (h *AdminHandler) MarkPaid(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	booking, changed, err := h.admin.MarkPaid(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logAction(c, "mark_paid", id, changed)
	c.JSON(http.StatusOK, gin.H{"booking": booking, "changed": changed})
}

// CancelBooking handles POST /api/v1/admin/bookings/:id/cancel
func (h *AdminHandler) CancelBooking(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	booking, changed, err := h.admin.Cancel(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logAction(c, "cancel", id, changed)
	c.JSON(http.StatusOK, gin.H{"booking": booking, "changed": changed})
}

// SetStatus handles PATCH /api/v1/admin/bookings/:id/status
func (h *AdminHandler) SetStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	booking, err := h.admin.SetStatus(c.Request.Context(), id, models.BookingStatus(req.Status))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logAction(c, "set_status:"+req.Status, id, true)
	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// DeleteBooking handles DELETE /api/v1/admin/bookings/:id
func (h *AdminHandler) DeleteBooking(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.admin.DeleteBooking(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logAction(c, "delete", id, true)
	c.Status(http.StatusNoContent)
}

// ListRoutes handles GET /api/v1/admin/routes
func (h *AdminHandler) ListRoutes(c *gin.Context) {
	routes, err := h.admin.ListRoutes(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if routes == nil {
		routes = []models.Route{}
	}
	c.JSON(http.StatusOK, gin.H{
		"routes": routes,
		"count":  len(routes),
	})
}

// UpsertRoute handles POST /api/v1/admin/routes
func (h *AdminHandler) UpsertRoute(c *gin.Context) {
	var req models.UpsertRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}
	route, err := h.admin.AddRoute(c.Request.Context(), req.Departure, req.Destination, req.Cost)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"route": route})
}

// DeleteRoute handles DELETE /api/v1/admin/routes/:id
func (h *AdminHandler) DeleteRoute(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.admin.DeleteRoute(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// JobStatus handles GET /api/v1/admin/jobs
func (h *AdminHandler) JobStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobs.GetJobStatus())
}

func (h *AdminHandler) logAction(c *gin.Context, action string, bookingID int64, changed bool) {
	entry := h.logger.WithFields(logrus.Fields{
		"action":     action,
		"booking_id": bookingID,
		"changed":    changed,
	})
	if admin, ok := middleware.GetAdminContext(c); ok {
		entry = entry.WithField("admin_id", admin.AdminID)
	}
	entry.Info("Admin action via API")
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}
