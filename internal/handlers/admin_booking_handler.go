package handlers

import (
	"net/http"
	"strconv"

	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/ctmsgb/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminBookingHandler handles admin and company staff booking management
type AdminBookingHandler struct {
	sync    *services.StatusSyncService
	queries *services.BookingQueryService
	logger  *logrus.Logger
}

// NewAdminBookingHandler creates a new AdminBookingHandler
func NewAdminBookingHandler(sync *services.StatusSyncService, queries *services.BookingQueryService, logger *logrus.Logger) *AdminBookingHandler {
	return &AdminBookingHandler{
		sync:    sync,
		queries: queries,
		logger:  logger,
	}
}

// ListBookings lists bookings visible to the caller
// @Summary List bookings
// @Description Company staff see their company's bookings, admins see all and may filter by company_id
// @Tags Admin Bookings
// @Produce json
// @Param company_id query int false "Company filter (admin only)"
// @Param status query string false "Booking status"
// @Param limit query int false "Page size (default 50)"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{} "Not staff"
// @Security BearerAuth
// @Router /api/v1/admin/bookings [get]
func (h *AdminBookingHandler) ListBookings(c *gin.Context) {
	h.list(c, nil)
}

// ListManualBookings lists bookings paid by manual transfer
// @Summary List manual payment bookings
// @Tags Admin Bookings
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /api/v1/admin/manual-bookings [get]
func (h *AdminBookingHandler) ListManualBookings(c *gin.Context) {
	method := models.PaymentMethodManual
	h.list(c, &method)
}

func (h *AdminBookingHandler) list(c *gin.Context, method *models.PaymentMethod) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	filter, ok := listFilter(c)
	if !ok {
		return
	}
	filter.Method = method

	if raw := c.Query("company_id"); raw != "" {
		companyID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid company_id."})
			return
		}
		filter.CompanyID = &companyID
	}

	bookings, err := h.queries.ListForStaff(c.Request.Context(), actor, filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// UpdateStatus moves a booking and its payment to new statuses
// @Summary Update booking and payment status
// @Description Reconciles booking, payment, ledger, ticket and seat hold in one transaction
// @Tags Admin Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body models.StatusUpdateRequest true "New statuses"
// @Success 200 {object} models.BookingDetail
// @Failure 400 {object} map[string]interface{} "Invalid status"
// @Failure 401 {object} map[string]interface{} "Unauthorized"
// @Failure 403 {object} map[string]interface{} "Wrong company"
// @Failure 404 {object} map[string]interface{} "Booking not found"
// @Failure 409 {object} map[string]interface{} "Seats taken"
// @Security BearerAuth
// @Router /api/v1/admin/bookings/{id}/status [patch]
func (h *AdminBookingHandler) UpdateStatus(c *gin.Context) {
	h.updateStatus(c, services.ScopeAll)
}

// UpdateManualStatus is UpdateStatus restricted to MANUAL payments
// @Summary Update manual payment booking status
// @Tags Admin Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body models.StatusUpdateRequest true "New statuses"
// @Success 200 {object} models.BookingDetail
// @Security BearerAuth
// @Router /api/v1/admin/manual-bookings/{id}/status [patch]
func (h *AdminBookingHandler) UpdateManualStatus(c *gin.Context) {
	h.updateStatus(c, services.ScopeManual)
}

func (h *AdminBookingHandler) updateStatus(c *gin.Context, scope services.SyncScope) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	bookingID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req models.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	detail, err := h.sync.SyncStatus(c.Request.Context(), services.SyncRequest{
		BookingID:     bookingID,
		BookingStatus: req.BookingStatus,
		PaymentStatus: req.NewPaymentStatus,
		Actor:         actor,
		Scope:         scope,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// ConfirmPayment records cash or manual money collected by staff
// @Summary Confirm payment
// @Tags Admin Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} models.BookingDetail
// @Security BearerAuth
// @Router /api/v1/admin/bookings/{id}/confirm-payment [post]
func (h *AdminBookingHandler) ConfirmPayment(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	bookingID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	detail, err := h.sync.ConfirmPayment(c.Request.Context(), bookingID, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// ListTransactions returns the ledger of a booking, oldest first
// @Summary Booking transactions
// @Tags Admin Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /api/v1/admin/bookings/{id}/transactions [get]
func (h *AdminBookingHandler) ListTransactions(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	bookingID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	txns, err := h.queries.ListTransactions(c.Request.Context(), actor, bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"booking_id":   bookingID,
		"transactions": txns,
	})
}
