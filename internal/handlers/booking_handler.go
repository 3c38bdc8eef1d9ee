package handlers

import (
	"net/http"
	"strconv"

	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/ctmsgb/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// BookingHandler handles passenger booking endpoints
type BookingHandler struct {
	reservations *services.ReservationService
	availability *services.AvailabilityService
	queries      *services.BookingQueryService
	checkout     *services.CheckoutService
	logger       *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(
	reservations *services.ReservationService,
	availability *services.AvailabilityService,
	queries *services.BookingQueryService,
	checkout *services.CheckoutService,
	logger *logrus.Logger,
) *BookingHandler {
	return &BookingHandler{
		reservations: reservations,
		availability: availability,
		queries:      queries,
		checkout:     checkout,
		logger:       logger,
	}
}

// CreateSeatBooking reserves seats on a departure
// @Summary Reserve seats
// @Description Holds the requested seats for 15 minutes and issues a Reserved ticket
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body models.CreateSeatBookingRequest true "Seat booking"
// @Success 201 {object} models.SeatBookingResponse
// @Failure 400 {object} map[string]interface{} "Validation error"
// @Failure 409 {object} map[string]interface{} "Seats already booked"
// @Security BearerAuth
// @Router /api/v1/bookings [post]
func (h *BookingHandler) CreateSeatBooking(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req models.CreateSeatBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.reservations.CreateSeatBooking(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// CreateFullVehicleBooking books a whole vehicle
// @Summary Book a full vehicle
// @Description Reserves the vehicle until the end of the requested duration. Ticket or proof failures are reported, never fatal.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body models.CreateFullVehicleBookingRequest true "Full vehicle booking"
// @Success 201 {object} models.FullVehicleBookingResponse
// @Failure 400 {object} map[string]interface{} "Validation error"
// @Security BearerAuth
// @Router /api/v1/bookings/full-vehicle [post]
func (h *BookingHandler) CreateFullVehicleBooking(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req models.CreateFullVehicleBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	resp, err := h.reservations.CreateFullVehicleBooking(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetOccupiedSeats returns the seat map of a departure as a bare array
// @Summary Occupied seats
// @Tags Bookings
// @Produce json
// @Param vehicle_id query int true "Vehicle ID"
// @Param arrival_date query string true "YYYY-MM-DD"
// @Param arrival_time query string true "HH:MM"
// @Success 200 {array} int
// @Router /api/v1/bookings/occupied-seats [get]
func (h *BookingHandler) GetOccupiedSeats(c *gin.Context) {
	slot := models.Slot{
		ArrivalDate: c.Query("arrival_date"),
		ArrivalTime: c.Query("arrival_time"),
	}
	if raw := c.Query("vehicle_id"); raw != "" {
		vehicleID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid vehicle_id."})
			return
		}
		slot.VehicleID = vehicleID
	}

	seats, err := h.availability.GetOccupiedSeats(c.Request.Context(), slot)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, seats)
}

// ListMyBookings returns the caller's bookings
// @Summary My bookings
// @Tags Bookings
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /api/v1/bookings/my [get]
func (h *BookingHandler) ListMyBookings(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	filter, ok := listFilter(c)
	if !ok {
		return
	}

	bookings, err := h.queries.ListForUser(c.Request.Context(), actor, filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// CreateCheckoutSession starts a card payment for a reserved booking
// @Summary Start card checkout
// @Tags Payments
// @Produce json
// @Param id path string true "Booking ID"
// @Success 201 {object} models.CheckoutSessionResponse
// @Failure 400 {object} map[string]interface{} "Hold expired or card payments disabled"
// @Failure 403 {object} map[string]interface{} "Not your booking"
// @Security BearerAuth
// @Router /api/v1/bookings/{id}/checkout-session [post]
func (h *BookingHandler) CreateCheckoutSession(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	bookingID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	resp, err := h.checkout.StartCheckout(c.Request.Context(), bookingID, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}
