package handlers

import (
	"fmt"
	"net/http"

	"github.com/ctmsgb/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TicketHandler serves passenger tickets
type TicketHandler struct {
	queries *services.BookingQueryService
	sync    *services.StatusSyncService
	pdf     *services.TicketPDFService
	logger  *logrus.Logger
}

// NewTicketHandler creates a new TicketHandler
func NewTicketHandler(queries *services.BookingQueryService, sync *services.StatusSyncService, pdf *services.TicketPDFService, logger *logrus.Logger) *TicketHandler {
	return &TicketHandler{
		queries: queries,
		sync:    sync,
		pdf:     pdf,
		logger:  logger,
	}
}

// ListMyTickets returns the caller's tickets
// @Summary My tickets
// @Tags Tickets
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /api/v1/tickets/my [get]
func (h *TicketHandler) ListMyTickets(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	tickets, err := h.queries.ListTickets(c.Request.Context(), actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tickets": tickets,
		"count":   len(tickets),
	})
}

// GetTicket returns one ticket
// @Summary Get ticket
// @Tags Tickets
// @Produce json
// @Param id path int true "Ticket ID"
// @Success 200 {object} models.Ticket
// @Failure 403 {object} map[string]interface{} "Not your ticket"
// @Failure 404 {object} map[string]interface{} "Ticket not found"
// @Security BearerAuth
// @Router /api/v1/tickets/{id} [get]
func (h *TicketHandler) GetTicket(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	ticketID, ok := int64Param(c, "id")
	if !ok {
		return
	}

	ticket, err := h.queries.GetTicket(c.Request.Context(), actor, ticketID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, ticket)
}

// DownloadTicketPDF renders the e-ticket
// @Summary Download e-ticket
// @Tags Tickets
// @Produce application/pdf
// @Param id path int true "Ticket ID"
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /api/v1/tickets/{id}/pdf [get]
func (h *TicketHandler) DownloadTicketPDF(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	ticketID, ok := int64Param(c, "id")
	if !ok {
		return
	}

	ticket, err := h.queries.GetTicket(c.Request.Context(), actor, ticketID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	pdf, filename, err := h.pdf.Render(ticket)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// CancelTicket cancels an unpaid booking on behalf of its passenger
// @Summary Cancel ticket
// @Tags Tickets
// @Produce json
// @Param id path int true "Ticket ID"
// @Success 200 {object} models.BookingDetail
// @Failure 400 {object} map[string]interface{} "Paid or already closed"
// @Security BearerAuth
// @Router /api/v1/tickets/{id}/cancel [post]
func (h *TicketHandler) CancelTicket(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	ticketID, ok := int64Param(c, "id")
	if !ok {
		return
	}

	detail, err := h.sync.CancelTicket(c.Request.Context(), ticketID, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}
