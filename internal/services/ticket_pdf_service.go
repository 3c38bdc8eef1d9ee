package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/phpdave11/gofpdf"
)

// TicketPDFService renders e-tickets
type TicketPDFService struct{}

// NewTicketPDFService creates a new TicketPDFService
func NewTicketPDFService() *TicketPDFService {
	return &TicketPDFService{}
}

// Render returns the PDF bytes and a download filename for the ticket
func (s *TicketPDFService) Render(ticket *models.Ticket) ([]byte, string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("E-Ticket", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "E-TICKET")
	pdf.Ln(12)

	seats := "Full vehicle"
	if ticket.TicketType == models.TicketTypeSeatBooking {
		seats = joinSeats(ticket.Seats)
	}

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Ticket No      : %d", ticket.ID),
		fmt.Sprintf("Passenger      : %s", orDash(ticket.PassengerName)),
		fmt.Sprintf("Contact        : %s", orDash(ticket.PassengerContact)),
		fmt.Sprintf("Company        : %s", orDash(ticket.TransportCompany)),
		fmt.Sprintf("Vehicle        : %s", orDash(ticket.VehicleNumber)),
		fmt.Sprintf("Driver         : %s", orDash(deref(ticket.DriverName))),
		fmt.Sprintf("Route          : %s -> %s", orDash(deref(ticket.RouteFrom)), orDash(deref(ticket.RouteTo))),
		fmt.Sprintf("Date / Time    : %s %s", ticket.ArrivalDate, ticket.ArrivalTime),
		fmt.Sprintf("Seats          : %s", seats),
		fmt.Sprintf("Price          : %.2f", ticket.PricePerSeat),
		fmt.Sprintf("Payment        : %s (%s)", ticket.PaymentType, ticket.PaymentStatus),
		fmt.Sprintf("Status         : %s", ticket.Status),
	}
	for _, line := range lines {
		pdf.Cell(0, 7, line)
		pdf.Ln(7)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	note := "Please show this ticket at departure."
	if ticket.Status != models.TicketStatusBooked {
		note = "This ticket is not confirmed. Complete payment before departure."
	}
	pdf.MultiCell(0, 6, note, "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", fmt.Errorf("failed to render ticket: %w", err)
	}

	return buf.Bytes(), fmt.Sprintf("ETICKET_%d.pdf", ticket.ID), nil
}

func joinSeats(seats []int64) string {
	if len(seats) == 0 {
		return "-"
	}
	parts := make([]string, len(seats))
	for i, seat := range seats {
		parts[i] = fmt.Sprintf("%d", seat)
	}
	return strings.Join(parts, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
