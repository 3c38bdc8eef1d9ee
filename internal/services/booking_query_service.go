package services

import (
	"context"

	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/google/uuid"
)

// BookingQueryService serves the read side: booking lists, tickets and the
// transaction log
type BookingQueryService struct {
	repos *Repositories
}

// NewBookingQueryService creates a new BookingQueryService
func NewBookingQueryService(repos *Repositories) *BookingQueryService {
	return &BookingQueryService{repos: repos}
}

// ListForStaff returns bookings visible to an admin (all) or company staff
// (own company). Passengers are refused.
func (s *BookingQueryService) ListForStaff(ctx context.Context, actor Actor, filter models.BookingListFilter) ([]models.BookingDetail, error) {
	if !actor.IsStaff() {
		return nil, models.NewForbidden("You do not have permission to view bookings.")
	}
	if !actor.IsAdmin {
		filter.CompanyID = actor.CompanyID
	}
	return s.list(ctx, filter)
}

// ListForUser returns the caller's own bookings
func (s *BookingQueryService) ListForUser(ctx context.Context, actor Actor, filter models.BookingListFilter) ([]models.BookingDetail, error) {
	userID := actor.UserID
	filter.UserID = &userID
	filter.CompanyID = nil
	return s.list(ctx, filter)
}

func (s *BookingQueryService) list(ctx context.Context, filter models.BookingListFilter) ([]models.BookingDetail, error) {
	bookings, err := s.repos.Bookings.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(bookings))
	for i := range bookings {
		ids[i] = bookings[i].ID
	}
	payments, err := s.repos.Payments.GetByBookingIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	tickets, err := s.repos.Tickets.GetByBookingIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	details := make([]models.BookingDetail, 0, len(bookings))
	for _, b := range bookings {
		details = append(details, models.BookingDetail{
			Booking: b,
			Payment: payments[b.ID],
			Ticket:  tickets[b.ID],
		})
	}
	return details, nil
}

// GetDetail returns one booking for its passenger, its company or an admin
func (s *BookingQueryService) GetDetail(ctx context.Context, actor Actor, bookingID uuid.UUID) (*models.BookingDetail, error) {
	detail, err := s.repos.loadDetail(ctx, s.repos.DB, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(&detail.Booking) && !actor.CanManage(&detail.Booking) {
		return nil, models.NewForbidden("You do not have permission to view this booking.")
	}
	return detail, nil
}

// ListTransactions returns the money movement log of a booking, oldest first
func (s *BookingQueryService) ListTransactions(ctx context.Context, actor Actor, bookingID uuid.UUID) ([]models.Transaction, error) {
	booking, err := s.repos.Bookings.GetByID(ctx, s.repos.DB, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.NewNotFound("Booking not found.")
	}
	if !actor.CanManage(booking) {
		return nil, models.NewForbidden("You do not have permission to view this booking.")
	}
	return s.repos.Transactions.ListByBooking(ctx, bookingID)
}

// ListTickets returns the caller's tickets, newest first
func (s *BookingQueryService) ListTickets(ctx context.Context, actor Actor) ([]models.Ticket, error) {
	return s.repos.Tickets.ListByUser(ctx, actor.UserID)
}

// GetTicket returns a ticket for its passenger, its company or an admin
func (s *BookingQueryService) GetTicket(ctx context.Context, actor Actor, ticketID int64) (*models.Ticket, error) {
	ticket, err := s.repos.Tickets.GetByID(ctx, s.repos.DB, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, models.NewNotFound("Ticket not found.")
	}

	owner := actor.UserID != uuid.Nil && actor.UserID == ticket.UserID
	manager := actor.IsAdmin || (actor.CompanyID != nil && *actor.CompanyID == ticket.CompanyID)
	if !owner && !manager {
		return nil, models.NewForbidden("You do not have permission to view this ticket.")
	}
	return ticket, nil
}
