package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ctmsgb/booking-backend/internal/database"
	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// EventPublisher emits domain events after a commit
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event interface{}) error
}

// HoldScheduler arranges for a booking's hold to be expired at a given time
type HoldScheduler interface {
	ScheduleExpiry(ctx context.Context, bookingID uuid.UUID, at time.Time) error
}

// Repositories groups the repositories shared by the booking services
type Repositories struct {
	DB           *sqlx.DB
	Bookings     *database.BookingRepository
	Payments     *database.PaymentRepository
	Tickets      *database.TicketRepository
	Transactions *database.TransactionRepository
	SeatHolds    *database.SeatHoldRepository
	Catalog      *database.CatalogRepository
}

// NewRepositories builds every repository on one connection pool
func NewRepositories(db *sqlx.DB, logger *logrus.Logger) *Repositories {
	return &Repositories{
		DB:           db,
		Bookings:     database.NewBookingRepository(db),
		Payments:     database.NewPaymentRepository(db),
		Tickets:      database.NewTicketRepository(db),
		Transactions: database.NewTransactionRepository(db, logger),
		SeatHolds:    database.NewSeatHoldRepository(),
		Catalog:      database.NewCatalogRepository(db),
	}
}

// loadDetail reads the joined Booking + Payment + Ticket view
func (r *Repositories) loadDetail(ctx context.Context, q database.Queryer, bookingID uuid.UUID) (*models.BookingDetail, error) {
	booking, err := r.Bookings.GetByID(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.NewNotFound("Booking not found.")
	}

	payment, err := r.Payments.GetByBookingID(ctx, q, bookingID, false)
	if err != nil {
		return nil, err
	}
	ticket, err := r.Tickets.GetByBookingID(ctx, q, bookingID, false)
	if err != nil {
		return nil, err
	}
	return &models.BookingDetail{Booking: *booking, Payment: payment, Ticket: ticket}, nil
}

// ============================================================================
// ACTOR
// ============================================================================

// Actor is the caller a booking operation is performed for
type Actor struct {
	UserID    uuid.UUID
	IsAdmin   bool
	CompanyID *int64 // set for company staff
	System    bool   // webhooks and background expiry
	Client    map[string]interface{}
}

// SystemActor performs provider and background transitions
func SystemActor() Actor {
	return Actor{System: true}
}

// CanManage reports whether the actor may change the booking's status
func (a Actor) CanManage(b *models.Booking) bool {
	if a.System || a.IsAdmin {
		return true
	}
	return a.CompanyID != nil && *a.CompanyID == b.CompanyID
}

// IsStaff reports whether the actor is an admin or acts for a company
func (a Actor) IsStaff() bool {
	return a.IsAdmin || a.CompanyID != nil
}

// Owns reports whether the actor is the passenger of the booking
func (a Actor) Owns(b *models.Booking) bool {
	return a.UserID != uuid.Nil && a.UserID == b.UserID
}

func (a Actor) processedBy() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

func (a Actor) String() string {
	switch {
	case a.System:
		return "system"
	case a.IsAdmin:
		return fmt.Sprintf("admin:%s", a.UserID)
	case a.CompanyID != nil:
		return fmt.Sprintf("company:%d:%s", *a.CompanyID, a.UserID)
	default:
		return fmt.Sprintf("user:%s", a.UserID)
	}
}
