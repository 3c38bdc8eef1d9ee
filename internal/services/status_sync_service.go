package services

import (
	"context"
	"time"

	"github.com/ctmsgb/booking-backend/internal/database"
	"github.com/ctmsgb/booking-backend/internal/events"
	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// SyncScope selects which bookings a status update may touch
type SyncScope int

const (
	// ScopeAll is the admin / company booking flow
	ScopeAll SyncScope = iota
	// ScopeManual only accepts bookings paid by MANUAL transfer
	ScopeManual
)

// SyncRequest asks for a booking and its payment to be moved to the given statuses
type SyncRequest struct {
	BookingID     uuid.UUID
	BookingStatus models.BookingStatus
	PaymentStatus models.PaymentStatus
	Actor         Actor
	Scope         SyncScope
}

// transition is one reconciliation of Booking, Payment, Transaction log, Ticket and SeatHold
type transition struct {
	BookingStatus models.BookingStatus
	PaymentStatus models.PaymentStatus
	Actor         Actor

	// Method replaces the payment method when set
	Method models.PaymentMethod
	// DefaultMethod fills an empty payment method
	DefaultMethod models.PaymentMethod
	// Amount overrides the booking total as the collected amount
	Amount *float64

	Provider      string
	ProviderTxnID string
	ChargeID      string
	Reason        string
}

// outcome describes what a transition changed
type outcome struct {
	Booking     *models.Booking
	Payment     *models.Payment
	PrevBooking models.BookingStatus
	PrevPayment models.PaymentStatus
	Transaction *models.Transaction
}

// planFunc inspects the locked rows and returns the transition to apply.
// A nil transition commits nothing.
type planFunc func(tx *sqlx.Tx, booking *models.Booking, payment *models.Payment) (*transition, error)

// StatusSyncService keeps Booking, Payment, Transaction, Ticket and SeatHold
// consistent whenever a status changes. Every writer of booking or payment
// status goes through execute.
type StatusSyncService struct {
	repos  *Repositories
	events EventPublisher
	logger *logrus.Logger
	now    func() time.Time
}

// NewStatusSyncService creates a new StatusSyncService
func NewStatusSyncService(repos *Repositories, events EventPublisher, logger *logrus.Logger) *StatusSyncService {
	return &StatusSyncService{
		repos:  repos,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// ============================================================================
// PUBLIC OPERATIONS
// ============================================================================

// SyncStatus applies an admin or company status update and returns the joined view
func (s *StatusSyncService) SyncStatus(ctx context.Context, req SyncRequest) (*models.BookingDetail, error) {
	if !req.BookingStatus.IsValid() {
		return nil, models.NewInvalidRequest("Invalid booking_status.")
	}
	if !req.PaymentStatus.IsValid() {
		return nil, models.NewInvalidRequest("Invalid new_payment_status.")
	}

	defaultMethod := models.PaymentMethodCash
	if req.Scope == ScopeManual {
		defaultMethod = models.PaymentMethodManual
	}

	_, err := s.execute(ctx, req.BookingID, defaultMethod, func(_ *sqlx.Tx, booking *models.Booking, payment *models.Payment) (*transition, error) {
		if !req.Actor.CanManage(booking) {
			return nil, models.NewForbidden("You do not have permission to update this booking.")
		}
		if req.Scope == ScopeManual && payment.Method != models.PaymentMethodManual {
			return nil, models.NewForbidden("This booking is not a MANUAL payment booking.")
		}
		return &transition{
			BookingStatus: req.BookingStatus,
			PaymentStatus: req.PaymentStatus,
			Actor:         req.Actor,
			DefaultMethod: defaultMethod,
			Reason:        "status_update",
		}, nil
	})
	if err != nil {
		return nil, err
	}

	return s.repos.loadDetail(ctx, s.repos.DB, req.BookingID)
}

// ConfirmPayment records a cash or manual payment collected by staff
func (s *StatusSyncService) ConfirmPayment(ctx context.Context, bookingID uuid.UUID, actor Actor) (*models.BookingDetail, error) {
	_, err := s.execute(ctx, bookingID, models.PaymentMethodCash, func(_ *sqlx.Tx, booking *models.Booking, payment *models.Payment) (*transition, error) {
		if !actor.CanManage(booking) {
			return nil, models.NewForbidden("You do not have permission to update this booking.")
		}
		if payment.Status == models.PaymentStatusPaid && booking.BookingStatus == models.BookingStatusConfirmed {
			return nil, nil
		}
		return &transition{
			BookingStatus: models.BookingStatusConfirmed,
			PaymentStatus: models.PaymentStatusPaid,
			Actor:         actor,
			DefaultMethod: models.PaymentMethodCash,
			Reason:        "staff_confirmation",
		}, nil
	})
	if err != nil {
		return nil, err
	}

	return s.repos.loadDetail(ctx, s.repos.DB, bookingID)
}

// CancelTicket cancels the booking behind a ticket on behalf of its passenger
// or the owning company. Paid and confirmed bookings need a refund through staff.
func (s *StatusSyncService) CancelTicket(ctx context.Context, ticketID int64, actor Actor) (*models.BookingDetail, error) {
	ticket, err := s.repos.Tickets.GetByID(ctx, s.repos.DB, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, models.NewNotFound("Ticket not found.")
	}
	if ticket.BookingID == nil {
		return nil, models.NewInvalidRequest("Ticket is not linked to a booking.")
	}

	_, err = s.execute(ctx, *ticket.BookingID, models.PaymentMethodCash, func(_ *sqlx.Tx, booking *models.Booking, payment *models.Payment) (*transition, error) {
		if !actor.Owns(booking) && !actor.CanManage(booking) {
			return nil, models.NewForbidden("You do not have permission to cancel this ticket.")
		}
		if !booking.BookingStatus.OccupiesSeats() && booking.BookingStatus != models.BookingStatusPending {
			return nil, models.NewInvalidRequest("Booking can no longer be cancelled.")
		}
		if payment.Status == models.PaymentStatusPaid {
			return nil, models.NewInvalidRequest("Paid bookings must be refunded by the transport company.")
		}
		return &transition{
			BookingStatus: models.BookingStatusCancelled,
			PaymentStatus: payment.Status,
			Actor:         actor,
			Reason:        "passenger_cancellation",
		}, nil
	})
	if err != nil {
		return nil, err
	}

	return s.repos.loadDetail(ctx, s.repos.DB, *ticket.BookingID)
}

// ============================================================================
// CORE
// ============================================================================

// execute locks the booking and its payment, asks plan for a transition and
// applies it in one transaction. defaultMethod creates a missing payment; an
// empty defaultMethod leaves it nil for plan to reject.
func (s *StatusSyncService) execute(ctx context.Context, bookingID uuid.UUID, defaultMethod models.PaymentMethod, plan planFunc) (*outcome, error) {
	var out *outcome

	err := database.WithTx(ctx, s.repos.DB, func(tx *sqlx.Tx) error {
		booking, err := s.repos.Bookings.GetByIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return models.NewNotFound("Booking not found.")
		}

		payment, err := s.lockPayment(ctx, tx, booking, defaultMethod)
		if err != nil {
			return err
		}

		t, err := plan(tx, booking, payment)
		if err != nil || t == nil {
			return err
		}

		out, err = s.applyTransition(ctx, tx, booking, payment, *t)
		return err
	})
	if err != nil {
		return nil, err
	}

	if out != nil {
		s.publish(ctx, out)
	}
	return out, nil
}

// lockPayment row-locks the booking's payment, creating it when missing
func (s *StatusSyncService) lockPayment(ctx context.Context, tx *sqlx.Tx, booking *models.Booking, defaultMethod models.PaymentMethod) (*models.Payment, error) {
	payment, err := s.repos.Payments.GetByBookingID(ctx, tx, booking.ID, true)
	if err != nil || payment != nil || defaultMethod == "" {
		return payment, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"kind":       models.ErrKindInternalInconsistency,
		"method":     defaultMethod,
	}).Warn("Booking has no payment record, creating one")

	payment = models.NewPayment(booking, defaultMethod)
	if err := s.repos.Payments.Create(ctx, tx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// applyTransition writes the transition. The booking and payment must already
// be locked by tx; both are updated in place.
func (s *StatusSyncService) applyTransition(ctx context.Context, tx *sqlx.Tx, booking *models.Booking, payment *models.Payment, t transition) (*outcome, error) {
	out := &outcome{
		Booking:     booking,
		Payment:     payment,
		PrevBooking: booking.BookingStatus,
		PrevPayment: payment.Status,
	}

	// 1. Booking status and seat hold
	if t.BookingStatus != booking.BookingStatus {
		if t.BookingStatus.OccupiesSeats() && !booking.BookingStatus.OccupiesSeats() {
			if err := s.ensureSeatsFree(ctx, tx, booking); err != nil {
				return nil, err
			}
		}

		// Only confirmation clears the deadline; expired and cancelled
		// bookings keep it as a record of when the hold lapsed.
		clearHold := t.BookingStatus == models.BookingStatusConfirmed
		if err := s.repos.Bookings.UpdateStatus(ctx, tx, booking.ID, t.BookingStatus, clearHold); err != nil {
			return nil, err
		}
		if t.BookingStatus.ReleasesHold() {
			if _, err := s.repos.SeatHolds.DeleteByBooking(ctx, tx, booking.ID); err != nil {
				return nil, err
			}
		}
		if clearHold {
			booking.HoldExpiresAt = nil
		}
		booking.BookingStatus = t.BookingStatus
	}

	// 2. Payment
	prevAmount := payment.AmountPaid
	changes := make(map[string]interface{})

	method := payment.Method
	switch {
	case t.Method != "":
		method = t.Method
	case method == "" && t.DefaultMethod != "":
		method = t.DefaultMethod
	case method == "":
		method = models.PaymentMethodCash
	}
	if method != payment.Method {
		changes["method"] = method
		payment.Method = method
	}

	if t.PaymentStatus == models.PaymentStatusPaid {
		amount := booking.TotalAmount
		if t.Amount != nil {
			amount = *t.Amount
		}
		if payment.AmountPaid != amount {
			changes["amount_paid"] = amount
			payment.AmountPaid = amount
		}
		if method.IsStaffVerified() {
			if by := t.Actor.processedBy(); by != nil && (payment.ConfirmedBy == nil || *payment.ConfirmedBy != *by) {
				changes["confirmed_by"] = *by
				payment.ConfirmedBy = by
			}
		}
	} else {
		if payment.AmountPaid != 0 {
			changes["amount_paid"] = 0.0
			payment.AmountPaid = 0
		}
		if payment.ConfirmedBy != nil {
			changes["confirmed_by"] = nil
			payment.ConfirmedBy = nil
		}
	}

	if t.ChargeID != "" && (payment.ProviderChargeID == nil || *payment.ProviderChargeID != t.ChargeID) {
		chargeID := t.ChargeID
		changes["provider_charge_id"] = chargeID
		payment.ProviderChargeID = &chargeID
	}

	if payment.Status != t.PaymentStatus {
		changes["status"] = t.PaymentStatus
		payment.Status = t.PaymentStatus
	}

	if err := s.repos.Payments.UpdateFields(ctx, tx, payment.ID, changes); err != nil {
		return nil, err
	}

	// 3. Transaction log
	if out.PrevPayment != payment.Status {
		if txn := s.ledgerEntry(booking, payment, out.PrevPayment, prevAmount, t); txn != nil {
			if err := s.repos.Transactions.Create(ctx, tx, txn); err != nil {
				return nil, err
			}
			out.Transaction = txn
		}
	}

	// 4. Ticket
	ticket, err := s.repos.Tickets.GetByBookingID(ctx, tx, booking.ID, true)
	if err != nil {
		return nil, err
	}
	if ticket != nil {
		status := models.TicketStatusFor(booking.BookingStatus)
		if ticket.Status != status || ticket.PaymentStatus != payment.Status {
			if err := s.repos.Tickets.UpdateStatuses(ctx, tx, ticket.ID, status, payment.Status); err != nil {
				return nil, err
			}
		}
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":     booking.ID,
		"actor":          t.Actor.String(),
		"booking_status": string(out.PrevBooking) + "->" + string(booking.BookingStatus),
		"payment_status": string(out.PrevPayment) + "->" + string(payment.Status),
		"reason":         t.Reason,
	}).Info("Booking status synchronized")

	return out, nil
}

// ledgerEntry returns the Transaction for a payment status change, or nil
// when no money moved
func (s *StatusSyncService) ledgerEntry(booking *models.Booking, payment *models.Payment, from models.PaymentStatus, prevAmount float64, t transition) *models.Transaction {
	to := payment.Status

	var (
		txnType models.TransactionType
		amount  float64
	)
	switch {
	case to == models.PaymentStatusPaid:
		txnType, amount = models.TransactionTypePayment, payment.AmountPaid
	case from == models.PaymentStatusPaid && to == models.PaymentStatusRefunded:
		txnType, amount = models.TransactionTypeRefund, -prevAmount
	case from == models.PaymentStatusPaid && to == models.PaymentStatusUnpaid:
		txnType, amount = models.TransactionTypeAdjustment, -prevAmount
	default:
		s.logger.WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"from":       from,
			"to":         to,
		}).Warn("Payment status changed without a money movement, no transaction recorded")
		return nil
	}

	provider := t.Provider
	if provider == "" {
		provider = models.ProviderFor(payment.Method)
	}

	txn := models.NewTransaction(booking.ID, txnType, models.TransactionStatusSuccess).
		SetPayment(payment.ID).
		SetAmount(amount).
		SetProvider(provider, t.ProviderTxnID).
		SetProcessedBy(t.Actor.processedBy()).
		SetMeta("from", string(from)).
		SetMeta("to", string(to)).
		SetMeta("booking_status", string(booking.BookingStatus))
	if t.Reason != "" {
		txn.SetMeta("reason", t.Reason)
	}
	if t.Actor.Client != nil {
		txn.SetMeta("client", t.Actor.Client)
	}
	return txn
}

// ensureSeatsFree blocks a booking from re-entering an active status when
// another booking took its seats in the meantime
func (s *StatusSyncService) ensureSeatsFree(ctx context.Context, tx *sqlx.Tx, booking *models.Booking) error {
	if len(booking.SeatNumbers) == 0 {
		return nil
	}

	slot := booking.Slot()
	if err := s.repos.Bookings.LockSlot(ctx, tx, slot); err != nil {
		return err
	}
	taken, err := s.repos.Bookings.LockActiveSeats(ctx, tx, slot)
	if err != nil {
		return err
	}
	if conflicts := intersectSeats(booking.SeatNumbers, taken); len(conflicts) > 0 {
		return models.NewSeatConflict(conflicts)
	}
	return nil
}

// ============================================================================
// EVENTS
// ============================================================================

func (s *StatusSyncService) publish(ctx context.Context, out *outcome) {
	now := s.now().UTC()

	if out.PrevBooking != out.Booking.BookingStatus {
		if topic := bookingTopic(out.Booking.BookingStatus); topic != "" {
			emit(ctx, s.events, s.logger, topic, newBookingEvent(out.Booking, now))
		}
	}

	if out.PrevPayment != out.Payment.Status {
		emit(ctx, s.events, s.logger, events.TopicPaymentStatusChanged, events.PaymentStatusChanged{
			BookingID:  out.Booking.ID,
			PaymentID:  out.Payment.ID,
			From:       string(out.PrevPayment),
			To:         string(out.Payment.Status),
			Amount:     out.Payment.AmountPaid,
			Method:     string(out.Payment.Method),
			OccurredAt: now,
		})
	}
}

func bookingTopic(status models.BookingStatus) string {
	switch status {
	case models.BookingStatusReserved:
		return events.TopicBookingReserved
	case models.BookingStatusConfirmed:
		return events.TopicBookingConfirmed
	case models.BookingStatusCancelled:
		return events.TopicBookingCancelled
	case models.BookingStatusExpired:
		return events.TopicBookingExpired
	}
	return ""
}

func newBookingEvent(b *models.Booking, at time.Time) events.BookingEvent {
	return events.BookingEvent{
		BookingID:     b.ID,
		Status:        string(b.BookingStatus),
		CompanyID:     b.CompanyID,
		VehicleID:     b.VehicleID,
		ArrivalDate:   b.ArrivalDate,
		ArrivalTime:   b.ArrivalTime,
		Seats:         []int64(b.SeatNumbers),
		IsFullVehicle: b.IsFullVehicle,
		OccurredAt:    at,
	}
}

// emit publishes an event; failures are logged and never undo the commit
func emit(ctx context.Context, publisher EventPublisher, logger *logrus.Logger, topic string, event interface{}) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, topic, event); err != nil {
		logger.WithError(err).WithField("topic", topic).Warn("Failed to publish event")
	}
}
