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

// CheckoutProvider creates hosted card checkouts
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
}

// CheckoutService starts card payments for reserved bookings. Completion
// arrives later through PaymentWebhookService.
type CheckoutService struct {
	repos    *Repositories
	provider CheckoutProvider
	logger   *logrus.Logger
	now      func() time.Time
}

// NewCheckoutService creates a new CheckoutService. A nil provider disables card checkout.
func NewCheckoutService(repos *Repositories, provider CheckoutProvider, logger *logrus.Logger) *CheckoutService {
	return &CheckoutService{repos: repos, provider: provider, logger: logger, now: time.Now}
}

// StartCheckout creates a checkout session for a booking still on hold and
// switches its payment to CARD
func (s *CheckoutService) StartCheckout(ctx context.Context, bookingID uuid.UUID, actor Actor) (*models.CheckoutSessionResponse, error) {
	if s.provider == nil {
		return nil, models.NewInvalidRequest("Card payments are not enabled.")
	}

	booking, err := s.repos.Bookings.GetByID(ctx, s.repos.DB, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, models.NewNotFound("Booking not found.")
	}
	if !actor.Owns(booking) && !actor.CanManage(booking) {
		return nil, models.NewForbidden("You do not have permission to pay for this booking.")
	}
	if !booking.IsHoldActive(s.now()) {
		return nil, models.NewInvalidRequest("Booking is not awaiting payment or its hold has expired.")
	}

	payment, err := s.repos.Payments.GetByBookingID(ctx, s.repos.DB, bookingID, false)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, models.NewInternalInconsistency("Booking has no payment record.")
	}
	if payment.Status == models.PaymentStatusPaid {
		return nil, models.NewInvalidRequest("Booking is already paid.")
	}

	session, err := s.provider.CreateCheckoutSession(ctx, CheckoutParams{
		BookingID:   booking.ID,
		PaymentID:   payment.ID,
		Amount:      booking.TotalAmount,
		Currency:    booking.Currency,
		Description: checkoutDescription(booking),
	})
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to create checkout session")
		return nil, models.NewUpstreamUnavailable("Payment provider is unavailable, try again later.", err)
	}

	err = database.WithTx(ctx, s.repos.DB, func(tx *sqlx.Tx) error {
		locked, err := s.repos.Payments.GetByID(ctx, tx, payment.ID, true)
		if err != nil {
			return err
		}
		if locked == nil {
			return models.NewNotFound("Payment not found.")
		}
		if locked.Status == models.PaymentStatusPaid {
			return models.NewInvalidRequest("Booking is already paid.")
		}
		return s.repos.Payments.UpdateFields(ctx, tx, payment.ID, map[string]interface{}{
			"method":             models.PaymentMethodCard,
			"provider_intent_id": session.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"payment_id": payment.ID,
		"session_id": session.ID,
	}).Info("Checkout session created")

	return &models.CheckoutSessionResponse{
		BookingID:   booking.ID,
		PaymentID:   payment.ID,
		SessionID:   session.ID,
		CheckoutURL: session.URL,
	}, nil
}

func checkoutDescription(b *models.Booking) string {
	if b.IsFullVehicle {
		return fmt.Sprintf("Full vehicle hire on %s %s", b.ArrivalDate, b.ArrivalTime)
	}
	return fmt.Sprintf("%d seat(s) on %s %s", b.SeatsBooked, b.ArrivalDate, b.ArrivalTime)
}
