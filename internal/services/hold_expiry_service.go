package services

import (
	"context"
	"time"

	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// HoldExpiryService releases seats of reservations whose hold lapsed unpaid
type HoldExpiryService struct {
	sync   *StatusSyncService
	repos  *Repositories
	batch  int
	logger *logrus.Logger
	now    func() time.Time
}

// NewHoldExpiryService creates a new hold expiry service
func NewHoldExpiryService(sync *StatusSyncService, repos *Repositories, batch int, logger *logrus.Logger) *HoldExpiryService {
	if batch <= 0 {
		batch = 100
	}
	return &HoldExpiryService{
		sync:   sync,
		repos:  repos,
		batch:  batch,
		logger: logger,
		now:    time.Now,
	}
}

// RunOnce expires one batch of lapsed holds and returns how many were expired.
// Each booking is re-checked under its row lock, so a booking confirmed after
// it was selected is left alone.
func (s *HoldExpiryService) RunOnce(ctx context.Context) (int, error) {
	ids, err := s.repos.Bookings.GetExpiredHoldIDs(ctx, s.now(), s.batch)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	s.logger.WithField("count", len(ids)).Info("Processing expired holds")

	expired := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		ok, err := s.ExpireBooking(ctx, id)
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", id).Error("Failed to expire hold")
			continue
		}
		if ok {
			expired++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"selected": len(ids),
		"expired":  expired,
	}).Info("Expired holds processed")

	return expired, nil
}

// ExpireBooking moves one RESERVED booking with a lapsed, unpaid hold to
// EXPIRED. It reports false when the booking is gone or no longer eligible.
func (s *HoldExpiryService) ExpireBooking(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	now := s.now()

	out, err := s.sync.execute(ctx, bookingID, models.PaymentMethodCash, func(_ *sqlx.Tx, booking *models.Booking, payment *models.Payment) (*transition, error) {
		if booking.BookingStatus != models.BookingStatusReserved ||
			booking.HoldExpiresAt == nil ||
			booking.HoldExpiresAt.After(now) ||
			payment.Status == models.PaymentStatusPaid {
			return nil, nil
		}
		return &transition{
			BookingStatus: models.BookingStatusExpired,
			PaymentStatus: payment.Status,
			Actor:         SystemActor(),
			Provider:      models.ProviderSystem,
			Reason:        "hold_expired",
		}, nil
	})
	if models.IsKind(err, models.ErrKindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return out != nil, nil
}
