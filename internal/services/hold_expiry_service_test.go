package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ctmsgb/booking-backend/internal/events"
	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExpiryService(t *testing.T) (*HoldExpiryService, sqlmock.Sqlmock, *recordingPublisher) {
	repos, mock := newMockRepos(t)
	publisher := &recordingPublisher{}
	sync := NewStatusSyncService(repos, publisher, testLogger())
	return NewHoldExpiryService(sync, repos, 0, testLogger()), mock, publisher
}

func expectExpiry(mock sqlmock.Sqlmock, booking *models.Booking, payment *models.Payment) {
	expectLockedBooking(mock, booking, payment)
	mock.ExpectExec(`UPDATE bookings SET booking_status = \$1, updated_at = NOW\(\) WHERE id = \$2`).
		WithArgs("EXPIRED", booking.ID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM seat_holds WHERE booking_id = \$1`).
		WithArgs(booking.ID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM tickets WHERE booking_id = \$1 FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(ticketCols))
	mock.ExpectCommit()
}

func lapsedBooking() *models.Booking {
	booking := fixtureBooking(models.BookingStatusReserved, 3, 4)
	lapsed := time.Now().Add(-time.Minute)
	booking.HoldExpiresAt = &lapsed
	return booking
}

func TestExpireBooking_LapsedUnpaidHold(t *testing.T) {
	svc, mock, publisher := newTestExpiryService(t)

	booking := lapsedBooking()
	payment := fixturePayment(booking, models.PaymentMethodCash, models.PaymentStatusUnpaid, 0)
	expectExpiry(mock, booking, payment)

	expired, err := svc.ExpireBooking(context.Background(), booking.ID)

	require.NoError(t, err)
	assert.True(t, expired)
	assert.Equal(t, []string{events.TopicBookingExpired}, publisher.topics)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireBooking_SkipsIneligible(t *testing.T) {
	future := time.Now().Add(5 * time.Minute)

	tests := []struct {
		name    string
		booking func() *models.Booking
		status  models.PaymentStatus
	}{
		{
			name: "hold still running",
			booking: func() *models.Booking {
				b := fixtureBooking(models.BookingStatusReserved, 1)
				b.HoldExpiresAt = &future
				return b
			},
			status: models.PaymentStatusUnpaid,
		},
		{
			name:    "payment already collected",
			booking: lapsedBooking,
			status:  models.PaymentStatusPaid,
		},
		{
			name: "confirmed concurrently",
			booking: func() *models.Booking {
				b := lapsedBooking()
				b.BookingStatus = models.BookingStatusConfirmed
				return b
			},
			status: models.PaymentStatusUnpaid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock, publisher := newTestExpiryService(t)

			booking := tt.booking()
			payment := fixturePayment(booking, models.PaymentMethodCash, tt.status, 0)
			expectLockedBooking(mock, booking, payment)
			mock.ExpectCommit()

			expired, err := svc.ExpireBooking(context.Background(), booking.ID)

			require.NoError(t, err)
			assert.False(t, expired)
			assert.Empty(t, publisher.topics)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestExpireBooking_MissingBooking(t *testing.T) {
	svc, mock, _ := newTestExpiryService(t)

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(bookingCols))
	mock.ExpectRollback()

	expired, err := svc.ExpireBooking(context.Background(), id)

	require.NoError(t, err)
	assert.False(t, expired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnce_ExpiresSelectedBatch(t *testing.T) {
	svc, mock, _ := newTestExpiryService(t)
	now := time.Now()
	svc.now = func() time.Time { return now }

	booking := lapsedBooking()
	payment := fixturePayment(booking, models.PaymentMethodCash, models.PaymentStatusUnpaid, 0)
	gone := uuid.New()

	mock.ExpectQuery(`SELECT b.id FROM bookings b LEFT JOIN payments p`).
		WithArgs("RESERVED", now, "PAID", 100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(booking.ID.String()).AddRow(gone.String()))
	expectExpiry(mock, booking, payment)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).
		WithArgs(gone.String()).
		WillReturnRows(sqlmock.NewRows(bookingCols))
	mock.ExpectRollback()

	expired, err := svc.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnce_NothingToExpire(t *testing.T) {
	svc, mock, _ := newTestExpiryService(t)

	mock.ExpectQuery(`SELECT b.id FROM bookings b`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	expired, err := svc.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Zero(t, expired)
	assert.NoError(t, mock.ExpectationsWereMet())
}
