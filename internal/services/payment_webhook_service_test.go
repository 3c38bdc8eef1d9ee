package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ctmsgb/booking-backend/internal/events"
	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test_secret"

func signedHeader(v *SignatureVerifier, payload []byte, at time.Time) string {
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), v.sign(payload, at.Unix()))
}

func TestSignatureVerifier(t *testing.T) {
	now := time.Unix(1_790_000_000, 0)
	verifier := NewSignatureVerifier(testWebhookSecret, 5*time.Minute)
	verifier.now = func() time.Time { return now }
	payload := []byte(`{"id":"evt_1"}`)

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{
			name:   "valid signature",
			header: signedHeader(verifier, payload, now.Add(-time.Minute)),
		},
		{
			name:   "one of several signatures matches",
			header: fmt.Sprintf("t=%d,v1=deadbeef,v1=%s", now.Unix(), verifier.sign(payload, now.Unix())),
		},
		{
			name:    "stale timestamp",
			header:  signedHeader(verifier, payload, now.Add(-10*time.Minute)),
			wantErr: ErrSignatureExpired,
		},
		{
			name:    "wrong signature",
			header:  fmt.Sprintf("t=%d,v1=%s", now.Unix(), verifier.sign([]byte(`{"id":"evt_2"}`), now.Unix())),
			wantErr: ErrSignatureMismatch,
		},
		{
			name:    "missing v1",
			header:  fmt.Sprintf("t=%d", now.Unix()),
			wantErr: ErrInvalidSignatureHeader,
		},
		{
			name:    "garbage timestamp",
			header:  "t=yesterday,v1=abc",
			wantErr: ErrInvalidSignatureHeader,
		},
		{
			name:    "empty header",
			header:  "",
			wantErr: ErrInvalidSignatureHeader,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifier.Verify(payload, tt.header)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSignatureVerifier_MissingSecretRejectsEverything(t *testing.T) {
	verifier := NewSignatureVerifier("", time.Minute)
	assert.ErrorIs(t, verifier.Verify([]byte(`{}`), "t=1,v1=abc"), ErrWebhookSecretMissing)
}

type webhookFixture struct {
	svc       *PaymentWebhookService
	mock      sqlmock.Sqlmock
	verifier  *SignatureVerifier
	publisher *recordingPublisher
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	repos, mock := newMockRepos(t)
	publisher := &recordingPublisher{}
	verifier := NewSignatureVerifier(testWebhookSecret, 5*time.Minute)
	sync := NewStatusSyncService(repos, publisher, testLogger())
	return &webhookFixture{
		svc:       NewPaymentWebhookService(sync, repos, verifier, testLogger()),
		mock:      mock,
		verifier:  verifier,
		publisher: publisher,
	}
}

func (f *webhookFixture) deliver(t *testing.T, payload []byte) (*WebhookResult, error) {
	t.Helper()
	return f.svc.HandleWebhook(context.Background(), payload, signedHeader(f.verifier, payload, time.Now()))
}

func completedPayload(bookingID, paymentID uuid.UUID) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_1",
			"payment_intent": "pi_123",
			"amount_total": 150000,
			"metadata": {"booking_id": %q, "payment_id": %q}
		}}
	}`, bookingID, paymentID))
}

func expectNoPriorCharge(mock sqlmock.Sqlmock, count int) {
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM transactions WHERE provider = \$1 AND provider_txn_id = \$2 AND status = \$3`).
		WithArgs("Stripe", "pi_123", "SUCCESS").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func TestHandleWebhook_ConfirmsBooking(t *testing.T) {
	f := newWebhookFixture(t)

	booking := fixtureBooking(models.BookingStatusReserved, 3, 4)
	payment := fixturePayment(booking, models.PaymentMethodCard, models.PaymentStatusUnpaid, 0)
	ticket := fixtureTicket(booking, models.TicketStatusReserved, models.PaymentStatusUnpaid)

	expectLockedBooking(f.mock, booking, payment)
	expectNoPriorCharge(f.mock, 0)
	f.mock.ExpectExec(`UPDATE bookings SET booking_status = \$1, hold_expires_at = NULL`).
		WithArgs("CONFIRMED", booking.ID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(`DELETE FROM seat_holds`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(`UPDATE payments SET amount_paid = \$1, provider_charge_id = \$2, status = \$3, updated_at = NOW\(\) WHERE id = \$4`).
		WithArgs(1500.0, "pi_123", "PAID", payment.ID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(sqlmock.AnyArg(), booking.ID.String(), payment.ID.String(), 1500.0, "PAYMENT",
			"Stripe", "pi_123", "SUCCESS", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(`FROM tickets WHERE booking_id = \$1 FOR UPDATE`).
		WillReturnRows(ticketRows(ticket))
	f.mock.ExpectExec(`UPDATE tickets SET status`).
		WithArgs("Booked", "PAID", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	result, err := f.deliver(t, completedPayload(booking.ID, payment.ID))

	require.NoError(t, err)
	assert.Equal(t, WebhookProcessed, result.Status)
	assert.Equal(t, "evt_1", result.EventID)
	require.NotNil(t, result.BookingID)
	assert.Equal(t, booking.ID, *result.BookingID)
	assert.Equal(t, []string{events.TopicBookingConfirmed, events.TopicPaymentStatusChanged}, f.publisher.topics)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHandleWebhook_RedeliveryIsIdempotent(t *testing.T) {
	t.Run("payment already paid", func(t *testing.T) {
		f := newWebhookFixture(t)
		booking := fixtureBooking(models.BookingStatusConfirmed, 3)
		payment := fixturePayment(booking, models.PaymentMethodCard, models.PaymentStatusPaid, 1500)

		expectLockedBooking(f.mock, booking, payment)
		f.mock.ExpectCommit()

		result, err := f.deliver(t, completedPayload(booking.ID, payment.ID))

		require.NoError(t, err)
		assert.Equal(t, WebhookAlreadyProcessed, result.Status)
		assert.Empty(t, f.publisher.topics)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("charge already recorded", func(t *testing.T) {
		f := newWebhookFixture(t)
		booking := fixtureBooking(models.BookingStatusReserved, 3)
		payment := fixturePayment(booking, models.PaymentMethodCard, models.PaymentStatusUnpaid, 0)

		expectLockedBooking(f.mock, booking, payment)
		expectNoPriorCharge(f.mock, 1)
		f.mock.ExpectCommit()

		result, err := f.deliver(t, completedPayload(booking.ID, payment.ID))

		require.NoError(t, err)
		assert.Equal(t, WebhookAlreadyProcessed, result.Status)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})
}

func TestHandleWebhook_LostSeatsStillRecordsPayment(t *testing.T) {
	f := newWebhookFixture(t)

	booking := fixtureBooking(models.BookingStatusExpired, 3, 4)
	booking.HoldExpiresAt = nil
	payment := fixturePayment(booking, models.PaymentMethodCard, models.PaymentStatusUnpaid, 0)

	expectLockedBooking(f.mock, booking, payment)
	expectNoPriorCharge(f.mock, 0)
	f.mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectQuery(`SELECT seat_numbers FROM bookings`).
		WillReturnRows(sqlmock.NewRows([]string{"seat_numbers"}).AddRow("{3}"))
	f.mock.ExpectRollback()

	expectLockedBooking(f.mock, booking, payment)
	expectNoPriorCharge(f.mock, 0)
	f.mock.ExpectExec(`UPDATE payments SET amount_paid = \$1, provider_charge_id = \$2, status = \$3`).
		WithArgs(1500.0, "pi_123", "PAID", payment.ID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(`INSERT INTO transactions`).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(`FROM tickets WHERE booking_id = \$1 FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(ticketCols))
	f.mock.ExpectCommit()

	result, err := f.deliver(t, completedPayload(booking.ID, payment.ID))

	require.NoError(t, err)
	assert.Equal(t, WebhookSeatsUnavailable, result.Status)
	assert.Equal(t, []string{events.TopicPaymentStatusChanged}, f.publisher.topics)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHandleWebhook_PaymentMismatch(t *testing.T) {
	f := newWebhookFixture(t)

	booking := fixtureBooking(models.BookingStatusReserved, 3)
	payment := fixturePayment(booking, models.PaymentMethodCard, models.PaymentStatusUnpaid, 0)

	expectLockedBooking(f.mock, booking, payment)
	f.mock.ExpectRollback()

	_, err := f.deliver(t, completedPayload(booking.ID, uuid.New()))

	assert.True(t, models.IsKind(err, models.ErrKindNotFound))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestHandleWebhook_Rejections(t *testing.T) {
	f := newWebhookFixture(t)

	t.Run("bad signature", func(t *testing.T) {
		_, err := f.svc.HandleWebhook(context.Background(), []byte(`{}`), "t=1,v1=abc")
		assert.True(t, models.IsKind(err, models.ErrKindExternalVerification))
	})

	t.Run("unhandled event type", func(t *testing.T) {
		result, err := f.deliver(t, []byte(`{"id":"evt_9","type":"payment_intent.created","data":{"object":{}}}`))
		require.NoError(t, err)
		assert.Equal(t, WebhookIgnored, result.Status)
	})

	t.Run("invalid metadata", func(t *testing.T) {
		_, err := f.deliver(t, []byte(`{"id":"evt_3","type":"checkout.session.completed","data":{"object":{"id":"cs_1","metadata":{"booking_id":"nope"}}}}`))
		assert.True(t, models.IsKind(err, models.ErrKindInvalidRequest))
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := f.deliver(t, []byte(`{"id":`))
		assert.True(t, models.IsKind(err, models.ErrKindInvalidRequest))
	})

	assert.NoError(t, f.mock.ExpectationsWereMet())
}
