package services

import (
	"context"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newMockRepos(t *testing.T) (*Repositories, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRepositories(sqlx.NewDb(db, "postgres"), testLogger()), mock
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []interface{}
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

type recordingScheduler struct {
	scheduled map[uuid.UUID]time.Time
}

func (s *recordingScheduler) ScheduleExpiry(_ context.Context, id uuid.UUID, at time.Time) error {
	if s.scheduled == nil {
		s.scheduled = map[uuid.UUID]time.Time{}
	}
	s.scheduled[id] = at
	return nil
}

// ============================================================================
// ROW BUILDERS
// ============================================================================

var bookingCols = []string{
	"id", "user_id", "company_id", "vehicle_id",
	"passenger_name", "passenger_email", "passenger_cnic", "passenger_phone",
	"from_location", "to_location", "arrival_date", "arrival_time",
	"is_full_vehicle", "seat_numbers", "seats_booked", "total_amount", "currency",
	"booking_status", "hold_expires_at", "notes", "created_at", "updated_at",
}

var paymentCols = []string{
	"id", "booking_id", "amount_paid", "currency", "method", "status",
	"provider_intent_id", "provider_charge_id", "confirmed_by", "screenshot_url", "meta",
	"created_at", "updated_at",
}

var ticketCols = []string{
	"id", "booking_id", "user_id", "company_id",
	"passenger_name", "passenger_cnic", "passenger_contact", "passenger_email",
	"seats", "transport_company", "vehicle_number", "driver_name", "driver_contact",
	"route_from", "route_to", "arrival_date", "arrival_time",
	"price_per_seat", "payment_type", "ticket_type", "status", "payment_status", "created_at",
}

func pgArray(seats []int64) string {
	parts := make([]string, len(seats))
	for i, s := range seats {
		parts[i] = fmt.Sprintf("%d", s)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func nullableTime(t *time.Time) driver.Value {
	if t == nil {
		return nil
	}
	return *t
}

func nullableUUID(id *uuid.UUID) driver.Value {
	if id == nil {
		return nil
	}
	return id.String()
}

func bookingRows(b *models.Booking) *sqlmock.Rows {
	return sqlmock.NewRows(bookingCols).AddRow(
		b.ID.String(), b.UserID.String(), b.CompanyID, b.VehicleID,
		b.PassengerName, nil, nil, b.PassengerPhone,
		nil, nil, b.ArrivalDate, b.ArrivalTime,
		b.IsFullVehicle, pgArray(b.SeatNumbers), int64(b.SeatsBooked), b.TotalAmount, b.Currency,
		string(b.BookingStatus), nullableTime(b.HoldExpiresAt), nil, b.CreatedAt, b.UpdatedAt,
	)
}

func paymentRows(p *models.Payment) *sqlmock.Rows {
	return sqlmock.NewRows(paymentCols).AddRow(
		p.ID.String(), p.BookingID.String(), p.AmountPaid, p.Currency, string(p.Method), string(p.Status),
		nil, nil, nullableUUID(p.ConfirmedBy), nil, []byte(`{}`),
		p.CreatedAt, p.UpdatedAt,
	)
}

func ticketRows(tk *models.Ticket) *sqlmock.Rows {
	return sqlmock.NewRows(ticketCols).AddRow(
		tk.ID, nullableUUID(tk.BookingID), tk.UserID.String(), tk.CompanyID,
		tk.PassengerName, nil, tk.PassengerContact, nil,
		pgArray(tk.Seats), tk.TransportCompany, tk.VehicleNumber, nil, nil,
		nil, nil, tk.ArrivalDate, tk.ArrivalTime,
		tk.PricePerSeat, tk.PaymentType, string(tk.TicketType), string(tk.Status), string(tk.PaymentStatus), tk.CreatedAt,
	)
}

// ============================================================================
// FIXTURES
// ============================================================================

func fixtureBooking(status models.BookingStatus, seats ...int64) *models.Booking {
	now := time.Now()
	hold := now.Add(10 * time.Minute)
	return &models.Booking{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		CompanyID:      7,
		VehicleID:      11,
		PassengerName:  "Ayesha Khan",
		PassengerPhone: "03001234567",
		ArrivalDate:    "2026-11-02",
		ArrivalTime:    "09:30",
		SeatNumbers:    seats,
		SeatsBooked:    len(seats),
		TotalAmount:    1500,
		Currency:       "PKR",
		BookingStatus:  status,
		HoldExpiresAt:  &hold,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func fixturePayment(b *models.Booking, method models.PaymentMethod, status models.PaymentStatus, amount float64) *models.Payment {
	now := time.Now()
	return &models.Payment{
		ID:         uuid.New(),
		BookingID:  b.ID,
		AmountPaid: amount,
		Currency:   b.Currency,
		Method:     method,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func fixtureTicket(b *models.Booking, status models.TicketStatus, paymentStatus models.PaymentStatus) *models.Ticket {
	id := b.ID
	return &models.Ticket{
		ID:               42,
		BookingID:        &id,
		UserID:           b.UserID,
		CompanyID:        b.CompanyID,
		PassengerName:    b.PassengerName,
		PassengerContact: b.PassengerPhone,
		Seats:            b.SeatNumbers,
		TransportCompany: "Karakoram Coaches",
		VehicleNumber:    "GLT-1122",
		ArrivalDate:      b.ArrivalDate,
		ArrivalTime:      b.ArrivalTime,
		PricePerSeat:     750,
		PaymentType:      "Cash",
		TicketType:       models.TicketTypeSeatBooking,
		Status:           status,
		PaymentStatus:    paymentStatus,
		CreatedAt:        time.Now(),
	}
}

func companyStaff(companyID int64) Actor {
	id := companyID
	return Actor{UserID: uuid.New(), CompanyID: &id}
}

// expectLockedBooking expects the booking and payment row locks of execute
func expectLockedBooking(mock sqlmock.Sqlmock, b *models.Booking, p *models.Payment) {
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).
		WithArgs(b.ID.String()).
		WillReturnRows(bookingRows(b))
	if p == nil {
		mock.ExpectQuery(`FROM payments WHERE booking_id = \$1 FOR UPDATE`).
			WithArgs(b.ID.String()).
			WillReturnRows(sqlmock.NewRows(paymentCols))
		return
	}
	mock.ExpectQuery(`FROM payments WHERE booking_id = \$1 FOR UPDATE`).
		WithArgs(b.ID.String()).
		WillReturnRows(paymentRows(p))
}

// expectDetail expects the joined reload after a commit
func expectDetail(mock sqlmock.Sqlmock, b *models.Booking, p *models.Payment, tk *models.Ticket) {
	mock.ExpectQuery(`FROM bookings WHERE id = \$1$`).WillReturnRows(bookingRows(b))
	mock.ExpectQuery(`FROM payments WHERE booking_id = \$1$`).WillReturnRows(paymentRows(p))
	if tk == nil {
		mock.ExpectQuery(`FROM tickets WHERE booking_id = \$1$`).WillReturnRows(sqlmock.NewRows(ticketCols))
		return
	}
	mock.ExpectQuery(`FROM tickets WHERE booking_id = \$1$`).WillReturnRows(ticketRows(tk))
}
