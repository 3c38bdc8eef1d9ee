package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ctmsgb/booking-backend/internal/middleware"
	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/ctmsgb/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
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

func newMockRepos(t *testing.T) (*services.Repositories, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return services.NewRepositories(sqlx.NewDb(db, "postgres"), testLogger()), mock
}

// newTestRouter returns a router that authenticates every request as user.
// A nil user leaves the request anonymous.
func newTestRouter(t *testing.T, user *middleware.UserContext) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, RegisterValidators())

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if user != nil {
			c.Set(middleware.UserContextKey, *user)
		}
		c.Next()
	})
	return router
}

func performRequest(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Linux; Android 13) Chrome/120.0 Mobile Safari/537.36")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func passengerUser() *middleware.UserContext {
	return &middleware.UserContext{
		UserID: uuid.New(),
		Phone:  "03001234567",
		Roles:  []string{middleware.RolePassenger},
	}
}

func companyUser(companyID int64) *middleware.UserContext {
	id := companyID
	return &middleware.UserContext{
		UserID:    uuid.New(),
		Phone:     "03111234567",
		Roles:     []string{middleware.RoleCompany},
		CompanyID: &id,
	}
}

func adminUser() *middleware.UserContext {
	return &middleware.UserContext{
		UserID: uuid.New(),
		Phone:  "03211234567",
		Roles:  []string{middleware.RoleAdmin},
	}
}

// ============================================================================
// ROWS
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

func reservedBooking(companyID int64, userID uuid.UUID) *models.Booking {
	now := time.Now()
	hold := now.Add(10 * time.Minute)
	return &models.Booking{
		ID:             uuid.New(),
		UserID:         userID,
		CompanyID:      companyID,
		VehicleID:      11,
		PassengerName:  "Ayesha Khan",
		PassengerPhone: "03001234567",
		ArrivalDate:    "2026-11-02",
		ArrivalTime:    "09:30",
		SeatNumbers:    []int64{3, 4},
		SeatsBooked:    2,
		TotalAmount:    1500,
		Currency:       "PKR",
		BookingStatus:  models.BookingStatusReserved,
		HoldExpiresAt:  &hold,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func bookingRows(b *models.Booking) *sqlmock.Rows {
	return sqlmock.NewRows(bookingCols).AddRow(
		b.ID.String(), b.UserID.String(), b.CompanyID, b.VehicleID,
		b.PassengerName, nil, nil, b.PassengerPhone,
		nil, nil, b.ArrivalDate, b.ArrivalTime,
		b.IsFullVehicle, seatArray(b.SeatNumbers), int64(b.SeatsBooked), b.TotalAmount, b.Currency,
		string(b.BookingStatus), *b.HoldExpiresAt, nil, b.CreatedAt, b.UpdatedAt,
	)
}

func unpaidPaymentRows(b *models.Booking, method models.PaymentMethod) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(paymentCols).AddRow(
		uuid.NewString(), b.ID.String(), 0.0, b.Currency, string(method), string(models.PaymentStatusUnpaid),
		nil, nil, nil, nil, []byte(`{}`),
		now, now,
	)
}

func ticketRows(id int64, b *models.Booking) *sqlmock.Rows {
	return sqlmock.NewRows(ticketCols).AddRow(
		id, b.ID.String(), b.UserID.String(), b.CompanyID,
		b.PassengerName, nil, b.PassengerPhone, nil,
		seatArray(b.SeatNumbers), "Karakoram Coaches", "GLT-1122", nil, nil,
		"Gilgit", "Skardu", b.ArrivalDate, b.ArrivalTime,
		750.0, "Cash", string(models.TicketTypeSeatBooking), string(models.TicketStatusReserved), string(models.PaymentStatusUnpaid), time.Now(),
	)
}

func seatArray(seats []int64) string {
	parts := make([]string, len(seats))
	for i, s := range seats {
		parts[i] = fmt.Sprintf("%d", s)
	}
	return "{" + strings.Join(parts, ",") + "}"
}
