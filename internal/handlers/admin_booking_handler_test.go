package handlers

import (
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ctmsgb/booking-backend/internal/events"
	"github.com/ctmsgb/booking-backend/internal/middleware"
	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/ctmsgb/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAdminRouter(t *testing.T, user *middleware.UserContext) (*gin.Engine, sqlmock.Sqlmock) {
	repos, mock := newMockRepos(t)
	logger := testLogger()

	handler := NewAdminBookingHandler(
		services.NewStatusSyncService(repos, events.Discard{}, logger),
		services.NewBookingQueryService(repos),
		logger,
	)

	router := newTestRouter(t, user)
	router.GET("/api/v1/admin/bookings", handler.ListBookings)
	router.GET("/api/v1/admin/manual-bookings", handler.ListManualBookings)
	router.PATCH("/api/v1/admin/bookings/:id/status", handler.UpdateStatus)
	router.PATCH("/api/v1/admin/manual-bookings/:id/status", handler.UpdateManualStatus)
	router.POST("/api/v1/admin/bookings/:id/confirm-payment", handler.ConfirmPayment)
	router.GET("/api/v1/admin/bookings/:id/transactions", handler.ListTransactions)
	return router, mock
}

func TestUpdateStatus_RequestValidation(t *testing.T) {
	router, mock := setupAdminRouter(t, adminUser())
	path := "/api/v1/admin/bookings/" + uuid.NewString() + "/status"

	w := performRequest(router, http.MethodPatch, path, map[string]string{
		"booking_status":     "SHIPPED",
		"new_payment_status": "PAID",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := decodeBody(t, w)["fields"].(map[string]interface{})
	assert.Equal(t, "booking_status", fields["booking_status"])

	w = performRequest(router, http.MethodPatch, path, map[string]string{"booking_status": "CONFIRMED"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	fields = decodeBody(t, w)["fields"].(map[string]interface{})
	assert.Equal(t, "required", fields["new_payment_status"])

	w = performRequest(router, http.MethodPatch, "/api/v1/admin/bookings/42/status", map[string]string{
		"booking_status":     "CONFIRMED",
		"new_payment_status": "PAID",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_BookingNotFound(t *testing.T) {
	router, mock := setupAdminRouter(t, adminUser())
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows(bookingCols))
	mock.ExpectRollback()

	w := performRequest(router, http.MethodPatch, "/api/v1/admin/bookings/"+id.String()+"/status", map[string]string{
		"booking_status":     "CONFIRMED",
		"new_payment_status": "PAID",
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Booking not found.", decodeBody(t, w)["detail"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_OtherCompanyForbidden(t *testing.T) {
	router, mock := setupAdminRouter(t, companyUser(99))
	booking := reservedBooking(7, uuid.New())

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).
		WithArgs(booking.ID.String()).
		WillReturnRows(bookingRows(booking))
	mock.ExpectQuery(`FROM payments WHERE booking_id = \$1 FOR UPDATE`).
		WithArgs(booking.ID.String()).
		WillReturnRows(unpaidPaymentRows(booking, models.PaymentMethodCash))
	mock.ExpectRollback()

	w := performRequest(router, http.MethodPatch, "/api/v1/admin/bookings/"+booking.ID.String()+"/status", map[string]string{
		"booking_status":     "CONFIRMED",
		"new_payment_status": "PAID",
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateManualStatus_RejectsCashBooking(t *testing.T) {
	router, mock := setupAdminRouter(t, companyUser(7))
	booking := reservedBooking(7, uuid.New())

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).
		WithArgs(booking.ID.String()).
		WillReturnRows(bookingRows(booking))
	mock.ExpectQuery(`FROM payments WHERE booking_id = \$1 FOR UPDATE`).
		WithArgs(booking.ID.String()).
		WillReturnRows(unpaidPaymentRows(booking, models.PaymentMethodCash))
	mock.ExpectRollback()

	w := performRequest(router, http.MethodPatch, "/api/v1/admin/manual-bookings/"+booking.ID.String()+"/status", map[string]string{
		"booking_status":     "CONFIRMED",
		"new_payment_status": "PAID",
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "This booking is not a MANUAL payment booking.", decodeBody(t, w)["detail"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListBookings_PassengerForbidden(t *testing.T) {
	router, mock := setupAdminRouter(t, passengerUser())

	w := performRequest(router, http.MethodGet, "/api/v1/admin/bookings", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListManualBookings_ScopedToCompany(t *testing.T) {
	router, mock := setupAdminRouter(t, companyUser(7))

	// company_id from the query string is ignored for company staff
	mock.ExpectQuery(`FROM bookings b WHERE b.company_id = \$1 AND EXISTS \(SELECT 1 FROM payments p WHERE p.booking_id = b.id AND p.method = \$2\) ORDER BY`).
		WithArgs(int64(7), "MANUAL", 50, 0).
		WillReturnRows(sqlmock.NewRows(bookingCols))

	w := performRequest(router, http.MethodGet, "/api/v1/admin/manual-bookings?company_id=99", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"bookings":[],"count":0}`, w.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListBookings_AdminCompanyFilter(t *testing.T) {
	router, mock := setupAdminRouter(t, adminUser())

	w := performRequest(router, http.MethodGet, "/api/v1/admin/bookings?company_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	mock.ExpectQuery(`FROM bookings b WHERE b.company_id = \$1 AND b.booking_status = \$2 ORDER BY`).
		WithArgs(int64(12), "CONFIRMED", 50, 0).
		WillReturnRows(sqlmock.NewRows(bookingCols))

	w = performRequest(router, http.MethodGet, "/api/v1/admin/bookings?company_id=12&status=CONFIRMED", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTransactions_OtherCompanyForbidden(t *testing.T) {
	router, mock := setupAdminRouter(t, companyUser(99))
	booking := reservedBooking(7, uuid.New())

	mock.ExpectQuery(`FROM bookings WHERE id = \$1$`).
		WithArgs(booking.ID.String()).
		WillReturnRows(bookingRows(booking))

	w := performRequest(router, http.MethodGet, "/api/v1/admin/bookings/"+booking.ID.String()+"/transactions", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmPayment_CompanyStaff(t *testing.T) {
	user := companyUser(7)
	router, mock := setupAdminRouter(t, user)
	booking := reservedBooking(7, uuid.New())

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).
		WithArgs(booking.ID.String()).
		WillReturnRows(bookingRows(booking))
	mock.ExpectQuery(`FROM payments WHERE booking_id = \$1 FOR UPDATE`).
		WithArgs(booking.ID.String()).
		WillReturnRows(unpaidPaymentRows(booking, models.PaymentMethodCash))
	mock.ExpectExec(`UPDATE bookings SET booking_status = \$1, hold_expires_at = NULL`).
		WithArgs("CONFIRMED", booking.ID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM seat_holds WHERE booking_id = \$1`).
		WithArgs(booking.ID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE payments SET amount_paid = \$1, confirmed_by = \$2, status = \$3`).
		WithArgs(1500.0, user.UserID.String(), "PAID", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transactions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM tickets WHERE booking_id = \$1 FOR UPDATE`).
		WillReturnRows(ticketRows(42, booking))
	mock.ExpectExec(`UPDATE tickets SET status = \$1, payment_status = \$2 WHERE id = \$3`).
		WithArgs("Booked", "PAID", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	confirmed := *booking
	confirmed.BookingStatus = models.BookingStatusConfirmed
	mock.ExpectQuery(`FROM bookings WHERE id = \$1$`).WillReturnRows(bookingRows(&confirmed))
	mock.ExpectQuery(`FROM payments WHERE booking_id = \$1$`).WillReturnRows(sqlmock.NewRows(paymentCols).AddRow(
		uuid.NewString(), booking.ID.String(), 1500.0, booking.Currency, "CASH", "PAID",
		nil, nil, user.UserID.String(), nil, []byte(`{}`),
		booking.CreatedAt, booking.UpdatedAt,
	))
	mock.ExpectQuery(`FROM tickets WHERE booking_id = \$1$`).WillReturnRows(sqlmock.NewRows(ticketCols))

	w := performRequest(router, http.MethodPost, "/api/v1/admin/bookings/"+booking.ID.String()+"/confirm-payment", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "CONFIRMED", body["booking_status"])
	payment := body["payment"].(map[string]interface{})
	assert.Equal(t, "PAID", payment["status"])
	assert.Equal(t, user.UserID.String(), payment["confirmed_by"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmPayment_OtherCompanyForbidden(t *testing.T) {
	router, mock := setupAdminRouter(t, companyUser(99))
	booking := reservedBooking(7, uuid.New())

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).
		WithArgs(booking.ID.String()).
		WillReturnRows(bookingRows(booking))
	mock.ExpectQuery(`FROM payments WHERE booking_id = \$1 FOR UPDATE`).
		WithArgs(booking.ID.String()).
		WillReturnRows(unpaidPaymentRows(booking, models.PaymentMethodCash))
	mock.ExpectRollback()

	w := performRequest(router, http.MethodPost, "/api/v1/admin/bookings/"+booking.ID.String()+"/confirm-payment", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
