package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ctmsgb/booking-backend/internal/events"
	"github.com/ctmsgb/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

func setupWebhookRouter(t *testing.T, secret string) (*gin.Engine, sqlmock.Sqlmock) {
	repos, mock := newMockRepos(t)
	logger := testLogger()

	sync := services.NewStatusSyncService(repos, events.Discard{}, logger)
	webhooks := services.NewPaymentWebhookService(sync, repos, services.NewSignatureVerifier(secret, 5*time.Minute), logger)

	router := newTestRouter(t, nil)
	router.POST("/api/v1/payments/webhook", NewPaymentWebhookHandler(webhooks, logger).HandleWebhook)
	return router, mock
}

func signedWebhook(t *testing.T, payload string, secret string) *http.Request {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	return req
}

func TestHandleWebhook_IgnoresOtherEvents(t *testing.T) {
	router, mock := setupWebhookRouter(t, testWebhookSecret)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedWebhook(t, `{"id":"evt_1","type":"payment_intent.created","data":{"object":{}}}`, testWebhookSecret))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "ignored", body["status"])
	assert.Equal(t, "evt_1", body["event_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWebhook_RejectsBadSignature(t *testing.T) {
	router, mock := setupWebhookRouter(t, testWebhookSecret)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedWebhook(t, `{"id":"evt_1","type":"checkout.session.completed"}`, "whsec_other"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid signature.", decodeBody(t, w)["detail"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWebhook_RejectsWhenSecretMissing(t *testing.T) {
	router, mock := setupWebhookRouter(t, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedWebhook(t, `{"id":"evt_1","type":"checkout.session.completed"}`, testWebhookSecret))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWebhook_UnknownBooking(t *testing.T) {
	router, mock := setupWebhookRouter(t, testWebhookSecret)
	bookingID, paymentID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).
		WithArgs(bookingID.String()).
		WillReturnRows(sqlmock.NewRows(bookingCols))
	mock.ExpectRollback()

	payload := fmt.Sprintf(`{"id":"evt_2","type":"checkout.session.completed","data":{"object":{"id":"cs_1","payment_intent":"pi_1","amount_total":150000,"metadata":{"booking_id":"%s","payment_id":"%s"}}}}`, bookingID, paymentID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedWebhook(t, payload, testWebhookSecret))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
