package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// EventCheckoutSessionCompleted is the only provider event that moves money
const EventCheckoutSessionCompleted = "checkout.session.completed"

// Webhook outcomes reported back to the provider
const (
	WebhookProcessed        = "processed"
	WebhookAlreadyProcessed = "already_processed"
	WebhookIgnored          = "ignored"
	WebhookSeatsUnavailable = "seats_unavailable"
)

var (
	ErrWebhookSecretMissing   = errors.New("webhook secret is not configured")
	ErrInvalidSignatureHeader = errors.New("invalid signature header")
	ErrSignatureExpired       = errors.New("signature timestamp outside tolerance")
	ErrSignatureMismatch      = errors.New("no matching signature")
)

// ============================================================================
// SIGNATURE VERIFICATION
// ============================================================================

// SignatureVerifier checks Stripe-Signature headers: t=<unix>,v1=<hex hmac>.
// The HMAC-SHA256 covers "<t>.<payload>".
type SignatureVerifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewSignatureVerifier creates a verifier. An empty secret rejects every event.
func NewSignatureVerifier(secret string, tolerance time.Duration) *SignatureVerifier {
	return &SignatureVerifier{secret: secret, tolerance: tolerance, now: time.Now}
}

// Verify returns nil when one v1 signature matches and the timestamp is fresh
func (v *SignatureVerifier) Verify(payload []byte, header string) error {
	if v.secret == "" {
		return ErrWebhookSecretMissing
	}

	var (
		timestamp  int64
		signatures []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrInvalidSignatureHeader
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == 0 || len(signatures) == 0 {
		return ErrInvalidSignatureHeader
	}

	if v.tolerance > 0 && v.now().Sub(time.Unix(timestamp, 0)) > v.tolerance {
		return ErrSignatureExpired
	}

	expected := []byte(v.sign(payload, timestamp))
	for _, sig := range signatures {
		if hmac.Equal(expected, []byte(sig)) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

func (v *SignatureVerifier) sign(payload []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ============================================================================
// WEBHOOK PROCESSING
// ============================================================================

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSession struct {
	ID            string            `json:"id"`
	PaymentIntent *string           `json:"payment_intent"`
	AmountTotal   *int64            `json:"amount_total"`
	Metadata      map[string]string `json:"metadata"`
}

// WebhookResult is acknowledged to the provider with 200
type WebhookResult struct {
	EventID   string     `json:"event_id,omitempty"`
	EventType string     `json:"event_type"`
	Status    string     `json:"status"`
	BookingID *uuid.UUID `json:"booking_id,omitempty"`
}

// PaymentWebhookService applies provider payment notifications
type PaymentWebhookService struct {
	sync     *StatusSyncService
	repos    *Repositories
	verifier *SignatureVerifier
	logger   *logrus.Logger
}

// NewPaymentWebhookService creates a new PaymentWebhookService
func NewPaymentWebhookService(sync *StatusSyncService, repos *Repositories, verifier *SignatureVerifier, logger *logrus.Logger) *PaymentWebhookService {
	return &PaymentWebhookService{
		sync:     sync,
		repos:    repos,
		verifier: verifier,
		logger:   logger,
	}
}

// HandleWebhook verifies and applies one provider event. Redelivered events
// are acknowledged without effect.
func (s *PaymentWebhookService) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error) {
	if err := s.verifier.Verify(payload, signatureHeader); err != nil {
		s.logger.WithError(err).Warn("Rejected webhook with invalid signature")
		return nil, models.NewExternalVerificationFailure("Invalid signature.", err)
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, models.NewInvalidRequest("Invalid payload.")
	}

	result := &WebhookResult{EventID: event.ID, EventType: event.Type, Status: WebhookIgnored}
	if event.Type != EventCheckoutSessionCompleted {
		s.logger.WithField("event_type", event.Type).Debug("Webhook event ignored")
		return result, nil
	}

	var session checkoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, models.NewInvalidRequest("Invalid checkout session payload.")
	}

	bookingID, err := uuid.Parse(session.Metadata["booking_id"])
	if err != nil {
		return nil, models.NewInvalidRequest("Missing or invalid booking_id metadata.")
	}
	paymentID, err := uuid.Parse(session.Metadata["payment_id"])
	if err != nil {
		return nil, models.NewInvalidRequest("Missing or invalid payment_id metadata.")
	}
	result.BookingID = &bookingID

	chargeID := session.ID
	if session.PaymentIntent != nil && *session.PaymentIntent != "" {
		chargeID = *session.PaymentIntent
	}

	var amount *float64
	if session.AmountTotal != nil && *session.AmountTotal > 0 {
		collected := float64(*session.AmountTotal) / 100
		amount = &collected
	}

	log := s.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"booking_id": bookingID,
		"payment_id": paymentID,
		"charge_id":  chargeID,
	})

	skipped := false
	out, err := s.sync.execute(ctx, bookingID, "", s.completionPlan(ctx, paymentID, chargeID, amount, false, &skipped))
	if models.IsKind(err, models.ErrKindSeatConflict) {
		// Money was collected after the seats went to someone else. Record the
		// payment and leave the booking for staff to refund.
		log.WithError(err).Error("Paid booking lost its seats, payment recorded for refund")
		out, err = s.sync.execute(ctx, bookingID, "", s.completionPlan(ctx, paymentID, chargeID, amount, true, &skipped))
		if err == nil {
			result.Status = WebhookSeatsUnavailable
			return result, nil
		}
	}
	if err != nil {
		return nil, err
	}

	if skipped || out == nil {
		log.Info("Webhook already processed")
		result.Status = WebhookAlreadyProcessed
		return result, nil
	}

	log.WithField("amount", out.Payment.AmountPaid).Info("Card payment confirmed")
	result.Status = WebhookProcessed
	return result, nil
}

// completionPlan confirms the booking and marks the card payment PAID.
// keepBooking records the payment without touching the booking status.
func (s *PaymentWebhookService) completionPlan(ctx context.Context, paymentID uuid.UUID, chargeID string, amount *float64, keepBooking bool, skipped *bool) planFunc {
	return func(tx *sqlx.Tx, booking *models.Booking, payment *models.Payment) (*transition, error) {
		if payment == nil || payment.ID != paymentID {
			return nil, models.NewNotFound("Payment not found.")
		}
		if payment.Status == models.PaymentStatusPaid {
			*skipped = true
			return nil, nil
		}

		count, err := s.repos.Transactions.CountSuccessful(ctx, tx, models.ProviderStripe, chargeID)
		if err != nil {
			return nil, fmt.Errorf("failed to check provider reference: %w", err)
		}
		if count > 0 {
			*skipped = true
			return nil, nil
		}

		target := models.BookingStatusConfirmed
		if keepBooking {
			target = booking.BookingStatus
		}
		return &transition{
			BookingStatus: target,
			PaymentStatus: models.PaymentStatusPaid,
			Actor:         SystemActor(),
			Method:        models.PaymentMethodCard,
			Amount:        amount,
			Provider:      models.ProviderStripe,
			ProviderTxnID: chargeID,
			ChargeID:      chargeID,
			Reason:        EventCheckoutSessionCompleted,
		}, nil
	}
}
