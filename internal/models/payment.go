package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the state of the single payment record of a booking
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "UNPAID"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// IsValid reports whether s is a known payment status
func (s PaymentStatus) IsValid() bool {
	return s == PaymentStatusUnpaid || s == PaymentStatusPaid || s == PaymentStatusRefunded
}

// PaymentMethod is how the passenger pays
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "CASH"
	PaymentMethodManual PaymentMethod = "MANUAL" // bank transfer with proof screenshot
	PaymentMethodCard   PaymentMethod = "CARD"   // hosted provider checkout
)

// IsValid reports whether m is a known payment method
func (m PaymentMethod) IsValid() bool {
	return m == PaymentMethodCash || m == PaymentMethodManual || m == PaymentMethodCard
}

// IsStaffVerified reports whether staff confirm this method by hand
func (m PaymentMethod) IsStaffVerified() bool {
	return m == PaymentMethodCash || m == PaymentMethodManual
}

// TicketLabel is the payment_type shown on tickets
func (m PaymentMethod) TicketLabel() string {
	switch m {
	case PaymentMethodManual:
		return "Manual"
	case PaymentMethodCard:
		return "Card"
	default:
		return "Cash"
	}
}

// Payment is the monetary record of a booking (1:1)
type Payment struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	BookingID        uuid.UUID     `json:"booking_id" db:"booking_id"`
	AmountPaid       float64       `json:"amount_paid" db:"amount_paid"`
	Currency         string        `json:"currency" db:"currency"`
	Method           PaymentMethod `json:"method" db:"method"`
	Status           PaymentStatus `json:"status" db:"status"`
	ProviderIntentID *string       `json:"provider_intent_id,omitempty" db:"provider_intent_id"`
	ProviderChargeID *string       `json:"provider_charge_id,omitempty" db:"provider_charge_id"`
	ConfirmedBy      *uuid.UUID    `json:"confirmed_by,omitempty" db:"confirmed_by"`
	ScreenshotURL    *string       `json:"screenshot_url,omitempty" db:"screenshot_url"`
	Meta             JSONB         `json:"meta,omitempty" db:"meta"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// NewPayment creates an UNPAID payment for a booking
func NewPayment(booking *Booking, method PaymentMethod) *Payment {
	now := time.Now()
	return &Payment{
		ID:         uuid.New(),
		BookingID:  booking.ID,
		AmountPaid: 0,
		Currency:   booking.Currency,
		Method:     method,
		Status:     PaymentStatusUnpaid,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CheckoutSessionResponse is returned when a card checkout is started
type CheckoutSessionResponse struct {
	BookingID   uuid.UUID `json:"booking_id"`
	PaymentID   uuid.UUID `json:"payment_id"`
	SessionID   string    `json:"session_id"`
	CheckoutURL string    `json:"checkout_url"`
}
