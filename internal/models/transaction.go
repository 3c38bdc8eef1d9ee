package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the kind of money movement
type TransactionType string

const (
	TransactionTypePayment    TransactionType = "PAYMENT"
	TransactionTypeRefund     TransactionType = "REFUND"
	TransactionTypeAdjustment TransactionType = "ADJUSTMENT"
)

// TransactionStatus is the outcome of a money movement
type TransactionStatus string

const (
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
	TransactionStatusPending TransactionStatus = "PENDING"
)

// Providers recorded on transactions
const (
	ProviderStripe = "Stripe"
	ProviderCash   = "Cash"
	ProviderManual = "Manual"
	ProviderSystem = "System"
)

// ProviderFor returns the provider label for a payment method
func ProviderFor(method PaymentMethod) string {
	switch method {
	case PaymentMethodManual:
		return ProviderManual
	case PaymentMethodCard:
		return ProviderStripe
	default:
		return ProviderCash
	}
}

// Transaction is an immutable audit log entry of a money movement.
// Amount is signed: positive for payments, negative for refunds.
type Transaction struct {
	ID              uuid.UUID         `json:"id" db:"id"`
	BookingID       uuid.UUID         `json:"booking_id" db:"booking_id"`
	PaymentID       *uuid.UUID        `json:"payment_id,omitempty" db:"payment_id"`
	Amount          float64           `json:"amount" db:"amount"`
	TransactionType TransactionType   `json:"transaction_type" db:"transaction_type"`
	Provider        string            `json:"provider" db:"provider"`
	ProviderTxnID   *string           `json:"provider_txn_id,omitempty" db:"provider_txn_id"`
	Status          TransactionStatus `json:"status" db:"status"`
	ProcessedBy     *uuid.UUID        `json:"processed_by,omitempty" db:"processed_by"`
	Meta            JSONB             `json:"meta,omitempty" db:"meta"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
}

// NewTransaction creates a new transaction entry with required fields
func NewTransaction(bookingID uuid.UUID, txnType TransactionType, status TransactionStatus) *Transaction {
	return &Transaction{
		ID:              uuid.New(),
		BookingID:       bookingID,
		TransactionType: txnType,
		Status:          status,
		Meta:            JSONB{},
		CreatedAt:       time.Now(),
	}
}

// SetPayment links the entry to its payment record
func (t *Transaction) SetPayment(paymentID uuid.UUID) *Transaction {
	t.PaymentID = &paymentID
	return t
}

// SetAmount sets the signed amount
func (t *Transaction) SetAmount(amount float64) *Transaction {
	t.Amount = amount
	return t
}

// SetProvider sets the provider and its reference
func (t *Transaction) SetProvider(provider, providerTxnID string) *Transaction {
	t.Provider = provider
	if providerTxnID != "" {
		t.ProviderTxnID = &providerTxnID
	}
	return t
}

// SetProcessedBy records the staff member or passenger behind the event
func (t *Transaction) SetProcessedBy(userID *uuid.UUID) *Transaction {
	if userID != nil {
		id := *userID
		t.ProcessedBy = &id
	}
	return t
}

// SetMeta adds one metadata entry
func (t *Transaction) SetMeta(key string, value interface{}) *Transaction {
	if t.Meta == nil {
		t.Meta = JSONB{}
	}
	t.Meta[key] = value
	return t
}
