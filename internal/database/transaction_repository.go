package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// TransactionRepository handles the append-only money movement log
type TransactionRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sqlx.DB, logger *logrus.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a transaction entry. Entries are never updated afterwards.
func (r *TransactionRepository) Create(ctx context.Context, q Queryer, txn *models.Transaction) error {
	if txn == nil {
		return fmt.Errorf("transaction entry cannot be nil")
	}

	// Ensure ID and timestamp are set
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO transactions (
			id, booking_id, payment_id, amount, transaction_type,
			provider, provider_txn_id, status, processed_by, meta, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := q.ExecContext(ctx, query,
		txn.ID, txn.BookingID, txn.PaymentID, txn.Amount, txn.TransactionType,
		txn.Provider, txn.ProviderTxnID, txn.Status, txn.ProcessedBy, txn.Meta, txn.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id":       txn.BookingID,
			"transaction_type": txn.TransactionType,
			"provider":         txn.Provider,
		}).Error("Failed to append transaction")
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"transaction_id":   txn.ID,
		"booking_id":       txn.BookingID,
		"transaction_type": txn.TransactionType,
		"status":           txn.Status,
		"amount":           txn.Amount,
	}).Debug("Transaction appended")

	return nil
}

// ListByBooking retrieves all entries for a booking, oldest first
func (r *TransactionRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Transaction, error) {
	txns := []models.Transaction{}
	query := `
		SELECT id, booking_id, payment_id, amount, transaction_type,
			provider, provider_txn_id, status, processed_by, meta, created_at
		FROM transactions
		WHERE booking_id = $1
		ORDER BY created_at ASC`

	if err := sqlx.SelectContext(ctx, r.db, &txns, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to get transactions by booking: %w", err)
	}
	return txns, nil
}

// CountSuccessful counts SUCCESS entries for a provider reference
func (r *TransactionRepository) CountSuccessful(ctx context.Context, q Queryer, provider, providerTxnID string) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM transactions
		WHERE provider = $1
		  AND provider_txn_id = $2
		  AND status = $3`

	if err := sqlx.GetContext(ctx, q, &count, query, provider, providerTxnID, models.TransactionStatusSuccess); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}
