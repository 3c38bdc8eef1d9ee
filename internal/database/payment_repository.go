package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const paymentColumns = `
	id, booking_id, amount_paid, currency, method, status,
	provider_intent_id, provider_charge_id, confirmed_by, screenshot_url, meta,
	created_at, updated_at`

// updatable payment columns
var paymentFields = map[string]bool{
	"amount_paid":        true,
	"method":             true,
	"status":             true,
	"provider_intent_id": true,
	"provider_charge_id": true,
	"confirmed_by":       true,
	"screenshot_url":     true,
	"meta":               true,
}

// PaymentRepository handles payment database operations
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a payment record
func (r *PaymentRepository) Create(ctx context.Context, q Queryer, p *models.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
		INSERT INTO payments (
			id, booking_id, amount_paid, currency, method, status,
			provider_intent_id, provider_charge_id, confirmed_by, screenshot_url, meta,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := q.ExecContext(ctx, query,
		p.ID, p.BookingID, p.AmountPaid, p.Currency, p.Method, p.Status,
		p.ProviderIntentID, p.ProviderChargeID, p.ConfirmedBy, p.ScreenshotURL, p.Meta,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetByID retrieves a payment by ID. Returns nil, nil when absent.
func (r *PaymentRepository) GetByID(ctx context.Context, q Queryer, id uuid.UUID, forUpdate bool) (*models.Payment, error) {
	return r.getOne(ctx, q, `id = $1`, id, forUpdate)
}

// GetByBookingID retrieves the payment of a booking. Returns nil, nil when absent.
func (r *PaymentRepository) GetByBookingID(ctx context.Context, q Queryer, bookingID uuid.UUID, forUpdate bool) (*models.Payment, error) {
	return r.getOne(ctx, q, `booking_id = $1`, bookingID, forUpdate)
}

func (r *PaymentRepository) getOne(ctx context.Context, q Queryer, where string, arg interface{}, forUpdate bool) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + where
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var payment models.Payment
	err := sqlx.GetContext(ctx, q, &payment, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

// GetByBookingIDs loads payments keyed by booking ID
func (r *PaymentRepository) GetByBookingIDs(ctx context.Context, bookingIDs []uuid.UUID) (map[uuid.UUID]*models.Payment, error) {
	result := make(map[uuid.UUID]*models.Payment, len(bookingIDs))
	if len(bookingIDs) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT `+paymentColumns+` FROM payments WHERE booking_id IN (?)`, bookingIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build payments query: %w", err)
	}
	query = r.db.Rebind(query)

	var payments []models.Payment
	if err := sqlx.SelectContext(ctx, r.db, &payments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}
	for i := range payments {
		result[payments[i].BookingID] = &payments[i]
	}
	return result, nil
}

// UpdateFields writes only the given columns. Column order is deterministic.
func (r *PaymentRepository) UpdateFields(ctx context.Context, q Queryer, id uuid.UUID, changes map[string]interface{}) error {
	if len(changes) == 0 {
		return nil
	}

	columns := make([]string, 0, len(changes))
	for column := range changes {
		if !paymentFields[column] {
			return fmt.Errorf("payment column %q is not updatable", column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	sets := make([]string, 0, len(columns)+1)
	args := make([]interface{}, 0, len(columns)+1)
	for i, column := range columns {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, i+1))
		args = append(args, changes[column])
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE payments SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return nil
}
