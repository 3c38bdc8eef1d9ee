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
	"github.com/lib/pq"
)

// ActiveSeatStatuses are the booking statuses whose seats count as occupied.
// Both the public seat map and the reservation conflict check read through it.
var ActiveSeatStatuses = []string{
	string(models.BookingStatusReserved),
	string(models.BookingStatusConfirmed),
}

const bookingColumns = `
	id, user_id, company_id, vehicle_id,
	passenger_name, passenger_email, passenger_cnic, passenger_phone,
	from_location, to_location,
	arrival_date::text AS arrival_date, to_char(arrival_time, 'HH24:MI') AS arrival_time,
	is_full_vehicle, seat_numbers, seats_booked, total_amount, currency,
	booking_status, hold_expires_at, notes, created_at, updated_at`

// BookingRepository handles booking database operations
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// ============================================================================
// SLOT LOCKING & OCCUPANCY
// ============================================================================

// LockSlot takes a transaction-scoped advisory lock on the slot. Row locks alone
// cannot serialize two reservations on a slot that has no active rows yet.
func (r *BookingRepository) LockSlot(ctx context.Context, tx *sqlx.Tx, slot models.Slot) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, slot.Key()); err != nil {
		return fmt.Errorf("failed to lock slot %s: %w", slot.Key(), err)
	}
	return nil
}

// LockActiveSeats locks the active bookings of a slot and returns their seats
func (r *BookingRepository) LockActiveSeats(ctx context.Context, tx *sqlx.Tx, slot models.Slot) ([]int64, error) {
	return r.occupiedSeats(ctx, tx, slot, true)
}

// GetOccupiedSeats returns the seats taken in a slot without locking
func (r *BookingRepository) GetOccupiedSeats(ctx context.Context, slot models.Slot) ([]int64, error) {
	return r.occupiedSeats(ctx, r.db, slot, false)
}

func (r *BookingRepository) occupiedSeats(ctx context.Context, q Queryer, slot models.Slot, forUpdate bool) ([]int64, error) {
	query := `
		SELECT seat_numbers
		FROM bookings
		WHERE vehicle_id = $1
		  AND arrival_date = $2
		  AND arrival_time = $3
		  AND booking_status = ANY($4)`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rows, err := q.QueryxContext(ctx, query, slot.VehicleID, slot.ArrivalDate, slot.ArrivalTime, pq.Array(ActiveSeatStatuses))
	if err != nil {
		return nil, fmt.Errorf("failed to query occupied seats: %w", err)
	}
	defer rows.Close()

	taken := make(map[int64]struct{})
	for rows.Next() {
		var seats pq.Int64Array
		if err := rows.Scan(&seats); err != nil {
			return nil, fmt.Errorf("failed to scan seat numbers: %w", err)
		}
		for _, seat := range seats {
			taken[seat] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]int64, 0, len(taken))
	for seat := range taken {
		result = append(result, seat)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

// ============================================================================
// BOOKING CRUD OPERATIONS
// ============================================================================

// Create inserts a booking. ID and timestamps are set when empty.
func (r *BookingRepository) Create(ctx context.Context, q Queryer, b *models.Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.SeatNumbers == nil {
		b.SeatNumbers = pq.Int64Array{}
	}

	query := `
		INSERT INTO bookings (
			id, user_id, company_id, vehicle_id,
			passenger_name, passenger_email, passenger_cnic, passenger_phone,
			from_location, to_location, arrival_date, arrival_time,
			is_full_vehicle, seat_numbers, seats_booked, total_amount, currency,
			booking_status, hold_expires_at, notes, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22
		)`

	_, err := q.ExecContext(ctx, query,
		b.ID, b.UserID, b.CompanyID, b.VehicleID,
		b.PassengerName, b.PassengerEmail, b.PassengerCNIC, b.PassengerPhone,
		b.FromLocation, b.ToLocation, b.ArrivalDate, b.ArrivalTime,
		b.IsFullVehicle, b.SeatNumbers, b.SeatsBooked, b.TotalAmount, b.Currency,
		b.BookingStatus, b.HoldExpiresAt, b.Notes, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetByID retrieves a booking by ID. Returns nil, nil when absent.
func (r *BookingRepository) GetByID(ctx context.Context, q Queryer, id uuid.UUID) (*models.Booking, error) {
	return r.getByID(ctx, q, id, false)
}

// GetByIDForUpdate retrieves and row-locks a booking inside tx
func (r *BookingRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.Booking, error) {
	return r.getByID(ctx, tx, id, true)
}

func (r *BookingRepository) getByID(ctx context.Context, q Queryer, id uuid.UUID, forUpdate bool) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var booking models.Booking
	err := sqlx.GetContext(ctx, q, &booking, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// UpdateStatus sets booking_status. clearHold also nulls hold_expires_at.
func (r *BookingRepository) UpdateStatus(ctx context.Context, q Queryer, id uuid.UUID, status models.BookingStatus, clearHold bool) error {
	query := `UPDATE bookings SET booking_status = $1, updated_at = NOW() WHERE id = $2`
	if clearHold {
		query = `UPDATE bookings SET booking_status = $1, hold_expires_at = NULL, updated_at = NOW() WHERE id = $2`
	}
	if _, err := q.ExecContext(ctx, query, status, id); err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	return nil
}

// List returns bookings matching the filter, newest first
func (r *BookingRepository) List(ctx context.Context, filter models.BookingListFilter) ([]models.Booking, error) {
	var (
		conditions []string
		args       []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.CompanyID != nil {
		add("b.company_id = $%d", *filter.CompanyID)
	}
	if filter.UserID != nil {
		add("b.user_id = $%d", *filter.UserID)
	}
	if filter.Status != nil {
		add("b.booking_status = $%d", *filter.Status)
	}
	if filter.Method != nil {
		add("EXISTS (SELECT 1 FROM payments p WHERE p.booking_id = b.id AND p.method = $%d)", *filter.Method)
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings b`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY b.created_at DESC`

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	var bookings []models.Booking
	if err := sqlx.SelectContext(ctx, r.db, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// ============================================================================
// HOLD EXPIRY
// ============================================================================

// GetExpiredHoldIDs returns RESERVED bookings whose hold lapsed and whose
// payment has not been collected
func (r *BookingRepository) GetExpiredHoldIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT b.id
		FROM bookings b
		LEFT JOIN payments p ON p.booking_id = b.id
		WHERE b.booking_status = $1
		  AND b.hold_expires_at IS NOT NULL
		  AND b.hold_expires_at < $2
		  AND (p.status IS NULL OR p.status <> $3)
		ORDER BY b.hold_expires_at ASC
		LIMIT $4`

	var ids []uuid.UUID
	err := sqlx.SelectContext(ctx, r.db, &ids, query,
		models.BookingStatusReserved, now, models.PaymentStatusPaid, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired holds: %w", err)
	}
	return ids, nil
}
