package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/google/uuid"
)

// SeatHoldRepository handles seat hold rows
type SeatHoldRepository struct{}

// NewSeatHoldRepository creates a new SeatHoldRepository
func NewSeatHoldRepository() *SeatHoldRepository {
	return &SeatHoldRepository{}
}

// Create inserts the hold of a booking
func (r *SeatHoldRepository) Create(ctx context.Context, q Queryer, hold *models.SeatHold) error {
	if hold.ID == uuid.Nil {
		hold.ID = uuid.New()
	}
	hold.CreatedAt = time.Now()

	_, err := q.ExecContext(ctx, `
		INSERT INTO seat_holds (id, booking_id, reserved_seats, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		hold.ID, hold.BookingID, hold.ReservedSeats, hold.ExpiresAt, hold.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create seat hold: %w", err)
	}
	return nil
}

// DeleteByBooking removes the hold of a booking and reports how many rows went
func (r *SeatHoldRepository) DeleteByBooking(ctx context.Context, q Queryer, bookingID uuid.UUID) (int64, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM seat_holds WHERE booking_id = $1`, bookingID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete seat hold: %w", err)
	}
	return result.RowsAffected()
}
