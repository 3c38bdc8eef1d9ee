package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const ticketColumns = `
	id, booking_id, user_id, company_id,
	passenger_name, passenger_cnic, passenger_contact, passenger_email,
	seats, transport_company, vehicle_number, driver_name, driver_contact,
	route_from, route_to,
	arrival_date::text AS arrival_date, to_char(arrival_time, 'HH24:MI') AS arrival_time,
	price_per_seat, payment_type, ticket_type, status, payment_status, created_at`

// TicketRepository handles ticket database operations
type TicketRepository struct {
	db *sqlx.DB
}

// NewTicketRepository creates a new TicketRepository
func NewTicketRepository(db *sqlx.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// Create inserts a ticket and fills ID and CreatedAt from the database
func (r *TicketRepository) Create(ctx context.Context, q Queryer, t *models.Ticket) error {
	if t.Seats == nil {
		t.Seats = pq.Int64Array{}
	}

	query := `
		INSERT INTO tickets (
			booking_id, user_id, company_id,
			passenger_name, passenger_cnic, passenger_contact, passenger_email,
			seats, transport_company, vehicle_number, driver_name, driver_contact,
			route_from, route_to, arrival_date, arrival_time,
			price_per_seat, payment_type, ticket_type, status, payment_status
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20, $21
		)
		RETURNING id, created_at`

	err := q.QueryRowxContext(ctx, query,
		t.BookingID, t.UserID, t.CompanyID,
		t.PassengerName, t.PassengerCNIC, t.PassengerContact, t.PassengerEmail,
		t.Seats, t.TransportCompany, t.VehicleNumber, t.DriverName, t.DriverContact,
		t.RouteFrom, t.RouteTo, t.ArrivalDate, t.ArrivalTime,
		t.PricePerSeat, t.PaymentType, t.TicketType, t.Status, t.PaymentStatus,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

// GetByID retrieves a ticket. Returns nil, nil when absent.
func (r *TicketRepository) GetByID(ctx context.Context, q Queryer, id int64) (*models.Ticket, error) {
	var ticket models.Ticket
	err := sqlx.GetContext(ctx, q, &ticket, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return &ticket, nil
}

// GetByBookingID retrieves the ticket of a booking. Returns nil, nil when absent.
func (r *TicketRepository) GetByBookingID(ctx context.Context, q Queryer, bookingID uuid.UUID, forUpdate bool) (*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE booking_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var ticket models.Ticket
	err := sqlx.GetContext(ctx, q, &ticket, query, bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket for booking: %w", err)
	}
	return &ticket, nil
}

// GetByBookingIDs loads tickets keyed by booking ID
func (r *TicketRepository) GetByBookingIDs(ctx context.Context, bookingIDs []uuid.UUID) (map[uuid.UUID]*models.Ticket, error) {
	result := make(map[uuid.UUID]*models.Ticket, len(bookingIDs))
	if len(bookingIDs) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT `+ticketColumns+` FROM tickets WHERE booking_id IN (?)`, bookingIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build tickets query: %w", err)
	}
	query = r.db.Rebind(query)

	var tickets []models.Ticket
	if err := sqlx.SelectContext(ctx, r.db, &tickets, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load tickets: %w", err)
	}
	for i := range tickets {
		if tickets[i].BookingID != nil {
			result[*tickets[i].BookingID] = &tickets[i]
		}
	}
	return result, nil
}

// ListByUser returns a passenger's tickets, newest first
func (r *TicketRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	err := sqlx.SelectContext(ctx, r.db, &tickets,
		`SELECT `+ticketColumns+` FROM tickets WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

// UpdateStatuses writes ticket status and payment status
func (r *TicketRepository) UpdateStatuses(ctx context.Context, q Queryer, id int64, status models.TicketStatus, paymentStatus models.PaymentStatus) error {
	_, err := q.ExecContext(ctx,
		`UPDATE tickets SET status = $1, payment_status = $2 WHERE id = $3`,
		status, paymentStatus, id)
	if err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}
	return nil
}
