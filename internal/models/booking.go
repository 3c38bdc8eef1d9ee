package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ============================================================================
// BOOKING STATUSES
// ============================================================================

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusReserved  BookingStatus = "RESERVED"  // Seats held, waiting for payment
	BookingStatusConfirmed BookingStatus = "CONFIRMED" // Payment received, seats stay taken
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusExpired   BookingStatus = "EXPIRED" // Hold lapsed without payment
	BookingStatusFailed    BookingStatus = "FAILED"
)

// IsValid reports whether s is a known booking status
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusReserved, BookingStatusConfirmed,
		BookingStatusCancelled, BookingStatusExpired, BookingStatusFailed:
		return true
	}
	return false
}

// OccupiesSeats reports whether bookings in this status count against the seat map
func (s BookingStatus) OccupiesSeats() bool {
	return s == BookingStatusReserved || s == BookingStatusConfirmed
}

// ReleasesHold reports whether entering this status ends the seat hold
func (s BookingStatus) ReleasesHold() bool {
	switch s {
	case BookingStatusConfirmed, BookingStatusCancelled, BookingStatusExpired, BookingStatusFailed:
		return true
	}
	return false
}

// ============================================================================
// SLOT
// ============================================================================

// Slot identifies one departure of a vehicle. Seat conflicts are scoped to a slot.
type Slot struct {
	VehicleID   int64
	ArrivalDate string // YYYY-MM-DD
	ArrivalTime string // HH:MM
}

// Key returns a stable identifier used for slot-level locking. Equal
// departures spelled differently ("9:30", "09:30:00") share one key.
func (s Slot) Key() string {
	if n, err := s.Normalize(); err == nil {
		s = n
	}
	return fmt.Sprintf("slot:%d:%s:%s", s.VehicleID, s.ArrivalDate, s.ArrivalTime)
}

// Validate checks the slot date/time formats
func (s Slot) Validate() error {
	_, err := s.Normalize()
	return err
}

// Normalize validates the slot and returns it with the date as YYYY-MM-DD and
// the time as HH:MM. Times with non-zero seconds are rejected.
func (s Slot) Normalize() (Slot, error) {
	if s.VehicleID <= 0 || s.ArrivalDate == "" || s.ArrivalTime == "" {
		return s, NewInvalidRequest("Missing required fields")
	}
	date, err := time.Parse("2006-01-02", s.ArrivalDate)
	if err != nil {
		return s, NewInvalidRequest("Invalid arrival_date, expected YYYY-MM-DD")
	}
	clock, err := parseClock(s.ArrivalTime)
	if err != nil || clock.Second() != 0 {
		return s, NewInvalidRequest("Invalid arrival_time, expected HH:MM")
	}
	s.ArrivalDate = date.Format("2006-01-02")
	s.ArrivalTime = clock.Format("15:04")
	return s, nil
}

// parseClock accepts HH:MM and HH:MM:SS
func parseClock(value string) (time.Time, error) {
	if t, err := time.Parse("15:04", value); err == nil {
		return t, nil
	}
	return time.Parse("15:04:05", value)
}

// ArrivalDateTime combines the slot date and time in the given location
func (s Slot) ArrivalDateTime(loc *time.Location) (time.Time, error) {
	date, err := time.ParseInLocation("2006-01-02", s.ArrivalDate, loc)
	if err != nil {
		return time.Time{}, err
	}
	clock, err := parseClock(s.ArrivalTime)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute(), clock.Second(), 0, loc), nil
}

// ============================================================================
// BOOKING
// ============================================================================

// Booking is the aggregate root for a reservation
type Booking struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	UserID         uuid.UUID     `json:"user_id" db:"user_id"`
	CompanyID      int64         `json:"company_id" db:"company_id"`
	VehicleID      int64         `json:"vehicle_id" db:"vehicle_id"`
	PassengerName  string        `json:"passenger_name" db:"passenger_name"`
	PassengerEmail *string       `json:"passenger_email,omitempty" db:"passenger_email"`
	PassengerCNIC  *string       `json:"passenger_cnic,omitempty" db:"passenger_cnic"`
	PassengerPhone string        `json:"passenger_phone" db:"passenger_phone"`
	FromLocation   *string       `json:"from_location,omitempty" db:"from_location"`
	ToLocation     *string       `json:"to_location,omitempty" db:"to_location"`
	ArrivalDate    string        `json:"arrival_date" db:"arrival_date"`
	ArrivalTime    string        `json:"arrival_time" db:"arrival_time"`
	IsFullVehicle  bool          `json:"is_full_vehicle" db:"is_full_vehicle"`
	SeatNumbers    pq.Int64Array `json:"seat_numbers" db:"seat_numbers"`
	SeatsBooked    int           `json:"seats_booked" db:"seats_booked"`
	TotalAmount    float64       `json:"total_amount" db:"total_amount"`
	Currency       string        `json:"currency" db:"currency"`
	BookingStatus  BookingStatus `json:"booking_status" db:"booking_status"`
	HoldExpiresAt  *time.Time    `json:"hold_expires_at" db:"hold_expires_at"`
	Notes          *string       `json:"notes,omitempty" db:"notes"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// Slot returns the departure this booking belongs to
func (b *Booking) Slot() Slot {
	return Slot{VehicleID: b.VehicleID, ArrivalDate: b.ArrivalDate, ArrivalTime: b.ArrivalTime}
}

// IsHoldActive reports whether the booking still holds its seats unpaid
func (b *Booking) IsHoldActive(now time.Time) bool {
	return b.BookingStatus == BookingStatusReserved && b.HoldExpiresAt != nil && b.HoldExpiresAt.After(now)
}

// BookingDetail is the joined Booking + Payment + Ticket view
type BookingDetail struct {
	Booking
	Payment *Payment `json:"payment"`
	Ticket  *Ticket  `json:"ticket"`
}

// ============================================================================
// REQUEST / RESPONSE DTOs
// ============================================================================

// SeatList accepts seat numbers as JSON numbers or numeric strings
type SeatList []int64

// UnmarshalJSON implements json.Unmarshaler
func (s *SeatList) UnmarshalJSON(data []byte) error {
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("seat_numbers must be a list: %w", err)
	}
	seats := make(SeatList, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case float64:
			if v != float64(int64(v)) {
				return fmt.Errorf("invalid seat number %v", v)
			}
			seats = append(seats, int64(v))
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid seat number %q", v)
			}
			seats = append(seats, n)
		default:
			return fmt.Errorf("invalid seat number %v", item)
		}
	}
	*s = seats
	return nil
}

// CreateSeatBookingRequest is the request body for POST /bookings
type CreateSeatBookingRequest struct {
	VehicleID      int64         `json:"vehicle_id" binding:"required"`
	CompanyID      int64         `json:"company_id" binding:"required"`
	ArrivalDate    string        `json:"arrival_date" binding:"required"`
	ArrivalTime    string        `json:"arrival_time" binding:"required"`
	SeatNumbers    SeatList      `json:"seat_numbers"`
	PassengerName  string        `json:"passenger_name"`
	PassengerEmail *string       `json:"passenger_email,omitempty" binding:"omitempty,email"`
	PassengerCNIC  *string       `json:"passenger_cnic,omitempty"`
	PassengerPhone string        `json:"passenger_phone" binding:"omitempty,pk_phone"`
	FromLocation   *string       `json:"from_location,omitempty"`
	ToLocation     *string       `json:"to_location,omitempty"`
	TotalAmount    float64       `json:"total_amount" binding:"gte=0"`
	Method         PaymentMethod `json:"method,omitempty"`
}

// Slot returns the requested departure
func (r *CreateSeatBookingRequest) Slot() Slot {
	return Slot{VehicleID: r.VehicleID, ArrivalDate: r.ArrivalDate, ArrivalTime: r.ArrivalTime}
}

// Validate enforces rules that binding tags cannot express
func (r *CreateSeatBookingRequest) Validate() error {
	if r.CompanyID <= 0 {
		return NewInvalidRequest("Missing required fields")
	}
	slot, err := r.Slot().Normalize()
	if err != nil {
		return err
	}
	r.ArrivalDate, r.ArrivalTime = slot.ArrivalDate, slot.ArrivalTime

	if len(r.SeatNumbers) == 0 {
		return NewInvalidRequest("No seats selected")
	}
	seen := make(map[int64]struct{}, len(r.SeatNumbers))
	for _, seat := range r.SeatNumbers {
		if seat <= 0 {
			return NewInvalidRequest("Invalid seat numbers")
		}
		if _, dup := seen[seat]; dup {
			return NewInvalidRequest("Duplicate seat numbers")
		}
		seen[seat] = struct{}{}
	}
	if r.Method != "" && !r.Method.IsValid() {
		return NewInvalidRequest("Invalid payment method")
	}
	return nil
}

// DurationType scales the hold of a full-vehicle booking
type DurationType string

const (
	DurationHourly DurationType = "hourly"
	DurationDaily  DurationType = "daily"
	DurationWeekly DurationType = "weekly"
)

// CreateFullVehicleBookingRequest is the request body for POST /bookings/full-vehicle
type CreateFullVehicleBookingRequest struct {
	VehicleID      int64         `json:"vehicle_id" binding:"required"`
	CompanyID      int64         `json:"company_id" binding:"required"`
	ArrivalDate    string        `json:"arrival_date" binding:"required"`
	ArrivalTime    string        `json:"arrival_time" binding:"required"`
	PassengerName  string        `json:"passenger_name" binding:"required"`
	PassengerPhone string        `json:"passenger_phone" binding:"required,pk_phone"`
	TotalAmount    *float64      `json:"total_amount" binding:"required,gte=0"`
	DriverName     string        `json:"driver_name" binding:"required"`
	DriverContact  string        `json:"driver_contact" binding:"required"`
	PassengerEmail *string       `json:"passenger_email,omitempty" binding:"omitempty,email"`
	PassengerCNIC  *string       `json:"passenger_cnic,omitempty"`
	FromLocation   *string       `json:"from_location,omitempty"`
	ToLocation     *string       `json:"to_location,omitempty"`
	CompanyName    *string       `json:"company_name,omitempty"`
	Currency       string        `json:"currency,omitempty"`
	PaymentMethod  PaymentMethod `json:"payment_method,omitempty"`
	Screenshot     string        `json:"screenshot,omitempty"`
	TransactionID  string        `json:"transaction_id,omitempty"`
	DurationType   DurationType  `json:"duration_type,omitempty"`
	DurationValue  int           `json:"duration_value,omitempty"`
}

// Slot returns the requested departure
func (r *CreateFullVehicleBookingRequest) Slot() Slot {
	return Slot{VehicleID: r.VehicleID, ArrivalDate: r.ArrivalDate, ArrivalTime: r.ArrivalTime}
}

// NormalizeSlot rewrites the arrival date and time in canonical form when they
// parse. Unparsable values are left as sent.
func (r *CreateFullVehicleBookingRequest) NormalizeSlot() bool {
	slot, err := r.Slot().Normalize()
	if err != nil {
		return false
	}
	r.ArrivalDate, r.ArrivalTime = slot.ArrivalDate, slot.ArrivalTime
	return true
}

// SeatBookingResponse is returned after a seat-based reservation
type SeatBookingResponse struct {
	*Booking
	TicketID int64 `json:"ticket_id"`
}

// FullVehicleBookingResponse is returned after a full-vehicle reservation
type FullVehicleBookingResponse struct {
	Detail          string        `json:"detail"`
	BookingID       uuid.UUID     `json:"booking_id"`
	PaymentID       uuid.UUID     `json:"payment_id"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	ScreenshotSaved bool          `json:"screenshot_saved"`
	ScreenshotError *string       `json:"screenshot_error,omitempty"`
	TicketCreated   bool          `json:"ticket_created"`
	TicketID        *int64        `json:"ticket_id"`
	TicketError     *string       `json:"ticket_error,omitempty"`
	HoldExpiresAt   time.Time     `json:"hold_expires_at"`
}

// StatusUpdateRequest is the body of PATCH .../status
type StatusUpdateRequest struct {
	BookingStatus    BookingStatus `json:"booking_status" binding:"required,booking_status"`
	NewPaymentStatus PaymentStatus `json:"new_payment_status" binding:"required,payment_status"`
}

// BookingListFilter narrows admin booking lists
type BookingListFilter struct {
	CompanyID *int64
	UserID    *uuid.UUID
	Method    *PaymentMethod
	Status    *BookingStatus
	Limit     int
	Offset    int
}
