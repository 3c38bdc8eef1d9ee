package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// TicketStatus is the passenger-facing ticket state
type TicketStatus string

const (
	TicketStatusBooked    TicketStatus = "Booked"
	TicketStatusReserved  TicketStatus = "Reserved"
	TicketStatusCancelled TicketStatus = "Cancelled"
	TicketStatusCompleted TicketStatus = "Completed"
)

// TicketType distinguishes seat tickets from whole-vehicle hires
type TicketType string

const (
	TicketTypeFullVehicle TicketType = "FULLVEHICLE"
	TicketTypeSeatBooking TicketType = "SEATBOOKING"
)

// TicketStatusFor maps a booking status to the ticket status shown to passengers
func TicketStatusFor(status BookingStatus) TicketStatus {
	switch status {
	case BookingStatusConfirmed:
		return TicketStatusBooked
	case BookingStatusCancelled:
		return TicketStatusCancelled
	case BookingStatusReserved:
		return TicketStatusReserved
	default:
		return TicketStatusReserved
	}
}

// Ticket denormalizes booking, transport and payment state for display
type Ticket struct {
	ID               int64         `json:"id" db:"id"`
	BookingID        *uuid.UUID    `json:"booking_id,omitempty" db:"booking_id"`
	UserID           uuid.UUID     `json:"user_id" db:"user_id"`
	CompanyID        int64         `json:"company_id" db:"company_id"`
	PassengerName    string        `json:"passenger_name" db:"passenger_name"`
	PassengerCNIC    *string       `json:"passenger_cnic,omitempty" db:"passenger_cnic"`
	PassengerContact string        `json:"passenger_contact" db:"passenger_contact"`
	PassengerEmail   *string       `json:"passenger_email,omitempty" db:"passenger_email"`
	Seats            pq.Int64Array `json:"seats" db:"seats"`
	TransportCompany string        `json:"transport_company" db:"transport_company"`
	VehicleNumber    string        `json:"vehicle_number" db:"vehicle_number"`
	DriverName       *string       `json:"driver_name,omitempty" db:"driver_name"`
	DriverContact    *string       `json:"driver_contact,omitempty" db:"driver_contact"`
	RouteFrom        *string       `json:"route_from,omitempty" db:"route_from"`
	RouteTo          *string       `json:"route_to,omitempty" db:"route_to"`
	ArrivalDate      string        `json:"arrival_date" db:"arrival_date"`
	ArrivalTime      string        `json:"arrival_time" db:"arrival_time"`
	PricePerSeat     float64       `json:"price_per_seat" db:"price_per_seat"`
	PaymentType      string        `json:"payment_type" db:"payment_type"`
	TicketType       TicketType    `json:"ticket_type" db:"ticket_type"`
	Status           TicketStatus  `json:"status" db:"status"`
	PaymentStatus    PaymentStatus `json:"payment_status" db:"payment_status"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
}

// SeatHold is the transient lock row kept while a booking is unconfirmed
type SeatHold struct {
	ID            uuid.UUID `json:"id" db:"id"`
	BookingID     uuid.UUID `json:"booking_id" db:"booking_id"`
	ReservedSeats int       `json:"reserved_seats" db:"reserved_seats"`
	ExpiresAt     time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Company is the read-only catalog view of a transport company
type Company struct {
	ID          int64  `json:"id" db:"id"`
	CompanyName string `json:"company_name" db:"company_name"`
}

// Vehicle is the read-only catalog view of a vehicle
type Vehicle struct {
	ID            int64   `json:"id" db:"id"`
	CompanyID     int64   `json:"company_id" db:"company_id"`
	VehicleNumber string  `json:"vehicle_number" db:"vehicle_number"`
	DriverName    *string `json:"driver_name,omitempty" db:"driver_name"`
	DriverContact *string `json:"driver_contact,omitempty" db:"driver_contact"`
}
