package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/ctmsgb/booking-backend/internal/config"
	"github.com/ctmsgb/booking-backend/internal/database"
	"github.com/ctmsgb/booking-backend/internal/models"
	"github.com/ctmsgb/booking-backend/internal/storage"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// ReservationService creates seat and full-vehicle bookings
type ReservationService struct {
	repos     *Repositories
	cfg       config.BookingConfig
	loc       *time.Location
	proofs    *storage.ProofProcessor
	store     storage.Store
	scheduler HoldScheduler
	events    EventPublisher
	logger    *logrus.Logger
	now       func() time.Time
}

// NewReservationService creates a new ReservationService
func NewReservationService(
	repos *Repositories,
	cfg config.BookingConfig,
	proofs *storage.ProofProcessor,
	store storage.Store,
	scheduler HoldScheduler,
	events EventPublisher,
	logger *logrus.Logger,
) *ReservationService {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.WithError(err).WithField("timezone", cfg.Timezone).Warn("Unknown booking timezone, using UTC")
		loc = time.UTC
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "PKR"
	}

	return &ReservationService{
		repos:     repos,
		cfg:       cfg,
		loc:       loc,
		proofs:    proofs,
		store:     store,
		scheduler: scheduler,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
}

// ============================================================================
// SEAT BOOKING
// ============================================================================

// CreateSeatBooking reserves seats on a slot. Reservations on one slot are
// serialized by an advisory lock, so two requests can never both take a seat.
func (s *ReservationService) CreateSeatBooking(ctx context.Context, actor Actor, req *models.CreateSeatBookingRequest) (*models.SeatBookingResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	company, vehicle, err := s.lookupCatalog(ctx, req.CompanyID, req.VehicleID)
	if err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = models.PaymentMethodCash
	}

	holdUntil := s.now().Add(s.cfg.SeatHoldDuration)
	slot := req.Slot()

	booking := &models.Booking{
		ID:             uuid.New(),
		UserID:         actor.UserID,
		CompanyID:      company.ID,
		VehicleID:      vehicle.ID,
		PassengerName:  req.PassengerName,
		PassengerEmail: req.PassengerEmail,
		PassengerCNIC:  req.PassengerCNIC,
		PassengerPhone: req.PassengerPhone,
		FromLocation:   req.FromLocation,
		ToLocation:     req.ToLocation,
		ArrivalDate:    req.ArrivalDate,
		ArrivalTime:    req.ArrivalTime,
		SeatNumbers:    pq.Int64Array(req.SeatNumbers),
		SeatsBooked:    len(req.SeatNumbers),
		TotalAmount:    req.TotalAmount,
		Currency:       s.cfg.DefaultCurrency,
		BookingStatus:  models.BookingStatusReserved,
		HoldExpiresAt:  &holdUntil,
	}

	ticket := newTicket(booking, company, vehicle, method, models.TicketTypeSeatBooking)
	ticket.PricePerSeat = req.TotalAmount / float64(len(req.SeatNumbers))

	err = database.WithTx(ctx, s.repos.DB, func(tx *sqlx.Tx) error {
		if err := s.repos.Bookings.LockSlot(ctx, tx, slot); err != nil {
			return err
		}
		taken, err := s.repos.Bookings.LockActiveSeats(ctx, tx, slot)
		if err != nil {
			return err
		}
		if conflicts := intersectSeats(req.SeatNumbers, taken); len(conflicts) > 0 {
			return models.NewSeatConflict(conflicts)
		}

		if err := s.repos.Bookings.Create(ctx, tx, booking); err != nil {
			return err
		}
		if err := s.repos.SeatHolds.Create(ctx, tx, &models.SeatHold{
			BookingID:     booking.ID,
			ReservedSeats: booking.SeatsBooked,
			ExpiresAt:     holdUntil,
		}); err != nil {
			return err
		}
		if err := s.repos.Tickets.Create(ctx, tx, ticket); err != nil {
			return err
		}
		return s.repos.Payments.Create(ctx, tx, models.NewPayment(booking, method))
	})
	if err != nil {
		if models.IsKind(err, models.ErrKindSeatConflict) {
			s.logger.WithFields(logrus.Fields{
				"slot":  slot.Key(),
				"seats": []int64(req.SeatNumbers),
			}).Info("Seat reservation rejected, seats taken")
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":      booking.ID,
		"ticket_id":       ticket.ID,
		"slot":            slot.Key(),
		"seats":           []int64(booking.SeatNumbers),
		"hold_expires_at": holdUntil,
	}).Info("Seats reserved")

	s.afterReserve(ctx, booking)

	return &models.SeatBookingResponse{Booking: booking, TicketID: ticket.ID}, nil
}

// ============================================================================
// FULL VEHICLE BOOKING
// ============================================================================

// CreateFullVehicleBooking hires a whole vehicle. There is no seat check; the
// hold lasts until the end of the hire. A ticket failure never fails the booking.
func (s *ReservationService) CreateFullVehicleBooking(ctx context.Context, actor Actor, req *models.CreateFullVehicleBookingRequest) (*models.FullVehicleBookingResponse, error) {
	if req.VehicleID <= 0 || req.CompanyID <= 0 || req.TotalAmount == nil {
		return nil, models.NewInvalidRequest("Missing required fields")
	}
	if *req.TotalAmount < 0 {
		return nil, models.NewInvalidRequest("Invalid total_amount format.")
	}

	req.NormalizeSlot()

	company, vehicle, err := s.lookupCatalog(ctx, req.CompanyID, req.VehicleID)
	if err != nil {
		return nil, err
	}

	method := req.PaymentMethod
	if method != models.PaymentMethodManual {
		method = models.PaymentMethodCash
	}
	currency := req.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	holdUntil := s.fullVehicleHold(req)
	notes := "Full vehicle booking"
	total := *req.TotalAmount

	booking := &models.Booking{
		ID:             uuid.New(),
		UserID:         actor.UserID,
		CompanyID:      company.ID,
		VehicleID:      vehicle.ID,
		PassengerName:  req.PassengerName,
		PassengerEmail: req.PassengerEmail,
		PassengerCNIC:  req.PassengerCNIC,
		PassengerPhone: req.PassengerPhone,
		FromLocation:   req.FromLocation,
		ToLocation:     req.ToLocation,
		ArrivalDate:    req.ArrivalDate,
		ArrivalTime:    req.ArrivalTime,
		IsFullVehicle:  true,
		SeatNumbers:    pq.Int64Array{},
		TotalAmount:    total,
		Currency:       currency,
		BookingStatus:  models.BookingStatusReserved,
		HoldExpiresAt:  &holdUntil,
		Notes:          &notes,
	}

	payment := models.NewPayment(booking, method)
	if req.TransactionID != "" {
		payment.Meta = models.JSONB{"transaction_id": req.TransactionID}
	}

	resp := &models.FullVehicleBookingResponse{
		Detail:        "Full vehicle booking created successfully.",
		BookingID:     booking.ID,
		PaymentID:     payment.ID,
		PaymentMethod: method,
		PaymentStatus: payment.Status,
		HoldExpiresAt: holdUntil,
	}

	proofName := fmt.Sprintf("payment_%s_%s", booking.ID, proofRef(req.TransactionID))
	if method == models.PaymentMethodManual && req.Screenshot != "" {
		url, err := s.saveProof(ctx, proofName, req.Screenshot)
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("Failed to save payment screenshot")
			msg := err.Error()
			resp.ScreenshotError = &msg
		} else {
			payment.ScreenshotURL = &url
			resp.ScreenshotSaved = true
		}
	}

	ticket := newTicket(booking, company, vehicle, method, models.TicketTypeFullVehicle)
	ticket.PricePerSeat = total
	ticket.DriverName = &req.DriverName
	ticket.DriverContact = &req.DriverContact
	if req.CompanyName != nil && *req.CompanyName != "" {
		ticket.TransportCompany = *req.CompanyName
	}

	info := fmt.Sprintf("%s payment", method)
	if req.TransactionID != "" {
		info = fmt.Sprintf("%s payment - %s", method, req.TransactionID)
	}
	pending := models.NewTransaction(booking.ID, models.TransactionTypePayment, models.TransactionStatusPending).
		SetPayment(payment.ID).
		SetAmount(total).
		SetProvider(models.ProviderFor(method), req.TransactionID).
		SetProcessedBy(actor.processedBy()).
		SetMeta("info", info).
		SetMeta("transaction_id", req.TransactionID)

	err = database.WithTx(ctx, s.repos.DB, func(tx *sqlx.Tx) error {
		if err := s.repos.Bookings.Create(ctx, tx, booking); err != nil {
			return err
		}
		if err := s.repos.SeatHolds.Create(ctx, tx, &models.SeatHold{
			BookingID: booking.ID,
			ExpiresAt: holdUntil,
		}); err != nil {
			return err
		}
		if err := s.repos.Payments.Create(ctx, tx, payment); err != nil {
			return err
		}
		if err := s.repos.Transactions.Create(ctx, tx, pending); err != nil {
			return err
		}

		ticketErr := database.WithSavepoint(ctx, tx, "full_vehicle_ticket", func() error {
			return s.repos.Tickets.Create(ctx, tx, ticket)
		})
		if ticketErr != nil {
			s.logger.WithError(ticketErr).WithField("booking_id", booking.ID).Warn("Ticket creation failed, booking kept")
			msg := ticketErr.Error()
			resp.TicketError = &msg
			return nil
		}
		resp.TicketCreated = true
		resp.TicketID = &ticket.ID
		return nil
	})
	if err != nil {
		if resp.ScreenshotSaved {
			s.discardProof(ctx, booking.ID, proofName)
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":      booking.ID,
		"payment_method":  method,
		"ticket_created":  resp.TicketCreated,
		"hold_expires_at": holdUntil,
	}).Info("Full vehicle booking created")

	s.afterReserve(ctx, booking)

	return resp, nil
}

// fullVehicleHold returns arrival + hire duration. Unparsable slots and holds
// already in the past fall back to now + the configured fallback.
func (s *ReservationService) fullVehicleHold(req *models.CreateFullVehicleBookingRequest) time.Time {
	now := s.now()
	fallback := now.Add(s.cfg.FullVehicleFallback)

	arrival, err := req.Slot().ArrivalDateTime(s.loc)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"arrival_date": req.ArrivalDate,
			"arrival_time": req.ArrivalTime,
		}).Warn("Cannot parse arrival, using fallback hold")
		return fallback
	}

	value := req.DurationValue
	if value <= 0 {
		value = 1
	}

	var hire time.Duration
	switch req.DurationType {
	case models.DurationHourly, "":
		hire = time.Duration(value) * time.Hour
	case models.DurationDaily:
		hire = time.Duration(value) * 24 * time.Hour
	case models.DurationWeekly:
		hire = time.Duration(value) * 7 * 24 * time.Hour
	default:
		hire = 30 * time.Minute
	}

	hold := arrival.Add(hire)
	if !hold.After(now) {
		s.logger.WithField("hold_expires_at", hold).Warn("Hire already ended, using fallback hold")
		return fallback
	}
	return hold
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func (s *ReservationService) saveProof(ctx context.Context, name, screenshot string) (string, error) {
	if s.proofs == nil || s.store == nil {
		return "", fmt.Errorf("payment proof storage is not configured")
	}
	proof, err := s.proofs.Decode(screenshot)
	if err != nil {
		return "", err
	}
	return s.store.Save(ctx, name, proof)
}

// discardProof removes a proof whose booking was never committed
func (s *ReservationService) discardProof(ctx context.Context, bookingID uuid.UUID, name string) {
	if err := s.store.Delete(ctx, name); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": bookingID,
			"proof":      name,
		}).Warn("Failed to remove orphaned payment screenshot")
	}
}

func proofRef(transactionID string) string {
	ref := unsafeNameChars.ReplaceAllString(transactionID, "")
	if ref == "" {
		ref = "proof"
	}
	return ref
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *ReservationService) lookupCatalog(ctx context.Context, companyID, vehicleID int64) (*models.Company, *models.Vehicle, error) {
	company, err := s.repos.Catalog.GetCompany(ctx, companyID)
	if err != nil {
		return nil, nil, err
	}
	if company == nil {
		return nil, nil, models.NewNotFound("Company not found.")
	}

	vehicle, err := s.repos.Catalog.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, nil, err
	}
	if vehicle == nil {
		return nil, nil, models.NewNotFound("Vehicle not found.")
	}
	if vehicle.CompanyID != company.ID {
		return nil, nil, models.NewInvalidRequest("Vehicle does not belong to this company.")
	}
	return company, vehicle, nil
}

// afterReserve runs the post-commit side effects of a new reservation
func (s *ReservationService) afterReserve(ctx context.Context, booking *models.Booking) {
	if s.scheduler != nil && booking.HoldExpiresAt != nil {
		if err := s.scheduler.ScheduleExpiry(ctx, booking.ID, *booking.HoldExpiresAt); err != nil {
			s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("Failed to schedule hold expiry, sweep will release it")
		}
	}
	emit(ctx, s.events, s.logger, bookingTopic(booking.BookingStatus), newBookingEvent(booking, s.now().UTC()))
}

func newTicket(b *models.Booking, company *models.Company, vehicle *models.Vehicle, method models.PaymentMethod, ticketType models.TicketType) *models.Ticket {
	bookingID := b.ID
	return &models.Ticket{
		BookingID:        &bookingID,
		UserID:           b.UserID,
		CompanyID:        b.CompanyID,
		PassengerName:    b.PassengerName,
		PassengerCNIC:    b.PassengerCNIC,
		PassengerContact: b.PassengerPhone,
		PassengerEmail:   b.PassengerEmail,
		Seats:            pq.Int64Array(append([]int64{}, b.SeatNumbers...)),
		TransportCompany: company.CompanyName,
		VehicleNumber:    vehicle.VehicleNumber,
		DriverName:       vehicle.DriverName,
		DriverContact:    vehicle.DriverContact,
		RouteFrom:        b.FromLocation,
		RouteTo:          b.ToLocation,
		ArrivalDate:      b.ArrivalDate,
		ArrivalTime:      b.ArrivalTime,
		PaymentType:      method.TicketLabel(),
		TicketType:       ticketType,
		Status:           models.TicketStatusFor(b.BookingStatus),
		PaymentStatus:    models.PaymentStatusUnpaid,
	}
}

// intersectSeats returns the requested seats that are already taken, sorted
func intersectSeats(requested, taken []int64) []int64 {
	occupied := make(map[int64]struct{}, len(taken))
	for _, seat := range taken {
		occupied[seat] = struct{}{}
	}

	var conflicts []int64
	for _, seat := range requested {
		if _, ok := occupied[seat]; ok {
			conflicts = append(conflicts, seat)
			delete(occupied, seat)
		}
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i] < conflicts[j] })
	return conflicts
}
