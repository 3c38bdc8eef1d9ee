package services

import (
	"context"

	"github.com/ctmsgb/booking-backend/internal/models"
)

// AvailabilityService answers seat map queries
type AvailabilityService struct {
	repos *Repositories
}

// NewAvailabilityService creates a new AvailabilityService
func NewAvailabilityService(repos *Repositories) *AvailabilityService {
	return &AvailabilityService{repos: repos}
}

// GetOccupiedSeats returns the sorted seats held by RESERVED or CONFIRMED
// bookings of the slot. An incomplete slot yields an empty list.
func (s *AvailabilityService) GetOccupiedSeats(ctx context.Context, slot models.Slot) ([]int64, error) {
	if slot.VehicleID <= 0 || slot.ArrivalDate == "" || slot.ArrivalTime == "" {
		return []int64{}, nil
	}
	slot, err := slot.Normalize()
	if err != nil {
		return nil, err
	}
	return s.repos.Bookings.GetOccupiedSeats(ctx, slot)
}
