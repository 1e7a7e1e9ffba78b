package metrics

import (
	"context"

	"github.com/gocomet/carpool/internal/domain/booking"
	"github.com/gocomet/carpool/internal/domain/ride"
	"github.com/gocomet/carpool/internal/domain/user"
	"github.com/gocomet/carpool/internal/service/pricing"
	apperrors "github.com/gocomet/carpool/pkg/errors"
)

// Summary is the platform-wide usage report
type Summary struct {
	TotalUsers        int     `json:"total_users"`
	TotalDrivers      int     `json:"total_drivers"`
	TotalPassengers   int     `json:"total_passengers"`
	TotalRides        int     `json:"total_rides"`
	ActiveRides       int     `json:"active_rides"`
	TotalBookings     int     `json:"total_bookings"`
	ConfirmedBookings int     `json:"confirmed_bookings"`
	TotalSeatsOffered int     `json:"total_seats_offered"`
	TotalSeatsBooked  int     `json:"total_seats_booked"`
	TotalCO2SavedKG   float64 `json:"total_co2_saved_kg"`
}

// Service builds admin reports
type Service struct {
	users    user.Repository
	rides    ride.Repository
	bookings booking.Repository
	pricing  *pricing.Service
}

// NewService creates a new metrics service
func NewService(users user.Repository, rides ride.Repository, bookings booking.Repository, pricingService *pricing.Service) *Service {
	return &Service{
		users:    users,
		rides:    rides,
		bookings: bookings,
		pricing:  pricingService,
	}
}

// Summary aggregates user, ride and booking counts. The figures are read
// outside any transaction and may lag concurrent bookings slightly.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	roles, err := s.users.CountByRole(ctx)
	if err != nil {
		return nil, apperrors.Internal("Failed to count users", err)
	}

	stats, err := s.rides.Stats(ctx)
	if err != nil {
		return nil, apperrors.Internal("Failed to aggregate rides", err)
	}

	statuses, err := s.bookings.CountByStatus(ctx)
	if err != nil {
		return nil, apperrors.Internal("Failed to count bookings", err)
	}

	confirmed, err := s.bookings.ListConfirmedSeats(ctx)
	if err != nil {
		return nil, apperrors.Internal("Failed to load confirmed bookings", err)
	}

	out := &Summary{
		TotalDrivers:      roles[user.RoleDriver],
		TotalPassengers:   roles[user.RolePassenger],
		TotalRides:        stats.TotalRides,
		ActiveRides:       stats.ActiveRides,
		ConfirmedBookings: statuses[booking.StatusConfirmed],
		TotalSeatsOffered: stats.TotalSeatsOffered,
		TotalSeatsBooked:  stats.TotalSeatsOffered - stats.TotalSeatsAvailable,
		TotalCO2SavedKG:   s.pricing.TotalCO2Savings(confirmed),
	}
	for _, n := range roles {
		out.TotalUsers += n
	}
	for _, n := range statuses {
		out.TotalBookings += n
	}

	return out, nil
}
