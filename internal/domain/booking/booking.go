package booking

import (
	"context"
	"errors"
	"time"

	"github.com/gocomet/carpool/internal/domain/ride"
	"github.com/google/uuid"
)

// Status represents booking status. The only legal transition is
// confirmed -> cancelled.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Booking is a passenger's reservation of seats on a ride
type Booking struct {
	ID          uuid.UUID  `json:"id"`
	RideID      uuid.UUID  `json:"ride_id"`
	PassengerID uuid.UUID  `json:"passenger_id"`
	SeatsBooked int        `json:"seats_booked"`
	Status      Status     `json:"status"`
	BookedAt    time.Time  `json:"booked_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// WithRide pairs a booking with the ride it belongs to
type WithRide struct {
	Booking
	Ride ride.Ride `json:"ride"`
}

// ConfirmedSeats is one confirmed booking's seat count and its ride distance,
// used for the emissions metric.
type ConfirmedSeats struct {
	SeatsBooked int
	DistanceKM  float64
}

// Repository provides booking reads outside the seat ledger
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListByPassenger(ctx context.Context, passengerID uuid.UUID) ([]*WithRide, error)
	ListByRide(ctx context.Context, rideID uuid.UUID) ([]*Booking, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	ListConfirmedSeats(ctx context.Context) ([]ConfirmedSeats, error)
}

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrDuplicate       = errors.New("passenger already holds a confirmed booking on this ride")
)

// IsConfirmed reports whether the booking still holds seats
func (b *Booking) IsConfirmed() bool {
	return b.Status == StatusConfirmed
}
