package ride

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents ride lifecycle status
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsValid validates the status
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Ride is a driver-published trip offer. SeatsTotal is fixed at creation;
// SeatsAvailable is only ever changed by the seat ledger.
type Ride struct {
	ID             uuid.UUID  `json:"id"`
	DriverID       uuid.UUID  `json:"driver_id"`
	VehicleID      *uuid.UUID `json:"vehicle_id,omitempty"`
	Origin         string     `json:"origin"`
	Destination    string     `json:"destination"`
	DepartureAt    time.Time  `json:"departure_at"`
	SeatsTotal     int        `json:"seats_total"`
	SeatsAvailable int        `json:"seats_available"`
	PricePerSeat   float64    `json:"price_per_seat"`
	DistanceKM     float64    `json:"distance_km"`
	Notes          string     `json:"notes,omitempty"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// SearchFilter narrows a ride search. Zero values mean "any".
type SearchFilter struct {
	Origin      string
	Destination string
	Date        *time.Time
	MinSeats    int
	Limit       int
}

// Stats aggregates seat inventory across all rides
type Stats struct {
	TotalRides          int
	ActiveRides         int
	TotalSeatsOffered   int
	TotalSeatsAvailable int
}

// Repository is the ride directory used by the API surface
type Repository interface {
	Create(ctx context.Context, ride *Ride) error
	GetByID(ctx context.Context, id uuid.UUID) (*Ride, error)
	Search(ctx context.Context, filter SearchFilter) ([]*Ride, error)
	ListByDriver(ctx context.Context, driverID uuid.UUID) ([]*Ride, error)
	Stats(ctx context.Context) (*Stats, error)
}

// Errors
var (
	ErrRideNotFound     = errors.New("ride not found")
	ErrInvalidSeatTotal = errors.New("seats total must be at least 1")
	ErrInvalidRoute     = errors.New("origin and destination are required")
)

// IsActive reports whether the ride still accepts bookings
func (r *Ride) IsActive() bool {
	return r.Status == StatusActive
}

// SeatsBooked returns the number of seats held by confirmed bookings
func (r *Ride) SeatsBooked() int {
	return r.SeatsTotal - r.SeatsAvailable
}

// Validate checks the fields a driver supplies when publishing a ride
func (r *Ride) Validate() error {
	if r.SeatsTotal < 1 {
		return ErrInvalidSeatTotal
	}
	if r.Origin == "" || r.Destination == "" {
		return ErrInvalidRoute
	}
	return nil
}
