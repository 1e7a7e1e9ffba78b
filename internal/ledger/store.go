package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/gocomet/carpool/internal/domain/booking"
	"github.com/gocomet/carpool/internal/domain/ride"
	"github.com/google/uuid"
)

// ErrConflict is returned by a Store when a transaction lost a race with a
// concurrent writer (serialization failure, deadlock, lock timeout). The
// ledger retries such transactions from scratch.
var ErrConflict = errors.New("ledger: concurrent update conflict")

// RideDirectory is the part of the ride store the ledger mutates.
type RideDirectory interface {
	// GetRideForUpdate loads the ride and holds an exclusive lock on it until
	// the enclosing transaction ends. Returns ride.ErrRideNotFound.
	GetRideForUpdate(ctx context.Context, rideID uuid.UUID) (*ride.Ride, error)

	// UpdateSeatsAvailable adds delta to seats_available relative to the
	// persisted value, but only while seats_available >= expectedMin and the
	// result stays within [0, seats_total]. It reports whether a row changed.
	UpdateSeatsAvailable(ctx context.Context, rideID uuid.UUID, delta, expectedMin int) (bool, error)
}

// BookingStore is the booking record store as seen by the ledger.
type BookingStore interface {
	// Insert returns booking.ErrDuplicate when the passenger already holds a
	// confirmed booking on the ride.
	Insert(ctx context.Context, b *booking.Booking) error

	// GetForUpdate loads a booking and locks it. Returns booking.ErrBookingNotFound.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*booking.Booking, error)

	// UpdateStatus moves a booking from one status to another and reports
	// whether the booking was still in the expected status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to booking.Status, at time.Time) (bool, error)

	ExistsConfirmedBooking(ctx context.Context, rideID, passengerID uuid.UUID) (bool, error)
}

// Tx exposes both stores bound to one transaction.
type Tx struct {
	Rides    RideDirectory
	Bookings BookingStore
}

// Store runs fn atomically: either every write made through tx is
// committed or none is.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
