package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ChangeKind tells whether seats were taken or given back
type ChangeKind string

const (
	ChangeReserved ChangeKind = "reserved"
	ChangeReleased ChangeKind = "released"
)

// SeatChange describes a committed seat mutation
type SeatChange struct {
	Kind           ChangeKind `json:"kind"`
	RideID         uuid.UUID  `json:"ride_id"`
	DriverID       uuid.UUID  `json:"driver_id"`
	BookingID      uuid.UUID  `json:"booking_id"`
	PassengerID    uuid.UUID  `json:"passenger_id"`
	Seats          int        `json:"seats"`
	SeatsAvailable int        `json:"seats_available"`
	SeatsTotal     int        `json:"seats_total"`
	At             time.Time  `json:"at"`
}

// Notifier is told about every committed seat change. It runs after commit,
// so it cannot affect the outcome of Reserve or Release.
type Notifier interface {
	SeatsChanged(ctx context.Context, change SeatChange)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, change SeatChange)

func (f NotifierFunc) SeatsChanged(ctx context.Context, change SeatChange) {
	f(ctx, change)
}
