package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocomet/carpool/internal/domain/booking"
	"github.com/gocomet/carpool/internal/domain/ride"
	apperrors "github.com/gocomet/carpool/pkg/errors"
	"github.com/gocomet/carpool/pkg/logger"
	"github.com/google/uuid"
)

// errSeatOverflow means a release would push seats_available past the ride's
// capacity, i.e. the ride and its bookings are already out of sync.
var errSeatOverflow = errors.New("seat release exceeds ride capacity")

// Config holds seat ledger configuration
type Config struct {
	MaxAttempts  int           // transaction attempts on ErrConflict
	RetryBackoff time.Duration // multiplied by the attempt number
}

// Service is the seat ledger. It is the only writer of a ride's
// seats_available and of booking status.
type Service struct {
	store    Store
	notifier Notifier
	logger   *logger.Logger
	config   Config

	now   func() time.Time
	newID func() uuid.UUID
}

// NewService creates a new seat ledger. notifier may be nil.
func NewService(store Store, notifier Notifier, log *logger.Logger, config Config) *Service {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   log,
		config:   config,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.New,
	}
}

// Reserve books seats on a ride for a passenger. The seat check, the
// decrement and the booking insert happen in one transaction that holds the
// ride's row lock, and the decrement itself is conditional on enough seats
// remaining at write time.
func (s *Service) Reserve(ctx context.Context, rideID, passengerID uuid.UUID, seats int) (*booking.Booking, error) {
	if seats < 1 {
		return nil, apperrors.ErrInvalidSeatCount
	}

	var (
		created *booking.Booking
		change  SeatChange
	)

	err := s.withRetry(ctx, "reserve", func(ctx context.Context, tx Tx) error {
		r, err := tx.Rides.GetRideForUpdate(ctx, rideID)
		if err != nil {
			if errors.Is(err, ride.ErrRideNotFound) {
				return apperrors.ErrRideNotFound
			}
			return fmt.Errorf("load ride %s: %w", rideID, err)
		}

		if !r.IsActive() {
			return apperrors.ErrRideUnavailable
		}
		if r.DriverID == passengerID {
			return apperrors.ErrSelfBooking
		}

		exists, err := tx.Bookings.ExistsConfirmedBooking(ctx, rideID, passengerID)
		if err != nil {
			return fmt.Errorf("check existing booking: %w", err)
		}
		if exists {
			return apperrors.ErrDuplicateBooking
		}

		if r.SeatsAvailable < seats {
			return apperrors.ErrInsufficientSeats.Withf("Not enough seats. Only %d available.", r.SeatsAvailable)
		}

		ok, err := tx.Rides.UpdateSeatsAvailable(ctx, rideID, -seats, seats)
		if err != nil {
			return fmt.Errorf("decrement seats: %w", err)
		}
		if !ok {
			return apperrors.ErrInsufficientSeats
		}

		b := &booking.Booking{
			ID:          s.newID(),
			RideID:      rideID,
			PassengerID: passengerID,
			SeatsBooked: seats,
			Status:      booking.StatusConfirmed,
			BookedAt:    s.now(),
		}
		if err := tx.Bookings.Insert(ctx, b); err != nil {
			if errors.Is(err, booking.ErrDuplicate) {
				return apperrors.ErrDuplicateBooking
			}
			return fmt.Errorf("insert booking: %w", err)
		}

		created = b
		change = SeatChange{
			Kind:           ChangeReserved,
			RideID:         rideID,
			DriverID:       r.DriverID,
			BookingID:      b.ID,
			PassengerID:    passengerID,
			Seats:          seats,
			SeatsAvailable: r.SeatsAvailable - seats,
			SeatsTotal:     r.SeatsTotal,
			At:             b.BookedAt,
		}
		return nil
	})
	if err != nil {
		s.logger.Info("Reservation rejected",
			logger.UUID("ride_id", rideID),
			logger.UUID("passenger_id", passengerID),
			logger.Int("seats", seats),
			logger.String("reason", apperrors.GetAppError(err).Code),
		)
		return nil, err
	}

	s.logger.Info("Seats reserved",
		logger.UUID("booking_id", created.ID),
		logger.UUID("ride_id", rideID),
		logger.Int("seats", seats),
		logger.Int("seats_available", change.SeatsAvailable),
	)
	s.notify(ctx, change)

	return created, nil
}

// Release cancels a confirmed booking and gives its seats back to the ride.
// Cancelling twice fails with ErrAlreadyCancelled.
func (s *Service) Release(ctx context.Context, bookingID, requesterID uuid.UUID) error {
	var change SeatChange

	err := s.withRetry(ctx, "release", func(ctx context.Context, tx Tx) error {
		b, err := tx.Bookings.GetForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, booking.ErrBookingNotFound) {
				return apperrors.ErrBookingNotFound
			}
			return fmt.Errorf("load booking %s: %w", bookingID, err)
		}

		if b.PassengerID != requesterID {
			return apperrors.ErrNotBookingOwner
		}
		if !b.IsConfirmed() {
			return apperrors.ErrAlreadyCancelled
		}

		r, err := tx.Rides.GetRideForUpdate(ctx, b.RideID)
		if err != nil {
			return fmt.Errorf("load ride %s for booking %s: %w", b.RideID, b.ID, err)
		}

		now := s.now()
		ok, err := tx.Bookings.UpdateStatus(ctx, b.ID, booking.StatusConfirmed, booking.StatusCancelled, now)
		if err != nil {
			return fmt.Errorf("cancel booking: %w", err)
		}
		if !ok {
			return apperrors.ErrAlreadyCancelled
		}

		ok, err = tx.Rides.UpdateSeatsAvailable(ctx, b.RideID, b.SeatsBooked, 0)
		if err != nil {
			return fmt.Errorf("restore seats: %w", err)
		}
		if !ok {
			return fmt.Errorf("restore %d seats on ride %s: %w", b.SeatsBooked, b.RideID, errSeatOverflow)
		}

		change = SeatChange{
			Kind:           ChangeReleased,
			RideID:         b.RideID,
			DriverID:       r.DriverID,
			BookingID:      b.ID,
			PassengerID:    b.PassengerID,
			Seats:          b.SeatsBooked,
			SeatsAvailable: r.SeatsAvailable + b.SeatsBooked,
			SeatsTotal:     r.SeatsTotal,
			At:             now,
		}
		return nil
	})
	if err != nil {
		s.logger.Info("Cancellation rejected",
			logger.UUID("booking_id", bookingID),
			logger.UUID("requester_id", requesterID),
			logger.String("reason", apperrors.GetAppError(err).Code),
		)
		return err
	}

	s.logger.Info("Seats released",
		logger.UUID("booking_id", bookingID),
		logger.UUID("ride_id", change.RideID),
		logger.Int("seats", change.Seats),
		logger.Int("seats_available", change.SeatsAvailable),
	)
	s.notify(ctx, change)

	return nil
}

// withRetry runs fn in a transaction, retrying from a clean state while the
// store reports ErrConflict. Precondition failures are returned as-is; any
// other failure becomes an internal error after the transaction rolled back.
func (s *Service) withRetry(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		err = s.store.WithinTx(ctx, fn)
		if err == nil || apperrors.IsAppError(err) {
			return err
		}
		if !errors.Is(err, ErrConflict) {
			break
		}

		s.logger.Warn("Seat ledger conflict, retrying",
			logger.String("op", op),
			logger.Int("attempt", attempt),
			logger.Err(err),
		)

		if attempt == s.config.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return apperrors.Internal(op+" aborted", ctx.Err())
		case <-time.After(s.config.RetryBackoff * time.Duration(attempt)):
		}
	}

	s.logger.Error("Seat ledger operation failed",
		logger.String("op", op),
		logger.Err(err),
	)
	return apperrors.Internal(op+" failed", err)
}

func (s *Service) notify(ctx context.Context, change SeatChange) {
	if s.notifier == nil {
		return
	}
	s.notifier.SeatsChanged(ctx, change)
}
