// Package ledgertest provides an in-memory transactional store for exercising
// the seat ledger without a database.
package ledgertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gocomet/carpool/internal/domain/booking"
	"github.com/gocomet/carpool/internal/domain/ride"
	"github.com/gocomet/carpool/internal/ledger"
	"github.com/google/uuid"
)

// Store serializes transactions with a single mutex, which gives the same
// isolation a row lock gives for a single ride. Writes are journaled and
// undone when the transaction function fails.
type Store struct {
	mu        sync.Mutex
	rides     map[uuid.UUID]ride.Ride
	bookings  map[uuid.UUID]booking.Booking
	conflicts int
	failOn    map[string]error
	txCount   int
}

// Operation names accepted by FailOn
const (
	OpInsertBooking = "insert_booking"
	OpUpdateSeats   = "update_seats"
	OpUpdateStatus  = "update_status"
)

func NewStore() *Store {
	return &Store{
		rides:    make(map[uuid.UUID]ride.Ride),
		bookings: make(map[uuid.UUID]booking.Booking),
		failOn:   make(map[string]error),
	}
}

// AddRide stores a copy of r
func (s *Store) AddRide(r ride.Ride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rides[r.ID] = r
}

// AddBooking stores a copy of b without touching seat counts
func (s *Store) AddBooking(b booking.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
}

func (s *Store) Ride(id uuid.UUID) (ride.Ride, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	return r, ok
}

func (s *Store) Booking(id uuid.UUID) (booking.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	return b, ok
}

// Bookings returns every booking of a ride ordered by booking time
func (s *Store) Bookings(rideID uuid.UUID) []booking.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []booking.Booking
	for _, b := range s.bookings {
		if b.RideID == rideID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookedAt.Before(out[j].BookedAt) })
	return out
}

// InjectConflicts makes the next n transactions fail with ledger.ErrConflict
func (s *Store) InjectConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = n
}

// FailOn makes the named operation return err until cleared with a nil err
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failOn, op)
		return
	}
	s.failOn[op] = err
}

// Transactions returns how many transactions were started
func (s *Store) Transactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCount
}

// WithinTx implements ledger.Store
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.txCount++
	if s.conflicts > 0 {
		s.conflicts--
		return ledger.ErrConflict
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{store: s}
	if err := fn(ctx, ledger.Tx{Rides: tx, Bookings: tx}); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

type memTx struct {
	store *Store
	undo  []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}

func (t *memTx) GetRideForUpdate(_ context.Context, rideID uuid.UUID) (*ride.Ride, error) {
	r, ok := t.store.rides[rideID]
	if !ok {
		return nil, ride.ErrRideNotFound
	}
	return &r, nil
}

func (t *memTx) UpdateSeatsAvailable(_ context.Context, rideID uuid.UUID, delta, expectedMin int) (bool, error) {
	if err := t.store.failOn[OpUpdateSeats]; err != nil {
		return false, err
	}
	r, ok := t.store.rides[rideID]
	if !ok {
		return false, nil
	}
	next := r.SeatsAvailable + delta
	if r.SeatsAvailable < expectedMin || next < 0 || next > r.SeatsTotal {
		return false, nil
	}

	prev := r
	r.SeatsAvailable = next
	r.UpdatedAt = time.Now().UTC()
	t.store.rides[rideID] = r
	t.undo = append(t.undo, func() { t.store.rides[rideID] = prev })
	return true, nil
}

func (t *memTx) Insert(_ context.Context, b *booking.Booking) error {
	if err := t.store.failOn[OpInsertBooking]; err != nil {
		return err
	}
	for _, existing := range t.store.bookings {
		if existing.RideID == b.RideID && existing.PassengerID == b.PassengerID && existing.IsConfirmed() && b.IsConfirmed() {
			return booking.ErrDuplicate
		}
	}

	t.store.bookings[b.ID] = *b
	id := b.ID
	t.undo = append(t.undo, func() { delete(t.store.bookings, id) })
	return nil
}

func (t *memTx) GetForUpdate(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
	b, ok := t.store.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	return &b, nil
}

func (t *memTx) UpdateStatus(_ context.Context, id uuid.UUID, from, to booking.Status, at time.Time) (bool, error) {
	if err := t.store.failOn[OpUpdateStatus]; err != nil {
		return false, err
	}
	b, ok := t.store.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}

	prev := b
	b.Status = to
	if to == booking.StatusCancelled {
		b.CancelledAt = &at
	}
	t.store.bookings[id] = b
	t.undo = append(t.undo, func() { t.store.bookings[id] = prev })
	return true, nil
}

func (t *memTx) ExistsConfirmedBooking(_ context.Context, rideID, passengerID uuid.UUID) (bool, error) {
	for _, b := range t.store.bookings {
		if b.RideID == rideID && b.PassengerID == passengerID && b.IsConfirmed() {
			return true, nil
		}
	}
	return false, nil
}
