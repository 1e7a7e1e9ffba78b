package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gocomet/carpool/internal/domain/booking"
	"github.com/google/uuid"
)

const bookingColumns = `id, ride_id, passenger_id, seats_booked, status, booked_at, cancelled_at`

// constraint backing the one-confirmed-booking-per-passenger rule
const confirmedBookingIndex = "bookings_one_confirmed_per_passenger"

// BookingRepository implements booking.Repository and ledger.BookingStore
type BookingRepository struct {
	q querier
}

// NewBookingRepository creates a booking repository outside any transaction
func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{q: db}
}

func (r *BookingRepository) Insert(ctx context.Context, b *booking.Booking) error {
	query := `INSERT INTO bookings (id, ride_id, passenger_id, seats_booked, status, booked_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.q.ExecContext(ctx, query, b.ID, b.RideID, b.PassengerID, b.SeatsBooked, b.Status, b.BookedAt)
	if err != nil {
		if isUniqueViolation(err, confirmedBookingIndex) {
			return booking.ErrDuplicate
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetForUpdate locks the booking row until the transaction ends
func (r *BookingRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to booking.Status, at time.Time) (bool, error) {
	query := `UPDATE bookings
		SET status = $3, cancelled_at = COALESCE($4, cancelled_at)
		WHERE id = $1 AND status = $2`

	var cancelledAt sql.NullTime
	if to == booking.StatusCancelled {
		cancelledAt = sql.NullTime{Time: at, Valid: true}
	}

	res, err := r.q.ExecContext(ctx, query, id, from, to, cancelledAt)
	if err != nil {
		return false, fmt.Errorf("update booking status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *BookingRepository) ExistsConfirmedBooking(ctx context.Context, rideID, passengerID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM bookings WHERE ride_id = $1 AND passenger_id = $2 AND status = 'confirmed'
	)`

	var exists bool
	if err := r.q.QueryRowContext(ctx, query, rideID, passengerID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check confirmed booking: %w", err)
	}
	return exists, nil
}

// ListByPassenger returns the passenger's bookings with their rides, newest first
func (r *BookingRepository) ListByPassenger(ctx context.Context, passengerID uuid.UUID) ([]*booking.WithRide, error) {
	query := `SELECT b.id, b.ride_id, b.passenger_id, b.seats_booked, b.status, b.booked_at, b.cancelled_at,
		r.id, r.driver_id, r.vehicle_id, r.origin, r.destination, r.departure_at,
		r.seats_total, r.seats_available, r.price_per_seat, r.distance_km, r.notes, r.status,
		r.created_at, r.updated_at
		FROM bookings b
		JOIN rides r ON r.id = b.ride_id
		WHERE b.passenger_id = $1
		ORDER BY b.booked_at DESC`

	rows, err := r.q.QueryContext(ctx, query, passengerID)
	if err != nil {
		return nil, fmt.Errorf("query passenger bookings: %w", err)
	}
	defer rows.Close()

	out := make([]*booking.WithRide, 0)
	for rows.Next() {
		var (
			wr          booking.WithRide
			cancelledAt sql.NullTime
			vehicleID   uuid.NullUUID
		)
		err := rows.Scan(
			&wr.ID, &wr.RideID, &wr.PassengerID, &wr.SeatsBooked, &wr.Status, &wr.BookedAt, &cancelledAt,
			&wr.Ride.ID, &wr.Ride.DriverID, &vehicleID, &wr.Ride.Origin, &wr.Ride.Destination, &wr.Ride.DepartureAt,
			&wr.Ride.SeatsTotal, &wr.Ride.SeatsAvailable, &wr.Ride.PricePerSeat, &wr.Ride.DistanceKM,
			&wr.Ride.Notes, &wr.Ride.Status, &wr.Ride.CreatedAt, &wr.Ride.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan passenger booking: %w", err)
		}
		if cancelledAt.Valid {
			t := cancelledAt.Time
			wr.CancelledAt = &t
		}
		if vehicleID.Valid {
			id := vehicleID.UUID
			wr.Ride.VehicleID = &id
		}
		out = append(out, &wr)
	}
	return out, rows.Err()
}

// ListByRide returns every booking of a ride in booking order
func (r *BookingRepository) ListByRide(ctx context.Context, rideID uuid.UUID) ([]*booking.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ride_id = $1 ORDER BY booked_at ASC`

	rows, err := r.q.QueryContext(ctx, query, rideID)
	if err != nil {
		return nil, fmt.Errorf("query ride bookings: %w", err)
	}
	defer rows.Close()

	out := make([]*booking.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *BookingRepository) CountByStatus(ctx context.Context) (map[booking.Status]int, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT status, COUNT(*) FROM bookings GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count bookings: %w", err)
	}
	defer rows.Close()

	counts := make(map[booking.Status]int)
	for rows.Next() {
		var (
			status booking.Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan booking count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *BookingRepository) ListConfirmedSeats(ctx context.Context) ([]booking.ConfirmedSeats, error) {
	query := `SELECT b.seats_booked, r.distance_km
		FROM bookings b
		JOIN rides r ON r.id = b.ride_id
		WHERE b.status = 'confirmed'`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query confirmed seats: %w", err)
	}
	defer rows.Close()

	var out []booking.ConfirmedSeats
	for rows.Next() {
		var cs booking.ConfirmedSeats
		if err := rows.Scan(&cs.SeatsBooked, &cs.DistanceKM); err != nil {
			return nil, fmt.Errorf("scan confirmed seats: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (r *BookingRepository) getOne(ctx context.Context, query string, args ...interface{}) (*booking.Booking, error) {
	b, err := scanBooking(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func scanBooking(s rowScanner) (*booking.Booking, error) {
	var (
		b           booking.Booking
		cancelledAt sql.NullTime
	)
	err := s.Scan(&b.ID, &b.RideID, &b.PassengerID, &b.SeatsBooked, &b.Status, &b.BookedAt, &cancelledAt)
	if err != nil {
		return nil, err
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		b.CancelledAt = &t
	}
	return &b, nil
}
