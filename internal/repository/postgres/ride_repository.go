package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocomet/carpool/internal/domain/ride"
	"github.com/google/uuid"
)

const rideColumns = `id, driver_id, vehicle_id, origin, destination, departure_at,
	seats_total, seats_available, price_per_seat, distance_km, notes, status,
	created_at, updated_at`

// maxSearchResults caps a ride search
const maxSearchResults = 100

// RideRepository implements ride.Repository and ledger.RideDirectory
type RideRepository struct {
	q querier
}

// NewRideRepository creates a ride repository outside any transaction
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

func (r *RideRepository) Create(ctx context.Context, rd *ride.Ride) error {
	query := `INSERT INTO rides (id, driver_id, vehicle_id, origin, destination, departure_at,
		seats_total, seats_available, price_per_seat, distance_km, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.q.ExecContext(ctx, query,
		rd.ID, rd.DriverID, nullUUID(rd.VehicleID), rd.Origin, rd.Destination, rd.DepartureAt,
		rd.SeatsTotal, rd.SeatsAvailable, rd.PricePerSeat, rd.DistanceKM, rd.Notes, rd.Status,
		rd.CreatedAt, rd.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}
	return nil
}

func (r *RideRepository) GetByID(ctx context.Context, id uuid.UUID) (*ride.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetRideForUpdate locks the ride row until the transaction ends
func (r *RideRepository) GetRideForUpdate(ctx context.Context, rideID uuid.UUID) (*ride.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, rideID)
}

// UpdateSeatsAvailable applies delta to the stored count. The WHERE clause
// carries the whole guard so a stale read can never over-sell or over-credit.
func (r *RideRepository) UpdateSeatsAvailable(ctx context.Context, rideID uuid.UUID, delta, expectedMin int) (bool, error) {
	query := `UPDATE rides
		SET seats_available = seats_available + $2, updated_at = NOW()
		WHERE id = $1
		  AND seats_available >= $3
		  AND seats_available + $2 BETWEEN 0 AND seats_total`

	res, err := r.q.ExecContext(ctx, query, rideID, delta, expectedMin)
	if err != nil {
		return false, fmt.Errorf("update seats_available: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Search returns active rides matching the filter, soonest departure first
func (r *RideRepository) Search(ctx context.Context, filter ride.SearchFilter) ([]*ride.Ride, error) {
	var (
		conds = []string{"status = 'active'"}
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Origin != "" {
		conds = append(conds, "origin ILIKE "+arg("%"+escapeLike(filter.Origin)+"%"))
	}
	if filter.Destination != "" {
		conds = append(conds, "destination ILIKE "+arg("%"+escapeLike(filter.Destination)+"%"))
	}
	if filter.Date != nil {
		day := filter.Date.UTC().Truncate(24 * time.Hour)
		conds = append(conds, "departure_at >= "+arg(day))
		conds = append(conds, "departure_at < "+arg(day.AddDate(0, 0, 1)))
	}
	minSeats := filter.MinSeats
	if minSeats < 1 {
		minSeats = 1
	}
	conds = append(conds, "seats_available >= "+arg(minSeats))

	limit := filter.Limit
	if limit <= 0 || limit > maxSearchResults {
		limit = maxSearchResults
	}

	query := `SELECT ` + rideColumns + ` FROM rides WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY departure_at ASC LIMIT ` + arg(limit)

	return r.list(ctx, query, args...)
}

func (r *RideRepository) ListByDriver(ctx context.Context, driverID uuid.UUID) ([]*ride.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE driver_id = $1 ORDER BY departure_at DESC`
	return r.list(ctx, query, driverID)
}

func (r *RideRepository) Stats(ctx context.Context) (*ride.Stats, error) {
	query := `SELECT COUNT(*),
		COUNT(*) FILTER (WHERE status = 'active'),
		COALESCE(SUM(seats_total), 0),
		COALESCE(SUM(seats_available), 0)
		FROM rides`

	var s ride.Stats
	err := r.q.QueryRowContext(ctx, query).Scan(
		&s.TotalRides, &s.ActiveRides, &s.TotalSeatsOffered, &s.TotalSeatsAvailable,
	)
	if err != nil {
		return nil, fmt.Errorf("ride stats: %w", err)
	}
	return &s, nil
}

func (r *RideRepository) getOne(ctx context.Context, query string, args ...interface{}) (*ride.Ride, error) {
	rd, err := scanRide(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ride.ErrRideNotFound
		}
		return nil, fmt.Errorf("get ride: %w", err)
	}
	return rd, nil
}

func (r *RideRepository) list(ctx context.Context, query string, args ...interface{}) ([]*ride.Ride, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rides: %w", err)
	}
	defer rows.Close()

	rides := make([]*ride.Ride, 0)
	for rows.Next() {
		rd, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ride: %w", err)
		}
		rides = append(rides, rd)
	}
	return rides, rows.Err()
}

func scanRide(s rowScanner) (*ride.Ride, error) {
	var (
		rd        ride.Ride
		vehicleID uuid.NullUUID
	)
	err := s.Scan(
		&rd.ID, &rd.DriverID, &vehicleID, &rd.Origin, &rd.Destination, &rd.DepartureAt,
		&rd.SeatsTotal, &rd.SeatsAvailable, &rd.PricePerSeat, &rd.DistanceKM, &rd.Notes, &rd.Status,
		&rd.CreatedAt, &rd.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if vehicleID.Valid {
		id := vehicleID.UUID
		rd.VehicleID = &id
	}
	return &rd, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
