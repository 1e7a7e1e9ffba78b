package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gocomet/carpool/internal/domain/vehicle"
	"github.com/google/uuid"
)

const vehicleColumns = `id, owner_id, model, seat_capacity, license_plate, created_at`

// VehicleRepository implements vehicle.Repository
type VehicleRepository struct {
	q querier
}

func NewVehicleRepository(db *sql.DB) *VehicleRepository {
	return &VehicleRepository{q: db}
}

// Create inserts a vehicle. Plates are stored upper-cased.
func (r *VehicleRepository) Create(ctx context.Context, v *vehicle.Vehicle) error {
	query := `INSERT INTO vehicles (id, owner_id, model, seat_capacity, license_plate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	v.LicensePlate = strings.ToUpper(strings.TrimSpace(v.LicensePlate))
	_, err := r.q.ExecContext(ctx, query, v.ID, v.OwnerID, v.Model, v.SeatCapacity, v.LicensePlate, v.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return vehicle.ErrPlateTaken
		}
		return fmt.Errorf("insert vehicle: %w", err)
	}
	return nil
}

func (r *VehicleRepository) GetByID(ctx context.Context, id uuid.UUID) (*vehicle.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = $1`

	v, err := scanVehicle(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, vehicle.ErrVehicleNotFound
		}
		return nil, fmt.Errorf("get vehicle: %w", err)
	}
	return v, nil
}

func (r *VehicleRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*vehicle.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := r.q.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query vehicles: %w", err)
	}
	defer rows.Close()

	out := make([]*vehicle.Vehicle, 0)
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVehicle(s rowScanner) (*vehicle.Vehicle, error) {
	var v vehicle.Vehicle
	if err := s.Scan(&v.ID, &v.OwnerID, &v.Model, &v.SeatCapacity, &v.LicensePlate, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}
