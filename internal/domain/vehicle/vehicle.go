package vehicle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Vehicle is a car registered by a driver
type Vehicle struct {
	ID           uuid.UUID `json:"id"`
	OwnerID      uuid.UUID `json:"owner_id"`
	Model        string    `json:"model"`
	SeatCapacity int       `json:"seat_capacity"`
	LicensePlate string    `json:"license_plate"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repository defines the interface for vehicle data access
type Repository interface {
	Create(ctx context.Context, v *Vehicle) error
	GetByID(ctx context.Context, id uuid.UUID) (*Vehicle, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Vehicle, error)
}

var (
	ErrVehicleNotFound = errors.New("vehicle not found")
	ErrPlateTaken      = errors.New("license plate already registered")
	ErrInvalidCapacity = errors.New("seat capacity must be at least 1")
)

// IsValid validates the vehicle entity
func (v *Vehicle) IsValid() error {
	if v.SeatCapacity < 1 {
		return ErrInvalidCapacity
	}
	if v.Model == "" || v.LicensePlate == "" {
		return errors.New("model and license plate are required")
	}
	return nil
}

// OwnedBy reports whether the vehicle belongs to the given driver
func (v *Vehicle) OwnedBy(driverID uuid.UUID) bool {
	return v.OwnerID == driverID
}
