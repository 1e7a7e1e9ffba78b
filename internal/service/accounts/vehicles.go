package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/gocomet/carpool/internal/domain/vehicle"
	apperrors "github.com/gocomet/carpool/pkg/errors"
	"github.com/gocomet/carpool/pkg/logger"
	"github.com/google/uuid"
)

// VehicleInput is what a driver supplies when registering a car
type VehicleInput struct {
	Model        string
	SeatCapacity int
	LicensePlate string
}

// RegisterVehicle adds a car to the driver's fleet
func (s *Service) RegisterVehicle(ctx context.Context, ownerID uuid.UUID, in VehicleInput) (*vehicle.Vehicle, error) {
	v := &vehicle.Vehicle{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		Model:        strings.TrimSpace(in.Model),
		SeatCapacity: in.SeatCapacity,
		LicensePlate: strings.ToUpper(strings.TrimSpace(in.LicensePlate)),
		CreatedAt:    s.now(),
	}
	if err := v.IsValid(); err != nil {
		return nil, apperrors.ErrInvalidRequest.Withf("%s", err.Error())
	}

	if err := s.vehicles.Create(ctx, v); err != nil {
		if errors.Is(err, vehicle.ErrPlateTaken) {
			return nil, apperrors.ErrPlateTaken
		}
		return nil, apperrors.Internal("Failed to register vehicle", err)
	}

	s.logger.Info("Vehicle registered",
		logger.UUID("vehicle_id", v.ID),
		logger.UUID("owner_id", ownerID),
		logger.Int("seat_capacity", v.SeatCapacity),
	)
	return v, nil
}

// ListVehicles returns the driver's cars
func (s *Service) ListVehicles(ctx context.Context, ownerID uuid.UUID) ([]*vehicle.Vehicle, error) {
	vs, err := s.vehicles.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list vehicles", err)
	}
	return vs, nil
}
