package rides

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocomet/carpool/internal/domain/booking"
	"github.com/gocomet/carpool/internal/domain/ride"
	"github.com/gocomet/carpool/internal/domain/vehicle"
	"github.com/gocomet/carpool/internal/service/pricing"
	apperrors "github.com/gocomet/carpool/pkg/errors"
	"github.com/gocomet/carpool/pkg/logger"
	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
)

const defaultInvalidationHold = 5 * time.Second

// Cache stores ride snapshots for reads. Snapshots are never used to decide
// a seat mutation.
type Cache interface {
	Key(parts ...string) string
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, expiry time.Duration) error
	AddJSON(ctx context.Context, key string, value interface{}, expiry time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Recorder receives ride publication events
type Recorder interface {
	RecordRideCreated(seatsTotal int, distanceKM float64)
}

// Config holds ride directory configuration
type Config struct {
	SnapshotTTL time.Duration
	// InvalidationHold is how long an invalidated ride bypasses the cache
	InvalidationHold time.Duration
}

// CreateInput is what a driver supplies when publishing a ride
type CreateInput struct {
	VehicleID    *uuid.UUID
	Origin       string
	Destination  string
	DepartureAt  time.Time
	SeatsTotal   int
	PricePerSeat float64 // zero asks for a suggested price
	DistanceKM   float64
	Notes        string
}

// Service is the ride directory: publishing, search and lookups
type Service struct {
	rides    ride.Repository
	vehicles vehicle.Repository
	bookings booking.Repository
	cache    Cache
	pricing  *pricing.Service
	recorder Recorder
	logger   *logger.Logger
	config   Config
	now      func() time.Time
}

// NewService creates a new ride directory. cache and recorder may be nil.
func NewService(
	rides ride.Repository,
	vehicles vehicle.Repository,
	bookings booking.Repository,
	cache Cache,
	pricingService *pricing.Service,
	recorder Recorder,
	log *logger.Logger,
	config Config,
) *Service {
	if config.InvalidationHold <= 0 {
		config.InvalidationHold = defaultInvalidationHold
	}
	return &Service{
		rides:    rides,
		vehicles: vehicles,
		bookings: bookings,
		cache:    cache,
		pricing:  pricingService,
		recorder: recorder,
		logger:   log,
		config:   config,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create publishes a ride owned by driverID with every seat available
func (s *Service) Create(ctx context.Context, driverID uuid.UUID, in CreateInput) (*ride.Ride, error) {
	if in.SeatsTotal < 1 {
		return nil, apperrors.ErrInvalidRequest.Withf("seats_total must be at least 1")
	}
	if in.PricePerSeat < 0 || in.DistanceKM < 0 {
		return nil, apperrors.ErrInvalidRequest.Withf("price_per_seat and distance_km cannot be negative")
	}

	if in.VehicleID != nil {
		v, err := s.vehicles.GetByID(ctx, *in.VehicleID)
		if err != nil {
			if errors.Is(err, vehicle.ErrVehicleNotFound) {
				return nil, apperrors.ErrVehicleNotFound
			}
			return nil, apperrors.Internal("Failed to load vehicle", err)
		}
		if !v.OwnedBy(driverID) {
			return nil, apperrors.ErrVehicleNotFound
		}
		if in.SeatsTotal > v.SeatCapacity {
			return nil, apperrors.ErrSeatsExceedCapacity.Withf("Seats cannot exceed vehicle capacity of %d", v.SeatCapacity)
		}
	}

	price := in.PricePerSeat
	if price == 0 && s.pricing != nil {
		price = s.pricing.SuggestPricePerSeat(in.DistanceKM)
	}

	now := s.now()
	r := &ride.Ride{
		ID:             uuid.New(),
		DriverID:       driverID,
		VehicleID:      in.VehicleID,
		Origin:         strings.TrimSpace(in.Origin),
		Destination:    strings.TrimSpace(in.Destination),
		DepartureAt:    in.DepartureAt.UTC(),
		SeatsTotal:     in.SeatsTotal,
		SeatsAvailable: in.SeatsTotal,
		PricePerSeat:   price,
		DistanceKM:     in.DistanceKM,
		Notes:          strings.TrimSpace(in.Notes),
		Status:         ride.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.Validate(); err != nil {
		return nil, apperrors.ErrInvalidRequest.Withf("%s", err.Error())
	}

	if err := s.rides.Create(ctx, r); err != nil {
		return nil, apperrors.Internal("Failed to create ride", err)
	}

	s.logger.Info("Ride published",
		logger.UUID("ride_id", r.ID),
		logger.UUID("driver_id", driverID),
		logger.Int("seats_total", r.SeatsTotal),
	)
	if s.recorder != nil {
		s.recorder.RecordRideCreated(r.SeatsTotal, r.DistanceKM)
	}

	return r, nil
}

// Search lists active rides with free seats matching the filter
func (s *Service) Search(ctx context.Context, filter ride.SearchFilter) ([]*ride.Ride, error) {
	if filter.MinSeats < 1 {
		filter.MinSeats = 1
	}
	seg := ridesSegment(ctx, "SELECT")
	rides, err := s.rides.Search(ctx, filter)
	seg.End()
	if err != nil {
		return nil, apperrors.Internal("Failed to search rides", err)
	}
	return rides, nil
}

// Get returns a ride, served from the snapshot cache when possible. An
// invalidation marker counts as a miss.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ride.Ride, error) {
	txn := newrelic.FromContext(ctx)
	key := s.snapshotKey(id)

	if s.cache != nil {
		var cached ride.Ride
		seg := txn.StartSegment("rides/snapshot")
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		seg.End()
		if err != nil {
			s.logger.Warn("Ride cache read failed", logger.UUID("ride_id", id), logger.Err(err))
		} else if hit && cached.ID != uuid.Nil {
			return &cached, nil
		}
	}

	seg := ridesSegment(ctx, "SELECT")
	r, err := s.rides.GetByID(ctx, id)
	seg.End()
	if err != nil {
		if errors.Is(err, ride.ErrRideNotFound) {
			return nil, apperrors.ErrRideNotFound
		}
		return nil, apperrors.Internal("Failed to load ride", err)
	}

	// Only fill an empty slot: a marker written by a concurrent seat change
	// must not be replaced with this possibly older copy.
	if s.cache != nil && s.config.SnapshotTTL > 0 {
		if _, err := s.cache.AddJSON(ctx, key, r, s.config.SnapshotTTL); err != nil {
			s.logger.Warn("Ride cache write failed", logger.UUID("ride_id", id), logger.Err(err))
		}
	}
	return r, nil
}

// ListByDriver returns every ride the driver published
func (s *Service) ListByDriver(ctx context.Context, driverID uuid.UUID) ([]*ride.Ride, error) {
	rides, err := s.rides.ListByDriver(ctx, driverID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list rides", err)
	}
	return rides, nil
}

// ListBookings returns the bookings on a ride. Only the ride's driver may
// see them; anyone else gets RIDE_NOT_FOUND.
func (s *Service) ListBookings(ctx context.Context, rideID, driverID uuid.UUID) ([]*booking.Booking, error) {
	r, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		if errors.Is(err, ride.ErrRideNotFound) {
			return nil, apperrors.ErrRideNotFound.Withf("Ride not found or not yours")
		}
		return nil, apperrors.Internal("Failed to load ride", err)
	}
	if r.DriverID != driverID {
		return nil, apperrors.ErrRideNotFound.Withf("Ride not found or not yours")
	}

	bookings, err := s.bookings.ListByRide(ctx, rideID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list bookings", err)
	}
	return bookings, nil
}

// ListPassengerBookings returns the passenger's bookings with their rides,
// newest first
func (s *Service) ListPassengerBookings(ctx context.Context, passengerID uuid.UUID) ([]*booking.WithRide, error) {
	bookings, err := s.bookings.ListByPassenger(ctx, passengerID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list bookings", err)
	}
	return bookings, nil
}

// Invalidate replaces the cached snapshot of a ride with an empty marker
// that lives for InvalidationHold
func (s *Service) Invalidate(ctx context.Context, rideID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.SetJSON(ctx, s.snapshotKey(rideID), struct{}{}, s.config.InvalidationHold); err != nil {
		return fmt.Errorf("invalidate ride %s: %w", rideID, err)
	}
	return nil
}

func (s *Service) snapshotKey(id uuid.UUID) string {
	if s.cache == nil {
		return ""
	}
	return s.cache.Key("ride", id.String())
}

func ridesSegment(ctx context.Context, op string) *newrelic.DatastoreSegment {
	txn := newrelic.FromContext(ctx)
	return &newrelic.DatastoreSegment{
		StartTime:  txn.StartSegmentNow(),
		Product:    newrelic.DatastorePostgres,
		Collection: "rides",
		Operation:  op,
	}
}
