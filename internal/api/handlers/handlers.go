package handlers

import (
	"context"
	"time"

	"github.com/gocomet/carpool/internal/domain/booking"
	"github.com/gocomet/carpool/internal/domain/ride"
	"github.com/gocomet/carpool/internal/domain/user"
	"github.com/gocomet/carpool/internal/domain/vehicle"
	"github.com/gocomet/carpool/internal/service/accounts"
	"github.com/gocomet/carpool/internal/service/metrics"
	"github.com/gocomet/carpool/internal/service/pricing"
	"github.com/gocomet/carpool/internal/service/rides"
	"github.com/gocomet/carpool/pkg/logger"
	"github.com/gocomet/carpool/pkg/websocket"
	"github.com/google/uuid"
)

// SeatLedger reserves and releases seats
type SeatLedger interface {
	Reserve(ctx context.Context, rideID, passengerID uuid.UUID, seats int) (*booking.Booking, error)
	Release(ctx context.Context, bookingID, requesterID uuid.UUID) error
}

// RideDirectory publishes and looks up rides
type RideDirectory interface {
	Create(ctx context.Context, driverID uuid.UUID, in rides.CreateInput) (*ride.Ride, error)
	Search(ctx context.Context, filter ride.SearchFilter) ([]*ride.Ride, error)
	Get(ctx context.Context, id uuid.UUID) (*ride.Ride, error)
	ListByDriver(ctx context.Context, driverID uuid.UUID) ([]*ride.Ride, error)
	ListBookings(ctx context.Context, rideID, driverID uuid.UUID) ([]*booking.Booking, error)
	ListPassengerBookings(ctx context.Context, passengerID uuid.UUID) ([]*booking.WithRide, error)
}

// Accounts registers and signs in users and their vehicles
type Accounts interface {
	Register(ctx context.Context, in accounts.RegisterInput) (*accounts.Session, error)
	Login(ctx context.Context, email, password string) (*accounts.Session, error)
	Me(ctx context.Context, userID uuid.UUID) (*user.User, error)
	RegisterVehicle(ctx context.Context, ownerID uuid.UUID, in accounts.VehicleInput) (*vehicle.Vehicle, error)
	ListVehicles(ctx context.Context, ownerID uuid.UUID) ([]*vehicle.Vehicle, error)
}

// Reporter builds admin reports
type Reporter interface {
	Summary(ctx context.Context) (*metrics.Summary, error)
}

// ResponseCache stores replayable responses keyed by Idempotency-Key
type ResponseCache interface {
	Key(parts ...string) string
	Claim(ctx context.Context, key string, expiry time.Duration) (bool, error)
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, expiry time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// TokenValidator verifies WebSocket access tokens
type TokenValidator interface {
	ValidateToken(token string) (uuid.UUID, string, error)
}

// HealthCheck pings one dependency
type HealthCheck func(ctx context.Context) error

// Config holds handler configuration
type Config struct {
	IdempotencyTTL    time.Duration
	WSReadBufferSize  int
	WSWriteBufferSize int
	WSAllowedOrigins  []string
}

// Dependencies are the services behind the HTTP handlers. Idempotency,
// Hub and HealthChecks may be nil.
type Dependencies struct {
	Accounts     Accounts
	Rides        RideDirectory
	Ledger       SeatLedger
	Metrics      Reporter
	Pricing      *pricing.Service
	Idempotency  ResponseCache
	Hub          *websocket.Hub
	Tokens       TokenValidator
	HealthChecks map[string]HealthCheck
}

// Handlers holds all handler dependencies
type Handlers struct {
	Dependencies
	Logger *logger.Logger
	config Config
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, log *logger.Logger, config Config) *Handlers {
	useWireFieldNames()
	if config.WSReadBufferSize <= 0 {
		config.WSReadBufferSize = 1024
	}
	if config.WSWriteBufferSize <= 0 {
		config.WSWriteBufferSize = 1024
	}
	return &Handlers{
		Dependencies: deps,
		Logger:       log,
		config:       config,
	}
}
