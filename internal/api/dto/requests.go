package dto

import (
	"time"

	"github.com/gocomet/carpool/internal/domain/booking"
	"github.com/gocomet/carpool/internal/domain/ride"
	"github.com/gocomet/carpool/internal/service/pricing"
)

// RegisterRequest represents a new account
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

// LoginRequest represents a credential check
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CreateVehicleRequest represents a driver registering a car
type CreateVehicleRequest struct {
	Model        string `json:"model" binding:"required"`
	SeatCapacity int    `json:"seat_capacity" binding:"required"`
	LicensePlate string `json:"license_plate" binding:"required"`
}

// CreateRideRequest represents a driver publishing a ride
type CreateRideRequest struct {
	VehicleID    string    `json:"vehicle_id"`
	Origin       string    `json:"origin" binding:"required"`
	Destination  string    `json:"destination" binding:"required"`
	DepartureAt  time.Time `json:"departure_time" binding:"required"`
	SeatsTotal   int       `json:"seats_total" binding:"required"`
	PricePerSeat float64   `json:"price_per_seat"`
	DistanceKM   float64   `json:"distance_km"`
	Notes        string    `json:"notes"`
}

// SearchRidesQuery represents ride search query parameters
type SearchRidesQuery struct {
	Origin      string `form:"origin"`
	Destination string `form:"destination"`
	Date        string `form:"date"` // YYYY-MM-DD
	MinSeats    int    `form:"min_seats"`
}

// ReserveSeatsRequest represents a passenger booking seats
type ReserveSeatsRequest struct {
	SeatsRequested int `json:"seats_requested" binding:"min=1"`
}

// BookingResponse is a confirmed reservation with its price
type BookingResponse struct {
	*booking.Booking
	Fare *pricing.FareBreakdown `json:"fare,omitempty"`
}

// RideResponse is a ride with its derived seat counts
type RideResponse struct {
	*ride.Ride
	SeatsBooked int `json:"seats_booked"`
}

// NewRideResponse wraps a ride for output
func NewRideResponse(r *ride.Ride) RideResponse {
	return RideResponse{Ride: r, SeatsBooked: r.SeatsBooked()}
}

// NewRideResponses wraps rides for output
func NewRideResponses(rides []*ride.Ride) []RideResponse {
	out := make([]RideResponse, 0, len(rides))
	for _, r := range rides {
		out = append(out, NewRideResponse(r))
	}
	return out
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
