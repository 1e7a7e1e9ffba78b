package pricing

import (
	"math"

	"github.com/gocomet/carpool/internal/domain/booking"
)

// Service handles fares and emissions estimates
type Service struct {
	config Config
}

// Config holds pricing configuration
type Config struct {
	BaseFare        float64 // used when a driver publishes a ride without a price
	PerKMRate       float64
	MinPricePerSeat float64
	CO2GramsPerKM   float64 // emitted by one car per km
}

// DefaultConfig returns the pricing used when nothing is configured
func DefaultConfig() Config {
	return Config{
		BaseFare:        20,
		PerKMRate:       3,
		MinPricePerSeat: 20,
		CO2GramsPerKM:   120,
	}
}

// FareBreakdown is the cost of a booking
type FareBreakdown struct {
	PricePerSeat float64 `json:"price_per_seat"`
	Seats        int     `json:"seats"`
	Total        float64 `json:"total"`
	CO2SavedKG   float64 `json:"co2_saved_kg"`
}

// NewService creates a new pricing service
func NewService(config Config) *Service {
	if config.CO2GramsPerKM <= 0 {
		config.CO2GramsPerKM = DefaultConfig().CO2GramsPerKM
	}
	return &Service{config: config}
}

// BookingFare prices seats on a ride
func (s *Service) BookingFare(pricePerSeat float64, seats int, distanceKM float64) *FareBreakdown {
	return &FareBreakdown{
		PricePerSeat: pricePerSeat,
		Seats:        seats,
		Total:        round2(pricePerSeat * float64(seats)),
		CO2SavedKG:   s.CO2Savings(distanceKM, seats),
	}
}

// SuggestPricePerSeat estimates a seat price from the trip distance
func (s *Service) SuggestPricePerSeat(distanceKM float64) float64 {
	price := s.config.BaseFare + distanceKM*s.config.PerKMRate
	if price < s.config.MinPricePerSeat {
		price = s.config.MinPricePerSeat
	}
	return round2(price)
}

// CO2Savings returns the kilograms of CO2 saved when passengers share one car
// instead of each driving: (passengers - 1) cars stay off the road.
func (s *Service) CO2Savings(distanceKM float64, passengers int) float64 {
	if passengers <= 1 || distanceKM <= 0 {
		return 0
	}
	return round2(float64(passengers-1) * distanceKM * s.config.CO2GramsPerKM / 1000)
}

// TotalCO2Savings sums the savings of every confirmed booking. Each booking
// is rounded on its own before summing.
func (s *Service) TotalCO2Savings(seats []booking.ConfirmedSeats) float64 {
	var total float64
	for _, cs := range seats {
		total += s.CO2Savings(cs.DistanceKM, cs.SeatsBooked)
	}
	return round2(total)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
