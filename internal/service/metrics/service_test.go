package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/gocomet/carpool/internal/domain/booking"
	"github.com/gocomet/carpool/internal/domain/ride"
	"github.com/gocomet/carpool/internal/domain/user"
	"github.com/gocomet/carpool/internal/service/pricing"
	apperrors "github.com/gocomet/carpool/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUsers struct {
	mock.Mock
	user.Repository
}

func (m *mockUsers) CountByRole(ctx context.Context) (map[user.Role]int, error) {
	args := m.Called(ctx)
	counts, _ := args.Get(0).(map[user.Role]int)
	return counts, args.Error(1)
}

type mockRides struct {
	mock.Mock
	ride.Repository
}

func (m *mockRides) Stats(ctx context.Context) (*ride.Stats, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(*ride.Stats)
	return stats, args.Error(1)
}

type mockBookings struct {
	mock.Mock
	booking.Repository
}

func (m *mockBookings) CountByStatus(ctx context.Context) (map[booking.Status]int, error) {
	args := m.Called(ctx)
	counts, _ := args.Get(0).(map[booking.Status]int)
	return counts, args.Error(1)
}

func (m *mockBookings) ListConfirmedSeats(ctx context.Context) ([]booking.ConfirmedSeats, error) {
	args := m.Called(ctx)
	seats, _ := args.Get(0).([]booking.ConfirmedSeats)
	return seats, args.Error(1)
}

func TestSummary(t *testing.T) {
	users := &mockUsers{}
	rides := &mockRides{}
	bookings := &mockBookings{}

	users.On("CountByRole", mock.Anything).Return(map[user.Role]int{
		user.RoleDriver: 2, user.RolePassenger: 5, user.RoleAdmin: 1,
	}, nil)
	rides.On("Stats", mock.Anything).Return(&ride.Stats{
		TotalRides: 4, ActiveRides: 3, TotalSeatsOffered: 12, TotalSeatsAvailable: 7,
	}, nil)
	bookings.On("CountByStatus", mock.Anything).Return(map[booking.Status]int{
		booking.StatusConfirmed: 3, booking.StatusCancelled: 1,
	}, nil)
	bookings.On("ListConfirmedSeats", mock.Anything).Return([]booking.ConfirmedSeats{
		{SeatsBooked: 1, DistanceKM: 30},   // a lone passenger saves nothing
		{SeatsBooked: 2, DistanceKM: 25},   // 1 * 25 * 120 / 1000 = 3.0
		{SeatsBooked: 2, DistanceKM: 12.5}, // 1.5
	}, nil)

	svc := NewService(users, rides, bookings, pricing.NewService(pricing.DefaultConfig()))
	got, err := svc.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, &Summary{
		TotalUsers:        8,
		TotalDrivers:      2,
		TotalPassengers:   5, // the admin is a user but not a passenger
		TotalRides:        4,
		ActiveRides:       3,
		TotalBookings:     4,
		ConfirmedBookings: 3,
		TotalSeatsOffered: 12,
		TotalSeatsBooked:  5,
		TotalCO2SavedKG:   4.5,
	}, got)
}

func TestSummary_StoreFailureIsInternal(t *testing.T) {
	users := &mockUsers{}
	users.On("CountByRole", mock.Anything).Return(nil, errors.New("connection reset"))

	svc := NewService(users, &mockRides{}, &mockBookings{}, pricing.NewService(pricing.DefaultConfig()))
	_, err := svc.Summary(context.Background())

	require.Error(t, err)
	assert.Equal(t, "INTERNAL_ERROR", apperrors.GetAppError(err).Code)
}
