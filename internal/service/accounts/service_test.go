package accounts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gocomet/carpool/internal/domain/user"
	"github.com/gocomet/carpool/internal/domain/vehicle"
	"github.com/gocomet/carpool/pkg/auth"
	apperrors "github.com/gocomet/carpool/pkg/errors"
	"github.com/gocomet/carpool/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memUsers struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*user.User
	email map[string]uuid.UUID
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[uuid.UUID]*user.User{}, email: map[string]uuid.UUID{}}
}

func (m *memUsers) Create(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.email[u.Email]; ok {
		return user.ErrEmailTaken
	}
	cp := *u
	m.byID[u.ID] = &cp
	m.email[u.Email] = u.ID
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	id, ok := m.email[email]
	m.mu.Unlock()
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *memUsers) CountByRole(context.Context) (map[user.Role]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[user.Role]int{}
	for _, u := range m.byID {
		counts[u.Role]++
	}
	return counts, nil
}

type memVehicles struct {
	plates map[string]bool
	list   []*vehicle.Vehicle
}

func (m *memVehicles) Create(_ context.Context, v *vehicle.Vehicle) error {
	if m.plates[v.LicensePlate] {
		return vehicle.ErrPlateTaken
	}
	m.plates[v.LicensePlate] = true
	m.list = append(m.list, v)
	return nil
}

func (m *memVehicles) GetByID(_ context.Context, id uuid.UUID) (*vehicle.Vehicle, error) {
	for _, v := range m.list {
		if v.ID == id {
			return v, nil
		}
	}
	return nil, vehicle.ErrVehicleNotFound
}

func (m *memVehicles) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*vehicle.Vehicle, error) {
	var out []*vehicle.Vehicle
	for _, v := range m.list {
		if v.OwnerID == ownerID {
			out = append(out, v)
		}
	}
	return out, nil
}

func newTestService() (*Service, *auth.JWTService) {
	tokens := auth.NewJWTService(auth.Config{Secret: "test", Expiry: time.Hour})
	hasher := PasswordFuncs{HashFunc: auth.HashPassword, CheckFunc: auth.CheckPassword}
	svc := NewService(newMemUsers(), &memVehicles{plates: map[string]bool{}}, tokens, hasher, logger.NewNop())
	return svc, tokens
}

func TestRegisterAndLogin(t *testing.T) {
	svc, tokens := newTestService()
	ctx := context.Background()

	session, err := svc.Register(ctx, RegisterInput{
		Name: "Ravi", Email: "Ravi@Example.com", Phone: "9000000000", Password: "secret1", Role: "Driver",
	})
	require.NoError(t, err)
	assert.Equal(t, "bearer", session.TokenType)
	assert.Equal(t, user.RoleDriver, session.User.Role)
	assert.Equal(t, "ravi@example.com", session.User.Email)
	assert.NotEqual(t, "secret1", session.User.PasswordHash)

	id, role, err := tokens.ValidateToken(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, id)
	assert.Equal(t, "driver", role)

	login, err := svc.Login(ctx, "ravi@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, login.User.ID)

	_, err = svc.Login(ctx, "ravi@example.com", "wrong-password")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	me, err := svc.Me(ctx, session.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ravi", me.Name)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{"admin cannot self-register", RegisterInput{Name: "A", Email: "a@x.io", Password: "secret1", Role: "admin"}, apperrors.ErrInvalidRequest},
		{"unknown role", RegisterInput{Name: "A", Email: "a@x.io", Password: "secret1", Role: "pilot"}, apperrors.ErrInvalidRequest},
		{"missing name", RegisterInput{Email: "a@x.io", Password: "secret1"}, apperrors.ErrInvalidRequest},
		{"bad email", RegisterInput{Name: "A", Email: "not-an-email", Password: "secret1"}, apperrors.ErrInvalidRequest},
		{"short password", RegisterInput{Name: "A", Email: "a@x.io", Password: "123"}, apperrors.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService()
			_, err := svc.Register(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegister_DefaultsToPassengerAndRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newTestService()
	in := RegisterInput{Name: "Meera", Email: "meera@example.com", Password: "secret1"}

	session, err := svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, user.RolePassenger, session.User.Role)

	_, err = svc.Register(context.Background(), in)
	assert.ErrorIs(t, err, apperrors.ErrEmailTaken)
}

func TestRegisterVehicle(t *testing.T) {
	svc, _ := newTestService()
	owner := uuid.New()

	v, err := svc.RegisterVehicle(context.Background(), owner, VehicleInput{Model: "Swift", SeatCapacity: 4, LicensePlate: "ka01ab1234"})
	require.NoError(t, err)
	assert.Equal(t, "KA01AB1234", v.LicensePlate)

	_, err = svc.RegisterVehicle(context.Background(), uuid.New(), VehicleInput{Model: "Dzire", SeatCapacity: 4, LicensePlate: "KA01AB1234"})
	assert.ErrorIs(t, err, apperrors.ErrPlateTaken)

	_, err = svc.RegisterVehicle(context.Background(), owner, VehicleInput{Model: "Bike", SeatCapacity: 0, LicensePlate: "X"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)

	list, err := svc.ListVehicles(context.Background(), owner)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
