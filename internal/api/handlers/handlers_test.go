package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/carpool/internal/api/handlers"
	"github.com/gocomet/carpool/internal/api/routes"
	"github.com/gocomet/carpool/internal/domain/booking"
	"github.com/gocomet/carpool/internal/domain/ride"
	"github.com/gocomet/carpool/internal/ledger"
	"github.com/gocomet/carpool/internal/ledger/ledgertest"
	"github.com/gocomet/carpool/internal/service/metrics"
	"github.com/gocomet/carpool/internal/service/pricing"
	"github.com/gocomet/carpool/internal/service/rides"
	"github.com/gocomet/carpool/pkg/auth"
	apperrors "github.com/gocomet/carpool/pkg/errors"
	"github.com/gocomet/carpool/pkg/logger"
	"github.com/gocomet/carpool/pkg/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeRides serves ride reads straight from the in-memory ledger store
type storeRides struct {
	handlers.RideDirectory
	store *ledgertest.Store
}

func (s *storeRides) Get(_ context.Context, id uuid.UUID) (*ride.Ride, error) {
	r, ok := s.store.Ride(id)
	if !ok {
		return nil, apperrors.ErrRideNotFound
	}
	return &r, nil
}

func (s *storeRides) Create(_ context.Context, driverID uuid.UUID, in rides.CreateInput) (*ride.Ride, error) {
	r := ride.Ride{
		ID: uuid.New(), DriverID: driverID, Origin: in.Origin, Destination: in.Destination,
		DepartureAt: in.DepartureAt, SeatsTotal: in.SeatsTotal, SeatsAvailable: in.SeatsTotal,
		PricePerSeat: in.PricePerSeat, Status: ride.StatusActive,
	}
	s.store.AddRide(r)
	return &r, nil
}

func (s *storeRides) Search(_ context.Context, filter ride.SearchFilter) ([]*ride.Ride, error) {
	return []*ride.Ride{}, nil
}

type stubReporter struct{ summary *metrics.Summary }

func (s stubReporter) Summary(context.Context) (*metrics.Summary, error) { return s.summary, nil }

// memResponses is an in-process ResponseCache
type memResponses struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memResponses) Key(parts ...string) string { return strings.Join(parts, ":") }

func (m *memResponses) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = []byte("{}")
	return true, nil
}

func (m *memResponses) GetJSON(_ context.Context, key string, dest interface{}) (bool, error) {
	m.mu.Lock()
	raw, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memResponses) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return nil
}

func (m *memResponses) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

type env struct {
	router *gin.Engine
	store  *ledgertest.Store
	tokens *auth.JWTService
	health map[string]handlers.HealthCheck
}

type envOption func(d *handlers.Dependencies)

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	e := &env{
		store:  ledgertest.NewStore(),
		tokens: auth.NewJWTService(auth.Config{Secret: "test-secret", Expiry: time.Hour}),
		health: map[string]handlers.HealthCheck{},
	}
	log := logger.NewNop()

	hub := websocket.NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	deps := handlers.Dependencies{
		Rides:        &storeRides{store: e.store},
		Ledger:       ledger.NewService(e.store, nil, log, ledger.Config{MaxAttempts: 3, RetryBackoff: time.Millisecond}),
		Metrics:      stubReporter{summary: &metrics.Summary{TotalUsers: 3}},
		Pricing:      pricing.NewService(pricing.DefaultConfig()),
		Idempotency:  &memResponses{data: map[string][]byte{}},
		Hub:          hub,
		Tokens:       e.tokens,
		HealthChecks: e.health,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h := handlers.NewHandlers(deps, log, handlers.Config{IdempotencyTTL: time.Hour})

	e.router = gin.New()
	routes.SetupRoutes(e.router, h, e.tokens, routes.CORSConfig{}, nil)
	return e
}

func (e *env) token(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	tok, err := e.tokens.GenerateToken(userID, role)
	require.NoError(t, err)
	return tok
}

func (e *env) addRide(seats int) ride.Ride {
	r := ride.Ride{
		ID:             uuid.New(),
		DriverID:       uuid.New(),
		Origin:         "Indiranagar",
		Destination:    "Electronic City",
		DepartureAt:    time.Now().Add(2 * time.Hour),
		SeatsTotal:     seats,
		SeatsAvailable: seats,
		PricePerSeat:   150,
		DistanceKM:     20,
		Status:         ride.StatusActive,
	}
	e.store.AddRide(r)
	return r
}

func (e *env) do(method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	return e.doCtx(context.Background(), method, path, token, body, headers...)
}

func (e *env) doCtx(ctx context.Context, method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["code"]
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["message"]
}

// cancelAwareResponses fails writes on a cancelled context the way the
// Redis client does
type cancelAwareResponses struct {
	*memResponses
}

func (m cancelAwareResponses) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.memResponses.SetJSON(ctx, key, value, ttl)
}

func (m cancelAwareResponses) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.memResponses.Delete(ctx, keys...)
}

func withCancelAwareResponses(d *handlers.Dependencies) {
	d.Idempotency = cancelAwareResponses{memResponses: d.Idempotency.(*memResponses)}
}

// disconnectingLedger commits the reservation and then drops the client
type disconnectingLedger struct {
	handlers.SeatLedger
	disconnect context.CancelFunc
}

func (l *disconnectingLedger) Reserve(ctx context.Context, rideID, passengerID uuid.UUID, seats int) (*booking.Booking, error) {
	b, err := l.SeatLedger.Reserve(ctx, rideID, passengerID, seats)
	l.disconnect()
	return b, err
}

func TestReserveSeats_Created(t *testing.T) {
	e := newEnv(t)
	r := e.addRide(3)
	passenger := e.token(t, uuid.New(), "passenger")

	w := e.do(http.MethodPost, "/v1/rides/"+r.ID.String()+"/bookings", passenger, map[string]int{"seats_requested": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		booking.Booking
		Fare pricing.FareBreakdown `json:"fare"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.SeatsBooked)
	assert.Equal(t, booking.StatusConfirmed, resp.Status)
	assert.Equal(t, 300.0, resp.Fare.Total)

	stored, _ := e.store.Ride(r.ID)
	assert.Equal(t, 1, stored.SeatsAvailable)
}

func TestReserveSeats_ErrorMapping(t *testing.T) {
	e := newEnv(t)
	r := e.addRide(2)
	passenger := e.token(t, uuid.New(), "passenger")
	driver := e.token(t, r.DriverID, "driver")

	tests := []struct {
		name       string
		token      string
		path       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{"no token", "", "/v1/rides/" + r.ID.String() + "/bookings", map[string]int{"seats_requested": 1}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"zero seats", passenger, "/v1/rides/" + r.ID.String() + "/bookings", map[string]int{"seats_requested": 0}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"negative seats", passenger, "/v1/rides/" + r.ID.String() + "/bookings", map[string]int{"seats_requested": -1}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"malformed ride id", passenger, "/v1/rides/not-a-uuid/bookings", map[string]int{"seats_requested": 1}, http.StatusNotFound, "RIDE_NOT_FOUND"},
		{"unknown ride", passenger, "/v1/rides/" + uuid.NewString() + "/bookings", map[string]int{"seats_requested": 1}, http.StatusNotFound, "RIDE_NOT_FOUND"},
		{"own ride", driver, "/v1/rides/" + r.ID.String() + "/bookings", map[string]int{"seats_requested": 1}, http.StatusForbidden, "SELF_BOOKING_FORBIDDEN"},
		{"too many seats", passenger, "/v1/rides/" + r.ID.String() + "/bookings", map[string]int{"seats_requested": 3}, http.StatusBadRequest, "INSUFFICIENT_SEATS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(http.MethodPost, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCode, errorCode(t, w))
		})
	}

	stored, _ := e.store.Ride(r.ID)
	assert.Equal(t, 2, stored.SeatsAvailable)
}

func TestReserveSeats_DuplicateBooking(t *testing.T) {
	e := newEnv(t)
	r := e.addRide(4)
	passenger := e.token(t, uuid.New(), "passenger")
	path := "/v1/rides/" + r.ID.String() + "/bookings"

	require.Equal(t, http.StatusCreated, e.do(http.MethodPost, path, passenger, map[string]int{"seats_requested": 1}).Code)

	w := e.do(http.MethodPost, path, passenger, map[string]int{"seats_requested": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "DUPLICATE_BOOKING", errorCode(t, w))
}

func TestReserveSeats_IdempotencyKeyReplays(t *testing.T) {
	e := newEnv(t)
	r := e.addRide(3)
	passenger := e.token(t, uuid.New(), "passenger")
	path := "/v1/rides/" + r.ID.String() + "/bookings"

	first := e.do(http.MethodPost, path, passenger, map[string]int{"seats_requested": 2}, "Idempotency-Key", "req-1")
	require.Equal(t, http.StatusCreated, first.Code)

	second := e.do(http.MethodPost, path, passenger, map[string]int{"seats_requested": 2}, "Idempotency-Key", "req-1")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	assert.Len(t, e.store.Bookings(r.ID), 1)
	stored, _ := e.store.Ride(r.ID)
	assert.Equal(t, 1, stored.SeatsAvailable)

	mismatch := e.do(http.MethodPost, path, passenger, map[string]int{"seats_requested": 1}, "Idempotency-Key", "req-1")
	assert.Equal(t, http.StatusBadRequest, mismatch.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, mismatch))
}

func TestReserveSeats_KeyReleasedWhenFailedRequestWasAbandoned(t *testing.T) {
	e := newEnv(t, withCancelAwareResponses)
	r := e.addRide(3)
	passenger := e.token(t, uuid.New(), "passenger")
	path := "/v1/rides/" + r.ID.String() + "/bookings"

	gone, cancel := context.WithCancel(context.Background())
	cancel()
	first := e.doCtx(gone, http.MethodPost, path, passenger, map[string]int{"seats_requested": 2}, "Idempotency-Key", "trip-7")
	require.Equal(t, http.StatusInternalServerError, first.Code, first.Body.String())

	retry := e.do(http.MethodPost, path, passenger, map[string]int{"seats_requested": 2}, "Idempotency-Key", "trip-7")
	assert.Equal(t, http.StatusCreated, retry.Code, retry.Body.String())
	assert.Empty(t, retry.Header().Get("Idempotent-Replayed"))

	stored, _ := e.store.Ride(r.ID)
	assert.Equal(t, 1, stored.SeatsAvailable)
}

func TestReserveSeats_OutcomeKeptWhenClientLeavesAfterCommit(t *testing.T) {
	var dl *disconnectingLedger
	e := newEnv(t, withCancelAwareResponses, func(d *handlers.Dependencies) {
		dl = &disconnectingLedger{SeatLedger: d.Ledger}
		d.Ledger = dl
	})
	r := e.addRide(3)
	passenger := e.token(t, uuid.New(), "passenger")
	path := "/v1/rides/" + r.ID.String() + "/bookings"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dl.disconnect = cancel

	first := e.doCtx(ctx, http.MethodPost, path, passenger, map[string]int{"seats_requested": 2}, "Idempotency-Key", "trip-8")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	retry := e.do(http.MethodPost, path, passenger, map[string]int{"seats_requested": 2}, "Idempotency-Key", "trip-8")
	assert.Equal(t, http.StatusCreated, retry.Code, retry.Body.String())
	assert.Equal(t, "true", retry.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), retry.Body.String())

	assert.Len(t, e.store.Bookings(r.ID), 1)
	stored, _ := e.store.Ride(r.ID)
	assert.Equal(t, 1, stored.SeatsAvailable)
}

func TestReserveSeats_ValidationMessages(t *testing.T) {
	e := newEnv(t)
	r := e.addRide(2)
	passenger := e.token(t, uuid.New(), "passenger")
	path := "/v1/rides/" + r.ID.String() + "/bookings"

	tests := []struct {
		name        string
		path        string
		body        interface{}
		wantMessage string
	}{
		{"missing seats", path, map[string]int{}, "seats_requested must be at least 1"},
		{"zero seats", path, map[string]int{"seats_requested": 0}, "seats_requested must be at least 1"},
		{"zero seats on malformed ride id", "/v1/rides/not-a-uuid/bookings", map[string]int{"seats_requested": 0}, "seats_requested must be at least 1"},
		{"seats as text", path, map[string]string{"seats_requested": "two"}, "seats_requested has the wrong type"},
		{"not an object", path, "two seats please", "Request body is not valid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(http.MethodPost, tt.path, passenger, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "INVALID_REQUEST", errorCode(t, w))
			assert.Equal(t, tt.wantMessage, errorMessage(t, w))
		})
	}
}

func TestReserveSeats_ConcurrentRequestsForLastSeats(t *testing.T) {
	e := newEnv(t)
	r := e.addRide(3)

	const requests = 6
	tokens := make([]string, requests)
	for i := range tokens {
		tokens[i] = e.token(t, uuid.New(), "passenger")
	}

	codes := make([]int, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok := tokens[i]
			codes[i] = e.do(http.MethodPost, "/v1/rides/"+r.ID.String()+"/bookings", tok, map[string]int{"seats_requested": 2}).Code
		}(i)
	}
	wg.Wait()

	created := 0
	for _, code := range codes {
		if code == http.StatusCreated {
			created++
		} else {
			assert.Equal(t, http.StatusBadRequest, code)
		}
	}
	assert.Equal(t, 1, created)

	stored, _ := e.store.Ride(r.ID)
	assert.Equal(t, 1, stored.SeatsAvailable)
}

func TestCancelBooking(t *testing.T) {
	e := newEnv(t)
	r := e.addRide(3)
	passengerID := uuid.New()
	passenger := e.token(t, passengerID, "passenger")
	stranger := e.token(t, uuid.New(), "passenger")

	w := e.do(http.MethodPost, "/v1/rides/"+r.ID.String()+"/bookings", passenger, map[string]int{"seats_requested": 2})
	require.Equal(t, http.StatusCreated, w.Code)
	var b booking.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	cancelPath := "/v1/bookings/" + b.ID.String() + "/cancel"

	w = e.do(http.MethodPost, cancelPath, stranger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, w))

	w = e.do(http.MethodPost, cancelPath, passenger, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	stored, _ := e.store.Ride(r.ID)
	assert.Equal(t, 3, stored.SeatsAvailable)

	w = e.do(http.MethodPost, cancelPath, passenger, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ALREADY_CANCELLED", errorCode(t, w))

	stored, _ = e.store.Ride(r.ID)
	assert.Equal(t, 3, stored.SeatsAvailable)

	w = e.do(http.MethodPost, "/v1/bookings/"+uuid.NewString()+"/cancel", passenger, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "BOOKING_NOT_FOUND", errorCode(t, w))
}

func TestRoleGating(t *testing.T) {
	e := newEnv(t)
	passenger := e.token(t, uuid.New(), "passenger")
	driver := e.token(t, uuid.New(), "driver")
	admin := e.token(t, uuid.New(), "admin")

	ride := map[string]interface{}{
		"origin": "Koramangala", "destination": "Whitefield",
		"departure_time": time.Now().Add(time.Hour).Format(time.RFC3339), "seats_total": 3, "price_per_seat": 80,
	}

	w := e.do(http.MethodPost, "/v1/rides", passenger, ride)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, w))

	w = e.do(http.MethodPost, "/v1/rides", driver, ride)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(http.MethodGet, "/v1/admin/metrics", driver, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodGet, "/v1/admin/metrics", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_users":3`)
}

func TestSearchRides_RejectsBadDate(t *testing.T) {
	e := newEnv(t)
	passenger := e.token(t, uuid.New(), "passenger")

	w := e.do(http.MethodGet, "/v1/rides?date=15-10-2026", passenger, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, w))

	w = e.do(http.MethodGet, "/v1/rides?date=2026-10-15&origin=hsr", passenger, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	e.health["postgres"] = func(context.Context) error { return nil }

	w := e.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	e.health["redis"] = func(context.Context) error { return errors.New("connection refused") }
	w = e.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"down"`)
}

func TestWebSocket_RejectsBadToken(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodGet, "/v1/ws", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodGet, "/v1/ws?token=garbage", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, w))
}
