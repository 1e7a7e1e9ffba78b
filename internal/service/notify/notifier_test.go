package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gocomet/carpool/internal/ledger"
	"github.com/gocomet/carpool/pkg/logger"
	"github.com/gocomet/carpool/pkg/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockInvalidator struct{ mock.Mock }

func (m *mockInvalidator) Invalidate(ctx context.Context, rideID uuid.UUID) error {
	return m.Called(ctx, rideID).Error(0)
}

type mockEvents struct{ mock.Mock }

func (m *mockEvents) Publish(ctx context.Context, routingKey string, message interface{}) error {
	return m.Called(ctx, routingKey, message).Error(0)
}

type mockRecorder struct{ mock.Mock }

func (m *mockRecorder) RecordSeatsReserved(rideID string, seats, seatsAvailable int) {
	m.Called(rideID, seats, seatsAvailable)
}

func (m *mockRecorder) RecordSeatsReleased(rideID string, seats, seatsAvailable int) {
	m.Called(rideID, seats, seatsAvailable)
}

type recordingRealtime struct {
	mu     sync.Mutex
	byRide map[string][]websocket.Message
	byUser map[string][]websocket.Message
}

func newRecordingRealtime() *recordingRealtime {
	return &recordingRealtime{byRide: map[string][]websocket.Message{}, byUser: map[string][]websocket.Message{}}
}

func (r *recordingRealtime) PublishToRide(rideID string, m websocket.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byRide[rideID] = append(r.byRide[rideID], m)
}

func (r *recordingRealtime) SendToUser(userID string, m websocket.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUser[userID] = append(r.byUser[userID], m)
}

func seatChange(kind ledger.ChangeKind) ledger.SeatChange {
	return ledger.SeatChange{
		Kind:           kind,
		RideID:         uuid.New(),
		DriverID:       uuid.New(),
		BookingID:      uuid.New(),
		PassengerID:    uuid.New(),
		Seats:          2,
		SeatsAvailable: 1,
		SeatsTotal:     3,
		At:             time.Now(),
	}
}

func TestNotifier_FansOutReservation(t *testing.T) {
	cache := &mockInvalidator{}
	events := &mockEvents{}
	recorder := &mockRecorder{}
	realtime := newRecordingRealtime()
	change := seatChange(ledger.ChangeReserved)

	cache.On("Invalidate", mock.Anything, change.RideID).Return(nil)
	events.On("Publish", mock.Anything, RoutingBookingConfirmed, mock.MatchedBy(func(e BookingEvent) bool {
		return e.Event == RoutingBookingConfirmed && e.BookingID == change.BookingID
	})).Return(nil)
	recorder.On("RecordSeatsReserved", change.RideID.String(), 2, 1).Return()

	n := New(cache, realtime, events, recorder, logger.NewNop(), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	n.Start(ctx)

	n.SeatsChanged(context.Background(), change)
	cancel()
	n.Wait()

	cache.AssertExpectations(t)
	events.AssertExpectations(t)
	recorder.AssertExpectations(t)

	rideMsgs := realtime.byRide[change.RideID.String()]
	require.Len(t, rideMsgs, 1)
	assert.Equal(t, websocket.TypeSeatsUpdated, rideMsgs[0].Type)
	require.Len(t, realtime.byUser[change.DriverID.String()], 1)
}

func TestNotifier_ReleaseUsesCancelledRoutingKey(t *testing.T) {
	events := &mockEvents{}
	recorder := &mockRecorder{}
	change := seatChange(ledger.ChangeReleased)

	events.On("Publish", mock.Anything, RoutingBookingCancelled, mock.Anything).Return(nil)
	recorder.On("RecordSeatsReleased", change.RideID.String(), 2, 1).Return()

	n := New(nil, nil, events, recorder, logger.NewNop(), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	n.Start(ctx)

	n.SeatsChanged(context.Background(), change)
	cancel()
	n.Wait()

	events.AssertExpectations(t)
	recorder.AssertExpectations(t)
}

func TestNotifier_SinkFailuresAreSwallowed(t *testing.T) {
	cache := &mockInvalidator{}
	events := &mockEvents{}
	change := seatChange(ledger.ChangeReserved)

	cache.On("Invalidate", mock.Anything, change.RideID).Return(errors.New("redis down"))
	events.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	n := New(cache, nil, events, nil, logger.NewNop(), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	n.Start(ctx)

	assert.NotPanics(t, func() { n.SeatsChanged(context.Background(), change) })
	cancel()
	n.Wait()

	events.AssertNumberOfCalls(t, "Publish", 1)
}

func TestNotifier_FullQueueDropsWithoutBlocking(t *testing.T) {
	n := New(nil, nil, nil, nil, logger.NewNop(), Config{QueueSize: 1})

	done := make(chan struct{})
	go func() {
		n.SeatsChanged(context.Background(), seatChange(ledger.ChangeReserved))
		n.SeatsChanged(context.Background(), seatChange(ledger.ChangeReserved))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SeatsChanged blocked on a full queue")
	}
	assert.Len(t, n.queue, 1)
}
