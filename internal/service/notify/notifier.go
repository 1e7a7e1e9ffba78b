package notify

import (
	"context"
	"sync"
	"time"

	"github.com/gocomet/carpool/internal/ledger"
	"github.com/gocomet/carpool/pkg/logger"
	"github.com/gocomet/carpool/pkg/websocket"
	"github.com/google/uuid"
)

// Routing keys for booking events
const (
	RoutingBookingConfirmed = "booking.confirmed"
	RoutingBookingCancelled = "booking.cancelled"
)

// SnapshotInvalidator drops cached ride snapshots
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context, rideID uuid.UUID) error
}

// RealtimePublisher pushes messages to connected clients
type RealtimePublisher interface {
	PublishToRide(rideID string, message websocket.Message)
	SendToUser(userID string, message websocket.Message)
}

// EventPublisher publishes domain events to the message broker
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, message interface{}) error
}

// Recorder records seat changes in APM
type Recorder interface {
	RecordSeatsReserved(rideID string, seats, seatsAvailable int)
	RecordSeatsReleased(rideID string, seats, seatsAvailable int)
}

// BookingEvent is the broker payload for a committed seat change
type BookingEvent struct {
	Event string `json:"event"`
	ledger.SeatChange
}

// Config holds fan-out configuration
type Config struct {
	QueueSize      int
	PublishTimeout time.Duration
}

// Notifier fans committed seat changes out to the cache, WebSocket clients,
// the broker and APM. Cache invalidation happens inline; everything else is
// queued and delivered in the background.
type Notifier struct {
	cache    SnapshotInvalidator
	realtime RealtimePublisher
	events   EventPublisher
	recorder Recorder
	logger   *logger.Logger
	config   Config

	queue chan ledger.SeatChange
	wg    sync.WaitGroup
}

// New creates a Notifier. Any sink may be nil.
func New(cache SnapshotInvalidator, realtime RealtimePublisher, events EventPublisher, recorder Recorder, log *logger.Logger, config Config) *Notifier {
	if config.QueueSize <= 0 {
		config.QueueSize = 1024
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 5 * time.Second
	}
	return &Notifier{
		cache:    cache,
		realtime: realtime,
		events:   events,
		recorder: recorder,
		logger:   log,
		config:   config,
		queue:    make(chan ledger.SeatChange, config.QueueSize),
	}
}

// SeatsChanged implements ledger.Notifier
func (n *Notifier) SeatsChanged(ctx context.Context, change ledger.SeatChange) {
	if n.cache != nil {
		if err := n.cache.Invalidate(ctx, change.RideID); err != nil {
			n.logger.Warn("Failed to invalidate ride snapshot", logger.UUID("ride_id", change.RideID), logger.Err(err))
		}
	}

	select {
	case n.queue <- change:
	default:
		n.logger.Warn("Notification queue full, dropping seat change",
			logger.UUID("ride_id", change.RideID),
			logger.UUID("booking_id", change.BookingID),
		)
	}
}

// Start delivers queued changes in the background until ctx is cancelled,
// then drains what is left in the queue.
func (n *Notifier) Start(ctx context.Context) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.run(ctx)
	}()
}

func (n *Notifier) run(ctx context.Context) {
	for {
		select {
		case change := <-n.queue:
			n.deliver(change)
		case <-ctx.Done():
			for {
				select {
				case change := <-n.queue:
					n.deliver(change)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until the delivery loop has drained and stopped
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) deliver(change ledger.SeatChange) {
	rideID := change.RideID.String()

	if n.realtime != nil {
		n.realtime.PublishToRide(rideID, websocket.Message{
			Type: websocket.TypeSeatsUpdated,
			Data: map[string]interface{}{
				"ride_id":         rideID,
				"seats_available": change.SeatsAvailable,
				"seats_total":     change.SeatsTotal,
			},
		})
		n.realtime.SendToUser(change.DriverID.String(), websocket.Message{
			Type: websocket.TypeBookingChanged,
			Data: change,
		})
	}

	routingKey := RoutingBookingConfirmed
	if change.Kind == ledger.ChangeReleased {
		routingKey = RoutingBookingCancelled
	}

	if n.events != nil {
		ctx, cancel := context.WithTimeout(context.Background(), n.config.PublishTimeout)
		err := n.events.Publish(ctx, routingKey, BookingEvent{Event: routingKey, SeatChange: change})
		cancel()
		if err != nil {
			n.logger.Warn("Failed to publish booking event",
				logger.String("routing_key", routingKey),
				logger.UUID("booking_id", change.BookingID),
				logger.Err(err),
			)
		}
	}

	if n.recorder != nil {
		if change.Kind == ledger.ChangeReleased {
			n.recorder.RecordSeatsReleased(rideID, change.Seats, change.SeatsAvailable)
		} else {
			n.recorder.RecordSeatsReserved(rideID, change.Seats, change.SeatsAvailable)
		}
	}
}
