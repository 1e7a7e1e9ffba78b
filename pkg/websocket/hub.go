package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gocomet/carpool/pkg/logger"
)

// Message types pushed to clients
const (
	TypeSeatsUpdated   = "seats_updated"
	TypeBookingChanged = "booking_changed"
	TypePong           = "pong"
	TypeError          = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// delivery is a message addressed to ride subscribers, to one user or to a
// single connection
type delivery struct {
	rideID string
	userID string
	client *Client
	data   []byte
}

// Hub maintains active client connections. Only Run writes to or closes a
// client's Send channel; publishers hand messages over through a buffered
// queue and never block.
type Hub struct {
	clients    map[*Client]bool
	deliveries chan delivery
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *logger.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		deliveries: make(chan delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     log,
	}
}

// Run starts the hub's main loop and returns when ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("Client registered",
				logger.String("client_id", client.ID),
				logger.String("user_id", client.UserID),
				logger.String("role", client.Role),
			)

		case client := <-h.unregister:
			h.remove(client)

		case d := <-h.deliveries:
			h.deliver(d)
		}
	}
}

// Register registers a new client
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister unregisters a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// PublishToRide sends a message to every client subscribed to the ride
func (h *Hub) PublishToRide(rideID string, message Message) {
	h.enqueue(delivery{rideID: rideID}, message)
}

// SendToUser sends a message to every connection of a user
func (h *Hub) SendToUser(userID string, message Message) {
	h.enqueue(delivery{userID: userID}, message)
}

// ActiveConnections returns the number of active connections
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) enqueue(d delivery, message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal message", logger.Err(err))
		return
	}
	d.data = data

	select {
	case h.deliveries <- d:
	default:
		h.logger.Warn("WebSocket queue full, dropping message",
			logger.String("type", message.Type),
			logger.String("ride_id", d.rideID),
			logger.String("user_id", d.userID),
		)
	}
}

func (h *Hub) deliver(d delivery) {
	var slow []*Client

	h.mu.RLock()
	for client := range h.clients {
		if d.client != nil && client != d.client {
			continue
		}
		if d.rideID != "" && !client.IsSubscribedToRide(d.rideID) {
			continue
		}
		if d.userID != "" && client.UserID != d.userID {
			continue
		}
		select {
		case client.Send <- d.data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Client send buffer full, disconnecting",
			logger.String("client_id", client.ID),
		)
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
		h.logger.Info("Client unregistered", logger.String("client_id", client.ID))
	}
}
