package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gocomet/carpool/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// ErrClosed is returned when publishing on a closed broker
var ErrClosed = errors.New("broker closed")

// Config holds RabbitMQ configuration. An empty URL disables publishing.
type Config struct {
	URL      string
	Exchange string
}

// Broker publishes JSON events to a durable topic exchange and reconnects
// lazily when the connection drops.
type Broker struct {
	url      string
	exchange string
	conn     *amqp.Connection
	channel  *amqp.Channel
	closed   bool
	mu       sync.Mutex
	logger   *logger.Logger
}

// NewBroker connects to RabbitMQ and declares the exchange. It returns a nil
// Broker when cfg.URL is empty; a nil Broker accepts and drops every event.
func NewBroker(cfg Config, log *logger.Logger) (*Broker, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	b := &Broker{
		url:      cfg.URL,
		exchange: cfg.Exchange,
		logger:   log,
	}
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Broker) connect() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if b.exchange != "" {
		err = ch.ExchangeDeclare(
			b.exchange,
			amqp.ExchangeTopic,
			true,  // durable
			false, // auto-deleted
			false, // internal
			false, // no-wait
			nil,
		)
		if err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("declare exchange %s: %w", b.exchange, err)
		}
	}

	b.conn = conn
	b.channel = ch
	return nil
}

func (b *Broker) ensureConnection() error {
	if b.closed {
		return ErrClosed
	}
	if b.conn == nil || b.conn.IsClosed() || b.channel == nil || b.channel.IsClosed() {
		b.logger.Warn("RabbitMQ connection lost, reconnecting", logger.String("exchange", b.exchange))
		return b.connect()
	}
	return nil
}

// Publish sends message as a persistent JSON event with the routing key
func (b *Broker) Publish(ctx context.Context, routingKey string, message interface{}) error {
	if b == nil {
		return nil
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureConnection(); err != nil {
		return err
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = b.channel.PublishWithContext(
		publishCtx,
		b.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	b.logger.Debug("Event published",
		logger.String("exchange", b.exchange),
		logger.String("routing_key", routingKey),
	)
	return nil
}

// Close closes the channel and the connection
func (b *Broker) Close() error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	var errs []error
	if b.channel != nil {
		errs = append(errs, b.channel.Close())
	}
	if b.conn != nil && !b.conn.IsClosed() {
		errs = append(errs, b.conn.Close())
	}
	return errors.Join(errs...)
}
