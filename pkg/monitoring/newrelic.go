package monitoring

import (
	"fmt"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// Config holds New Relic configuration
type Config struct {
	LicenseKey string
	AppName    string
	Enabled    bool
}

// NewRelicApp wraps the New Relic application. A disabled app accepts every
// call and records nothing.
type NewRelicApp struct {
	*newrelic.Application
	enabled bool
}

// New creates a new New Relic application
func New(cfg Config) (*NewRelicApp, error) {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		return &NewRelicApp{nil, false}, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigAppLogForwardingEnabled(true),
		newrelic.ConfigDistributedTracerEnabled(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create New Relic application: %w", err)
	}

	return &NewRelicApp{app, true}, nil
}

// RecordCustomEvent records a custom event
func (nr *NewRelicApp) RecordCustomEvent(eventType string, params map[string]interface{}) {
	if !nr.IsEnabled() {
		return
	}
	nr.Application.RecordCustomEvent(eventType, params)
}

// RecordCustomMetric records a custom metric
func (nr *NewRelicApp) RecordCustomMetric(name string, value float64) {
	if !nr.IsEnabled() {
		return
	}
	nr.Application.RecordCustomMetric(name, value)
}

// Shutdown gracefully shuts down the New Relic application
func (nr *NewRelicApp) Shutdown(timeout time.Duration) {
	if !nr.IsEnabled() {
		return
	}
	nr.Application.Shutdown(timeout)
}

// RecordSeatsReserved records a confirmed booking
func (nr *NewRelicApp) RecordSeatsReserved(rideID string, seats, seatsAvailable int) {
	nr.RecordCustomEvent("SeatsReserved", map[string]interface{}{
		"ride_id":         rideID,
		"seats":           seats,
		"seats_available": seatsAvailable,
	})
	nr.RecordCustomMetric("custom/ledger/seats_reserved", float64(seats))
}

// RecordSeatsReleased records a cancelled booking
func (nr *NewRelicApp) RecordSeatsReleased(rideID string, seats, seatsAvailable int) {
	nr.RecordCustomEvent("SeatsReleased", map[string]interface{}{
		"ride_id":         rideID,
		"seats":           seats,
		"seats_available": seatsAvailable,
	})
	nr.RecordCustomMetric("custom/ledger/seats_released", float64(seats))
}

// RecordRideCreated records a published ride
func (nr *NewRelicApp) RecordRideCreated(seatsTotal int, distanceKM float64) {
	nr.RecordCustomEvent("RideCreated", map[string]interface{}{
		"seats_total": seatsTotal,
		"distance_km": distanceKM,
		"timestamp":   time.Now().Unix(),
	})
}

// RecordRedisPoolStats records Redis pool statistics
func (nr *NewRelicApp) RecordRedisPoolStats(stats map[string]interface{}) {
	if hits, ok := stats["hits"].(uint32); ok {
		nr.RecordCustomMetric("custom/redis/cache_hits", float64(hits))
	}
	if misses, ok := stats["misses"].(uint32); ok {
		nr.RecordCustomMetric("custom/redis/cache_misses", float64(misses))
	}
	if timeouts, ok := stats["timeouts"].(uint32); ok {
		nr.RecordCustomMetric("custom/redis/timeouts", float64(timeouts))
	}
}

// IsEnabled returns whether New Relic is enabled
func (nr *NewRelicApp) IsEnabled() bool {
	return nr != nil && nr.enabled && nr.Application != nil
}
