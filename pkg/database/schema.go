package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied idempotently at startup. The CHECK constraint and the
// partial unique index back the seat ledger's invariants at the storage level.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE,
		phone         TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL CHECK (role IN ('passenger', 'driver', 'admin')),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS vehicles (
		id            UUID PRIMARY KEY,
		owner_id      UUID NOT NULL REFERENCES users(id),
		model         TEXT NOT NULL,
		seat_capacity INTEGER NOT NULL CHECK (seat_capacity >= 1),
		license_plate TEXT NOT NULL UNIQUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS rides (
		id              UUID PRIMARY KEY,
		driver_id       UUID NOT NULL REFERENCES users(id),
		vehicle_id      UUID REFERENCES vehicles(id),
		origin          TEXT NOT NULL,
		destination     TEXT NOT NULL,
		departure_at    TIMESTAMPTZ NOT NULL,
		seats_total     INTEGER NOT NULL CHECK (seats_total >= 1),
		seats_available INTEGER NOT NULL,
		price_per_seat  NUMERIC(10, 2) NOT NULL DEFAULT 0,
		distance_km     DOUBLE PRECISION NOT NULL DEFAULT 0,
		notes           TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'completed', 'cancelled')),
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT rides_seats_available_range CHECK (seats_available BETWEEN 0 AND seats_total)
	)`,
	`CREATE INDEX IF NOT EXISTS rides_search_idx ON rides (status, departure_at)`,
	`CREATE INDEX IF NOT EXISTS rides_driver_idx ON rides (driver_id)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id           UUID PRIMARY KEY,
		ride_id      UUID NOT NULL REFERENCES rides(id),
		passenger_id UUID NOT NULL REFERENCES users(id),
		seats_booked INTEGER NOT NULL CHECK (seats_booked >= 1),
		status       TEXT NOT NULL CHECK (status IN ('confirmed', 'cancelled')),
		booked_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		cancelled_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS bookings_one_confirmed_per_passenger
		ON bookings (ride_id, passenger_id) WHERE status = 'confirmed'`,
	`CREATE INDEX IF NOT EXISTS bookings_passenger_idx ON bookings (passenger_id, booked_at DESC)`,
}

// Migrate creates the tables and indexes the service needs
func Migrate(ctx context.Context, db *sql.DB) error {
	return WithTx(ctx, db, nil, func(tx *sql.Tx) error {
		for i, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration step %d: %w", i+1, err)
			}
		}
		return nil
	})
}
