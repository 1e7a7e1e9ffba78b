package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gocomet/carpool/internal/domain/booking"
	"github.com/gocomet/carpool/internal/ledger"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rideRow(id, driverID uuid.UUID, total, available int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "driver_id", "vehicle_id", "origin", "destination", "departure_at",
		"seats_total", "seats_available", "price_per_seat", "distance_km", "notes", "status",
		"created_at", "updated_at",
	}).AddRow(
		id.String(), driverID.String(), nil, "Indiranagar", "Whitefield", now.Add(time.Hour),
		total, available, 120.0, 14.5, "", "active", now, now,
	)
}

func TestStore_WithinTx_CommitsReservation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rideID, driverID, passengerID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout = '250ms'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM rides WHERE id = \\$1 FOR UPDATE").
		WithArgs(rideID).
		WillReturnRows(rideRow(rideID, driverID, 4, 4))
	mock.ExpectExec("UPDATE rides").
		WithArgs(rideID, -2, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(sqlmock.AnyArg(), rideID, passengerID, 2, "confirmed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewStore(db, 250*time.Millisecond)
	err = store.WithinTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		r, err := tx.Rides.GetRideForUpdate(ctx, rideID)
		if err != nil {
			return err
		}
		assert.Equal(t, 4, r.SeatsAvailable)
		assert.Nil(t, r.VehicleID)

		ok, err := tx.Rides.UpdateSeatsAvailable(ctx, rideID, -2, 2)
		if err != nil {
			return err
		}
		assert.True(t, ok)

		return tx.Bookings.Insert(ctx, &booking.Booking{
			ID:          uuid.New(),
			RideID:      rideID,
			PassengerID: passengerID,
			SeatsBooked: 2,
			Status:      booking.StatusConfirmed,
			BookedAt:    time.Now(),
		})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithinTx_RollsBackWhenInsertFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rideID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE rides").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bookings").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	store := NewStore(db, 0)
	err = store.WithinTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.Rides.UpdateSeatsAvailable(ctx, rideID, -1, 1); err != nil {
			return err
		}
		return tx.Bookings.Insert(ctx, &booking.Booking{ID: uuid.New(), RideID: rideID, SeatsBooked: 1, Status: booking.StatusConfirmed})
	})

	assert.Error(t, err)
	assert.NotErrorIs(t, err, ledger.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithinTx_TranslatesContention(t *testing.T) {
	codes := []pq.ErrorCode{codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable}

	for _, code := range codes {
		t.Run(string(code), func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectBegin()
			mock.ExpectQuery("FOR UPDATE").WillReturnError(&pq.Error{Code: code})
			mock.ExpectRollback()

			store := NewStore(db, 0)
			err = store.WithinTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
				_, err := tx.Rides.GetRideForUpdate(ctx, uuid.New())
				return err
			})

			assert.ErrorIs(t, err, ledger.ErrConflict)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_WithinTx_DuplicateBooking(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bookings").
		WillReturnError(&pq.Error{Code: codeUniqueViolation, Constraint: confirmedBookingIndex})
	mock.ExpectRollback()

	store := NewStore(db, 0)
	err = store.WithinTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return tx.Bookings.Insert(ctx, &booking.Booking{ID: uuid.New(), SeatsBooked: 1, Status: booking.StatusConfirmed})
	})

	assert.ErrorIs(t, err, booking.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}
