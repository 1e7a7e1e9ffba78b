// Package postgres implements the ride, booking, user and vehicle stores on
// PostgreSQL through database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gocomet/carpool/internal/ledger"
	"github.com/gocomet/carpool/pkg/database"
	"github.com/lib/pq"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PostgreSQL error codes the stores react to
const (
	codeUniqueViolation      pq.ErrorCode = "23505"
	codeSerializationFailure pq.ErrorCode = "40001"
	codeDeadlockDetected     pq.ErrorCode = "40P01"
	codeLockNotAvailable     pq.ErrorCode = "55P03"
)

// Store runs seat ledger transactions against PostgreSQL
type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// NewStore creates a ledger store. A positive lockTimeout bounds how long a
// transaction waits for a ride or booking row lock.
func NewStore(db *sql.DB, lockTimeout time.Duration) *Store {
	return &Store{db: db, lockTimeout: lockTimeout}
}

// WithinTx implements ledger.Store
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}

	err := database.WithTx(ctx, s.db, opts, func(tx *sql.Tx) error {
		if s.lockTimeout > 0 {
			// SET does not accept bind parameters
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("set lock timeout: %w", err)
			}
		}
		return fn(ctx, ledger.Tx{
			Rides:    &RideRepository{q: tx},
			Bookings: &BookingRepository{q: tx},
		})
	})
	return translate(err)
}

// translate maps contention errors to ledger.ErrConflict so the ledger can
// retry them. Everything else is returned unchanged.
func translate(err error) error {
	if isPQCode(err, codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable) {
		return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
	}
	return err
}

func isPQCode(err error, codes ...pq.ErrorCode) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	for _, c := range codes {
		if pqErr.Code == c {
			return true
		}
	}
	return false
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}
