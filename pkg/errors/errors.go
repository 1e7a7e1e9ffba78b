package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code, so that
// errors carrying a more specific message still match the sentinels below.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Withf returns a copy of the error with a formatted message
func (e *AppError) Withf(format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: fmt.Sprintf(format, args...),
		Status:  e.Status,
		Err:     e.Err,
	}
}

// NewAppError creates a new AppError
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Common error constructors

// BadRequest creates a 400 error
func BadRequest(message string, err error) *AppError {
	return NewAppError("BAD_REQUEST", message, http.StatusBadRequest, err)
}

// Unauthorized creates a 401 error
func Unauthorized(message string, err error) *AppError {
	return NewAppError("UNAUTHORIZED", message, http.StatusUnauthorized, err)
}

// Forbidden creates a 403 error
func Forbidden(message string, err error) *AppError {
	return NewAppError("FORBIDDEN", message, http.StatusForbidden, err)
}

// NotFound creates a 404 error
func NotFound(message string, err error) *AppError {
	return NewAppError("NOT_FOUND", message, http.StatusNotFound, err)
}

// Conflict creates a 409 error
func Conflict(message string, err error) *AppError {
	return NewAppError("CONFLICT", message, http.StatusConflict, err)
}

// Internal creates a 500 error
func Internal(message string, err error) *AppError {
	return NewAppError("INTERNAL_ERROR", message, http.StatusInternalServerError, err)
}

// ServiceUnavailable creates a 503 error
func ServiceUnavailable(message string, err error) *AppError {
	return NewAppError("SERVICE_UNAVAILABLE", message, http.StatusServiceUnavailable, err)
}

// Seat reservation outcomes

var (
	ErrInvalidRequest    = NewAppError("INVALID_REQUEST", "Invalid request", http.StatusBadRequest, nil)
	ErrInvalidSeatCount  = NewAppError("INVALID_REQUEST", "Must book at least 1 seat", http.StatusBadRequest, nil)
	ErrRideNotFound      = NewAppError("RIDE_NOT_FOUND", "Ride not found", http.StatusNotFound, nil)
	ErrBookingNotFound   = NewAppError("BOOKING_NOT_FOUND", "Booking not found", http.StatusNotFound, nil)
	ErrRideUnavailable   = NewAppError("RIDE_UNAVAILABLE", "Ride is not active", http.StatusBadRequest, nil)
	ErrSelfBooking       = NewAppError("SELF_BOOKING_FORBIDDEN", "You cannot book your own ride", http.StatusForbidden, nil)
	ErrNotBookingOwner   = NewAppError("FORBIDDEN", "You can only cancel your own bookings", http.StatusForbidden, nil)
	ErrDuplicateBooking  = NewAppError("DUPLICATE_BOOKING", "You already have a booking for this ride", http.StatusBadRequest, nil)
	ErrInsufficientSeats = NewAppError("INSUFFICIENT_SEATS", "Not enough seats available", http.StatusBadRequest, nil)
	ErrAlreadyCancelled  = NewAppError("ALREADY_CANCELLED", "Booking already cancelled", http.StatusBadRequest, nil)
)

// Directory and identity errors

var (
	ErrVehicleNotFound     = NewAppError("VEHICLE_NOT_FOUND", "Vehicle not found or does not belong to this driver", http.StatusNotFound, nil)
	ErrSeatsExceedCapacity = NewAppError("INVALID_REQUEST", "Seats cannot exceed vehicle capacity", http.StatusBadRequest, nil)
	ErrPlateTaken          = Conflict("License plate already registered", nil)
	ErrEmailTaken          = Conflict("Email already registered", nil)
	ErrInvalidCredentials  = Unauthorized("Invalid email or password", nil)
	ErrInvalidToken        = Unauthorized("Invalid or expired token", nil)
	ErrRoleNotAllowed      = Forbidden("Access denied for this role", nil)
)

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError attempts to convert an error to AppError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
