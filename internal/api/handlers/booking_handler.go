package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/carpool/internal/api/dto"
	"github.com/gocomet/carpool/internal/domain/booking"
	apperrors "github.com/gocomet/carpool/pkg/errors"
	"github.com/gocomet/carpool/pkg/logger"
	"github.com/google/uuid"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	// bounds the write-back of an outcome, which outlives the request
	idempotencyWriteTimeout = 2 * time.Second
)

var (
	errIdempotencyInProgress = apperrors.Conflict("A request with this Idempotency-Key is still in progress", nil)
	errIdempotencyMismatch   = apperrors.ErrInvalidRequest.Withf("Idempotency-Key was already used for a different request")
)

// storedResponse is a reservation outcome kept for Idempotency-Key replays.
// A claimed key that is still being processed decodes with Status 0.
type storedResponse struct {
	RideID uuid.UUID       `json:"ride_id"`
	Seats  int             `json:"seats"`
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// ReserveSeats handles POST /v1/rides/:id/bookings
func (h *Handlers) ReserveSeats(c *gin.Context) {
	passengerID, ok := h.caller(c)
	if !ok {
		return
	}

	var req dto.ReserveSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	rideID, ok := h.pathUUID(c, "id", apperrors.ErrRideNotFound)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	cacheKey := ""
	if key := strings.TrimSpace(c.GetHeader(idempotencyHeader)); key != "" && h.Idempotency != nil {
		cacheKey = h.Idempotency.Key("idempotency", "reserve", passengerID.String(), key)
		if h.replay(c, cacheKey, rideID, req.SeatsRequested) {
			return
		}

		claimed, err := h.Idempotency.Claim(ctx, cacheKey, h.config.IdempotencyTTL)
		switch {
		case err != nil:
			h.Logger.Warn("Idempotency claim failed, processing without replay protection",
				logger.String("idempotency_key", key),
				logger.Err(err),
			)
			cacheKey = ""
		case !claimed:
			if !h.replay(c, cacheKey, rideID, req.SeatsRequested) {
				h.respondError(c, errIdempotencyInProgress)
			}
			return
		}
	}

	status, body := h.reserve(c, rideID, passengerID, req.SeatsRequested)

	if cacheKey != "" {
		// A disconnected client must still find its outcome, or its key
		// released, when it retries.
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idempotencyWriteTimeout)
		h.remember(writeCtx, cacheKey, rideID, req.SeatsRequested, status, body)
		cancel()
	}

	c.JSON(status, body)
}

func (h *Handlers) reserve(c *gin.Context, rideID, passengerID uuid.UUID, seats int) (int, interface{}) {
	ctx := c.Request.Context()

	b, err := h.Ledger.Reserve(ctx, rideID, passengerID, seats)
	if err != nil {
		return h.errorBody(c, err)
	}

	resp := dto.BookingResponse{Booking: b}
	if h.Pricing != nil {
		if r, err := h.Rides.Get(ctx, rideID); err == nil {
			resp.Fare = h.Pricing.BookingFare(r.PricePerSeat, b.SeatsBooked, r.DistanceKM)
		} else {
			h.Logger.Warn("Failed to price booking", logger.UUID("booking_id", b.ID), logger.Err(err))
		}
	}
	return http.StatusCreated, resp
}

// replay writes a stored outcome for cacheKey and reports whether it did
func (h *Handlers) replay(c *gin.Context, cacheKey string, rideID uuid.UUID, seats int) bool {
	var stored storedResponse
	hit, err := h.Idempotency.GetJSON(c.Request.Context(), cacheKey, &stored)
	if err != nil {
		h.Logger.Warn("Idempotency lookup failed", logger.Err(err))
		return false
	}
	if !hit || stored.Status == 0 {
		return false
	}

	if stored.RideID != rideID || stored.Seats != seats {
		h.respondError(c, errIdempotencyMismatch)
		return true
	}

	c.Header(replayedHeader, "true")
	c.Data(stored.Status, "application/json; charset=utf-8", stored.Body)
	return true
}

// remember stores the outcome for replay. Server-side failures are not kept
// so the client can retry with the same key.
func (h *Handlers) remember(ctx context.Context, cacheKey string, rideID uuid.UUID, seats, status int, body interface{}) {
	if status >= http.StatusInternalServerError {
		if err := h.Idempotency.Delete(ctx, cacheKey); err != nil {
			h.Logger.Warn("Failed to release idempotency key", logger.Err(err))
		}
		return
	}

	raw, err := json.Marshal(body)
	if err != nil {
		h.Logger.Warn("Failed to encode idempotent response", logger.Err(err))
		return
	}
	stored := storedResponse{RideID: rideID, Seats: seats, Status: status, Body: raw}
	if err := h.Idempotency.SetJSON(ctx, cacheKey, stored, h.config.IdempotencyTTL); err != nil {
		h.Logger.Warn("Failed to store idempotent response", logger.Err(err))
	}
}

// ListMyBookings handles GET /v1/bookings
func (h *Handlers) ListMyBookings(c *gin.Context) {
	passengerID, ok := h.caller(c)
	if !ok {
		return
	}

	bookings, err := h.Rides.ListPassengerBookings(c.Request.Context(), passengerID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if bookings == nil {
		bookings = []*booking.WithRide{}
	}

	c.JSON(http.StatusOK, bookings)
}

// CancelBooking handles POST /v1/bookings/:id/cancel
func (h *Handlers) CancelBooking(c *gin.Context) {
	requesterID, ok := h.caller(c)
	if !ok {
		return
	}
	bookingID, ok := h.pathUUID(c, "id", apperrors.ErrBookingNotFound)
	if !ok {
		return
	}

	if err := h.Ledger.Release(c.Request.Context(), bookingID, requesterID); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Booking cancelled successfully",
		"booking_id": bookingID,
	})
}
