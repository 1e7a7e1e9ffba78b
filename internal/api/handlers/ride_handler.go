package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/carpool/internal/api/dto"
	"github.com/gocomet/carpool/internal/domain/ride"
	"github.com/gocomet/carpool/internal/service/rides"
	apperrors "github.com/gocomet/carpool/pkg/errors"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// CreateRide handles POST /v1/rides
func (h *Handlers) CreateRide(c *gin.Context) {
	driverID, ok := h.caller(c)
	if !ok {
		return
	}

	var req dto.CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	in := rides.CreateInput{
		Origin:       req.Origin,
		Destination:  req.Destination,
		DepartureAt:  req.DepartureAt,
		SeatsTotal:   req.SeatsTotal,
		PricePerSeat: req.PricePerSeat,
		DistanceKM:   req.DistanceKM,
		Notes:        req.Notes,
	}
	if req.VehicleID != "" {
		vehicleID, err := uuid.Parse(req.VehicleID)
		if err != nil {
			h.respondError(c, apperrors.ErrVehicleNotFound)
			return
		}
		in.VehicleID = &vehicleID
	}

	r, err := h.Rides.Create(c.Request.Context(), driverID, in)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewRideResponse(r))
}

// SearchRides handles GET /v1/rides
func (h *Handlers) SearchRides(c *gin.Context) {
	var q dto.SearchRidesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.respondBindError(c, err)
		return
	}

	filter := ride.SearchFilter{
		Origin:      q.Origin,
		Destination: q.Destination,
		MinSeats:    q.MinSeats,
	}
	if q.Date != "" {
		day, err := time.Parse(dateLayout, q.Date)
		if err != nil {
			h.respondError(c, apperrors.ErrInvalidRequest.Withf("date must be YYYY-MM-DD"))
			return
		}
		filter.Date = &day
	}

	found, err := h.Rides.Search(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewRideResponses(found))
}

// ListMyRides handles GET /v1/rides/mine
func (h *Handlers) ListMyRides(c *gin.Context) {
	driverID, ok := h.caller(c)
	if !ok {
		return
	}

	mine, err := h.Rides.ListByDriver(c.Request.Context(), driverID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewRideResponses(mine))
}

// GetRide handles GET /v1/rides/:id
func (h *Handlers) GetRide(c *gin.Context) {
	rideID, ok := h.pathUUID(c, "id", apperrors.ErrRideNotFound)
	if !ok {
		return
	}

	r, err := h.Rides.Get(c.Request.Context(), rideID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewRideResponse(r))
}

// ListRideBookings handles GET /v1/rides/:id/bookings
func (h *Handlers) ListRideBookings(c *gin.Context) {
	driverID, ok := h.caller(c)
	if !ok {
		return
	}
	rideID, ok := h.pathUUID(c, "id", apperrors.ErrRideNotFound)
	if !ok {
		return
	}

	bookings, err := h.Rides.ListBookings(c.Request.Context(), rideID, driverID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, bookings)
}
