package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/carpool/internal/api/dto"
	"github.com/gocomet/carpool/internal/service/accounts"
)

// CreateVehicle handles POST /v1/vehicles
func (h *Handlers) CreateVehicle(c *gin.Context) {
	driverID, ok := h.caller(c)
	if !ok {
		return
	}

	var req dto.CreateVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	v, err := h.Accounts.RegisterVehicle(c.Request.Context(), driverID, accounts.VehicleInput{
		Model:        req.Model,
		SeatCapacity: req.SeatCapacity,
		LicensePlate: req.LicensePlate,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, v)
}

// ListMyVehicles handles GET /v1/vehicles/mine
func (h *Handlers) ListMyVehicles(c *gin.Context) {
	driverID, ok := h.caller(c)
	if !ok {
		return
	}

	vehicles, err := h.Accounts.ListVehicles(c.Request.Context(), driverID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, vehicles)
}
