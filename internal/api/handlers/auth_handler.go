package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/carpool/internal/api/dto"
	"github.com/gocomet/carpool/internal/service/accounts"
)

// Register handles POST /v1/auth/register
func (h *Handlers) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	session, err := h.Accounts.Register(c.Request.Context(), accounts.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// Login handles POST /v1/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	session, err := h.Accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// Me handles GET /v1/auth/me
func (h *Handlers) Me(c *gin.Context) {
	userID, ok := h.caller(c)
	if !ok {
		return
	}

	u, err := h.Accounts.Me(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, u)
}
