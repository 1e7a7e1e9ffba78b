package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/gocomet/carpool/pkg/errors"
	"github.com/gocomet/carpool/pkg/logger"
	"github.com/gocomet/carpool/pkg/websocket"
	gorilla "github.com/gorilla/websocket"
)

// HandleWebSocket handles GET /v1/ws?token=<access token>. Browsers cannot
// set headers on a WebSocket handshake, so the token travels in the query.
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	if h.Hub == nil {
		h.respondError(c, apperrors.ServiceUnavailable("Realtime updates are disabled", nil))
		return
	}

	userID, role, err := h.Tokens.ValidateToken(c.Query("token"))
	if err != nil {
		h.respondError(c, apperrors.ErrInvalidToken)
		return
	}

	upgrader := gorilla.Upgrader{
		ReadBufferSize:  h.config.WSReadBufferSize,
		WriteBufferSize: h.config.WSWriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn("Failed to upgrade to WebSocket", logger.Err(err))
		return
	}

	client := websocket.NewClient(h.Hub, conn, userID.String(), role, h.Logger)
	h.Hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

func (h *Handlers) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.config.WSAllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.config.WSAllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
