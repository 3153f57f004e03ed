package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth happens via the JWT middleware before the upgrade; the
	// browser cannot set custom headers on WebSocket dials, so origin
	// alone is not a useful gate here.
	CheckOrigin: func(*http.Request) bool { return true },
}

// SessionFeed upgrades the connection and streams each new attendance
// record of the session until the client disconnects.
func (h *Handler) SessionFeed(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	if _, err := h.sessions.Get(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.hub.Subscribe(id, conn)
}
