package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"cenems-telemetry/internal/stream"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// WSHandler upgrades subscribers onto the measurement stream.
type WSHandler struct {
	hub    *stream.Hub
	logger *log.Logger
}

// NewWSHandler creates a WSHandler over the hub.
func NewWSHandler(hub *stream.Hub, logger *log.Logger) *WSHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[ws] ", log.LstdFlags)
	}
	return &WSHandler{hub: hub, logger: logger}
}

// HandleSubscriber upgrades to websocket and keeps the connection
// registered until the client goes away. Subscribers only receive;
// inbound messages are drained and discarded.
// GET /ws
func (h *WSHandler) HandleSubscriber(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Printf("websocket upgrade failed: %v", err)
		return
	}

	id := h.hub.Register(conn)
	defer h.hub.Unregister(id)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Printf("subscriber %d read error: %v", id, err)
			}
			return
		}
	}
}
