// Package stream broadcasts freshly ingested measurements to websocket
// subscribers. Delivery is best effort: a slow or dead client is
// dropped, never waited on.
package stream

import (
	"sync"

	"github.com/gorilla/websocket"

	"cenems-telemetry/internal/observability"
)

// Hub keeps track of active subscriber connections.
type Hub struct {
	mu      sync.RWMutex
	nextID  int
	clients map[int]*client
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes per connection
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[int]*client)}
}

// Register adds a subscriber connection and returns its id for
// Unregister.
func (h *Hub) Register(conn *websocket.Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.clients[id] = &client{conn: conn}
	observability.DefaultMetrics.StreamClients.Set(float64(len(h.clients)))
	return id
}

// Unregister removes and closes a subscriber connection.
func (h *Hub) Unregister(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		_ = c.conn.Close()
		delete(h.clients, id)
	}
	observability.DefaultMetrics.StreamClients.Set(float64(len(h.clients)))
}

// Broadcast sends a text message to every subscriber. Clients whose
// write fails are dropped.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	targets := make(map[int]*client, len(h.clients))
	for id, c := range h.clients {
		targets[id] = c
	}
	h.mu.RUnlock()

	for id, c := range targets {
		c.mu.Lock()
		err := c.conn.WriteMessage(websocket.TextMessage, payload)
		c.mu.Unlock()
		if err != nil {
			h.Unregister(id)
			continue
		}
		observability.DefaultMetrics.StreamMessagesSent.Inc()
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
