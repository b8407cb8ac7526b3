// Package gateway is the relay's HTTP boundary: webhook intake, status and
// control endpoints, and a WebSocket stream of order events for dashboards.
package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"webhook-relayv1/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub manages WebSocket clients and fans order events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  []byte // last broadcast envelope, replayed to new clients

	// Optional hook, invoked with the client count after connect/disconnect.
	OnClientChange func(count int)
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]bool)}
}

// Broadcast sends an order event to all connected clients. Slow clients are
// skipped rather than blocking dispatch.
func (h *Hub) Broadcast(ev model.OrderEvent) {
	envelope, err := json.Marshal(map[string]interface{}{
		"type":  "order",
		"event": ev,
		"ts":    ev.TS.Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}

	h.mu.Lock()
	h.latest = envelope
	for client := range h.clients {
		select {
		case client.send <- envelope:
		default:
		}
	}
	h.mu.Unlock()
}

// HandleWS upgrades an HTTP connection to WebSocket and registers the client.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}
	conn.EnableWriteCompression(true)

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	latest := h.latest
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)
	h.clientChange(count)

	if latest != nil {
		select {
		case client.send <- latest:
		default:
		}
	}

	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	close(c.send)
	h.clientChange(count)
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) clientChange(count int) {
	if h.OnClientChange != nil {
		h.OnClientChange(count)
	}
}
