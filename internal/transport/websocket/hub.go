package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vistream/panel/internal/domain"
)

// client is one connected activity-feed socket. Subscribers see their own
// stream events; administrators see everything.
type client struct {
	conn      *websocket.Conn
	accountID int64
	isAdmin   bool

	// writeMu ensures only one goroutine writes to the socket at a time.
	// conn.WriteJSON is not safe for concurrent use.
	writeMu sync.Mutex
}

func (c *client) send(event domain.StreamEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(event)
}

// Hub fans stream lifecycle events out to connected panel clients. It
// implements the stream manager's Publisher interface.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		c.conn.Close()
		delete(h.clients, c)
	}
}

// Publish delivers the event to every client allowed to see it. Sends run
// in goroutines so one slow socket cannot stall the stream manager.
func (h *Hub) Publish(event domain.StreamEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.isAdmin && c.accountID != event.AccountID {
			continue
		}
		go func(c *client) {
			_ = c.send(event)
		}(c)
	}
}
