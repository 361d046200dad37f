package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/vistream/panel/internal/domain"
)

// Handler upgrades authenticated requests onto the activity feed.
// Authentication happens in the HTTP middleware before the upgrade; players
// and dashboards that cannot set headers pass the token as a query
// parameter.
type Handler struct {
	Hub      *Hub
	Upgrader websocket.Upgrader
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{
		Hub: hub,
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HandleActivity is the gin handler for GET /ws/activity
func (h *Handler) HandleActivity(c *gin.Context) {
	account, ok := c.MustGet("account").(*domain.Account)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	cl := &client{
		conn:      conn,
		accountID: account.ID,
		isAdmin:   account.IsAdmin(),
	}
	h.Hub.add(cl)
	log.Printf("[WS] Activity feed connected for account %d", account.ID)

	h.serve(cl)
}

// serve keeps the connection alive with pings and drains client frames
// until the socket closes. The feed is one-directional; inbound frames are
// discarded.
func (h *Handler) serve(cl *client) {
	defer func() {
		h.Hub.remove(cl)
		log.Printf("[WS] Activity feed closed for account %d", cl.accountID)
	}()

	cl.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				cl.writeMu.Lock()
				err := cl.conn.WriteMessage(websocket.PingMessage, nil)
				cl.writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()
	defer close(done)

	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}
