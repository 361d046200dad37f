package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vistream/panel/internal/domain"
)

// dialPair upgrades a real websocket connection and registers it on the hub
// with the given identity, returning the client side for reading.
func dialPair(t *testing.T, hub *Hub, accountID int64, isAdmin bool) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.add(&client{conn: conn, accountID: accountID, isAdmin: isAdmin})
	}))
	t.Cleanup(srv.Close)

	hub.mu.RLock()
	before := len(hub.clients)
	hub.mu.RUnlock()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// The server handler registers the client after the handshake; wait for
	// it so a Publish immediately after dialing cannot miss the socket.
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients) > before
	}, time.Second, 5*time.Millisecond)

	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) *domain.StreamEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event domain.StreamEvent
	if err := conn.ReadJSON(&event); err != nil {
		return nil
	}
	return &event
}

func TestPublish_SubscriberSeesOwnEventsOnly(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ownConn := dialPair(t, hub, 1, false)
	otherConn := dialPair(t, hub, 2, false)

	hub.Publish(domain.StreamEvent{Type: domain.EventStreamStarted, LogID: "log-1", AccountID: 1})

	event := readEvent(t, ownConn)
	require.NotNil(t, event, "owner must receive its own event")
	assert.Equal(t, "log-1", event.LogID)

	otherConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var dropped domain.StreamEvent
	err := otherConn.ReadJSON(&dropped)
	assert.Error(t, err, "another subscriber must not see the event")
}

func TestPublish_AdminSeesEverything(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	adminConn := dialPair(t, hub, 99, true)

	hub.Publish(domain.StreamEvent{Type: domain.EventStreamStopped, LogID: "log-2", AccountID: 1})

	event := readEvent(t, adminConn)
	require.NotNil(t, event)
	assert.Equal(t, domain.EventStreamStopped, event.Type)
	assert.Equal(t, "log-2", event.LogID)
}
