package realtime

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin is enforced by the frontend deployment
	},
}

type hubClient struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes so one recipient sees events in order
}

func (c *hubClient) send(event string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(map[string]interface{}{
		"event": event,
		"data":  payload,
	})
}

// Hub tracks websocket connections by user id and implements Publisher
// for identity-addressed rooms. Mobile clients that cannot hold a
// socket.io session connect here instead.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*hubClient
}

// NewHub returns an empty connection hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*hubClient)}
}

// ServeHTTP upgrades the request and registers the connection under the
// authenticated user id passed by the caller.
func (h *Hub) Register(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade failed", "error", err)
		return
	}
	if userID == "" {
		conn.Close()
		return
	}

	client := &hubClient{conn: conn}
	h.mu.Lock()
	if old, ok := h.clients[userID]; ok {
		old.conn.Close()
	}
	h.clients[userID] = client
	h.mu.Unlock()
	zap.S().Debugw("user connected to notification hub", "userID", userID)

	// Drain the connection until the peer goes away.
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	conn.Close()
	h.mu.Lock()
	if h.clients[userID] == client {
		delete(h.clients, userID)
	}
	h.mu.Unlock()
	zap.S().Debugw("user disconnected from notification hub", "userID", userID)
}

// Publish delivers the event to the user whose id equals room, if
// connected. Best effort; a write failure drops the connection.
func (h *Hub) Publish(room, event string, payload interface{}) {
	h.mu.Lock()
	client, ok := h.clients[room]
	h.mu.Unlock()
	if !ok {
		return
	}

	if err := client.send(event, payload); err != nil {
		zap.S().Warnw("failed to push event, dropping connection", "userID", room, "event", event, "error", err)
		client.conn.Close()
		h.mu.Lock()
		if h.clients[room] == client {
			delete(h.clients, room)
		}
		h.mu.Unlock()
	}
}

// Connected reports whether a user currently holds a hub connection.
func (h *Hub) Connected(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.clients[userID]
	return ok
}
