package realtime

import (
	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"go.uber.org/zap"
)

// SocketServer wraps a socket.io server as a Publisher. Clients join their
// identity room with a "join" event and an emergency's shared room with
// "join_emergency"; the same room also carries chat traffic handled by the
// frontend.
type SocketServer struct {
	server *socketio.Server
}

// NewSocketServer configures the socket.io server and its room-join
// events and starts serving connections.
func NewSocketServer() *SocketServer {
	server := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			polling.Default,
			websocket.Default,
		},
	})

	server.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext("")
		zap.S().Debugw("socket.io client connected", "id", s.ID())
		return nil
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		zap.S().Warnw("socket.io error", "error", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		zap.S().Debugw("socket.io client disconnected", "id", s.ID(), "reason", reason)
	})

	// Identity rooms for personal notifications.
	server.OnEvent("/", "join", func(s socketio.Conn, userID string) {
		if userID != "" {
			s.Join(userID)
			zap.S().Debugw("client joined identity room", "userID", userID)
		}
	})

	server.OnEvent("/", "join_emergency", func(s socketio.Conn, emergencyID string) {
		if emergencyID != "" {
			s.Join(emergencyID)
			zap.S().Debugw("client joined emergency room", "emergencyID", emergencyID)
		}
	})

	server.OnEvent("/", "leave_emergency", func(s socketio.Conn, emergencyID string) {
		if emergencyID != "" {
			s.Leave(emergencyID)
		}
	})

	go func() {
		if err := server.Serve(); err != nil {
			zap.S().Errorw("socket.io server stopped", "error", err)
		}
	}()

	return &SocketServer{server: server}
}

// Publish broadcasts the event to every client in the room. Writes are
// serialized per connection, so a single recipient observes events in
// publish order.
func (s *SocketServer) Publish(room, event string, payload interface{}) {
	s.server.BroadcastToRoom("/", room, event, payload)
}

// Server exposes the underlying socket.io server for mounting on the
// router and for shutdown.
func (s *SocketServer) Server() *socketio.Server {
	return s.server
}

// Close stops serving socket.io connections.
func (s *SocketServer) Close() error {
	return s.server.Close()
}
