// Package realtime is the room-addressed publish/subscribe transport used
// to reach connected clients. Delivery is fire-and-forget, at-most-once;
// events published to the same room are observed by a single recipient in
// publish order.
package realtime

// Event names emitted by the dispatch and tracking flows.
const (
	EventNewEmergency      = "new_emergency"
	EventEmergencyAccepted = "emergency_accepted"
	EventStatusUpdate      = "status_update"
	EventLocationUpdate    = "location_update"
)

// Publisher publishes an event to every client joined to a room. Rooms are
// addressed by identity id (a client's private channel) or by emergency id
// (the per-request shared room). Implementations must not block the caller
// on slow recipients.
type Publisher interface {
	Publish(room, event string, payload interface{})
}

// Multi fans a publish out to several transports, e.g. the socket.io
// server and the websocket notification hub.
type Multi []Publisher

// Publish sends the event through every underlying publisher.
func (m Multi) Publish(room, event string, payload interface{}) {
	for _, p := range m {
		p.Publish(room, event, payload)
	}
}

// Noop discards every publish. Used where a transport is not configured.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(string, string, interface{}) {}
