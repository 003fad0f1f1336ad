package handlers

import (
	"net/http"

	"github.com/mitrahelp/mitrahelp-api/api"
	"github.com/mitrahelp/mitrahelp-api/realtime"
)

// Notification exposes the websocket hub used by clients that cannot
// hold a socket.io session.
type Notification struct {
	Hub *realtime.Hub
}

// WebsocketHandler upgrades the connection and registers it under the
// caller's identity. Browsers cannot set headers on websocket dials, so
// unauthenticated connects fall back to the userId query param the way
// the mobile clients send it.
func (n Notification) WebsocketHandler(w http.ResponseWriter, r *http.Request) {
	userID := ""
	if identity, ok := api.IdentityFromContext(r.Context()); ok {
		userID = identity.ID
	}
	if userID == "" {
		userID = r.URL.Query().Get("userId")
	}
	if userID == "" {
		http.Error(w, `{"error": "userId required"}`, http.StatusBadRequest)
		return
	}
	n.Hub.Register(w, r, userID)
}
