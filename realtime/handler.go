package realtime

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// userHeader carries the authenticated user id, set by the API gateway in
// front of this service.
const userHeader = "X-User-ID"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler upgrades client connections and keeps the registry current
type Handler struct {
	registry *Registry
}

// NewHandler creates the websocket endpoint over the given registry
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// ServeHTTP upgrades the connection, registers it for the user, and removes
// it again when the client goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.Header.Get(userHeader), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	conn := NewWSConn(wsConn)
	h.registry.Register(userID, conn)

	log.WithField("userID", userID).Debug("Client connected")

	// Clients never send application data; the read loop only notices
	// disconnects and control frames.
	go func() {
		defer func() {
			h.registry.Unregister(userID, conn)
			conn.Close()
			log.WithField("userID", userID).Debug("Client disconnected")
		}()

		for {
			if _, _, err := wsConn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
