package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gtrade-dashboard/internal/logging"
	"github.com/gtrade-dashboard/internal/types"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
)

// originChecker accepts upgrades from the configured origins. Requests
// without an Origin header come from non-browser clients and are allowed.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(origin)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[strings.ToLower(origin)]
	}
}

// StreamMessage is the envelope pushed over /api/stream
type StreamMessage struct {
	Type    string          `json:"type"`
	Payload *types.Snapshot `json:"payload"`
}

// handleStream upgrades to a WebSocket, sends the current snapshot, then
// pushes every new snapshot until the client goes away.
// GET /api/stream
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	updates, unsubscribe := s.controller.Subscribe()
	done := make(chan struct{})

	go readPump(conn, done)
	writePump(conn, s.controller.CurrentSnapshot(), updates, done, logger)

	unsubscribe()
	_ = conn.Close()
}

// readPump discards client frames and closes done when the connection ends
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends the initial snapshot, the updates, and keepalive pings
func writePump(conn *websocket.Conn, initial *types.Snapshot, updates <-chan *types.Snapshot, done <-chan struct{}, logger *logging.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := writeSnapshot(conn, initial); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case snapshot, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The controller stopped
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := writeSnapshot(conn, snapshot); err != nil {
				logger.WithError(err).Debug("WebSocket write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snapshot *types.Snapshot) error {
	data, err := json.Marshal(StreamMessage{Type: "snapshot", Payload: snapshot})
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
