package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"questline/core"
	"questline/realtime"
	"questline/router"
)

const writeWait = 5 * time.Second

// Routers resolves the push-event router of a user's active session.
type Routers interface {
	Router(user core.UserID) (*router.Router, bool)
}

// Frame is an inbound push event, e.g. {"event":"xp:gained","payload":{"amount":25}}.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// errorFrame reports a rejected inbound frame back to the client.
type errorFrame struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Error string `json:"error"`
}

// Handler returns an http.Handler that upgrades to WebSocket, streams the user's
// events from the hub, and feeds inbound frames to the user's router.
// The user is taken from the "user" query parameter; without it the connection
// receives every event and inbound frames are rejected.
func Handler(hub *realtime.Hub, routers Routers, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	upgrader := gorillaws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var user core.UserID
		if raw := r.URL.Query().Get("user"); raw != "" {
			u, err := core.NormalizeUserID(core.UserID(raw))
			if err != nil {
				http.Error(w, "invalid user", http.StatusBadRequest)
				return
			}
			user = u
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		id, ch := hub.Subscribe(user, 256)
		defer hub.Unsubscribe(id)

		rejects := make(chan errorFrame, 16)
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			readFrames(conn, user, routers, rejects, logger)
		}()

		for {
			var msg []byte
			select {
			case <-readDone:
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				msg = realtime.MarshalJSON(ev)
			case rej := <-rejects:
				msg, _ = json.Marshal(rej)
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(gorillaws.TextMessage, msg); err != nil {
				return
			}
		}
	})
}

func readFrames(conn *gorillaws.Conn, user core.UserID, routers Routers, rejects chan<- errorFrame, logger *slog.Logger) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			reject(rejects, errorFrame{Type: "error", Error: router.ErrMalformed.Error()})
			continue
		}
		if user == "" || routers == nil {
			reject(rejects, errorFrame{Type: "error", Event: f.Event, Error: "no user bound to connection"})
			continue
		}
		rt, ok := routers.Router(user)
		if !ok {
			reject(rejects, errorFrame{Type: "error", Event: f.Event, Error: "no active session"})
			continue
		}
		if err := rt.Deliver(f.Event, f.Payload); err != nil {
			logger.Debug("websocket frame rejected", "user_id", user, "event", f.Event, "error", err)
			reject(rejects, errorFrame{Type: "error", Event: f.Event, Error: err.Error()})
		}
	}
}

func reject(ch chan<- errorFrame, f errorFrame) {
	select {
	case ch <- f:
	default:
	}
}
