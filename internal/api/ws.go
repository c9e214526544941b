package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsMessage is the WebSocket chat frame in both directions. Clients
// send {type: "message", text: ...}; the server replies with
// {type: "reply", text: ...} or {type: "error", error: ...}.
type wsMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

const wsWriteTimeout = 10 * time.Second

// handleChatWS upgrades to a WebSocket and relays chat turns to the
// user's active companion. One connection maps to one user; turns on
// the same connection are naturally sequential, and concurrent
// connections for the same user are serialized by the store.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "user", userID, "error", err)
		return
	}
	defer conn.Close()

	s.logger.Debug("websocket chat opened", "user", userID)
	ctx := r.Context()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket chat closed", "user", userID)
			} else {
				s.logger.Debug("websocket read failed", "user", userID, "error", err)
			}
			return
		}

		var out wsMessage
		switch {
		case msg.Type != "message":
			out = wsMessage{Type: "error", Error: "unknown message type " + msg.Type}
		case msg.Text == "":
			out = wsMessage{Type: "error", Error: "message text is required"}
		default:
			reply, err := s.store.Message(ctx, userID, msg.Text)
			if err != nil {
				out = wsMessage{Type: "error", Error: err.Error()}
			} else {
				out = wsMessage{Type: "reply", Text: reply}
				if s.auditLog != nil {
					if active, aerr := s.store.Active(userID); aerr == nil {
						s.auditLog.Record(ctx, userID, active.ID(), msg.Text, reply)
					}
				}
			}
		}

		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(out); err != nil {
			s.logger.Debug("websocket write failed", "user", userID, "error", err)
			return
		}
	}
}
