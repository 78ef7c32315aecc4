package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// Websocket chat protocol: one JSON object per text frame.
type wsInbound struct {
	Type   string `json:"type"` // turn | enable_history | disable_history
	UserID string `json:"user_id"`
	Text   string `json:"text,omitempty"`
}

type wsOutbound struct {
	Type           string `json:"type"` // reply | history_status | error
	UserID         string `json:"user_id,omitempty"`
	Reply          string `json:"reply,omitempty"`
	HistoryEnabled bool   `json:"history_enabled,omitempty"`
	Error          string `json:"error,omitempty"`
	Code           string `json:"code,omitempty"`
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[WS] read error: %v", err)
			}
			return
		}
		if strings.TrimSpace(in.UserID) == "" {
			s.writeWS(conn, wsOutbound{Type: "error", Code: "missing_user_id", Error: "user_id is required"})
			continue
		}

		switch in.Type {
		case "turn":
			reply, err := s.engine.HandleTurn(r.Context(), in.UserID, in.Text)
			if err != nil {
				_, code := turnErrorStatus(err)
				s.writeWS(conn, wsOutbound{Type: "error", UserID: in.UserID, Code: code, Error: err.Error()})
				continue
			}
			s.writeWS(conn, wsOutbound{Type: "reply", UserID: in.UserID, Reply: reply})
		case "enable_history":
			s.toggleHistoryWS(conn, r, in.UserID, true)
		case "disable_history":
			s.toggleHistoryWS(conn, r, in.UserID, false)
		default:
			s.writeWS(conn, wsOutbound{Type: "error", UserID: in.UserID, Code: "unknown_type", Error: "unknown message type"})
		}
	}
}

func (s *Server) toggleHistoryWS(conn *websocket.Conn, r *http.Request, userID string, enable bool) {
	var err error
	if enable {
		err = s.engine.EnableHistory(r.Context(), userID)
	} else {
		err = s.engine.DisableHistory(r.Context(), userID)
	}
	if err != nil {
		s.writeWS(conn, wsOutbound{Type: "error", UserID: userID, Code: "store_error", Error: err.Error()})
		return
	}
	s.writeWS(conn, wsOutbound{Type: "history_status", UserID: userID, HistoryEnabled: enable})
}

func (s *Server) writeWS(conn *websocket.Conn, msg wsOutbound) {
	if err := conn.WriteJSON(msg); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		log.Printf("[WS] write error: %v", err)
	}
}
