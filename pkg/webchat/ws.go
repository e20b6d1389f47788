package webchat

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/go-go-golems/pinchchat/pkg/history"
	"github.com/go-go-golems/pinchchat/pkg/historysync"
)

const (
	frameHello     = "hello"
	frameHistory   = historysync.TopicHistoryReconciled
	frameReconcile = "reconcile"
	framePing      = "ping"
	framePong      = "pong"
	frameError     = "error"
)

// wsFrame is the envelope of every websocket message in both directions.
type wsFrame struct {
	Type          string            `json:"type"`
	SessionKey    string            `json:"sessionKey,omitempty"`
	Messages      []history.Message `json:"messages,omitempty"`
	WasCompacted  bool              `json:"wasCompacted,omitempty"`
	ArchivedCount int               `json:"archivedCount,omitempty"`
	Source        string            `json:"source,omitempty"`
	AtMs          int64             `json:"atMs,omitempty"`
	Error         string            `json:"error,omitempty"`
}

func eventFrame(ev historysync.HistoryReconciled) wsFrame {
	return wsFrame{
		Type:          frameHistory,
		SessionKey:    ev.SessionKey,
		Messages:      ev.Messages,
		WasCompacted:  ev.WasCompacted,
		ArchivedCount: ev.ArchivedCount,
		Source:        ev.Source,
		AtMs:          ev.AtMs,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWS attaches the socket to ?session=<key>. The first frame is the
// cached history; later frames are reconciliation events for that session.
// Clients may push {"type":"reconcile","messages":[...]} frames.
func (s *Server) handleWS(w http.ResponseWriter, req *http.Request) {
	key := strings.TrimSpace(req.URL.Query().Get("session"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing session")
		return
	}
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(maxRequestBodyBytes)

	ctx := req.Context()
	pool, err := s.hub.Attach(key, conn, func() ([]byte, error) {
		msgs, err := s.history.History(ctx, key)
		if err != nil {
			return nil, err
		}
		if msgs == nil {
			msgs = []history.Message{}
		}
		return json.Marshal(wsFrame{Type: frameHello, SessionKey: key, Messages: msgs})
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("session_key", key).Msg("ws attach failed")
		return
	}
	s.logger.Debug().Str("session_key", key).Msg("ws attached")
	defer pool.Remove(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var in wsFrame
		if err := json.Unmarshal(data, &in); err != nil {
			s.sendFrame(pool, conn, wsFrame{Type: frameError, Error: "invalid frame"})
			continue
		}
		switch in.Type {
		case framePing:
			s.sendFrame(pool, conn, wsFrame{Type: framePong})
		case frameReconcile:
			// The result reaches this socket through the event bus.
			if _, err := s.history.Apply(ctx, key, in.Messages); err != nil {
				s.logger.Warn().Err(err).Str("session_key", key).Msg("ws reconcile failed")
				s.sendFrame(pool, conn, wsFrame{Type: frameError, Error: err.Error()})
			}
		default:
			s.sendFrame(pool, conn, wsFrame{Type: frameError, Error: "unknown frame type " + in.Type})
		}
	}
}

func (s *Server) sendFrame(pool *ConnectionPool, conn *websocket.Conn, f wsFrame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	pool.SendToOne(conn, data)
}
