// Package eventsocket tails an outbox.Observers event stream over a
// websocket, one connection per subscriber, in tinode-chat's
// session/writeLoop shape (server/hdl_websock.go): a buffered send
// channel drained by a single writer goroutine per connection, with
// periodic pings keeping idle connections alive.
package eventsocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/koshroy/outpost/outbox"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub upgrades HTTP requests to websockets and streams every
// outbox.Event published after that point to the connection, until the
// client disconnects.
type Hub struct {
	observers *outbox.Observers
	log       *zap.Logger
}

// New builds a Hub tailing observers.
func New(observers *outbox.Observers, log *zap.Logger) *Hub {
	return &Hub{observers: observers, log: log}
}

// ServeHTTP upgrades the request and runs the connection's write loop
// until the subscriber channel or the socket itself closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	events, unsubscribe := h.observers.Subscribe()
	sess := &session{conn: conn, events: events, unsubscribe: unsubscribe, log: h.log}
	go sess.readLoop()
	sess.writeLoop()
}

// session pairs one websocket connection with its outbox.Observers
// subscription. readLoop only exists to notice the peer going away
// (this is a push-only feed, the client never sends anything
// meaningful); writeLoop owns the connection and is the only goroutine
// allowed to write to it, per gorilla/websocket's concurrency contract.
type session struct {
	conn        *websocket.Conn
	events      <-chan outbox.Event
	unsubscribe func()
	log         *zap.Logger
}

func (s *session) readLoop() {
	defer s.conn.Close()
	s.conn.SetReadLimit(4096)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.unsubscribe()
		s.conn.Close()
	}()

	for {
		select {
		case event, ok := <-s.events:
			if !ok {
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			body, err := json.Marshal(event)
			if err != nil {
				s.log.Warn("marshaling outbox event", zap.Error(err))
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
