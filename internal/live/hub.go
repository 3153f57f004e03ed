// Package live streams newly created attendance records to subscribed
// teacher dashboards over WebSocket, one feed per session.
package live

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// subscriber owns one WebSocket connection. Writes go through the send
// channel so only the writer goroutine touches the conn.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans each session's events out to its subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[*subscriber]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[*subscriber]struct{})}
}

// Subscribe attaches a connection to a session feed and blocks until
// the peer disconnects. The hub takes ownership of the conn.
func (h *Hub) Subscribe(sessionID uuid.UUID, conn *websocket.Conn) {
	sub := &subscriber{conn: conn, send: make(chan []byte, 16)}

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*subscriber]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	h.mu.Unlock()

	go sub.writeLoop()

	// Read loop exists only to detect close; clients send nothing.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(sessionID, sub)
}

// Broadcast sends v to every subscriber of the session. Slow
// subscribers are dropped rather than blocking the caller.
func (h *Hub) Broadcast(sessionID uuid.UUID, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("live: marshal broadcast payload")
		return
	}

	h.mu.RLock()
	var stale []*subscriber
	for sub := range h.subs[sessionID] {
		select {
		case sub.send <- payload:
		default:
			stale = append(stale, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range stale {
		h.drop(sessionID, sub)
	}
}

// SubscriberCount returns how many dashboards watch a session.
func (h *Hub) SubscriberCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

func (h *Hub) drop(sessionID uuid.UUID, sub *subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[sessionID]; ok {
		if _, ok := set[sub]; ok {
			delete(set, sub)
			close(sub.send)
			if len(set) == 0 {
				delete(h.subs, sessionID)
			}
		}
	}
	h.mu.Unlock()
}

func (s *subscriber) writeLoop() {
	defer s.conn.Close()
	for payload := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
