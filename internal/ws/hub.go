package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub fans huddle events out to websocket subscribers. Topics are
// free-form strings: "session:<id>" for roster updates, "member:<id>"
// for incoming-call notifications.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*websocket.Conn]bool
}

func NewHub() *Hub {
	return &Hub{
		topics: make(map[string]map[*websocket.Conn]bool),
	}
}

func (h *Hub) Subscribe(topic string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*websocket.Conn]bool)
	}
	h.topics[topic][conn] = true
	log.Debug().Str("topic", topic).Int("subscribers", len(h.topics[topic])).Msg("ws: client subscribed")
}

func (h *Hub) Unsubscribe(topic string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.topics[topic]; ok {
		delete(conns, conn)
		conn.Close()
		if len(conns) == 0 {
			delete(h.topics, topic)
		}
		log.Debug().Str("topic", topic).Msg("ws: client unsubscribed")
	}
}

func (h *Hub) Broadcast(topic string, message WSMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Error().Err(err).Msg("ws: marshal error")
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.topics[topic]))
	for conn := range h.topics[topic] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	// Writes happen outside the lock; failed connections are removed
	// afterward under the write lock so concurrent broadcasts never
	// mutate the subscriber map while others iterate it.
	var failed []*websocket.Conn
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("ws: write error, dropping client")
			failed = append(failed, conn)
		}
	}
	if len(failed) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	for _, conn := range failed {
		if subs[conn] {
			delete(subs, conn)
			conn.Close()
		}
	}
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}
