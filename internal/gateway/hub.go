// Package gateway exposes tmux-backed agent sessions over WebSocket.
package gateway

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/asheshgoplani/agent-relay/internal/session"
)

// statusMessage is pushed to every connected client when a session's status
// is committed.
type statusMessage struct {
	Type    string           `json:"type"`
	Session *session.Session `json:"session"`
}

// Hub fans status updates out to every live connection.
type Hub struct {
	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*Conn]struct{})}
}

func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// BroadcastStatus sends a status frame to all clients. Slow clients are
// dropped rather than allowed to stall the rest.
func (h *Hub) BroadcastStatus(sess *session.Session) {
	data, err := json.Marshal(statusMessage{Type: "status", Session: sess})
	if err != nil {
		log.Printf("gateway: marshal status: %v", err)
		return
	}

	h.mu.Lock()
	targets := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.enqueueText(data)
	}
}
