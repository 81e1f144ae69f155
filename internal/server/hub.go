package server

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/lox/cardroom/internal/protocol"
)

// Hub indexes live connections by session id. It is the room.Outbox the
// room manager delivers through.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	logger      *log.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		logger:      logger.WithPrefix("hub"),
	}
}

func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	h.connections[c.id] = c
	total := len(h.connections)
	h.mu.Unlock()
	h.logger.Info("Client connected", "session", c.id, "total", total)
}

func (h *Hub) unregister(c *Connection) bool {
	h.mu.Lock()
	existing, found := h.connections[c.id]
	ok := found && existing == c
	if ok {
		delete(h.connections, c.id)
	}
	total := len(h.connections)
	h.mu.Unlock()
	if ok {
		h.logger.Info("Client disconnected", "session", c.id, "total", total)
	}
	return ok
}

// Send delivers a message to one session. Unknown sessions are ignored: the
// client has already gone.
func (h *Hub) Send(sessionID string, msg *protocol.Message) {
	h.mu.RLock()
	c, ok := h.connections[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := c.SendMessage(msg); err != nil {
		h.logger.Debug("Dropped message", "session", sessionID, "event", msg.Type, "error", err)
	}
}

// Broadcast delivers a message to every listed session.
func (h *Hub) Broadcast(sessionIDs []string, msg *protocol.Message) {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		if c, ok := h.connections[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	count := 0
	for _, c := range targets {
		if err := c.SendMessage(msg); err != nil {
			h.logger.Debug("Dropped message", "session", c.id, "event", msg.Type, "error", err)
			continue
		}
		count++
	}
	h.logger.Debug("Broadcast message", "event", msg.Type, "recipients", count)
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// CloseAll closes every connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
