package room

import (
	"github.com/lox/cardroom/internal/game"
	"github.com/lox/cardroom/internal/protocol"
)

// Outbox delivers messages to client sessions. Implementations must not
// block: rooms call it with their lock held.
type Outbox interface {
	Send(sessionID string, msg *protocol.Message)
	Broadcast(sessionIDs []string, msg *protocol.Message)
}

// Archiver records finished games. Archive must return promptly.
type Archiver interface {
	Archive(result game.Result, players []game.PlayerState)
}

type nopOutbox struct{}

func (nopOutbox) Send(string, *protocol.Message)        {}
func (nopOutbox) Broadcast([]string, *protocol.Message) {}

// Reasons reported in room:player-left.
const (
	ReasonLeft             = "left"
	ReasonKicked           = "kicked"
	ReasonDisconnected     = "disconnected"
	ReasonAFK              = "afk"
	ReasonReconnectTimeout = "reconnect_timeout"
)

// Reasons reported in room:closed.
const (
	CloseEmpty    = "empty"
	CloseIdle     = "idle"
	CloseKicked   = "kicked"
	CloseShutdown = "shutdown"
	CloseDeleted  = "deleted"
)
