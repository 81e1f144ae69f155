package protocol

// MessageType names one event on the wire.
type MessageType string

// Client to server events.
const (
	TypeRoomCreate   MessageType = "room:create"
	TypeRoomJoin     MessageType = "room:join"
	TypeRoomRejoin   MessageType = "room:rejoin"
	TypeRoomLeave    MessageType = "room:leave"
	TypeRoomSettings MessageType = "room:settings"
	TypeGameStart    MessageType = "game:start"
	TypeGameReady    MessageType = "game:ready"
	TypeGameAction   MessageType = "game:action"
	TypePlayerKick   MessageType = "player:kick"
	TypeTransferHost MessageType = "player:transfer-host"
	TypeChatMessage  MessageType = "chat:message"
)

// Server to client events. chat:message is shared with the inbound set.
const (
	TypeRoomJoined         MessageType = "room:joined"
	TypeRoomUpdated        MessageType = "room:updated"
	TypePlayerJoined       MessageType = "room:player-joined"
	TypePlayerLeft         MessageType = "room:player-left"
	TypeRoomClosed         MessageType = "room:closed"
	TypeGameStarted        MessageType = "game:started"
	TypeGameState          MessageType = "game:state"
	TypeGameEnded          MessageType = "game:ended"
	TypeGamePaused         MessageType = "game:paused"
	TypeRoundEnded         MessageType = "round:ended"
	TypeTurnStart          MessageType = "turn:start"
	TypeTurnActions        MessageType = "turn:actions"
	TypeTurnEnded          MessageType = "turn:ended"
	TypeTurnTimeoutWarning MessageType = "turn:timeout-warning"
	TypeChatSystem         MessageType = "chat:system"
	TypeError              MessageType = "error"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}

// Inbound reports whether clients may send this event.
func (mt MessageType) Inbound() bool {
	switch mt {
	case TypeRoomCreate, TypeRoomJoin, TypeRoomRejoin, TypeRoomLeave, TypeRoomSettings,
		TypeGameStart, TypeGameReady, TypeGameAction, TypePlayerKick, TypeTransferHost,
		TypeChatMessage:
		return true
	}
	return false
}
