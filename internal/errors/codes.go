// Package errors provides the structured error taxonomy shared by the room
// engine and the event service.
package errors

// Code is a machine-readable error code sent to clients.
type Code string

const (
	// CodeUnknown represents an error that carries no domain code.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeInvalidPayload   Code = "INVALID_PAYLOAD"
	CodeUnknownEvent     Code = "UNKNOWN_EVENT"
	CodeInvalidRoomCode  Code = "INVALID_ROOM_CODE"
	CodeInvalidSettings  Code = "INVALID_SETTINGS"
	CodeUnknownGameType  Code = "UNKNOWN_GAME_TYPE"
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeInvalidMessage   Code = "INVALID_MESSAGE"
	CodeInvalidRejoin    Code = "INVALID_REJOIN"
	CodeAlreadyInRoom    Code = "ALREADY_IN_ROOM"
	CodeInvalidHostClaim Code = "INVALID_HOST_TARGET"

	// Authorization errors
	CodeNotHost     Code = "NOT_HOST"
	CodeNotYourTurn Code = "NOT_YOUR_TURN"
	CodeNotInRoom   Code = "NOT_IN_ROOM"

	// Lifecycle / capacity errors
	CodeRoomNotFound     Code = "ROOM_NOT_FOUND"
	CodePlayerNotFound   Code = "PLAYER_NOT_FOUND"
	CodeRoomFull         Code = "ROOM_FULL"
	CodeGameInProgress   Code = "GAME_IN_PROGRESS"
	CodeGameNotStarted   Code = "GAME_NOT_STARTED"
	CodeNotEnoughPlayers Code = "NOT_ENOUGH_PLAYERS"
	CodeNotReady         Code = "NOT_READY"
	CodeStale            Code = "STALE"
	CodeRoomClosed       Code = "ROOM_CLOSED"
	CodeInvalidState     Code = "INVALID_STATE"

	// Invalid-action errors
	CodeInvalidAction Code = "INVALID_ACTION"

	// Internal failures
	CodeActionFailed Code = "ACTION_FAILED"
	CodeInternal     Code = "INTERNAL"
)

// Kind groups codes into the categories clients and logs care about.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindLifecycle     Kind = "lifecycle"
	KindInvalidAction Kind = "invalid_action"
	KindInternal      Kind = "internal"
)

// Kind maps a code to its category.
func (c Code) Kind() Kind {
	switch c {
	case CodeInvalidPayload,
		CodeUnknownEvent,
		CodeInvalidRoomCode,
		CodeInvalidSettings,
		CodeUnknownGameType,
		CodeRateLimited,
		CodeInvalidMessage,
		CodeInvalidRejoin,
		CodeAlreadyInRoom,
		CodeInvalidHostClaim:
		return KindValidation

	case CodeNotHost,
		CodeNotYourTurn,
		CodeNotInRoom:
		return KindAuthorization

	case CodeRoomNotFound,
		CodePlayerNotFound,
		CodeRoomFull,
		CodeGameInProgress,
		CodeGameNotStarted,
		CodeNotEnoughPlayers,
		CodeNotReady,
		CodeStale,
		CodeRoomClosed,
		CodeInvalidState:
		return KindLifecycle

	case CodeInvalidAction:
		return KindInvalidAction

	default:
		return KindInternal
	}
}

// String returns the string representation of the code.
func (c Code) String() string {
	return string(c)
}
