package protocol

import (
	"encoding/json"
	"time"

	"github.com/lox/cardroom/internal/game"
)

// Client → Server payloads

type CreateRoomData struct {
	PlayerName string              `json:"playerName" validate:"required,max=64"`
	Avatar     string              `json:"avatar,omitempty" validate:"omitempty,max=256"`
	Settings   *game.SettingsPatch `json:"settings,omitempty"`
}

type JoinRoomData struct {
	RoomCode   string `json:"roomCode" validate:"required,max=16"`
	PlayerName string `json:"playerName" validate:"required,max=64"`
	Avatar     string `json:"avatar,omitempty" validate:"omitempty,max=256"`
}

// RejoinRoomData reclaims a seat after a dropped connection.
type RejoinRoomData struct {
	RoomCode string `json:"roomCode" validate:"required,max=16"`
	PlayerID string `json:"playerId" validate:"required,uuid"`
	Token    string `json:"token" validate:"required,max=64"`
}

type ReadyData struct {
	Ready *bool `json:"ready" validate:"required"`
}

type ActionData struct {
	Type string          `json:"type" validate:"required,max=64"`
	Data json.RawMessage `json:"data,omitempty"`
}

type TargetData struct {
	TargetID string `json:"targetId" validate:"required,max=64"`
}

type SendChatData struct {
	Text string `json:"text" validate:"required,max=2000"`
}

// Server → Client payloads

// RoomState is the full room snapshot sent with room:updated.
type RoomState struct {
	Code        string            `json:"code"`
	Status      game.Status       `json:"status"`
	HostID      string            `json:"hostId"`
	Players     []game.PlayerView `json:"players"`
	PlayerCount int               `json:"playerCount"`
	Settings    game.Settings     `json:"settings"`
	CreatedAt   time.Time         `json:"createdAt"`
	Game        *game.State       `json:"game,omitempty"`
}

// RoomSummary is one entry of the public room list.
type RoomSummary struct {
	Code        string      `json:"code"`
	HostName    string      `json:"hostName"`
	GameType    string      `json:"gameType"`
	PlayerCount int         `json:"playerCount"`
	MaxPlayers  int         `json:"maxPlayers"`
	Status      game.Status `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
}

type RoomJoinedData struct {
	RoomCode string    `json:"roomCode"`
	PlayerID string    `json:"playerId"`
	Token    string    `json:"token"`
	Room     RoomState `json:"room"`
}

type PlayerJoinedData struct {
	Player game.PlayerView `json:"player"`
}

type PlayerLeftData struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Reason   string `json:"reason"`
}

type RoomClosedData struct {
	Reason string `json:"reason"`
}

type GameStartedData struct {
	Game game.State `json:"game"`
}

type ActionAppliedData struct {
	Action game.ActionRecord `json:"action"`
}

type GameEndedData struct {
	Result     game.Result `json:"result"`
	DurationMs int64       `json:"durationMs"`
}

type GamePausedData struct {
	Paused bool   `json:"paused"`
	Reason string `json:"reason,omitempty"`
}

type RoundEndedData struct {
	RoundNumber int                        `json:"roundNumber"`
	Scores      map[string]game.RoundScore `json:"scores"`
	Totals      map[string]int             `json:"totals"`
}

type TurnStartData struct {
	PlayerID     string   `json:"playerId"`
	RoundNumber  int      `json:"roundNumber"`
	TurnNumber   int      `json:"turnNumber"`
	TimeoutMs    int64    `json:"timeoutMs"`
	ValidActions []string `json:"validActions"`
}

// TurnActionsData refreshes the current player's options mid-turn.
type TurnActionsData struct {
	PlayerID     string   `json:"playerId"`
	ValidActions []string `json:"validActions"`
}

type TurnEndedData struct {
	PlayerID   string `json:"playerId"`
	TurnNumber int    `json:"turnNumber"`
	Reason     string `json:"reason"`
}

type TimeoutWarningData struct {
	PlayerID         string `json:"playerId"`
	SecondsRemaining int    `json:"secondsRemaining"`
}

type ChatMessageData struct {
	PlayerID  string    `json:"playerId"`
	Name      string    `json:"name"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type SystemData struct {
	Text string `json:"text"`
}

type ErrorData struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Event    MessageType       `json:"event,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
