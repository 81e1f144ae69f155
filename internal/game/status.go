package game

// Status is the lifecycle state of a game.
type Status string

const (
	StatusLobby     Status = "LOBBY"
	StatusStarting  Status = "STARTING"
	StatusPlaying   Status = "PLAYING"
	StatusPaused    Status = "PAUSED"
	StatusFinished  Status = "FINISHED"
	StatusCancelled Status = "CANCELLED"
)

// Over reports whether the game reached a terminal state.
func (s Status) Over() bool {
	return s == StatusFinished || s == StatusCancelled
}

// Phase is a rule-set-defined sub-stage of a running game.
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhaseDeal     Phase = "deal"
	PhasePlay     Phase = "play"
	PhaseScoring  Phase = "scoring"
	PhaseEndRound Phase = "end_round"
	PhaseEndGame  Phase = "end_game"
)

// EndReason records why a game ended.
type EndReason string

const (
	EndCompleted EndReason = "completed"
	EndForfeit   EndReason = "forfeit"
	EndTimeout   EndReason = "timeout"
	EndCancelled EndReason = "cancelled"
)

// ConnectionStatus is the session state of a seated player.
type ConnectionStatus string

const (
	Connected    ConnectionStatus = "connected"
	Disconnected ConnectionStatus = "disconnected"
	Reconnecting ConnectionStatus = "reconnecting"
	Spectating   ConnectionStatus = "spectating"
)
