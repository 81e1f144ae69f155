package room

import (
	"crypto/subtle"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	rand "math/rand/v2"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/lox/cardroom/internal/errors"
	"github.com/lox/cardroom/internal/game"
	"github.com/lox/cardroom/internal/protocol"
)

// Room is a lobby that can host one game at a time. Every operation runs
// under the room's lock, from validation through to the outbound messages it
// produces, so handlers for the same room never interleave.
type Room struct {
	mu sync.Mutex

	code         string
	createdAt    time.Time
	lastActivity time.Time
	settings     game.Settings
	roster       *game.Roster
	game         *game.Game
	tokens       map[string]string
	closed       bool

	events      *game.EventRecorder
	turn        turnKey
	turnActions []string
	turnSeq     int
	turnTimer   *quartz.Timer
	warnTimer   *quartz.Timer
	reconnect   map[string]reconnectWindow
	windowSeq   int

	m      *Manager
	rng    *rand.Rand
	logger *log.Logger
}

func newRoom(m *Manager, code string, settings game.Settings) *Room {
	now := m.clock.Now()
	return &Room{
		code:         code,
		createdAt:    now,
		lastActivity: now,
		settings:     settings,
		roster:       game.NewRoster(),
		tokens:       make(map[string]string),
		events:       &game.EventRecorder{},
		reconnect:    make(map[string]reconnectWindow),
		m:            m,
		rng:          m.rng.Fork(),
		logger:       m.logger.With("room", code),
	}
}

// Code returns the room's public code.
func (r *Room) Code() string { return r.code }

// do runs fn as one serialized room operation, then publishes whatever the
// game raised and re-syncs turn timers. A panic inside fn is reported as
// ACTION_FAILED.
func (r *Room) do(fn func() error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New(errors.CodeRoomClosed, "room is closed")
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Recovered panic in room operation", "panic", rec, "stack", string(debug.Stack()))
			err = errors.New(errors.CodeActionFailed, "action failed")
		}
	}()

	r.lastActivity = r.m.clock.Now()
	err = fn()
	if !r.closed {
		r.settle()
	}
	return err
}

// fire is do for timer callbacks: it is silent on closed rooms and does not
// count as activity.
func (r *Room) fire(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Recovered panic in room timer", "panic", rec, "stack", string(debug.Stack()))
		}
	}()

	fn()
	if !r.closed {
		r.settle()
	}
}

// Snapshot returns the room state sent with room:updated.
func (r *Room) Snapshot() protocol.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state()
}

// Summary returns the public list entry and whether the room belongs in the
// public list: not private, not playing and not full.
func (r *Room) Summary() (protocol.RoomSummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := protocol.RoomSummary{
		Code:        r.code,
		GameType:    r.settings.GameType,
		PlayerCount: r.roster.Len(),
		MaxPlayers:  r.settings.MaxPlayers,
		Status:      r.status(),
		CreatedAt:   r.createdAt,
	}
	if host, ok := r.roster.Host(); ok {
		s.HostName = host.Name
	}
	listed := !r.closed && !r.settings.Private && r.game == nil && r.roster.Len() < r.settings.MaxPlayers
	return s, listed
}

// Closed reports whether the room has been deleted.
func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Room) status() game.Status {
	if r.game == nil {
		return game.StatusLobby
	}
	return r.game.Status()
}

func (r *Room) state() protocol.RoomState {
	s := protocol.RoomState{
		Code:        r.code,
		Status:      r.status(),
		HostID:      r.roster.HostID(),
		Players:     r.roster.Views(),
		PlayerCount: r.roster.Len(),
		Settings:    r.settings.Clone(),
		CreatedAt:   r.createdAt,
	}
	if r.game != nil {
		gs := r.game.Snapshot()
		s.Game = &gs
	}
	return s
}

// sessions lists the connection ids of connected players.
func (r *Room) sessions() []string {
	var out []string
	for _, p := range r.roster.Connected() {
		if p.ConnectionID != "" {
			out = append(out, p.ConnectionID)
		}
	}
	return out
}

func (r *Room) broadcast(t protocol.MessageType, data any) {
	msg, err := protocol.NewMessage(t, data)
	if err != nil {
		r.logger.Error("Failed to encode message", "type", t, "error", err)
		return
	}
	r.m.outbox.Broadcast(r.sessions(), msg)
}

func (r *Room) send(sessionID string, t protocol.MessageType, data any) {
	if sessionID == "" {
		return
	}
	msg, err := protocol.NewMessage(t, data)
	if err != nil {
		r.logger.Error("Failed to encode message", "type", t, "error", err)
		return
	}
	r.m.outbox.Send(sessionID, msg)
}

func (r *Room) broadcastUpdated() {
	r.broadcast(protocol.TypeRoomUpdated, r.state())
}

func (r *Room) system(format string, args ...any) {
	r.broadcast(protocol.TypeChatSystem, protocol.SystemData{Text: fmt.Sprintf(format, args...)})
}

// member resolves the player bound to a session.
func (r *Room) member(sessionID string) (*game.Player, error) {
	p, ok := r.roster.BySession(sessionID)
	if !ok || !p.Connected() {
		return nil, errors.New(errors.CodeNotInRoom, "not in this room")
	}
	return p, nil
}

func (r *Room) requireHost(sessionID string) (*game.Player, error) {
	p, err := r.member(sessionID)
	if err != nil {
		return nil, err
	}
	if !p.IsHost {
		return nil, errors.New(errors.CodeNotHost, "only the host can do that")
	}
	return p, nil
}

// seat adds a new player and issues their rejoin token.
func (r *Room) seat(sessionID string, cfg game.PlayerConfig, asHost bool) (*game.Player, string) {
	cfg.ConnectionID = sessionID
	p := game.NewPlayer(cfg)
	r.roster.Add(p, asHost)
	token := uuid.NewString()
	r.tokens[p.ID] = token
	return p, token
}

func (r *Room) tokenMatches(playerID, token string) bool {
	want, ok := r.tokens[playerID]
	return ok && subtle.ConstantTimeCompare([]byte(want), []byte(token)) == 1
}

// UpdateSettings applies a host's partial settings change in the lobby.
func (r *Room) UpdateSettings(sessionID string, patch game.SettingsPatch) error {
	return r.do(func() error {
		if _, err := r.requireHost(sessionID); err != nil {
			return err
		}
		if r.game != nil {
			return errors.New(errors.CodeGameInProgress, "settings are locked while a game is running")
		}

		s := r.settings.Merge(patch)
		if err := s.Validate(); err != nil {
			return err
		}
		if !r.m.registry.Has(s.GameType) {
			return errors.Newf(errors.CodeUnknownGameType, "unknown game type %q", s.GameType)
		}
		if s.MaxPlayers < r.roster.Len() {
			return errors.Newf(errors.CodeInvalidSettings, "room already has %d players", r.roster.Len())
		}

		r.settings = s
		r.broadcastUpdated()
		return nil
	})
}

// SetReady toggles the caller's ready flag.
func (r *Room) SetReady(sessionID string, ready bool) error {
	return r.do(func() error {
		p, err := r.member(sessionID)
		if err != nil {
			return err
		}
		if r.game != nil {
			return errors.New(errors.CodeGameInProgress, "game already started")
		}
		p.IsReady = ready
		r.broadcastUpdated()
		return nil
	})
}

// StartGame binds a new game to the roster and deals.
func (r *Room) StartGame(sessionID string) error {
	return r.do(func() error {
		if _, err := r.requireHost(sessionID); err != nil {
			return err
		}
		if r.game != nil {
			return errors.New(errors.CodeGameInProgress, "game already started")
		}

		rules, err := r.m.registry.New(r.settings.GameType, r.settings, r.rng)
		if err != nil {
			return err
		}
		bus := game.NewEventBus()
		bus.Subscribe(r.events)

		g := game.New(game.Config{
			RoomCode: r.code,
			Roster:   r.roster,
			Settings: r.settings,
			Rules:    rules,
			Rand:     r.rng,
			Clock:    r.m.clock,
			Events:   bus,
			Logger:   r.logger,
		})
		if err := g.Start(); err != nil {
			r.events.Drain()
			return err
		}

		r.game = g
		r.logger.Info("Game started", "game", g.ID(), "type", g.GameType(), "players", r.roster.Len())
		return nil
	})
}

// Act applies a game action for the caller.
func (r *Room) Act(sessionID string, a game.Action) error {
	return r.do(func() error {
		p, err := r.member(sessionID)
		if err != nil {
			return err
		}
		if r.game == nil {
			return errors.New(errors.CodeGameNotStarted, "no game is running")
		}
		_, err = r.game.Apply(p.ID, a)
		return err
	})
}

// Kick removes another player. During a game their seat is forfeited.
func (r *Room) Kick(sessionID, targetID string) error {
	return r.do(func() error {
		host, err := r.requireHost(sessionID)
		if err != nil {
			return err
		}
		target, ok := r.roster.Get(targetID)
		if !ok {
			return errors.New(errors.CodePlayerNotFound, "player not found")
		}
		if target.ID == host.ID {
			return errors.New(errors.CodeInvalidAction, "the host cannot kick themselves")
		}

		session, connected := target.ConnectionID, target.Connected()
		r.m.unindex(session, r.code)
		if err := r.depart(target, ReasonKicked, true); err != nil {
			return err
		}
		if connected {
			r.send(session, protocol.TypeRoomClosed, protocol.RoomClosedData{Reason: CloseKicked})
		}
		return nil
	})
}

// TransferHost hands the host role to another connected player.
func (r *Room) TransferHost(sessionID, targetID string) error {
	return r.do(func() error {
		if _, err := r.requireHost(sessionID); err != nil {
			return err
		}
		if err := r.roster.TransferHost(targetID); err != nil {
			return err
		}
		if host, ok := r.roster.Host(); ok {
			r.system("%s is now the host", host.Name)
		}
		r.broadcastUpdated()
		return nil
	})
}

// Chat relays a message from the caller to the room. Text must already be
// sanitised.
func (r *Room) Chat(sessionID, text string) error {
	return r.do(func() error {
		p, err := r.member(sessionID)
		if err != nil {
			return err
		}
		r.broadcast(protocol.TypeChatMessage, protocol.ChatMessageData{
			PlayerID:  p.ID,
			Name:      p.Name,
			Text:      text,
			Timestamp: r.m.clock.Now(),
		})
		return nil
	})
}

// depart handles a player leaving for any reason. In the lobby the seat is
// freed. During a game the seat is kept: forfeit gives it up for good,
// otherwise the player is marked disconnected and a reconnect window opens.
func (r *Room) depart(p *game.Player, reason string, forfeit bool) error {
	left := protocol.PlayerLeftData{PlayerID: p.ID, Name: p.Name, Reason: reason}

	if r.game == nil {
		r.roster.Remove(p.ID)
		delete(r.tokens, p.ID)
		r.logger.Info("Player left", "player", p.Name, "reason", reason)
		if r.roster.Len() == 0 {
			r.close(CloseEmpty)
			return nil
		}
		r.broadcast(protocol.TypePlayerLeft, left)
		r.broadcastUpdated()
		return nil
	}

	var err error
	if forfeit {
		r.stopReconnect(p.ID)
		err = r.game.Forfeit(p.ID)
	} else {
		err = r.game.RemovePlayer(p.ID)
		if err == nil {
			r.openReconnect(p)
		}
	}
	if err != nil {
		return err
	}

	r.logger.Info("Player left game", "player", p.Name, "reason", reason, "forfeit", forfeit)
	r.broadcast(protocol.TypePlayerLeft, left)
	if forfeit {
		r.endIfTooFewSeats()
	}
	if r.game != nil {
		r.broadcastUpdated()
	}
	return nil
}

// endIfTooFewSeats ends the game once forfeits leave fewer live seats than
// the game needs.
func (r *Room) endIfTooFewSeats() {
	g := r.game
	if g == nil || g.Status().Over() {
		return
	}
	switch active := len(g.ActivePlayers()); {
	case active == 0:
		g.End(game.EndCancelled)
	case active < g.Settings().MinPlayers:
		g.End(game.EndForfeit)
	}
}

// settle publishes the game's buffered events, retires a finished game and
// re-syncs turn timers.
func (r *Room) settle() {
	events := r.events.Drain()
	var ended *game.Result

	for _, ev := range events {
		r.publish(ev)
		if e, ok := ev.(game.GameEndedEvent); ok {
			res := e.Result
			ended = &res
		}
	}
	if len(events) > 0 && r.game != nil {
		r.broadcast(protocol.TypeGameState, r.game.Snapshot())
	}
	if ended != nil {
		r.finishGame(*ended)
	}
	if !r.closed {
		r.syncTurn()
	}
}

func (r *Room) publish(ev game.Event) {
	switch e := ev.(type) {
	case game.GameStartedEvent:
		r.broadcast(protocol.TypeGameStarted, protocol.GameStartedData{Game: r.game.Snapshot()})
	case game.ActionAppliedEvent:
		r.broadcast(protocol.TypeGameAction, protocol.ActionAppliedData{Action: e.Record})
	case game.TurnEndedEvent:
		r.broadcast(protocol.TypeTurnEnded, protocol.TurnEndedData{
			PlayerID:   e.PlayerID,
			TurnNumber: e.TurnNumber,
			Reason:     string(e.Reason),
		})
	case game.RoundEndedEvent:
		r.broadcast(protocol.TypeRoundEnded, protocol.RoundEndedData{
			RoundNumber: e.RoundNumber,
			Scores:      e.Scores,
			Totals:      e.Totals,
		})
	case game.GamePausedEvent:
		r.broadcast(protocol.TypeGamePaused, protocol.GamePausedData{Paused: e.Paused, Reason: e.Reason})
	case game.GameEndedEvent:
		r.broadcast(protocol.TypeGameEnded, protocol.GameEndedData{Result: e.Result, DurationMs: e.Result.DurationMs()})
	}
}

// finishGame archives the result and returns the room to the lobby.
func (r *Room) finishGame(result game.Result) {
	if r.m.archiver != nil {
		players := r.roster.Players()
		states := make([]game.PlayerState, 0, len(players))
		for _, p := range players {
			states = append(states, p.FullState())
		}
		r.m.archiver.Archive(result, states)
	}
	r.endGame()
}

// endGame detaches the game and readies everyone for the next one. Seats of
// players who left or forfeited are released.
func (r *Room) endGame() {
	r.game = nil
	r.stopTurnTimers()
	r.turn = turnKey{}
	r.turnActions = nil
	for id := range r.reconnect {
		r.stopReconnect(id)
	}

	for _, p := range r.roster.Players() {
		if p.Forfeited || !p.Connected() {
			r.roster.Remove(p.ID)
			delete(r.tokens, p.ID)
			continue
		}
		p.ResetForNewGame()
	}
	r.roster.EnsureHost()

	if r.roster.Len() == 0 {
		r.close(CloseEmpty)
		return
	}
	r.broadcastUpdated()
}

// close deletes the room. The manager drops the room and every seated
// session in one step.
func (r *Room) close(reason string) {
	if r.closed {
		return
	}
	sessions := r.sessions()

	r.closed = true
	r.stopTurnTimers()
	for id := range r.reconnect {
		r.stopReconnect(id)
	}
	r.m.unregister(r.code, r.roster.ConnectionIDs())

	msg, err := protocol.NewMessage(protocol.TypeRoomClosed, protocol.RoomClosedData{Reason: reason})
	if err == nil && len(sessions) > 0 {
		r.m.outbox.Broadcast(sessions, msg)
	}
	r.logger.Info("Room closed", "reason", reason)
}

// shutdown cancels any running game and closes the room.
func (r *Room) shutdown(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked(reason)
}

func (r *Room) closeLocked(reason string) {
	if r.closed {
		return
	}
	if r.game != nil {
		r.game.End(game.EndCancelled)
		r.settle()
	}
	r.close(reason)
}

// closeIfIdle closes the room if nothing has happened since the cutoff.
func (r *Room) closeIfIdle(cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.lastActivity.After(cutoff) {
		return false
	}
	r.closeLocked(CloseIdle)
	return true
}
