// Package room hosts lobbies and the games played in them. A Manager owns the
// registry of rooms and the index from client sessions to rooms.
package room

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/cardroom/internal/errors"
	"github.com/lox/cardroom/internal/game"
	"github.com/lox/cardroom/internal/protocol"
	"github.com/lox/cardroom/internal/randutil"
	"github.com/lox/cardroom/internal/roomcode"
)

const (
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultAFKWarning    = 15 * time.Second
	DefaultMaxAFK        = 3
)

// Config wires a Manager to its collaborators.
type Config struct {
	Registry *game.Registry
	Defaults game.Settings
	Clock    quartz.Clock
	Rand     *randutil.Locked
	Logger   *log.Logger
	Outbox   Outbox
	Archiver Archiver

	// MaxRooms caps concurrent rooms; zero means unlimited.
	MaxRooms      int
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	// AFKWarning is how long before a turn expires the player is warned.
	AFKWarning time.Duration
	// MaxAFK timed-out turns in a game mark a player disconnected.
	MaxAFK int
}

// Joined describes the seat a session was given.
type Joined struct {
	RoomCode string
	PlayerID string
	Token    string
	Room     protocol.RoomState
}

// Manager is the room registry. Its own lock guards only the two maps and
// is always taken after a room lock, never before.
type Manager struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	sessions map[string]string

	registry *game.Registry
	defaults game.Settings
	clock    quartz.Clock
	rng      *randutil.Locked
	codes    *roomcode.Generator
	logger   *log.Logger
	outbox   Outbox
	archiver Archiver

	maxRooms      int
	idleTimeout   time.Duration
	sweepInterval time.Duration
	afkWarning    time.Duration
	maxAFK        int
}

// NewManager creates an empty registry.
func NewManager(cfg Config) *Manager {
	if cfg.Registry == nil {
		cfg.Registry = game.NewRegistry()
	}
	if cfg.Defaults.GameType == "" {
		cfg.Defaults = game.DefaultSettings()
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Rand == nil {
		rng, _ := randutil.NewTimeSeeded()
		cfg.Rand = randutil.NewLocked(rng)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Outbox == nil {
		cfg.Outbox = nopOutbox{}
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	return &Manager{
		rooms:         make(map[string]*Room),
		sessions:      make(map[string]string),
		registry:      cfg.Registry,
		defaults:      cfg.Defaults.Clone(),
		clock:         cfg.Clock,
		rng:           cfg.Rand,
		codes:         roomcode.NewGenerator(cfg.Rand),
		logger:        cfg.Logger.WithPrefix("rooms"),
		outbox:        cfg.Outbox,
		archiver:      cfg.Archiver,
		maxRooms:      cfg.MaxRooms,
		idleTimeout:   cfg.IdleTimeout,
		sweepInterval: cfg.SweepInterval,
		afkWarning:    cfg.AFKWarning,
		maxAFK:        cfg.MaxAFK,
	}
}

// Registry returns the rule-set registry rooms start games from.
func (m *Manager) Registry() *game.Registry {
	return m.registry
}

// CreateRoom opens a room with the caller seated as host.
func (m *Manager) CreateRoom(sessionID string, cfg game.PlayerConfig, patch *game.SettingsPatch) (Joined, error) {
	settings := m.defaults.Clone()
	if patch != nil {
		settings = settings.Merge(*patch)
	}
	if err := settings.Validate(); err != nil {
		return Joined{}, err
	}
	if !m.registry.Has(settings.GameType) {
		return Joined{}, errors.Newf(errors.CodeUnknownGameType, "unknown game type %q", settings.GameType)
	}

	m.mu.Lock()
	if _, busy := m.sessions[sessionID]; busy {
		m.mu.Unlock()
		return Joined{}, errors.New(errors.CodeAlreadyInRoom, "already in a room")
	}
	if m.maxRooms > 0 && len(m.rooms) >= m.maxRooms {
		m.mu.Unlock()
		return Joined{}, errors.New(errors.CodeRoomFull, "no rooms available")
	}

	code := m.codes.Unique(func(c string) bool {
		_, taken := m.rooms[c]
		return taken
	})
	r := newRoom(m, code, settings)
	p, token := r.seat(sessionID, cfg, true)
	m.rooms[code] = r
	m.sessions[sessionID] = code
	m.mu.Unlock()

	m.logger.Info("Room created", "room", code, "host", p.Name, "type", settings.GameType)
	return Joined{RoomCode: code, PlayerID: p.ID, Token: token, Room: r.Snapshot()}, nil
}

func (m *Manager) lookup(code string) (*Room, string, error) {
	code = roomcode.Normalize(code)
	if err := roomcode.Validate(code); err != nil {
		return nil, "", errors.Wrap(errors.CodeInvalidRoomCode, "invalid room code", err)
	}
	r, ok := m.Room(code)
	if !ok {
		return nil, "", errors.New(errors.CodeRoomNotFound, "room not found")
	}
	return r, code, nil
}

// JoinRoom seats the caller in an existing lobby.
func (m *Manager) JoinRoom(sessionID, code string, cfg game.PlayerConfig) (Joined, error) {
	if _, ok := m.RoomBySession(sessionID); ok {
		return Joined{}, errors.New(errors.CodeAlreadyInRoom, "already in a room")
	}
	r, code, err := m.lookup(code)
	if err != nil {
		return Joined{}, err
	}

	var joined Joined
	err = r.do(func() error {
		if r.game != nil {
			return errors.New(errors.CodeGameInProgress, "game already in progress")
		}
		if r.roster.Len() >= r.settings.MaxPlayers {
			return errors.New(errors.CodeRoomFull, "room is full")
		}
		if err := m.index(sessionID, code); err != nil {
			return err
		}

		p, token := r.seat(sessionID, cfg, false)
		r.logger.Info("Player joined", "player", p.Name)
		joined = Joined{RoomCode: code, PlayerID: p.ID, Token: token, Room: r.state()}

		msg, err := protocol.NewMessage(protocol.TypePlayerJoined, protocol.PlayerJoinedData{Player: p.View()})
		if err == nil {
			m.outbox.Broadcast(slices.DeleteFunc(r.sessions(), func(s string) bool { return s == sessionID }), msg)
		}
		r.broadcastUpdated()
		return nil
	})
	return joined, err
}

// RejoinRoom binds a new session to an existing seat using the token issued
// when the seat was taken.
func (m *Manager) RejoinRoom(sessionID, code, playerID, token string) (Joined, error) {
	if _, ok := m.RoomBySession(sessionID); ok {
		return Joined{}, errors.New(errors.CodeAlreadyInRoom, "already in a room")
	}
	r, code, err := m.lookup(code)
	if err != nil {
		return Joined{}, err
	}

	var joined Joined
	err = r.do(func() error {
		p, ok := r.roster.Get(playerID)
		if !ok || !r.tokenMatches(playerID, token) {
			return errors.New(errors.CodeInvalidRejoin, "no seat matches that token")
		}
		if p.Forfeited {
			return errors.New(errors.CodeInvalidRejoin, "seat was forfeited")
		}
		if err := m.index(sessionID, code); err != nil {
			return err
		}

		previous := p.ConnectionID
		if r.game != nil {
			if err := r.game.Rejoin(p.ID, sessionID); err != nil {
				m.unindex(sessionID, code)
				return err
			}
		} else {
			p.Rebind(sessionID)
			r.roster.EnsureHost()
		}
		if previous != sessionID {
			m.unindex(previous, code)
		}
		r.stopReconnect(p.ID)

		r.logger.Info("Player rejoined", "player", p.Name)
		joined = Joined{RoomCode: code, PlayerID: p.ID, Token: token, Room: r.state()}
		r.system("%s reconnected", p.Name)
		r.broadcastUpdated()
		return nil
	})
	return joined, err
}

// LeaveRoom removes the caller from their room. Leaving a running game
// forfeits the seat.
func (m *Manager) LeaveRoom(sessionID string) error {
	r, ok := m.RoomBySession(sessionID)
	if !ok {
		return errors.New(errors.CodeNotInRoom, "not in a room")
	}
	return r.do(func() error {
		p, err := r.member(sessionID)
		if err != nil {
			return err
		}
		m.unindex(sessionID, r.code)
		return r.depart(p, ReasonLeft, true)
	})
}

// Disconnect handles a dropped connection. Lobby seats are freed; game seats
// are held for the reconnect window.
func (m *Manager) Disconnect(sessionID string) {
	r, ok := m.RoomBySession(sessionID)
	if !ok {
		return
	}
	err := r.do(func() error {
		m.unindex(sessionID, r.code)
		p, ok := r.roster.BySession(sessionID)
		if !ok || !p.Connected() {
			return nil
		}
		return r.depart(p, ReasonDisconnected, false)
	})
	if err != nil && !errors.IsCode(err, errors.CodeRoomClosed) {
		m.logger.Error("Failed to handle disconnect", "session", sessionID, "error", err)
	}
}

// Room looks up a room by normalized code.
func (m *Manager) Room(code string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[code]
	return r, ok
}

// RoomBySession returns the room a session is seated in.
func (m *Manager) RoomBySession(sessionID string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	code, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	r, ok := m.rooms[code]
	return r, ok
}

// DeleteRoom closes a room, cancelling any game in it.
func (m *Manager) DeleteRoom(code string) bool {
	r, ok := m.Room(roomcode.Normalize(code))
	if !ok {
		return false
	}
	r.shutdown(CloseDeleted)
	return true
}

// PublicRooms lists rooms open for joining, oldest first.
func (m *Manager) PublicRooms() []protocol.RoomSummary {
	out := []protocol.RoomSummary{}
	for _, r := range m.snapshot() {
		if s, listed := r.Summary(); listed {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b protocol.RoomSummary) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// RoomCount returns the number of open rooms.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// PlayerCount returns the number of sessions seated in a room.
func (m *Manager) PlayerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes rooms idle for longer than the idle timeout.
func (m *Manager) Sweep() int {
	cutoff := m.clock.Now().Add(-m.idleTimeout)
	closed := 0
	for _, r := range m.snapshot() {
		if r.closeIfIdle(cutoff) {
			closed++
		}
	}
	return closed
}

// Run sweeps idle rooms until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(m.sweepInterval, "rooms", "sweep")
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Info("Closed idle rooms", "count", n, "open", m.RoomCount())
			}
		}
	}
}

// Shutdown closes every room.
func (m *Manager) Shutdown() {
	for _, r := range m.snapshot() {
		r.shutdown(CloseShutdown)
	}
}

func (m *Manager) snapshot() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

func (m *Manager) index(sessionID, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[sessionID]; ok && existing != code {
		return errors.New(errors.CodeAlreadyInRoom, "already in a room")
	}
	m.sessions[sessionID] = code
	return nil
}

// unindex drops a session entry if it still points at code.
func (m *Manager) unindex(sessionID, code string) {
	if sessionID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[sessionID] == code {
		delete(m.sessions, sessionID)
	}
}

// unregister removes a room and its sessions in one step.
func (m *Manager) unregister(code string, sessionIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, code)
	for _, s := range sessionIDs {
		if m.sessions[s] == code {
			delete(m.sessions, s)
		}
	}
}
