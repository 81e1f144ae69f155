package room

import (
	"context"
	"encoding/json"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/cardroom/internal/game"
	"github.com/lox/cardroom/internal/protocol"
	"github.com/lox/cardroom/internal/randutil"
	"github.com/lox/cardroom/internal/rules/lowscore"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	to  []string
	msg *protocol.Message
}

// recordingOutbox keeps every message for inspection. Timer callbacks run on
// other goroutines, hence the lock.
type recordingOutbox struct {
	mu   sync.Mutex
	sent []delivery
}

func (o *recordingOutbox) Send(sessionID string, msg *protocol.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, delivery{to: []string{sessionID}, msg: msg})
}

func (o *recordingOutbox) Broadcast(sessionIDs []string, msg *protocol.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, delivery{to: slices.Clone(sessionIDs), msg: msg})
}

// received lists the message types delivered to a session, in order.
func (o *recordingOutbox) received(sessionID string) []protocol.MessageType {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []protocol.MessageType
	for _, d := range o.sent {
		if slices.Contains(d.to, sessionID) {
			out = append(out, d.msg.Type)
		}
	}
	return out
}

// last decodes the most recent message of type t delivered to a session.
func (o *recordingOutbox) last(t *testing.T, sessionID string, typ protocol.MessageType, v any) {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		d := o.sent[i]
		if d.msg.Type == typ && slices.Contains(d.to, sessionID) {
			require.NoError(t, json.Unmarshal(d.msg.Data, v))
			return
		}
	}
	t.Fatalf("session %s never received %s", sessionID, typ)
}

func (o *recordingOutbox) reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = nil
}

type archived struct {
	result  game.Result
	players []game.PlayerState
}

type recordingArchiver struct {
	mu      sync.Mutex
	results []archived
}

func (a *recordingArchiver) Archive(result game.Result, players []game.PlayerState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, archived{result: result, players: players})
}

func (a *recordingArchiver) all() []archived {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.results)
}

type harness struct {
	m       *Manager
	clock   *quartz.Mock
	out     *recordingOutbox
	archive *recordingArchiver
	seats   map[string]Joined
}

func newHarness(t *testing.T, configure ...func(*Config)) *harness {
	t.Helper()

	registry := game.NewRegistry()
	registry.Register(lowscore.GameType, lowscore.New)

	h := &harness{
		clock:   quartz.NewMock(t),
		out:     &recordingOutbox{},
		archive: &recordingArchiver{},
		seats:   make(map[string]Joined),
	}
	cfg := Config{
		Registry:   registry,
		Clock:      h.clock,
		Rand:       randutil.NewLocked(randutil.New(1)),
		Logger:     log.NewWithOptions(io.Discard, log.Options{}),
		Outbox:     h.out,
		Archiver:   h.archive,
		AFKWarning: DefaultAFKWarning,
		MaxAFK:     DefaultMaxAFK,
	}
	for _, fn := range configure {
		fn(&cfg)
	}
	h.m = NewManager(cfg)
	return h
}

func (h *harness) create(t *testing.T, session string, patch *game.SettingsPatch) *Room {
	t.Helper()
	joined, err := h.m.CreateRoom(session, game.PlayerConfig{Name: "host-" + session}, patch)
	require.NoError(t, err)
	h.seats[session] = joined
	r, ok := h.m.Room(joined.RoomCode)
	require.True(t, ok)
	return r
}

func (h *harness) join(t *testing.T, session string, r *Room) Joined {
	t.Helper()
	joined, err := h.m.JoinRoom(session, r.Code(), game.PlayerConfig{Name: "player-" + session})
	require.NoError(t, err)
	h.seats[session] = joined
	return joined
}

// startGame seats s1 as host plus the given guests, readies the guests and
// starts a game.
func (h *harness) startGame(t *testing.T, patch *game.SettingsPatch, guests ...string) *Room {
	t.Helper()
	r := h.create(t, "s1", patch)
	for _, g := range guests {
		h.join(t, g, r)
		require.NoError(t, r.SetReady(g, true))
	}
	require.NoError(t, r.StartGame("s1"))
	return r
}

// current returns the player whose turn it is and their session.
func current(t *testing.T, r *Room) (string, string) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotNil(t, r.game, "no game running")
	p, ok := r.game.CurrentPlayer()
	require.True(t, ok, "no current player")
	return p.ID, p.ConnectionID
}

func inspect(r *Room, fn func(r *Room)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

func other(sessions []string, not string) string {
	for _, s := range sessions {
		if s != not {
			return s
		}
	}
	return ""
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func ptr[T any](v T) *T {
	return &v
}
