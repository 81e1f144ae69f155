package room

import (
	"encoding/json"
	"testing"
	"time"

	rand "math/rand/v2"

	"github.com/lox/cardroom/internal/errors"
	"github.com/lox/cardroom/internal/game"
	"github.com/lox/cardroom/internal/protocol"
	"github.com/lox/cardroom/internal/rules/lowscore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartGameAnnouncesFirstTurn(t *testing.T) {
	h := newHarness(t)
	r := h.startGame(t, nil, "s2")

	playerID, session := current(t, r)
	for _, s := range []string{"s1", "s2"} {
		got := h.out.received(s)
		assert.Contains(t, got, protocol.TypeGameStarted, s)
		assert.Contains(t, got, protocol.TypeGameState, s)
		assert.Contains(t, got, protocol.TypeTurnStart, s)
	}

	var start protocol.TurnStartData
	h.out.last(t, session, protocol.TypeTurnStart, &start)
	assert.Equal(t, playerID, start.PlayerID)
	assert.Equal(t, 1, start.RoundNumber)
	assert.Equal(t, game.DefaultTurnTimeout.Milliseconds(), start.TimeoutMs)
	assert.ElementsMatch(t, []string{lowscore.ActionDrawFromDeck, lowscore.ActionDrawFromDiscard}, start.ValidActions)
	assert.Equal(t, game.StatusPlaying, r.Snapshot().Status)
}

func TestStartGameChecks(t *testing.T) {
	h := newHarness(t)
	r := h.create(t, "s1", nil)

	err := r.StartGame("s1")
	assert.True(t, errors.IsCode(err, errors.CodeNotEnoughPlayers), "got %v", err)

	h.join(t, "s2", r)
	err = r.StartGame("s2")
	assert.True(t, errors.IsCode(err, errors.CodeNotHost), "got %v", err)

	err = r.StartGame("s1")
	assert.True(t, errors.IsCode(err, errors.CodeNotReady), "got %v", err)

	require.NoError(t, r.SetReady("s2", true))
	require.NoError(t, r.StartGame("s1"))

	err = r.StartGame("s1")
	assert.True(t, errors.IsCode(err, errors.CodeGameInProgress), "got %v", err)
	err = r.SetReady("s2", false)
	assert.True(t, errors.IsCode(err, errors.CodeGameInProgress), "got %v", err)
}

func TestActionsFlowThroughRoom(t *testing.T) {
	h := newHarness(t)
	r := h.startGame(t, nil, "s2")
	_, session := current(t, r)
	waiting := other([]string{"s1", "s2"}, session)

	err := r.Act(waiting, game.Action{Type: lowscore.ActionDrawFromDeck})
	assert.True(t, errors.IsCode(err, errors.CodeNotYourTurn), "got %v", err)

	err = r.Act("stranger", game.Action{Type: lowscore.ActionDrawFromDeck})
	assert.True(t, errors.IsCode(err, errors.CodeNotInRoom), "got %v", err)

	h.out.reset()
	require.NoError(t, r.Act(session, game.Action{Type: lowscore.ActionDrawFromDeck}))

	var applied protocol.ActionAppliedData
	h.out.last(t, waiting, protocol.TypeGameAction, &applied)
	assert.Equal(t, lowscore.ActionDrawFromDeck, applied.Action.Type)

	var actions protocol.TurnActionsData
	h.out.last(t, waiting, protocol.TypeTurnActions, &actions)
	assert.ElementsMatch(t, []string{lowscore.ActionPlaceDrawnCard, lowscore.ActionDiscardDrawn}, actions.ValidActions)
	assert.NotContains(t, h.out.received(waiting), protocol.TypeTurnStart, "the turn has not changed")

	data, err := json.Marshal(map[string]int{"position": 0})
	require.NoError(t, err)
	require.NoError(t, r.Act(session, game.Action{Type: lowscore.ActionPlaceDrawnCard, Data: data}))

	var ended protocol.TurnEndedData
	h.out.last(t, waiting, protocol.TypeTurnEnded, &ended)
	assert.Equal(t, string(game.TurnEndAction), ended.Reason)

	var start protocol.TurnStartData
	h.out.last(t, waiting, protocol.TypeTurnStart, &start)
	assert.Equal(t, h.seats[waiting].PlayerID, start.PlayerID)
}

func TestTurnTimerWarnsThenSkips(t *testing.T) {
	ctx := testContext(t)
	h := newHarness(t)
	r := h.startGame(t, nil, "s2")
	playerID, session := current(t, r)

	h.clock.Advance(game.DefaultTurnTimeout - DefaultAFKWarning).MustWait(ctx)

	var warning protocol.TimeoutWarningData
	h.out.last(t, session, protocol.TypeTurnTimeoutWarning, &warning)
	assert.Equal(t, playerID, warning.PlayerID)
	assert.Equal(t, 15, warning.SecondsRemaining)
	assert.NotContains(t, h.out.received(other([]string{"s1", "s2"}, session)), protocol.TypeTurnTimeoutWarning)

	h.clock.Advance(DefaultAFKWarning).MustWait(ctx)

	var ended protocol.TurnEndedData
	h.out.last(t, session, protocol.TypeTurnEnded, &ended)
	assert.Equal(t, playerID, ended.PlayerID)
	assert.Equal(t, string(game.TurnEndTimeout), ended.Reason)

	next, _ := current(t, r)
	assert.NotEqual(t, playerID, next)
	inspect(r, func(r *Room) {
		p, ok := r.game.Player(playerID)
		require.True(t, ok)
		assert.Equal(t, 1, p.Stats.AFKCount)
		assert.True(t, p.Connected())
	})
}

func TestActingCancelsTurnTimer(t *testing.T) {
	ctx := testContext(t)
	h := newHarness(t)
	r := h.startGame(t, nil, "s2")
	first, session := current(t, r)

	h.clock.Advance(30 * time.Second).MustWait(ctx)
	require.NoError(t, r.Act(session, game.Action{Type: lowscore.ActionDrawFromDeck}))
	require.NoError(t, r.Act(session, game.Action{Type: lowscore.ActionPlaceDrawnCard, Data: json.RawMessage(`{"position":1}`)}))

	// The first timer would have fired here; the second player's turn runs
	// on its own full timeout.
	h.clock.Advance(30 * time.Second).MustWait(ctx)
	second, _ := current(t, r)
	assert.NotEqual(t, first, second)

	inspect(r, func(r *Room) {
		p, _ := r.game.Player(first)
		assert.Zero(t, p.Stats.AFKCount)
	})
}

func TestRepeatedTimeoutsDisconnectPlayer(t *testing.T) {
	ctx := testContext(t)
	h := newHarness(t, func(c *Config) { c.MaxAFK = 1 })
	r := h.startGame(t, &game.SettingsPatch{ReconnectTimeoutMs: ptr(int64(1000))}, "s2")
	afkID, afkSession := current(t, r)
	stayingSession := other([]string{"s1", "s2"}, afkSession)

	h.clock.Advance(game.DefaultTurnTimeout - DefaultAFKWarning).MustWait(ctx)
	h.clock.Advance(DefaultAFKWarning).MustWait(ctx)

	var left protocol.PlayerLeftData
	h.out.last(t, afkSession, protocol.TypePlayerLeft, &left)
	assert.Equal(t, ReasonAFK, left.Reason)
	h.out.last(t, stayingSession, protocol.TypePlayerLeft, &left)
	assert.Equal(t, afkID, left.PlayerID)

	_, indexed := h.m.RoomBySession(afkSession)
	assert.False(t, indexed)
	inspect(r, func(r *Room) {
		p, _ := r.game.Player(afkID)
		assert.False(t, p.Connected())
		assert.Contains(t, r.reconnect, afkID)
	})

	// Nobody comes back, so the seat is forfeited and the game cannot go on.
	h.clock.Advance(time.Second).MustWait(ctx)

	results := h.archive.all()
	require.Len(t, results, 1)
	assert.Equal(t, game.EndForfeit, results[0].result.EndReason)
	assert.Len(t, results[0].players, 2)

	state := r.Snapshot()
	assert.Equal(t, game.StatusLobby, state.Status)
	require.Len(t, state.Players, 1)
	assert.Equal(t, h.seats[stayingSession].PlayerID, state.HostID)
	assert.Contains(t, h.out.received(stayingSession), protocol.TypeGameEnded)
}

func TestDisconnectAndRejoin(t *testing.T) {
	h := newHarness(t)
	r := h.startGame(t, nil, "s2")
	gone, session := current(t, r)
	seat := h.seats[session]

	h.m.Disconnect(session)

	_, indexed := h.m.RoomBySession(session)
	assert.False(t, indexed)
	next, _ := current(t, r)
	assert.NotEqual(t, gone, next, "a disconnected player's turn is skipped")
	assert.Len(t, r.Snapshot().Players, 2, "the seat is held")

	_, err := h.m.RejoinRoom("fresh", seat.RoomCode, seat.PlayerID, "wrong-token")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidRejoin), "got %v", err)

	joined, err := h.m.RejoinRoom("fresh", seat.RoomCode, seat.PlayerID, seat.Token)
	require.NoError(t, err)
	assert.Equal(t, seat.PlayerID, joined.PlayerID)
	assert.Equal(t, game.StatusPlaying, joined.Room.Status)

	got, ok := h.m.RoomBySession("fresh")
	require.True(t, ok)
	assert.Same(t, r, got)
	inspect(r, func(r *Room) {
		p, _ := r.game.Player(seat.PlayerID)
		assert.True(t, p.Connected())
		assert.Equal(t, "fresh", p.ConnectionID)
		assert.NotContains(t, r.reconnect, seat.PlayerID)
	})
	assert.Contains(t, h.out.received("fresh"), protocol.TypeChatSystem)
}

func TestReconnectWindowExpiryForfeitsSeat(t *testing.T) {
	ctx := testContext(t)
	h := newHarness(t)
	r := h.startGame(t, &game.SettingsPatch{ReconnectTimeoutMs: ptr(int64(1000))}, "s2", "s3")
	_, session := current(t, r)
	leaver := other([]string{"s1", "s2", "s3"}, session)
	seat := h.seats[leaver]

	h.m.Disconnect(leaver)
	h.clock.Advance(time.Second).MustWait(ctx)

	var left protocol.PlayerLeftData
	h.out.last(t, session, protocol.TypePlayerLeft, &left)
	assert.Equal(t, ReasonReconnectTimeout, left.Reason)
	assert.Equal(t, seat.PlayerID, left.PlayerID)

	assert.Equal(t, game.StatusPlaying, r.Snapshot().Status, "two seats remain")
	inspect(r, func(r *Room) {
		p, _ := r.game.Player(seat.PlayerID)
		assert.True(t, p.Forfeited)
	})

	_, err := h.m.RejoinRoom("late", seat.RoomCode, seat.PlayerID, seat.Token)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidRejoin), "got %v", err)
}

func TestLeavingGameForfeits(t *testing.T) {
	h := newHarness(t)
	r := h.startGame(t, nil, "s2")

	require.NoError(t, h.m.LeaveRoom("s2"))

	results := h.archive.all()
	require.Len(t, results, 1)
	assert.Equal(t, game.EndForfeit, results[0].result.EndReason)
	assert.Contains(t, h.out.received("s1"), protocol.TypeGameEnded)

	state := r.Snapshot()
	assert.Equal(t, game.StatusLobby, state.Status)
	require.Len(t, state.Players, 1)
	assert.Equal(t, h.seats["s1"].PlayerID, state.HostID)
	assert.False(t, state.Players[0].IsReady)
	assert.Equal(t, 1, h.m.PlayerCount())

	err := h.m.LeaveRoom("s2")
	assert.True(t, errors.IsCode(err, errors.CodeNotInRoom), "got %v", err)
}

func TestEveryoneDisconnectingPausesGame(t *testing.T) {
	h := newHarness(t)
	r := h.startGame(t, nil, "s2")

	h.m.Disconnect("s1")
	h.m.Disconnect("s2")

	assert.Equal(t, game.StatusPaused, r.Snapshot().Status)
	inspect(r, func(r *Room) {
		assert.Nil(t, r.turnTimer)
		assert.Nil(t, r.warnTimer)
		assert.Len(t, r.reconnect, 2)
	})
	assert.Equal(t, 1, h.m.RoomCount(), "held seats keep the room open")

	seat := h.seats["s2"]
	_, err := h.m.RejoinRoom("back", seat.RoomCode, seat.PlayerID, seat.Token)
	require.NoError(t, err)

	assert.Equal(t, game.StatusPlaying, r.Snapshot().Status)
	var start protocol.TurnStartData
	h.out.last(t, "back", protocol.TypeTurnStart, &start)
	assert.Equal(t, seat.PlayerID, start.PlayerID)
	assert.Equal(t, seat.PlayerID, r.Snapshot().HostID)
}

func TestActionPanicIsContained(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Registry.Register("exploding", func(s game.Settings, rng *rand.Rand) (game.Rules, error) {
			inner, err := lowscore.New(s, rng)
			return explodingRules{inner}, err
		})
	})
	r := h.startGame(t, &game.SettingsPatch{GameType: ptr("exploding")}, "s2")
	_, session := current(t, r)

	err := r.Act(session, game.Action{Type: lowscore.ActionDrawFromDeck})
	assert.True(t, errors.IsCode(err, errors.CodeActionFailed), "got %v", err)

	// The room lock was released and the game is still usable.
	assert.Equal(t, game.StatusPlaying, r.Snapshot().Status)
	require.NoError(t, r.Chat(session, "still here"))
}

type explodingRules struct {
	game.Rules
}

func (explodingRules) HandleAction(*game.Game, *game.Player, game.Action) error {
	panic("boom")
}

func TestKick(t *testing.T) {
	h := newHarness(t)
	r := h.create(t, "s1", nil)
	guest := h.join(t, "s2", r)

	err := r.Kick("s2", h.seats["s1"].PlayerID)
	assert.True(t, errors.IsCode(err, errors.CodeNotHost), "got %v", err)
	err = r.Kick("s1", h.seats["s1"].PlayerID)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidAction), "got %v", err)
	err = r.Kick("s1", "nobody")
	assert.True(t, errors.IsCode(err, errors.CodePlayerNotFound), "got %v", err)

	require.NoError(t, r.Kick("s1", guest.PlayerID))

	var closed protocol.RoomClosedData
	h.out.last(t, "s2", protocol.TypeRoomClosed, &closed)
	assert.Equal(t, CloseKicked, closed.Reason)

	var left protocol.PlayerLeftData
	h.out.last(t, "s1", protocol.TypePlayerLeft, &left)
	assert.Equal(t, ReasonKicked, left.Reason)

	_, indexed := h.m.RoomBySession("s2")
	assert.False(t, indexed)
	assert.Len(t, r.Snapshot().Players, 1)
}

func TestTransferHost(t *testing.T) {
	h := newHarness(t)
	r := h.create(t, "s1", nil)
	guest := h.join(t, "s2", r)

	err := r.TransferHost("s2", guest.PlayerID)
	assert.True(t, errors.IsCode(err, errors.CodeNotHost), "got %v", err)

	require.NoError(t, r.TransferHost("s1", guest.PlayerID))
	assert.Equal(t, guest.PlayerID, r.Snapshot().HostID)

	var sys protocol.SystemData
	h.out.last(t, "s1", protocol.TypeChatSystem, &sys)
	assert.Contains(t, sys.Text, "player-s2")
}

func TestUpdateSettings(t *testing.T) {
	h := newHarness(t)
	r := h.create(t, "s1", nil)
	h.join(t, "s2", r)
	h.join(t, "s3", r)

	tests := []struct {
		name    string
		session string
		patch   game.SettingsPatch
		code    errors.Code
	}{
		{name: "guest", session: "s2", patch: game.SettingsPatch{MaxPlayers: ptr(4)}, code: errors.CodeNotHost},
		{name: "min above max", session: "s1", patch: game.SettingsPatch{MinPlayers: ptr(6), MaxPlayers: ptr(4)}, code: errors.CodeInvalidSettings},
		{name: "unknown type", session: "s1", patch: game.SettingsPatch{GameType: ptr("chess")}, code: errors.CodeUnknownGameType},
		{name: "below roster", session: "s1", patch: game.SettingsPatch{MaxPlayers: ptr(2)}, code: errors.CodeInvalidSettings},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.UpdateSettings(tt.session, tt.patch)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}

	h.out.reset()
	require.NoError(t, r.UpdateSettings("s1", game.SettingsPatch{
		MaxPlayers: ptr(4),
		Private:    ptr(true),
		Extras:     map[string]any{lowscore.ExtraRounds: 1},
	}))
	var state protocol.RoomState
	h.out.last(t, "s3", protocol.TypeRoomUpdated, &state)
	assert.Equal(t, 4, state.Settings.MaxPlayers)
	assert.True(t, state.Settings.Private)
	assert.Equal(t, 1, state.Settings.ExtraInt(lowscore.ExtraRounds, 0))

	require.NoError(t, r.SetReady("s2", true))
	require.NoError(t, r.SetReady("s3", true))
	require.NoError(t, r.StartGame("s1"))
	err := r.UpdateSettings("s1", game.SettingsPatch{MaxPlayers: ptr(5)})
	assert.True(t, errors.IsCode(err, errors.CodeGameInProgress), "got %v", err)
}

func TestChatRequiresMembership(t *testing.T) {
	h := newHarness(t)
	r := h.create(t, "s1", nil)
	h.join(t, "s2", r)

	err := r.Chat("s9", "hello")
	assert.True(t, errors.IsCode(err, errors.CodeNotInRoom), "got %v", err)

	require.NoError(t, r.Chat("s1", "hello"))
	var msg protocol.ChatMessageData
	h.out.last(t, "s2", protocol.TypeChatMessage, &msg)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, h.seats["s1"].PlayerID, msg.PlayerID)
}
