package game

import (
	"fmt"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/cardroom/internal/deck"
	"github.com/lox/cardroom/internal/randutil"
)

// stubRules deals two cards per player and supports three actions: "pass"
// ends the turn, "fail" is always rejected and "finish" scores the round and
// ends the game.
type stubRules struct {
	deck       *deck.Deck
	setups     int
	failSetup  bool
	skipped    []TurnEndReason
	lastReason EndReason
}

func (r *stubRules) Setup(g *Game) error {
	r.setups++
	if r.deck == nil {
		r.deck = deck.NewStandard(g.Rand())
	}
	r.deck.Reset()
	for _, p := range g.ActivePlayers() {
		p.SetHand(r.deck.DrawMany(2))
	}
	if r.failSetup {
		return fmt.Errorf("setup failed")
	}
	return nil
}

func (r *stubRules) HandleAction(g *Game, p *Player, a Action) error {
	switch a.Type {
	case "pass":
		g.EndTurn(TurnEndAction)
		return nil
	case "finish":
		g.ScoreRound()
		g.End(EndCompleted)
		return nil
	default:
		return fmt.Errorf("cannot %s", a.Type)
	}
}

func (r *stubRules) ValidActions(g *Game, p *Player) []string {
	return []string{"pass", "fail", "finish"}
}

func (r *stubRules) SkipTurn(g *Game, p *Player, reason TurnEndReason) error {
	r.skipped = append(r.skipped, reason)
	g.EndTurn(reason)
	return nil
}

func (r *stubRules) CalculateScores(g *Game) {
	for _, p := range g.ActivePlayers() {
		p.AddRoundScore(Points(p.HandValue()))
	}
}

func (r *stubRules) OnGameEnd(g *Game, reason EndReason) []Ranking {
	r.lastReason = reason
	return RankAscending(g.Players())
}

func (r *stubRules) Snapshot(g *Game) map[string]any {
	return map[string]any{"deckCount": r.deck.DrawCount()}
}

type testGame struct {
	*Game
	rules    *stubRules
	clock    *quartz.Mock
	recorder *EventRecorder
	players  []*Player
}

// newTestGame seats n connected players; the first is host, everyone else is
// ready.
func newTestGame(t *testing.T, n int) *testGame {
	t.Helper()

	clock := quartz.NewMock(t)
	bus := NewEventBus()
	rec := &EventRecorder{}
	bus.Subscribe(rec)

	settings := DefaultSettings()
	settings.GameType = "stub"

	rules := &stubRules{}
	g := New(Config{
		RoomCode: "ABC234",
		Settings: settings,
		Rules:    rules,
		Rand:     randutil.New(42),
		Clock:    clock,
		Events:   bus,
		Logger:   log.NewWithOptions(io.Discard, log.Options{}),
	})

	tg := &testGame{Game: g, rules: rules, clock: clock, recorder: rec}
	for i := range n {
		p := NewPlayer(PlayerConfig{Name: fmt.Sprintf("p%d", i), ConnectionID: fmt.Sprintf("conn-%d", i)})
		if err := g.AddPlayer(p, false); err != nil {
			t.Fatalf("add player: %v", err)
		}
		if i > 0 {
			p.IsReady = true
		}
		tg.players = append(tg.players, p)
	}
	return tg
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.EventType()
	}
	return out
}
