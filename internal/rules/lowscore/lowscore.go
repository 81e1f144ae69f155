// Package lowscore is the bundled reference card game. Each player holds four
// cards, two of them face up. On a turn a player draws from the deck or the
// discard pile, then either swaps the drawn card into their hand or, when it
// came from the deck, throws it away and turns one of their own cards face up.
// The first player to have every card face up ends the round once play comes
// back around to them; lowest total wins.
package lowscore

import (
	"encoding/json"
	"slices"

	rand "math/rand/v2"

	"github.com/go-playground/validator/v10"
	"github.com/lox/cardroom/internal/deck"
	"github.com/lox/cardroom/internal/errors"
	"github.com/lox/cardroom/internal/game"
)

// GameType is the registry identifier for this rule set.
const GameType = "lowscore"

// Action types.
const (
	ActionDrawFromDeck    = "draw_from_deck"
	ActionDrawFromDiscard = "draw_from_discard"
	ActionPlaceDrawnCard  = "place_drawn_card"
	ActionDiscardDrawn    = "discard_drawn"
	ActionRevealCard      = "reveal_card"
)

const (
	HandSize            = 4
	RevealedAtDeal      = 2
	DefaultRounds       = 3
	DefaultScoreCeiling = 100

	// Settings.Extras keys.
	ExtraRounds       = "rounds"
	ExtraScoreCeiling = "scoreCeiling"
)

// Distribution is the deck composition: 150 suitless cards from -2 to 12.
var Distribution = []deck.ValueCount{
	{Value: -2, Count: 5},
	{Value: -1, Count: 10},
	{Value: 0, Count: 15},
	{Value: 1, Count: 10},
	{Value: 2, Count: 10},
	{Value: 3, Count: 10},
	{Value: 4, Count: 10},
	{Value: 5, Count: 10},
	{Value: 6, Count: 10},
	{Value: 7, Count: 10},
	{Value: 8, Count: 10},
	{Value: 9, Count: 10},
	{Value: 10, Count: 10},
	{Value: 11, Count: 10},
	{Value: 12, Count: 10},
}

var validate = validator.New()

// turnPhase is where a player is within their own turn.
type turnPhase int

const (
	awaitingDraw turnPhase = iota
	holdingFromDeck
	holdingFromDiscard
	mustReveal
)

var phaseNames = map[turnPhase]string{
	awaitingDraw:       "draw",
	holdingFromDeck:    "holding_from_deck",
	holdingFromDiscard: "holding_from_discard",
	mustReveal:         "reveal",
}

func (t turnPhase) String() string { return phaseNames[t] }

// seat is the per-player turn state. drawn is set exactly when the phase is
// one of the holding phases.
type seat struct {
	phase turnPhase
	drawn *deck.Card
}

// Rules implements game.Rules.
type Rules struct {
	deck    *deck.Deck
	rounds  int
	ceiling int

	seats map[string]*seat
	// finisherID is the first player this round to have every card face up.
	finisherID string
	// owed holds players who still get a final turn after the finisher.
	owed map[string]bool
}

var _ game.Rules = (*Rules)(nil)

// New is the registry factory.
func New(settings game.Settings, rng *rand.Rand) (game.Rules, error) {
	rounds := settings.ExtraInt(ExtraRounds, DefaultRounds)
	if rounds < 1 {
		return nil, errors.New(errors.CodeInvalidSettings, "rounds must be at least 1")
	}
	ceiling := settings.ExtraInt(ExtraScoreCeiling, DefaultScoreCeiling)
	if ceiling < 1 {
		return nil, errors.New(errors.CodeInvalidSettings, "scoreCeiling must be positive")
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Rules{
		deck:    deck.NewCustom(rng, Distribution),
		rounds:  rounds,
		ceiling: ceiling,
		seats:   make(map[string]*seat),
	}, nil
}

// Deck exposes the card supply for inspection.
func (r *Rules) Deck() *deck.Deck {
	return r.deck
}

// FinisherID returns the current round's finisher, if any.
func (r *Rules) FinisherID() string {
	return r.finisherID
}

func (r *Rules) seat(playerID string) *seat {
	s, ok := r.seats[playerID]
	if !ok {
		s = &seat{}
		r.seats[playerID] = s
	}
	return s
}

// Setup deals HandSize cards to every seat, reveals the first RevealedAtDeal
// and flips one card onto the discard pile.
func (r *Rules) Setup(g *game.Game) error {
	r.deck.Reset()
	r.seats = make(map[string]*seat)
	r.finisherID = ""
	r.owed = nil

	for _, p := range g.ActivePlayers() {
		cards := r.deck.DrawMany(HandSize)
		if len(cards) < HandSize {
			return errors.New(errors.CodeActionFailed, "deck too small for this many players")
		}
		for _, c := range cards[:RevealedAtDeal] {
			c.Reveal()
		}
		p.SetHand(cards)
	}

	first, ok := r.deck.Draw()
	if !ok {
		return errors.New(errors.CodeActionFailed, "deck exhausted during deal")
	}
	return r.deck.Discard(first)
}

type positionData struct {
	Position *int `json:"position" validate:"required,min=0"`
}

func decodePosition(p *game.Player, raw json.RawMessage) (int, error) {
	var d positionData
	if len(raw) == 0 {
		return 0, errors.New(errors.CodeInvalidPayload, "position is required")
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return 0, errors.Wrap(errors.CodeInvalidPayload, "invalid action data", err)
	}
	if err := validate.Struct(d); err != nil {
		return 0, errors.Wrap(errors.CodeInvalidPayload, "position is required", err)
	}
	if *d.Position >= len(p.Hand) {
		return 0, errors.Newf(errors.CodeInvalidAction, "position %d is outside the hand", *d.Position)
	}
	return *d.Position, nil
}

// HandleAction applies one action. Every check happens before any state
// changes.
func (r *Rules) HandleAction(g *game.Game, p *game.Player, a game.Action) error {
	s := r.seat(p.ID)

	switch a.Type {
	case ActionDrawFromDeck:
		if s.phase != awaitingDraw {
			return errors.New(errors.CodeInvalidAction, "already drew this turn")
		}
		c, ok := r.deck.Draw()
		if !ok {
			return errors.New(errors.CodeInvalidAction, "deck is empty")
		}
		c.Reveal()
		r.hold(p, s, c, holdingFromDeck)
		return nil

	case ActionDrawFromDiscard:
		if s.phase != awaitingDraw {
			return errors.New(errors.CodeInvalidAction, "already drew this turn")
		}
		c, ok := r.deck.TakeFromDiscard()
		if !ok {
			return errors.New(errors.CodeInvalidAction, "discard pile is empty")
		}
		r.hold(p, s, c, holdingFromDiscard)
		return nil

	case ActionPlaceDrawnCard:
		if s.phase != holdingFromDeck && s.phase != holdingFromDiscard {
			return errors.New(errors.CodeInvalidAction, "no drawn card to place")
		}
		pos, err := decodePosition(p, a.Data)
		if err != nil {
			return err
		}
		drawn := r.release(s)
		drawn.Reveal()
		old, _ := p.ReplaceInHand(pos, drawn)
		if err := r.deck.Discard(old); err != nil {
			return err
		}
		r.finishTurn(g, p, game.TurnEndAction)
		return nil

	case ActionDiscardDrawn:
		if s.phase != holdingFromDeck {
			return errors.New(errors.CodeInvalidAction, "a card taken from the discard pile must be placed")
		}
		if err := r.deck.Discard(r.release(s)); err != nil {
			return err
		}
		if !slices.ContainsFunc(p.Hand, func(c *deck.Card) bool { return !c.Visible }) {
			// Nothing left to reveal.
			r.finishTurn(g, p, game.TurnEndAction)
			return nil
		}
		s.phase = mustReveal
		return nil

	case ActionRevealCard:
		if s.phase != mustReveal {
			return errors.New(errors.CodeInvalidAction, "nothing to reveal now")
		}
		pos, err := decodePosition(p, a.Data)
		if err != nil {
			return err
		}
		if p.Hand[pos].Visible {
			return errors.Newf(errors.CodeInvalidAction, "card %d is already face up", pos)
		}
		p.Hand[pos].Reveal()
		r.finishTurn(g, p, game.TurnEndAction)
		return nil
	}

	return errors.Newf(errors.CodeInvalidAction, "unknown action %q", a.Type)
}

// hold parks a drawn card in the deck's in-play zone while the player
// decides what to do with it.
func (r *Rules) hold(p *game.Player, s *seat, c *deck.Card, phase turnPhase) {
	// Cards come from this deck, so PutInPlay cannot fail.
	_ = r.deck.PutInPlay(c)
	p.Stats.CardsDrawn++
	s.phase = phase
	s.drawn = c
}

func (r *Rules) release(s *seat) *deck.Card {
	c := s.drawn
	r.deck.TakeFromInPlay(c.ID)
	s.drawn = nil
	s.phase = awaitingDraw
	return c
}

// ValidActions derives the allowed actions from the player's turn phase.
func (r *Rules) ValidActions(g *game.Game, p *game.Player) []string {
	switch r.seat(p.ID).phase {
	case holdingFromDeck:
		return []string{ActionPlaceDrawnCard, ActionDiscardDrawn}
	case holdingFromDiscard:
		return []string{ActionPlaceDrawnCard}
	case mustReveal:
		return []string{ActionRevealCard}
	default:
		var actions []string
		if r.deck.DrawCount()+r.deck.DiscardCount() > 0 {
			actions = append(actions, ActionDrawFromDeck)
		}
		if r.deck.TopDiscard() != nil {
			actions = append(actions, ActionDrawFromDiscard)
		}
		return actions
	}
}

// SkipTurn resolves an abandoned turn: a card drawn from the deck is
// discarded, a card taken from the discard pile goes back on top, a pending
// reveal turns up the first hidden card.
func (r *Rules) SkipTurn(g *game.Game, p *game.Player, reason game.TurnEndReason) error {
	s := r.seat(p.ID)

	switch s.phase {
	case holdingFromDeck, holdingFromDiscard:
		if err := r.deck.Discard(r.release(s)); err != nil {
			return err
		}
	case mustReveal:
		for _, c := range p.Hand {
			if !c.Visible {
				c.Reveal()
				break
			}
		}
		s.phase = awaitingDraw
	}

	r.finishTurn(g, p, reason)
	return nil
}

func (r *Rules) finishTurn(g *game.Game, p *game.Player, reason game.TurnEndReason) {
	r.seat(p.ID).phase = awaitingDraw

	switch {
	case r.finisherID == "" && p.HandRevealed():
		r.finisherID = p.ID
		r.owed = make(map[string]bool)
		for _, other := range g.ConnectedPlayers() {
			if other.ID != p.ID && !other.Forfeited {
				r.owed[other.ID] = true
			}
		}
	case r.finisherID != "":
		delete(r.owed, p.ID)
	}

	g.EndTurn(reason)

	if r.finisherID != "" && r.roundOver(g) {
		r.endRound(g)
	}
}

// roundOver reports whether play has come back around to the finisher, or
// every connected player who was owed a final turn has had it.
func (r *Rules) roundOver(g *game.Game) bool {
	if g.CurrentPlayerID() == r.finisherID {
		return true
	}
	for id := range r.owed {
		if p, ok := g.Player(id); ok && p.Connected() && !p.Forfeited {
			return false
		}
	}
	return true
}

func (r *Rules) endRound(g *game.Game) {
	g.ScoreRound()

	highest := 0
	for i, p := range g.ActivePlayers() {
		if i == 0 || p.Score > highest {
			highest = p.Score
		}
	}

	if g.RoundNumber() >= r.rounds || highest >= r.ceiling {
		g.End(game.EndCompleted)
		return
	}
	if err := g.StartNextRound(); err != nil {
		g.End(game.EndCancelled)
	}
}

// CalculateScores reveals every hand and records one round score per seat.
// The finisher's score is doubled, with the doubling recorded as a penalty,
// when it is positive and not strictly lower than every other connected seat.
// Forfeited seats get the no-score sentinel.
func (r *Rules) CalculateScores(g *game.Game) {
	scores := make(map[string]int)
	for _, p := range g.ActivePlayers() {
		for _, c := range p.Hand {
			c.Reveal()
		}
		scores[p.ID] = p.HandValue()
	}

	rivals := make(map[string]int)
	for _, p := range g.ConnectedPlayers() {
		if s, ok := scores[p.ID]; ok {
			rivals[p.ID] = s
		}
	}
	if s, ok := scores[r.finisherID]; ok {
		rivals[r.finisherID] = s
	}

	for _, p := range g.Players() {
		if p.Forfeited {
			p.AddRoundScore(game.NoScore())
			continue
		}

		score := scores[p.ID]
		if p.ID == r.finisherID && finisherPenalized(p.ID, rivals) {
			p.AddRoundScore(game.Detailed(score*2, score, 0))
			continue
		}
		p.AddRoundScore(game.Points(score))
	}
}

func finisherPenalized(finisherID string, scores map[string]int) bool {
	own := scores[finisherID]
	lowestOther, found := 0, false
	for id, s := range scores {
		if id == finisherID {
			continue
		}
		if !found || s < lowestOther {
			lowestOther, found = s, true
		}
	}
	return found && own >= lowestOther && own > 0
}

// OnGameEnd ranks players by total score, lowest first.
func (r *Rules) OnGameEnd(g *game.Game, reason game.EndReason) []game.Ranking {
	return game.RankAscending(g.Players())
}

// Snapshot exposes the public table state.
func (r *Rules) Snapshot(g *game.Game) map[string]any {
	data := map[string]any{
		"deckCount":    r.deck.DrawCount(),
		"discardCount": r.deck.DiscardCount(),
		"currentRound": g.RoundNumber(),
		"totalRounds":  r.rounds,
		"scoreCeiling": r.ceiling,
		"finisherId":   r.finisherID,
		"topDiscard":   nil,
		"drawnCard":    nil,
		"turnPhase":    awaitingDraw.String(),
	}
	if top := r.deck.TopDiscard(); top != nil {
		data["topDiscard"] = top.View()
	}
	if cur := g.CurrentPlayerID(); cur != "" {
		s := r.seat(cur)
		data["turnPhase"] = s.phase.String()
		if s.drawn != nil {
			data["drawnCard"] = s.drawn.View()
		}
	}
	return data
}
