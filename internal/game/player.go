package game

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lox/cardroom/internal/deck"
)

// Stats are per-game counters for a player.
type Stats struct {
	CardsPlayed int           `json:"cardsPlayed"`
	CardsDrawn  int           `json:"cardsDrawn"`
	TurnsPlayed int           `json:"turnsPlayed"`
	TimeSpent   time.Duration `json:"-"`
	AFKCount    int           `json:"afkCount"`
}

// TimeSpentMs is the total time spent on turns in milliseconds.
func (s Stats) TimeSpentMs() int64 {
	return s.TimeSpent.Milliseconds()
}

// PlayerConfig describes a player joining a room.
type PlayerConfig struct {
	Name         string
	Avatar       string
	UserID       string
	Guest        bool
	ConnectionID string
}

// Player is a seated participant. It holds identity, session binding, room
// role and game state; it carries no rule-set specific data.
type Player struct {
	ID           string
	Name         string
	Avatar       string
	UserID       string
	Guest        bool
	ConnectionID string
	Status       ConnectionStatus

	IsHost    bool
	IsReady   bool
	TurnOrder int
	// Forfeited seats keep their place in the roster but never get a turn
	// again and cannot be reclaimed.
	Forfeited bool

	Hand        []*deck.Card
	Score       int
	RoundScores []RoundScore
	Stats       Stats

	turnStartedAt time.Time
	afkWarned     bool
}

// NewPlayer creates a connected player with a fresh identity.
func NewPlayer(cfg PlayerConfig) *Player {
	return &Player{
		ID:           uuid.NewString(),
		Name:         cfg.Name,
		Avatar:       cfg.Avatar,
		UserID:       cfg.UserID,
		Guest:        cfg.Guest || cfg.UserID == "",
		ConnectionID: cfg.ConnectionID,
		Status:       Connected,
	}
}

// Connected reports whether the player currently has a live session.
func (p *Player) Connected() bool {
	return p.Status == Connected
}

// SetStatus updates the connection status.
func (p *Player) SetStatus(status ConnectionStatus) {
	p.Status = status
}

// Rebind attaches a new connection to the player and marks them connected.
func (p *Player) Rebind(connectionID string) {
	p.ConnectionID = connectionID
	p.Status = Connected
}

// StartTurn records when the player's turn began.
func (p *Player) StartTurn(now time.Time) {
	p.turnStartedAt = now
	p.afkWarned = false
}

// EndTurn accumulates time spent and counts the turn. It is a no-op if no turn
// is in progress.
func (p *Player) EndTurn(now time.Time) {
	if !p.turnStartedAt.IsZero() {
		if d := now.Sub(p.turnStartedAt); d > 0 {
			p.Stats.TimeSpent += d
		}
		p.Stats.TurnsPlayed++
	}
	p.turnStartedAt = time.Time{}
	p.afkWarned = false
}

// InTurn reports whether a turn is in progress.
func (p *Player) InTurn() bool {
	return !p.turnStartedAt.IsZero()
}

// TurnStartedAt returns when the current turn began, or the zero time.
func (p *Player) TurnStartedAt() time.Time {
	return p.turnStartedAt
}

// MarkAFK counts an expired turn and returns the new count.
func (p *Player) MarkAFK() int {
	p.Stats.AFKCount++
	return p.Stats.AFKCount
}

// WarnAFK flags that the AFK warning was sent for this turn. It returns false
// if the warning had already been sent.
func (p *Player) WarnAFK() bool {
	if p.afkWarned {
		return false
	}
	p.afkWarned = true
	return true
}

// AFKWarned reports whether the warning was sent for this turn.
func (p *Player) AFKWarned() bool {
	return p.afkWarned
}

// SetHand replaces the hand without touching the draw counters.
func (p *Player) SetHand(cards []*deck.Card) {
	p.Hand = cards
}

// AddToHand appends a card and counts it as drawn.
func (p *Player) AddToHand(c *deck.Card) {
	p.Hand = append(p.Hand, c)
	p.Stats.CardsDrawn++
}

// RemoveFromHand removes a card by id and counts it as played.
func (p *Player) RemoveFromHand(cardID string) (*deck.Card, bool) {
	i := slices.IndexFunc(p.Hand, func(c *deck.Card) bool { return c.ID == cardID })
	if i < 0 {
		return nil, false
	}
	c := p.Hand[i]
	p.Hand = slices.Delete(p.Hand, i, i+1)
	p.Stats.CardsPlayed++
	return c, true
}

// ReplaceInHand swaps the card at position and returns the old one. The
// replaced card counts as played.
func (p *Player) ReplaceInHand(position int, c *deck.Card) (*deck.Card, bool) {
	if position < 0 || position >= len(p.Hand) {
		return nil, false
	}
	old := p.Hand[position]
	p.Hand[position] = c
	p.Stats.CardsPlayed++
	return old, true
}

// HandRevealed reports whether every card in the hand is face up.
func (p *Player) HandRevealed() bool {
	for _, c := range p.Hand {
		if !c.Visible {
			return false
		}
	}
	return len(p.Hand) > 0
}

// HandValue sums the values of every card in the hand.
func (p *Player) HandValue() int {
	total := 0
	for _, c := range p.Hand {
		total += c.Value
	}
	return total
}

// AddRoundScore appends to the round log and adds to the running total.
func (p *Player) AddRoundScore(r RoundScore) {
	p.RoundScores = append(p.RoundScores, r)
	p.Score += r.Value()
}

// RecalculateScore recomputes the total from the round log.
func (p *Player) RecalculateScore() {
	p.Score = TotalScore(p.RoundScores)
}

// ResetForNewGame clears hand, scores, stats and readiness.
func (p *Player) ResetForNewGame() {
	p.Hand = nil
	p.RoundScores = nil
	p.Score = 0
	p.IsReady = false
	p.Forfeited = false
	p.Stats = Stats{}
	p.turnStartedAt = time.Time{}
	p.afkWarned = false
}

// ResetForNewRound clears the hand but keeps cumulative score and stats.
func (p *Player) ResetForNewRound() {
	p.Hand = nil
	p.turnStartedAt = time.Time{}
	p.afkWarned = false
}

// PlayerView is the client-facing player snapshot. Hand cards use the card
// client view so hidden values never leave the server.
type PlayerView struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Avatar           string           `json:"avatar,omitempty"`
	Score            int              `json:"score"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
	IsHost           bool             `json:"isHost"`
	IsReady          bool             `json:"isReady"`
	TurnOrder        int              `json:"turnOrder"`
	Forfeited        bool             `json:"forfeited,omitempty"`
	Hand             []deck.View      `json:"hand"`
	RoundScores      []RoundScore     `json:"roundScores"`
}

// View returns the client snapshot of the player.
func (p *Player) View() PlayerView {
	return PlayerView{
		ID:               p.ID,
		Name:             p.Name,
		Avatar:           p.Avatar,
		Score:            p.Score,
		ConnectionStatus: p.Status,
		IsHost:           p.IsHost,
		IsReady:          p.IsReady,
		TurnOrder:        p.TurnOrder,
		Forfeited:        p.Forfeited,
		Hand:             deck.Views(p.Hand),
		RoundScores:      append(make([]RoundScore, 0, len(p.RoundScores)), p.RoundScores...),
	}
}

// PlayerState is the complete server-side player state.
type PlayerState struct {
	PlayerView
	UserID       string      `json:"userId,omitempty"`
	Guest        bool        `json:"isGuest"`
	ConnectionID string      `json:"connectionId"`
	FullHand     []deck.Full `json:"fullHand"`
	Stats        Stats       `json:"stats"`
	TimeSpentMs  int64       `json:"timeSpentMs"`
}

// FullState returns every field of the player, including hidden card values.
func (p *Player) FullState() PlayerState {
	full := make([]deck.Full, len(p.Hand))
	for i, c := range p.Hand {
		full[i] = c.Full()
	}
	return PlayerState{
		PlayerView:   p.View(),
		UserID:       p.UserID,
		Guest:        p.Guest,
		ConnectionID: p.ConnectionID,
		FullHand:     full,
		Stats:        p.Stats,
		TimeSpentMs:  p.Stats.TimeSpentMs(),
	}
}
