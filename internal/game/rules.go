package game

import (
	"encoding/json"
	"slices"
	"sort"
	"sync"
	"time"

	rand "math/rand/v2"

	"github.com/lox/cardroom/internal/errors"
)

// Action is one player move. Data is decoded by the rule set.
type Action struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ActionRecord is an entry in a game's append-only action log.
type ActionRecord struct {
	ID        string          `json:"id"`
	GameID    string          `json:"gameId"`
	PlayerID  string          `json:"playerId"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Round     int             `json:"round"`
	Turn      int             `json:"turn"`
	Timestamp time.Time       `json:"timestamp"`
}

// Rules is the extension point a concrete card game implements. The engine
// owns turn, host and roster bookkeeping; a rule set only applies domain
// actions and scoring. All methods run inside the room's serialised
// execution context.
type Rules interface {
	// Setup deals a round. It runs at game start and again at the start of
	// every later round, after players have been reset.
	Setup(g *Game) error

	// HandleAction applies one action for the current player. It must be
	// all-or-nothing: either the action is fully applied and nil is
	// returned, or no state changes and an error is returned. The engine has
	// already checked that it is the player's turn and that the action type
	// is in ValidActions. Rule sets end the turn with Game.EndTurn.
	HandleAction(g *Game, p *Player, a Action) error

	// ValidActions lists the action types the player may submit now. The
	// engine only asks for the current player of a PLAYING game.
	ValidActions(g *Game, p *Player) []string

	// SkipTurn resolves the current player's turn without their input,
	// after a timeout or a disconnect. It must leave the game consistent and
	// end the turn with the given reason.
	SkipTurn(g *Game, p *Player, reason TurnEndReason) error

	// CalculateScores applies one round's scoring to the players.
	CalculateScores(g *Game)

	// OnGameEnd finalises rankings for the result.
	OnGameEnd(g *Game, reason EndReason) []Ranking

	// Snapshot returns rule-set state that is safe to show every client.
	Snapshot(g *Game) map[string]any
}

// Factory builds a fresh Rules instance for one game.
type Factory func(settings Settings, rng *rand.Rand) (Rules, error)

// Registry maps game-type identifiers to rule-set factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces a rule set.
func (r *Registry) Register(gameType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[gameType] = f
}

// Has reports whether a game type is registered.
func (r *Registry) Has(gameType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[gameType]
	return ok
}

// Types returns the registered game types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// New builds rules for a game type.
func (r *Registry) New(gameType string, settings Settings, rng *rand.Rand) (Rules, error) {
	r.mu.RLock()
	f, ok := r.factories[gameType]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.CodeUnknownGameType, "unknown game type %q", gameType)
	}
	return f(settings, rng)
}

// Ranking is one player's final placing.
type Ranking struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Rank     int    `json:"rank"`
	Score    int    `json:"score"`
	Stats    Stats  `json:"stats"`
}

// RankAscending ranks players by score, lowest first, numbering from 1.
// Forfeited players are placed after everyone who finished. Ties keep join
// order.
func RankAscending(players []*Player) []Ranking {
	sorted := slices.Clone(players)
	slices.SortStableFunc(sorted, func(a, b *Player) int {
		if a.Forfeited != b.Forfeited {
			if a.Forfeited {
				return 1
			}
			return -1
		}
		return a.Score - b.Score
	})

	out := make([]Ranking, len(sorted))
	for i, p := range sorted {
		out[i] = Ranking{
			PlayerID: p.ID,
			Name:     p.Name,
			Rank:     i + 1,
			Score:    p.Score,
			Stats:    p.Stats,
		}
	}
	return out
}
