// Package game implements the turn-based session engine shared by every card
// game the server hosts.
//
// The main type is Game, which binds a Roster of players to a Rules
// implementation and owns turn, host and lifecycle bookkeeping. Concrete card
// games implement Rules and are selected by a game-type identifier through a
// Registry.
//
// # Basic Usage
//
//	registry := game.NewRegistry()
//	registry.Register("lowscore", lowscore.New)
//
//	roster := game.NewRoster()
//	roster.Add(game.NewPlayer(game.PlayerConfig{Name: "Alice"}), true)
//	roster.Add(game.NewPlayer(game.PlayerConfig{Name: "Bob"}), false)
//
//	rules, _ := registry.New("lowscore", settings, rng)
//	g := game.New(game.Config{Roster: roster, Settings: settings, Rules: rules, Rand: rng})
//	if err := g.Start(); err != nil {
//	    // not enough players, someone not ready...
//	}
//	err := g.Apply(g.CurrentPlayerID(), game.Action{Type: "draw_from_deck"})
//
// # Concurrency
//
// Game and Roster are not safe for concurrent use. The room layer serialises
// every mutation of a room, including timer callbacks, so rule sets never see
// interleaved partial updates.
//
// # Deterministic Testing
//
// Shuffles and first-player selection draw from the injected *rand.Rand and
// timestamps come from the injected quartz.Clock, so a fixed seed and a mock
// clock reproduce a game exactly.
package game
