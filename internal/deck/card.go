package deck

import (
	"cmp"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/google/uuid"
)

// Suit represents a card suit. Games without suits leave it empty.
type Suit string

const (
	NoSuit   Suit = ""
	Hearts   Suit = "hearts"
	Diamonds Suit = "diamonds"
	Clubs    Suit = "clubs"
	Spades   Suit = "spades"
	Special  Suit = "special"
)

// IsRed returns true if the suit is red (Hearts or Diamonds)
func (s Suit) IsRed() bool {
	return s == Hearts || s == Diamonds
}

// Config describes a card to construct.
type Config struct {
	Value    int
	Suit     Suit
	Visible  bool
	Metadata map[string]any
}

// Card is a single playable unit. Cards are always handled by pointer: a card
// keeps its identity while it moves between deck zones and hands.
type Card struct {
	ID       string
	Value    int
	Suit     Suit
	Visible  bool
	Playable bool
	Metadata map[string]any
}

// NewCard creates a face-down, playable card with a fresh identity.
func NewCard(cfg Config) *Card {
	md := cfg.Metadata
	if md == nil {
		md = make(map[string]any)
	}
	return &Card{
		ID:       uuid.NewString(),
		Value:    cfg.Value,
		Suit:     cfg.Suit,
		Visible:  cfg.Visible,
		Playable: true,
		Metadata: md,
	}
}

// Reveal turns the card face up.
func (c *Card) Reveal() {
	c.Visible = true
}

// Hide turns the card face down.
func (c *Card) Hide() {
	c.Visible = false
}

// SetPlayable marks whether the card can currently be played.
func (c *Card) SetPlayable(playable bool) {
	c.Playable = playable
}

// Clone copies value, suit, visibility and metadata under a new identity.
func (c *Card) Clone() *Card {
	clone := NewCard(Config{
		Value:    c.Value,
		Suit:     c.Suit,
		Visible:  c.Visible,
		Metadata: maps.Clone(c.Metadata),
	})
	clone.Playable = c.Playable
	return clone
}

// String returns a short description, hiding face-down cards.
func (c *Card) String() string {
	if !c.Visible {
		return "[?]"
	}
	if c.Suit == NoSuit {
		return fmt.Sprintf("[%d]", c.Value)
	}
	return fmt.Sprintf("[%d %s]", c.Value, c.Suit)
}

// View is the client-facing serialization. Value and suit are omitted while
// the card is face down.
type View struct {
	ID      string `json:"id"`
	Value   *int   `json:"value,omitempty"`
	Suit    Suit   `json:"suit,omitempty"`
	Visible bool   `json:"isVisible"`
}

// Full is the server-only serialization that always includes value and suit.
type Full struct {
	ID       string         `json:"id"`
	Value    int            `json:"value"`
	Suit     Suit           `json:"suit,omitempty"`
	Visible  bool           `json:"isVisible"`
	Playable bool           `json:"isPlayable"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// View returns the client view of the card.
func (c *Card) View() View {
	v := View{ID: c.ID, Visible: c.Visible}
	if c.Visible {
		value := c.Value
		v.Value = &value
		v.Suit = c.Suit
	}
	return v
}

// Full returns the complete state of the card.
func (c *Card) Full() Full {
	return Full{
		ID:       c.ID,
		Value:    c.Value,
		Suit:     c.Suit,
		Visible:  c.Visible,
		Playable: c.Playable,
		Metadata: maps.Clone(c.Metadata),
	}
}

// MarshalJSON encodes the client view so a card can never leak its value
// through a snapshot by accident.
func (c *Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.View())
}

// FromFull rebuilds a card from its full view, keeping the original identity.
func FromFull(f Full) *Card {
	md := maps.Clone(f.Metadata)
	if md == nil {
		md = make(map[string]any)
	}
	return &Card{
		ID:       f.ID,
		Value:    f.Value,
		Suit:     f.Suit,
		Visible:  f.Visible,
		Playable: f.Playable,
		Metadata: md,
	}
}

// Compare orders cards by value, then suit.
func Compare(a, b *Card) int {
	if c := cmp.Compare(a.Value, b.Value); c != 0 {
		return c
	}
	return cmp.Compare(a.Suit, b.Suit)
}

// Views converts a slice of cards to their client views.
func Views(cards []*Card) []View {
	views := make([]View, len(cards))
	for i, c := range cards {
		views[i] = c.View()
	}
	return views
}
