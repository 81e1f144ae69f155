package deck

import (
	"fmt"
	"slices"

	rand "math/rand/v2"
)

// DefaultShufflePasses is how many Fisher-Yates passes Shuffle performs when
// asked for zero or fewer.
const DefaultShufflePasses = 3

// ValueCount describes how many copies of a value a custom deck contains.
type ValueCount struct {
	Value int
	Count int
}

// Deck is a card supply with three zones: the draw pile (front is drawn
// next), the discard pile (last element is the top) and an unordered in-play
// set. Cards are created once at construction and afterwards only move
// between zones and the hands of players.
type Deck struct {
	draw    []*Card
	discard []*Card
	inPlay  []*Card
	all     []*Card
	owned   map[string]*Card
	rng     *rand.Rand
}

// New creates a deck from card configs. Every card starts face down unless
// its config says otherwise.
func New(rng *rand.Rand, configs []Config, shuffle bool) *Deck {
	d := &Deck{
		draw:  make([]*Card, 0, len(configs)),
		all:   make([]*Card, 0, len(configs)),
		owned: make(map[string]*Card, len(configs)),
		rng:   rng,
	}
	for _, cfg := range configs {
		c := NewCard(cfg)
		d.draw = append(d.draw, c)
		d.all = append(d.all, c)
		d.owned[c.ID] = c
	}
	if shuffle {
		d.Shuffle(DefaultShufflePasses)
	}
	return d
}

// NewStandard creates a shuffled 52-card deck with values 1 (ace) to 13.
func NewStandard(rng *rand.Rand) *Deck {
	configs := make([]Config, 0, 52)
	for _, suit := range []Suit{Hearts, Diamonds, Clubs, Spades} {
		for value := 1; value <= 13; value++ {
			configs = append(configs, Config{Value: value, Suit: suit})
		}
	}
	return New(rng, configs, true)
}

// NewCustom creates a shuffled suitless deck with repeated values.
func NewCustom(rng *rand.Rand, counts []ValueCount) *Deck {
	var configs []Config
	for _, vc := range counts {
		for range vc.Count {
			configs = append(configs, Config{Value: vc.Value})
		}
	}
	return New(rng, configs, true)
}

// Shuffle permutes the draw pile in place. A single Fisher-Yates pass is
// already uniform; extra passes only diffuse construction order.
func (d *Deck) Shuffle(passes int) {
	if passes <= 0 {
		passes = DefaultShufflePasses
	}
	for range passes {
		for i := len(d.draw) - 1; i > 0; i-- {
			j := d.rng.IntN(i + 1)
			d.draw[i], d.draw[j] = d.draw[j], d.draw[i]
		}
	}
}

// Draw removes and returns the front of the draw pile, reshuffling the
// discard pile first when the draw pile is empty. It returns false only when
// both piles are empty.
func (d *Deck) Draw() (*Card, bool) {
	if len(d.draw) == 0 {
		d.ReshuffleDiscard()
	}
	if len(d.draw) == 0 && len(d.discard) > 0 {
		// Only the kept top card is left; it has to be drawn too.
		top := d.discard[len(d.discard)-1]
		d.discard = d.discard[:len(d.discard)-1]
		top.Hide()
		d.draw = append(d.draw, top)
	}
	if len(d.draw) == 0 {
		return nil, false
	}

	card := d.draw[0]
	d.draw = d.draw[1:]
	return card, true
}

// DrawMany draws up to n cards, stopping early if the deck runs out.
func (d *Deck) DrawMany(n int) []*Card {
	cards := make([]*Card, 0, n)
	for range n {
		c, ok := d.Draw()
		if !ok {
			break
		}
		cards = append(cards, c)
	}
	return cards
}

// Discard reveals the card and places it on top of the discard pile.
func (d *Deck) Discard(c *Card) error {
	if err := d.checkOwned(c); err != nil {
		return err
	}
	c.Reveal()
	d.discard = append(d.discard, c)
	return nil
}

// TakeFromDiscard removes and returns the top of the discard pile.
func (d *Deck) TakeFromDiscard() (*Card, bool) {
	if len(d.discard) == 0 {
		return nil, false
	}
	top := d.discard[len(d.discard)-1]
	d.discard = d.discard[:len(d.discard)-1]
	return top, true
}

// TopDiscard returns the top of the discard pile without removing it.
func (d *Deck) TopDiscard() *Card {
	if len(d.discard) == 0 {
		return nil
	}
	return d.discard[len(d.discard)-1]
}

// ReshuffleDiscard keeps the top discard face up as the new discard pile and
// shuffles the rest, face down, back into the draw pile.
func (d *Deck) ReshuffleDiscard() {
	if len(d.discard) == 0 {
		return
	}

	top := d.discard[len(d.discard)-1]
	rest := d.discard[:len(d.discard)-1]
	for _, c := range rest {
		c.Hide()
	}

	d.draw = append(slices.Clone(rest), d.draw...)
	d.discard = []*Card{top}
	d.Shuffle(DefaultShufflePasses)
}

// PutInPlay moves a card into the in-play set.
func (d *Deck) PutInPlay(c *Card) error {
	if err := d.checkOwned(c); err != nil {
		return err
	}
	d.inPlay = append(d.inPlay, c)
	return nil
}

// TakeFromInPlay removes a card from the in-play set by id.
func (d *Deck) TakeFromInPlay(id string) (*Card, bool) {
	for i, c := range d.inPlay {
		if c.ID == id {
			d.inPlay = slices.Delete(d.inPlay, i, i+1)
			return c, true
		}
	}
	return nil, false
}

// InPlay returns a copy of the in-play set.
func (d *Deck) InPlay() []*Card {
	return slices.Clone(d.inPlay)
}

// Reset reclaims every card the deck ever constructed into the draw pile,
// face down, and shuffles. Cards held in hands are reclaimed too, so callers
// must drop their hand references before dealing again.
func (d *Deck) Reset() {
	d.draw = d.draw[:0]
	d.draw = append(d.draw, d.all...)
	d.discard = nil
	d.inPlay = nil
	for _, c := range d.draw {
		c.Hide()
		c.SetPlayable(true)
	}
	d.Shuffle(DefaultShufflePasses)
}

// Owns reports whether the card was constructed by this deck.
func (d *Deck) Owns(c *Card) bool {
	return c != nil && d.owned[c.ID] == c
}

// DrawCount returns the number of cards in the draw pile.
func (d *Deck) DrawCount() int {
	return len(d.draw)
}

// DiscardCount returns the number of cards in the discard pile.
func (d *Deck) DiscardCount() int {
	return len(d.discard)
}

// InPlayCount returns the number of cards in play.
func (d *Deck) InPlayCount() int {
	return len(d.inPlay)
}

// Total returns the number of cards the deck was built with.
func (d *Deck) Total() int {
	return len(d.all)
}

// State is a full, server-only dump of the three zones.
type State struct {
	DrawPile    []Full `json:"drawPile"`
	DiscardPile []Full `json:"discardPile"`
	InPlay      []Full `json:"inPlay"`
}

// State returns the full contents of every zone.
func (d *Deck) State() State {
	full := func(cards []*Card) []Full {
		out := make([]Full, len(cards))
		for i, c := range cards {
			out[i] = c.Full()
		}
		return out
	}
	return State{
		DrawPile:    full(d.draw),
		DiscardPile: full(d.discard),
		InPlay:      full(d.inPlay),
	}
}

func (d *Deck) checkOwned(c *Card) error {
	if !d.Owns(c) {
		if c == nil {
			return fmt.Errorf("deck: nil card")
		}
		return fmt.Errorf("deck: card %s does not belong to this deck", c.ID)
	}
	return nil
}
