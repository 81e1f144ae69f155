// Package roomcode generates and validates the short public codes players use
// to find a room.
package roomcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Alphabet leaves out 0, O, 1 and I so codes survive being read aloud.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Length is the number of characters in a code.
const Length = 6

// RandSource interface for dependency injection of randomness
type RandSource interface {
	IntN(n int) int
}

// Generator produces codes from a RandSource, or crypto/rand when none is set.
type Generator struct {
	randSource RandSource
}

// NewGenerator creates a new generator with optional RandSource
func NewGenerator(randSource RandSource) *Generator {
	return &Generator{randSource: randSource}
}

// Generate returns a random code. It does not check for collisions.
func (g *Generator) Generate() string {
	var b strings.Builder
	b.Grow(Length)
	for range Length {
		b.WriteByte(Alphabet[g.intn(len(Alphabet))])
	}
	return b.String()
}

// Unique samples codes until taken reports one as free. Each attempt is
// independent, so codes are spread evenly over the unused space.
func (g *Generator) Unique(taken func(code string) bool) string {
	for {
		if code := g.Generate(); !taken(code) {
			return code
		}
	}
}

func (g *Generator) intn(n int) int {
	if g.randSource != nil {
		return g.randSource.IntN(n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("failed to generate random code: " + err.Error())
	}
	return int(v.Int64())
}

// Normalize trims and upper-cases a user-supplied code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks a normalized code is Length characters from Alphabet.
func Validate(code string) error {
	if len(code) != Length {
		return fmt.Errorf("room code must be exactly %d characters, got %d", Length, len(code))
	}
	for i, char := range code {
		if !strings.ContainsRune(Alphabet, char) {
			return fmt.Errorf("invalid character %c at position %d", char, i)
		}
	}
	return nil
}
