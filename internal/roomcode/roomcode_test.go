package roomcode

import (
	"testing"

	"github.com/lox/cardroom/internal/randutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequence replays fixed indexes into the alphabet.
type sequence struct {
	values []int
	next   int
}

func (s *sequence) IntN(n int) int {
	v := s.values[s.next%len(s.values)] % n
	s.next++
	return v
}

func TestGenerate(t *testing.T) {
	code := NewGenerator(nil).Generate()
	assert.Len(t, code, Length)
	assert.NoError(t, Validate(code))
}

func TestGenerateDeterministic(t *testing.T) {
	a := NewGenerator(randutil.NewLocked(randutil.New(9))).Generate()
	b := NewGenerator(randutil.NewLocked(randutil.New(9))).Generate()
	assert.Equal(t, a, b)
}

func TestUniqueRejectsTakenCodes(t *testing.T) {
	// First draw is AAAAAA, second is BBBBBB.
	seq := &sequence{values: []int{0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1}}
	gen := NewGenerator(seq)

	taken := map[string]bool{"AAAAAA": true}
	code := gen.Unique(func(c string) bool { return taken[c] })
	assert.Equal(t, "BBBBBB", code)
}

func TestUniqueNeverRepeatsLiveCodes(t *testing.T) {
	gen := NewGenerator(randutil.NewLocked(randutil.New(3)))
	seen := make(map[string]bool)
	for range 500 {
		code := gen.Unique(func(c string) bool { return seen[c] })
		require.False(t, seen[code])
		seen[code] = true
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ABC234", Normalize("  abc234 "))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		{"valid", "ABC234", false},
		{"too short", "ABC23", true},
		{"too long", "ABC2345", true},
		{"ambiguous zero", "ABC230", true},
		{"ambiguous letter O", "ABCO23", true},
		{"lower case", "abc234", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.code)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
