package game

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const noScoreMarker = "-"

type scoreKind uint8

const (
	scorePoints scoreKind = iota
	scoreNone
	scoreDetailed
)

// RoundScore is one entry in a player's per-round score log: a plain number,
// the "no score" sentinel, or a detailed score with penalty and bonus.
type RoundScore struct {
	kind    scoreKind
	Score   int
	Penalty int
	Bonus   int
}

// Points is a plain numeric round score.
func Points(n int) RoundScore {
	return RoundScore{kind: scorePoints, Score: n}
}

// NoScore is the sentinel for a round that does not count.
func NoScore() RoundScore {
	return RoundScore{kind: scoreNone}
}

// Detailed is a round score with its penalty and bonus broken out. Score is
// the value that counts toward the total.
func Detailed(score, penalty, bonus int) RoundScore {
	return RoundScore{kind: scoreDetailed, Score: score, Penalty: penalty, Bonus: bonus}
}

// Counts reports whether the entry contributes to the running total.
func (r RoundScore) Counts() bool {
	return r.kind != scoreNone
}

// Value is the entry's contribution to the running total.
func (r RoundScore) Value() int {
	if !r.Counts() {
		return 0
	}
	return r.Score
}

func (r RoundScore) String() string {
	switch r.kind {
	case scoreNone:
		return noScoreMarker
	case scoreDetailed:
		return fmt.Sprintf("%d (penalty %d, bonus %d)", r.Score, r.Penalty, r.Bonus)
	default:
		return fmt.Sprint(r.Score)
	}
}

type detailedJSON struct {
	Score   int `json:"score"`
	Penalty int `json:"penalty,omitempty"`
	Bonus   int `json:"bonus,omitempty"`
}

func (r RoundScore) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case scoreNone:
		return json.Marshal(noScoreMarker)
	case scoreDetailed:
		return json.Marshal(detailedJSON{Score: r.Score, Penalty: r.Penalty, Bonus: r.Bonus})
	default:
		return json.Marshal(r.Score)
	}
}

func (r *RoundScore) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty round score")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != noScoreMarker {
			return fmt.Errorf("invalid round score %q", s)
		}
		*r = NoScore()
	case '{':
		var d detailedJSON
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		*r = Detailed(d.Score, d.Penalty, d.Bonus)
	default:
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*r = Points(n)
	}
	return nil
}

// TotalScore reduces a score log the same way Player.AddRoundScore
// accumulates it.
func TotalScore(log []RoundScore) int {
	total := 0
	for _, r := range log {
		total += r.Value()
	}
	return total
}
