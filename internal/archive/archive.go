// Package archive stores finished games. Rooms hand results to a Queue, which
// writes them to a Store off the room's critical path.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/lox/cardroom/internal/game"
)

// Record is one archived game.
type Record struct {
	GameID     string              `json:"gameId"`
	RoomCode   string              `json:"roomCode"`
	GameType   string              `json:"gameType"`
	WinnerID   string              `json:"winnerId,omitempty"`
	EndReason  game.EndReason      `json:"endReason"`
	Rounds     int                 `json:"rounds"`
	StartedAt  time.Time           `json:"startedAt"`
	EndedAt    time.Time           `json:"endedAt"`
	DurationMs int64               `json:"durationMs"`
	Rankings   []game.Ranking      `json:"rankings"`
	Players    []game.PlayerState  `json:"players"`
	Actions    []game.ActionRecord `json:"actions"`
}

// NewRecord flattens a game result and the final player states.
func NewRecord(result game.Result, players []game.PlayerState) Record {
	return Record{
		GameID:     result.GameID,
		RoomCode:   result.RoomCode,
		GameType:   result.GameType,
		WinnerID:   result.WinnerID,
		EndReason:  result.EndReason,
		Rounds:     result.Rounds,
		StartedAt:  result.StartedAt,
		EndedAt:    result.EndedAt,
		DurationMs: result.DurationMs(),
		Rankings:   result.Rankings,
		Players:    players,
		Actions:    result.Actions,
	}
}

// Winner returns the ranking of the winning player, if there is one.
func (r Record) Winner() (game.Ranking, bool) {
	for _, rk := range r.Rankings {
		if rk.PlayerID == r.WinnerID {
			return rk, true
		}
	}
	return game.Ranking{}, false
}

// Store persists records.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
)

// Open returns the store for a driver. For sqlite, path is the database
// file; for file, a directory.
func Open(driver, path string) (Store, error) {
	switch driver {
	case DriverSQLite:
		return NewSQLiteStore(path)
	case DriverFile:
		return NewFileStore(path)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", driver)
	}
}
