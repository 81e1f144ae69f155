package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lox/cardroom/internal/game"
	_ "modernc.org/sqlite"
)

// timeLayout has fixed width so ended_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS game_history (
	game_id     TEXT PRIMARY KEY,
	room_code   TEXT NOT NULL,
	game_type   TEXT NOT NULL,
	winner_id   TEXT NOT NULL DEFAULT '',
	end_reason  TEXT NOT NULL,
	rounds      INTEGER NOT NULL,
	started_at  TEXT NOT NULL,
	ended_at    TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	rankings    TEXT NOT NULL,
	players     TEXT NOT NULL,
	actions     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS game_history_ended_at ON game_history (ended_at);
`

// SQLiteStore keeps records in a game_history table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path. Use
// ":memory:" for a throwaway store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// A single writer avoids SQLITE_BUSY and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save inserts a record. Saving the same game twice replaces the row.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	rankings, err := json.Marshal(rec.Rankings)
	if err != nil {
		return fmt.Errorf("failed to encode rankings: %w", err)
	}
	players, err := json.Marshal(rec.Players)
	if err != nil {
		return fmt.Errorf("failed to encode players: %w", err)
	}
	actions, err := json.Marshal(rec.Actions)
	if err != nil {
		return fmt.Errorf("failed to encode actions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO game_history
			(game_id, room_code, game_type, winner_id, end_reason, rounds,
			 started_at, ended_at, duration_ms, rankings, players, actions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.GameID, rec.RoomCode, rec.GameType, rec.WinnerID, string(rec.EndReason), rec.Rounds,
		rec.StartedAt.UTC().Format(timeLayout), rec.EndedAt.UTC().Format(timeLayout),
		rec.DurationMs, string(rankings), string(players), string(actions),
	)
	if err != nil {
		return fmt.Errorf("failed to save game %s: %w", rec.GameID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT game_id, room_code, game_type, winner_id, end_reason, rounds,
		       started_at, ended_at, duration_ms, rankings, players, actions
		FROM game_history
		ORDER BY ended_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec                              Record
			reason, started, ended           string
			rankings, players, actionsColumn string
		)
		if err := rows.Scan(&rec.GameID, &rec.RoomCode, &rec.GameType, &rec.WinnerID, &reason, &rec.Rounds,
			&started, &ended, &rec.DurationMs, &rankings, &players, &actionsColumn); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		rec.EndReason = game.EndReason(reason)
		if rec.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("game %s: bad started_at: %w", rec.GameID, err)
		}
		if rec.EndedAt, err = time.Parse(timeLayout, ended); err != nil {
			return nil, fmt.Errorf("game %s: bad ended_at: %w", rec.GameID, err)
		}
		if err := json.Unmarshal([]byte(rankings), &rec.Rankings); err != nil {
			return nil, fmt.Errorf("game %s: bad rankings: %w", rec.GameID, err)
		}
		if err := json.Unmarshal([]byte(players), &rec.Players); err != nil {
			return nil, fmt.Errorf("game %s: bad players: %w", rec.GameID, err)
		}
		if err := json.Unmarshal([]byte(actionsColumn), &rec.Actions); err != nil {
			return nil, fmt.Errorf("game %s: bad actions: %w", rec.GameID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
