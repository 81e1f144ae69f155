package archive

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/cardroom/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleResult(id string, ended time.Duration) (game.Result, []game.PlayerState) {
	result := game.Result{
		GameID:    id,
		RoomCode:  "ABCDEF",
		GameType:  "lowscore",
		WinnerID:  "p1",
		EndReason: game.EndCompleted,
		Rounds:    3,
		StartedAt: epoch,
		EndedAt:   epoch.Add(ended),
		Duration:  ended,
		Rankings: []game.Ranking{
			{PlayerID: "p1", Name: "ann", Rank: 1, Score: 12},
			{PlayerID: "p2", Name: "bob", Rank: 2, Score: 30},
		},
		Actions: []game.ActionRecord{
			{ID: "a1", GameID: id, PlayerID: "p1", Type: "draw_from_deck", Round: 1, Turn: 1, Timestamp: epoch},
		},
	}
	players := []game.PlayerState{
		{PlayerView: game.PlayerView{ID: "p1", Name: "ann", Score: 12}},
		{PlayerView: game.PlayerView{ID: "p2", Name: "bob", Score: 30}},
	}
	return result, players
}

func testStores(t *testing.T) map[string]Store {
	t.Helper()

	db, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	files, err := NewFileStore(filepath.Join(t.TempDir(), "games"))
	require.NoError(t, err)

	return map[string]Store{"sqlite": db, "file": files}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, id := range []string{"g1", "g2", "g3"} {
				result, players := sampleResult(id, time.Duration(i+1)*time.Minute)
				require.NoError(t, store.Save(ctx, NewRecord(result, players)))
			}

			recent, err := store.Recent(ctx, 2)
			require.NoError(t, err)
			require.Len(t, recent, 2)
			assert.Equal(t, "g3", recent[0].GameID)
			assert.Equal(t, "g2", recent[1].GameID)

			rec := recent[0]
			assert.Equal(t, "ABCDEF", rec.RoomCode)
			assert.Equal(t, game.EndCompleted, rec.EndReason)
			assert.Equal(t, 3, rec.Rounds)
			assert.Equal(t, int64(3*time.Minute/time.Millisecond), rec.DurationMs)
			assert.True(t, rec.StartedAt.Equal(epoch))
			assert.True(t, rec.EndedAt.Equal(epoch.Add(3*time.Minute)))
			require.Len(t, rec.Players, 2)
			assert.Equal(t, "bob", rec.Players[1].Name)
			require.Len(t, rec.Actions, 1)
			assert.Equal(t, "draw_from_deck", rec.Actions[0].Type)

			winner, ok := rec.Winner()
			require.True(t, ok)
			assert.Equal(t, "ann", winner.Name)
		})
	}
}

func TestStoreReplacesSameGame(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			result, players := sampleResult("g1", time.Minute)
			require.NoError(t, store.Save(ctx, NewRecord(result, players)))

			result.EndReason = game.EndCancelled
			require.NoError(t, store.Save(ctx, NewRecord(result, players)))

			recent, err := store.Recent(ctx, 10)
			require.NoError(t, err)
			require.Len(t, recent, 1)
			assert.Equal(t, game.EndCancelled, recent[0].EndReason)
		})
	}
}

type memoryStore struct {
	mu    sync.Mutex
	saved []Record
	fail  bool
}

func (s *memoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("disk full")
	}
	s.saved = append(s.saved, rec)
	return nil
}

func (s *memoryStore) Recent(context.Context, int) ([]Record, error) { return nil, nil }
func (s *memoryStore) Close() error                                  { return nil }

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func TestQueueSavesInBackground(t *testing.T) {
	store := &memoryStore{}
	q := NewQueue(store, 8, log.NewWithOptions(io.Discard, log.Options{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	for _, id := range []string{"g1", "g2"} {
		q.Archive(sampleResult(id, time.Minute))
	}
	require.Eventually(t, func() bool { return store.count() == 2 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestQueueFlushesOnShutdown(t *testing.T) {
	store := &memoryStore{}
	q := NewQueue(store, 8, log.NewWithOptions(io.Discard, log.Options{}))

	for _, id := range []string{"g1", "g2", "g3"} {
		q.Archive(sampleResult(id, time.Minute))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, q.Run(ctx))
	assert.Equal(t, 3, store.count())
}

func TestQueueDropsWhenFull(t *testing.T) {
	store := &memoryStore{}
	q := NewQueue(store, 1, log.NewWithOptions(io.Discard, log.Options{}))

	q.Archive(sampleResult("g1", time.Minute))
	q.Archive(sampleResult("g2", time.Minute))
	assert.Equal(t, int64(1), q.Dropped())
}

func TestQueueSurvivesStoreErrors(t *testing.T) {
	store := &memoryStore{fail: true}
	q := NewQueue(store, 4, log.NewWithOptions(io.Discard, log.Options{}))
	q.Archive(sampleResult("g1", time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, q.Run(ctx))
	assert.Zero(t, store.count())
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(DriverSQLite, filepath.Join(dir, "games.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	store, err = Open(DriverFile, filepath.Join(dir, "games"))
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	_, err = Open("mongo", dir)
	assert.ErrorContains(t, err, `unknown archive driver "mongo"`)
}
