package archive

import (
	"context"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/lox/cardroom/internal/game"
)

// DefaultQueueSize is the number of results buffered before new ones are
// dropped.
const DefaultQueueSize = 64

// Queue accepts finished games from rooms without blocking and saves them to
// a Store from a single worker.
type Queue struct {
	store   Store
	pending chan Record
	logger  *log.Logger
	dropped atomic.Int64
}

// NewQueue creates a queue in front of store. size <= 0 uses the default.
func NewQueue(store Store, size int, logger *log.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		store:   store,
		pending: make(chan Record, size),
		logger:  logger.WithPrefix("archive"),
	}
}

// Archive enqueues a result. It never blocks; when the buffer is full the
// record is dropped and logged.
func (q *Queue) Archive(result game.Result, players []game.PlayerState) {
	rec := NewRecord(result, players)
	select {
	case q.pending <- rec:
	default:
		q.dropped.Add(1)
		q.logger.Warn("Archive queue full, dropping game", "game", rec.GameID, "room", rec.RoomCode)
	}
}

// Dropped returns how many records were discarded because the queue was full.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Run saves queued records until ctx is cancelled, then flushes whatever is
// still buffered.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-q.pending:
			q.save(ctx, rec)
		case <-ctx.Done():
			q.flush(context.WithoutCancel(ctx))
			return nil
		}
	}
}

func (q *Queue) flush(ctx context.Context) {
	for {
		select {
		case rec := <-q.pending:
			q.save(ctx, rec)
		default:
			return
		}
	}
}

func (q *Queue) save(ctx context.Context, rec Record) {
	if err := q.store.Save(ctx, rec); err != nil {
		q.logger.Error("Failed to archive game", "game", rec.GameID, "error", err)
		return
	}
	q.logger.Debug("Archived game", "game", rec.GameID, "room", rec.RoomCode, "reason", rec.EndReason)
}
