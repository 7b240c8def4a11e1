package enrich

import (
	"context"
	"time"

	"github.com/TobiSchelling/electwatch/internal/database"
)

// Queue is the persistent backlog of mentions awaiting analysis.
type Queue struct {
	db          *database.DB
	maxAttempts int
}

// NewQueue returns a queue that gives each item at most maxAttempts tries.
func NewQueue(db *database.DB, maxAttempts int) *Queue {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Queue{db: db, maxAttempts: maxAttempts}
}

// MaxAttempts returns the attempt cap.
func (q *Queue) MaxAttempts() int { return q.maxAttempts }

// Enqueue adds a mention. Enqueuing the same mention twice is a no-op that
// returns false.
func (q *Queue) Enqueue(ctx context.Context, sourceType database.MentionType, sourceID int64, priority int) (bool, error) {
	return q.db.EnqueueAnalysis(ctx, sourceType, sourceID, priority)
}

// DrainBatch returns up to n pending items with an ID above afterID, oldest
// first, skipping those that used up their attempts.
func (q *Queue) DrainBatch(ctx context.Context, afterID int64, n int) ([]database.QueueItem, error) {
	return q.db.PendingQueueItems(ctx, afterID, n, q.maxAttempts)
}

// RecoverStale returns items stuck in processing for longer than olderThan
// to pending.
func (q *Queue) RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return q.db.RecoverStaleQueueItems(ctx, time.Now().Add(-olderThan), q.maxAttempts)
}

// RetryFailed re-opens failed items that still have attempts left.
func (q *Queue) RetryFailed(ctx context.Context) (int64, error) {
	return q.db.RetryFailedQueueItems(ctx, q.maxAttempts)
}

// Stats counts items per status.
func (q *Queue) Stats(ctx context.Context) (*database.QueueStats, error) {
	return q.db.GetQueueStats(ctx)
}
