package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const queueColumns = `id, source_type, source_id, priority, status, attempts, last_error,
	created_at, updated_at, processed_at`

// EnqueueAnalysis adds a mention to the analysis queue. Returns false if it
// was already queued.
func (db *DB) EnqueueAnalysis(ctx context.Context, sourceType MentionType, sourceID int64, priority int) (bool, error) {
	now := formatTime(time.Now())
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO ai_analysis_queue (source_type, source_id, priority, status, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', ?, ?)
		ON CONFLICT(source_type, source_id) DO NOTHING`,
		sourceType, sourceID, priority, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("enqueueing %s %d: %w", sourceType, sourceID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PendingQueueItems returns up to limit pending items with an ID above
// afterID and attempts below maxAttempts, in insertion order.
func (db *DB) PendingQueueItems(ctx context.Context, afterID int64, limit, maxAttempts int) ([]QueueItem, error) {
	var items []QueueItem
	err := db.conn.SelectContext(ctx, &items,
		"SELECT "+queueColumns+` FROM ai_analysis_queue
		WHERE status = 'pending' AND id > ? AND attempts < ?
		ORDER BY id LIMIT ?`,
		afterID, maxAttempts, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting pending queue items: %w", err)
	}
	return items, nil
}

// GetQueueItem returns a queue item by ID, or nil if not found.
func (db *DB) GetQueueItem(ctx context.Context, id int64) (*QueueItem, error) {
	var item QueueItem
	err := db.conn.GetContext(ctx, &item, "SELECT "+queueColumns+" FROM ai_analysis_queue WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ClaimQueueItem moves a pending item to processing and counts the attempt.
// Returns false if another worker got there first.
func (db *DB) ClaimQueueItem(ctx context.Context, id int64) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE ai_analysis_queue SET status = 'processing', attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status = 'pending'`,
		formatTime(time.Now()), id,
	)
	if err != nil {
		return false, fmt.Errorf("claiming queue item %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CompleteQueueItem marks an item as completed.
func (db *DB) CompleteQueueItem(ctx context.Context, id int64) error {
	now := formatTime(time.Now())
	_, err := db.conn.ExecContext(ctx,
		`UPDATE ai_analysis_queue SET status = 'completed', last_error = NULL, updated_at = ?, processed_at = ?
		WHERE id = ?`,
		now, now, id,
	)
	return err
}

// ReleaseQueueItem records a failed attempt. The item returns to pending
// unless final is set, in which case it is failed for good.
func (db *DB) ReleaseQueueItem(ctx context.Context, id int64, errMsg string, final bool) error {
	status := QueuePending
	if final {
		status = QueueFailed
	}
	_, err := db.conn.ExecContext(ctx,
		"UPDATE ai_analysis_queue SET status = ?, last_error = ?, updated_at = ? WHERE id = ?",
		status, errMsg, formatTime(time.Now()), id,
	)
	return err
}

// RecoverStaleQueueItems returns processing items untouched since cutoff to
// pending, or to failed when they have no attempts left.
func (db *DB) RecoverStaleQueueItems(ctx context.Context, cutoff time.Time, maxAttempts int) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE ai_analysis_queue
		SET status = CASE WHEN attempts >= ? THEN 'failed' ELSE 'pending' END,
			last_error = COALESCE(last_error, 'abandoned while processing'),
			updated_at = ?
		WHERE status = 'processing' AND updated_at <= ?`,
		maxAttempts, formatTime(time.Now()), formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("recovering stale queue items: %w", err)
	}
	return result.RowsAffected()
}

// RetryFailedQueueItems re-opens failed items that still have attempts left.
func (db *DB) RetryFailedQueueItems(ctx context.Context, maxAttempts int) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE ai_analysis_queue SET status = 'pending', updated_at = ?
		WHERE status = 'failed' AND attempts < ?`,
		formatTime(time.Now()), maxAttempts,
	)
	if err != nil {
		return 0, fmt.Errorf("retrying failed queue items: %w", err)
	}
	return result.RowsAffected()
}

// GetQueueStats counts queue items per status.
func (db *DB) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	var s QueueStats
	err := db.conn.GetContext(ctx, &s,
		`SELECT
			COALESCE(SUM(status = 'pending'), 0) AS pending,
			COALESCE(SUM(status = 'processing'), 0) AS processing,
			COALESCE(SUM(status = 'completed'), 0) AS completed,
			COALESCE(SUM(status = 'failed'), 0) AS failed
		FROM ai_analysis_queue`)
	if err != nil {
		return nil, fmt.Errorf("reading queue stats: %w", err)
	}
	return &s, nil
}

// ListQueueItems returns queue items in a status, newest first.
func (db *DB) ListQueueItems(ctx context.Context, status QueueStatus, limit int) ([]QueueItem, error) {
	var items []QueueItem
	err := db.conn.SelectContext(ctx, &items,
		"SELECT "+queueColumns+" FROM ai_analysis_queue WHERE status = ? ORDER BY id DESC LIMIT ?",
		status, limit,
	)
	return items, err
}
