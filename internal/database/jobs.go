package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const jobColumns = `id, source, status, processed, updated, created, skipped,
	metadata, error_message, started_at, completed_at`

// InsertJob records a job in the started state.
func (db *DB) InsertJob(ctx context.Context, id, source string, startedAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO sync_jobs (id, source, status, started_at) VALUES (?, ?, ?, ?)",
		id, source, JobStarted, formatTime(startedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting job %s: %w", id, err)
	}
	return nil
}

// UpdateJobStatus moves a non-terminal job to status.
func (db *DB) UpdateJobStatus(ctx context.Context, id string, status JobStatus) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE sync_jobs SET status = ? WHERE id = ? AND status IN ('started', 'running')",
		status, id,
	)
	return err
}

// UpdateJobProgress persists counters and metadata of a non-terminal job.
func (db *DB) UpdateJobProgress(ctx context.Context, id string, counts JobCounts, metadata map[string]any) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE sync_jobs SET processed = ?, updated = ?, created = ?, skipped = ?, metadata = ?
		WHERE id = ? AND status IN ('started', 'running')`,
		counts.Processed, counts.Updated, counts.Created, counts.Skipped, metadataArg(metadata), id,
	)
	return err
}

// FinishJob moves a job to a terminal status. Terminal rows are left unchanged.
func (db *DB) FinishJob(ctx context.Context, id string, status JobStatus, counts JobCounts,
	metadata map[string]any, errMsg *string, completedAt time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("finish job %s: %s is not a terminal status", id, status)
	}
	_, err := db.conn.ExecContext(ctx,
		`UPDATE sync_jobs SET status = ?, processed = ?, updated = ?, created = ?, skipped = ?,
			metadata = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND status IN ('started', 'running')`,
		status, counts.Processed, counts.Updated, counts.Created, counts.Skipped,
		metadataArg(metadata), errMsg, formatTime(completedAt), id,
	)
	if err != nil {
		return fmt.Errorf("finishing job %s: %w", id, err)
	}
	return nil
}

// ActiveJob returns the newest started or running job of source that began
// after since, or nil if there is none.
func (db *DB) ActiveJob(ctx context.Context, source string, since time.Time) (*SyncJob, error) {
	var job SyncJob
	err := db.conn.GetContext(ctx, &job,
		"SELECT "+jobColumns+` FROM sync_jobs
		WHERE source = ? AND status IN ('started', 'running') AND started_at > ?
		ORDER BY started_at DESC LIMIT 1`,
		source, formatTime(since),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// AbandonStaleJobs fails active jobs of source that began at or before cutoff.
func (db *DB) AbandonStaleJobs(ctx context.Context, source string, cutoff, now time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE sync_jobs SET status = 'failed', error_message = 'abandoned', completed_at = ?
		WHERE source = ? AND status IN ('started', 'running') AND started_at <= ?`,
		formatTime(now), source, formatTime(cutoff),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetJob returns a job by ID, or nil if not found.
func (db *DB) GetJob(ctx context.Context, id string) (*SyncJob, error) {
	var job SyncJob
	err := db.conn.GetContext(ctx, &job, "SELECT "+jobColumns+" FROM sync_jobs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns the most recent jobs, optionally for one source.
func (db *DB) ListJobs(ctx context.Context, source string, limit int) ([]SyncJob, error) {
	query := "SELECT " + jobColumns + " FROM sync_jobs"
	var args []any
	if source != "" {
		query += " WHERE source = ?"
		args = append(args, source)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	var jobs []SyncJob
	if err := db.conn.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}

// LatestJobs returns the most recent job of every source.
func (db *DB) LatestJobs(ctx context.Context) ([]SyncJob, error) {
	var jobs []SyncJob
	err := db.conn.SelectContext(ctx, &jobs,
		"SELECT "+jobColumns+` FROM sync_jobs j
		WHERE started_at = (SELECT MAX(started_at) FROM sync_jobs WHERE source = j.source)
		ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("listing latest jobs: %w", err)
	}
	return jobs, nil
}

func metadataArg(m map[string]any) any {
	if len(m) == 0 {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return string(data)
}
