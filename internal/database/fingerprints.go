package database

import (
	"context"
	"fmt"
	"time"
)

// ListFingerprints returns the fingerprints of one entity type from one source.
func (db *DB) ListFingerprints(ctx context.Context, entityType, source string) ([]Fingerprint, error) {
	var fps []Fingerprint
	err := db.conn.SelectContext(ctx, &fps,
		`SELECT entity_type, entity_id, source, content_hash, last_checked_at, last_changed_at
		FROM change_fingerprints WHERE entity_type = ? AND source = ?`,
		entityType, source,
	)
	if err != nil {
		return nil, fmt.Errorf("listing fingerprints: %w", err)
	}
	return fps, nil
}

// UpsertFingerprint stores a new content hash and marks it changed at now.
func (db *DB) UpsertFingerprint(ctx context.Context, entityType string, entityID int64, source, hash string) error {
	now := formatTime(time.Now())
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO change_fingerprints
			(entity_type, entity_id, source, content_hash, last_checked_at, last_changed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id, source) DO UPDATE SET
			content_hash = excluded.content_hash,
			last_checked_at = excluded.last_checked_at,
			last_changed_at = excluded.last_changed_at`,
		entityType, entityID, source, hash, now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting fingerprint: %w", err)
	}
	return nil
}

// TouchFingerprint refreshes last_checked_at of an unchanged entity.
func (db *DB) TouchFingerprint(ctx context.Context, entityType string, entityID int64, source string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE change_fingerprints SET last_checked_at = ?
		WHERE entity_type = ? AND entity_id = ? AND source = ?`,
		formatTime(time.Now()), entityType, entityID, source,
	)
	return err
}
