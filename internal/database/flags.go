package database

import (
	"context"
	"fmt"
	"time"
)

// FlagInput carries the fields of a flag to insert.
type FlagInput struct {
	CandidateID int64
	Type        string
	Severity    Severity
	Title       string
	Description string
	Source      string
	EvidenceURL string
	IsVerified  bool
}

// InsertFlag stores a flag unless an identical one exists.
// Returns true if a row was inserted.
func (db *DB) InsertFlag(ctx context.Context, f FlagInput) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO flags (candidate_id, type, severity, title, description, source,
			evidence_url, is_verified, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(candidate_id, type, source, evidence_url, title) DO NOTHING`,
		f.CandidateID, f.Type, f.Severity, f.Title, nullString(f.Description), f.Source,
		f.EvidenceURL, f.IsVerified, formatTime(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("inserting flag for candidate %d: %w", f.CandidateID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteFlags removes every flag of a candidate from one source.
// Only authoritative re-imports call this.
func (db *DB) DeleteFlags(ctx context.Context, candidateID int64, source string) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		"DELETE FROM flags WHERE candidate_id = ? AND source = ?",
		candidateID, source,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting %s flags of candidate %d: %w", source, candidateID, err)
	}
	return result.RowsAffected()
}

// ListFlags returns a candidate's flags, most severe first.
func (db *DB) ListFlags(ctx context.Context, candidateID int64) ([]Flag, error) {
	var flags []Flag
	err := db.conn.SelectContext(ctx, &flags,
		`SELECT id, candidate_id, type, severity, title, description, source, evidence_url,
			is_verified, captured_at
		FROM flags WHERE candidate_id = ?
		ORDER BY CASE severity WHEN 'RED' THEN 0 WHEN 'AMBER' THEN 1 ELSE 2 END, captured_at DESC`,
		candidateID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing flags: %w", err)
	}
	return flags, nil
}
