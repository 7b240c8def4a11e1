package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const candidateColumns = `id, slug, full_name, office, party_id, district_id, national_id,
	birth_date, photo_url, education, experience, trajectory, assets,
	penal_sentences, civil_sentences, is_verified, source, created_at, updated_at`

// CandidateFilter narrows ListCandidates. Zero values match everything.
type CandidateFilter struct {
	Office  Office
	PartyID int64
}

// ListCandidates returns candidates ordered by full name.
func (db *DB) ListCandidates(ctx context.Context, f CandidateFilter) ([]Candidate, error) {
	query := "SELECT " + candidateColumns + " FROM candidates WHERE 1=1"
	var args []any
	if f.Office != "" {
		query += " AND office = ?"
		args = append(args, f.Office)
	}
	if f.PartyID != 0 {
		query += " AND party_id = ?"
		args = append(args, f.PartyID)
	}
	query += " ORDER BY full_name"

	var candidates []Candidate
	if err := db.conn.SelectContext(ctx, &candidates, query, args...); err != nil {
		return nil, fmt.Errorf("listing candidates: %w", err)
	}
	return candidates, nil
}

// GetCandidate returns a candidate by ID, or nil if not found.
func (db *DB) GetCandidate(ctx context.Context, id int64) (*Candidate, error) {
	return db.getCandidate(ctx, "id = ?", id)
}

// GetCandidateBySlug returns a candidate by slug, or nil if not found.
func (db *DB) GetCandidateBySlug(ctx context.Context, slug string) (*Candidate, error) {
	return db.getCandidate(ctx, "slug = ?", slug)
}

func (db *DB) getCandidate(ctx context.Context, where string, arg any) (*Candidate, error) {
	var c Candidate
	err := db.conn.GetContext(ctx, &c, "SELECT "+candidateColumns+" FROM candidates WHERE "+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListSlugs returns every candidate slug in use.
func (db *DB) ListSlugs(ctx context.Context) ([]string, error) {
	var slugs []string
	if err := db.conn.SelectContext(ctx, &slugs, "SELECT slug FROM candidates"); err != nil {
		return nil, err
	}
	return slugs, nil
}

// CreateCandidate inserts a candidate and returns its ID.
func (db *DB) CreateCandidate(ctx context.Context, slug string, f CandidateFields) (int64, error) {
	now := formatTime(time.Now())
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO candidates (slug, full_name, office, party_id, district_id, national_id,
			birth_date, photo_url, education, experience, trajectory, assets,
			penal_sentences, civil_sentences, is_verified, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		slug, f.FullName, f.Office, f.PartyID, f.DistrictID, f.NationalID,
		f.BirthDate, f.PhotoURL, jsonArg(f.Education), jsonArg(f.Experience), jsonArg(f.Trajectory),
		assetsArg(f.Assets), jsonArg(f.PenalSentences), jsonArg(f.CivilSentences),
		f.IsVerified, f.Source, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("creating candidate %q: %w", f.FullName, err)
	}
	return result.LastInsertId()
}

// MergeCandidate applies f to an existing candidate. Absent incoming values
// keep what is stored; name, office and party always come from f.
func (db *DB) MergeCandidate(ctx context.Context, id int64, f CandidateFields) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE candidates SET
			full_name = ?,
			office = ?,
			party_id = ?,
			district_id = COALESCE(?, district_id),
			national_id = COALESCE(?, national_id),
			birth_date = COALESCE(?, birth_date),
			photo_url = COALESCE(?, photo_url),
			education = COALESCE(?, education),
			experience = COALESCE(?, experience),
			trajectory = COALESCE(?, trajectory),
			assets = COALESCE(?, assets),
			penal_sentences = COALESCE(?, penal_sentences),
			civil_sentences = COALESCE(?, civil_sentences),
			is_verified = MAX(is_verified, ?),
			source = ?,
			updated_at = ?
		WHERE id = ?`,
		f.FullName, f.Office, f.PartyID, f.DistrictID, f.NationalID,
		f.BirthDate, f.PhotoURL, jsonArg(f.Education), jsonArg(f.Experience), jsonArg(f.Trajectory),
		assetsArg(f.Assets), jsonArg(f.PenalSentences), jsonArg(f.CivilSentences),
		f.IsVerified, f.Source, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating candidate %d: %w", id, err)
	}
	return nil
}

func assetsArg(a *Assets) any {
	if a == nil {
		return nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil
	}
	return string(data)
}
