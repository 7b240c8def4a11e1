package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/TobiSchelling/electwatch/internal/normalize"
)

// ListParties returns all parties ordered by name.
func (db *DB) ListParties(ctx context.Context) ([]Party, error) {
	var parties []Party
	err := db.conn.SelectContext(ctx, &parties,
		`SELECT id, name, short_name, slug, color, created_at, updated_at
		FROM parties ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing parties: %w", err)
	}
	return parties, nil
}

// GetPartyBySlug returns a party, or nil if none has the slug.
func (db *DB) GetPartyBySlug(ctx context.Context, slug string) (*Party, error) {
	var p Party
	err := db.conn.GetContext(ctx, &p,
		`SELECT id, name, short_name, slug, color, created_at, updated_at
		FROM parties WHERE slug = ?`, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertParty inserts a party or refreshes short name and color of an
// existing party with the same name. Returns the party ID.
func (db *DB) UpsertParty(ctx context.Context, name string, shortName, color *string) (int64, error) {
	now := formatTime(time.Now())
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO parties (name, short_name, slug, color, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			short_name = COALESCE(excluded.short_name, parties.short_name),
			color = COALESCE(excluded.color, parties.color),
			updated_at = excluded.updated_at`,
		name, shortName, normalize.Slug(name), color, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("upserting party %q: %w", name, err)
	}
	var id int64
	if err := db.conn.GetContext(ctx, &id, "SELECT id FROM parties WHERE name = ?", name); err != nil {
		return 0, err
	}
	return id, nil
}

// ListDistricts returns all districts ordered by name.
func (db *DB) ListDistricts(ctx context.Context) ([]District, error) {
	var districts []District
	if err := db.conn.SelectContext(ctx, &districts, "SELECT id, name, slug FROM districts ORDER BY name"); err != nil {
		return nil, fmt.Errorf("listing districts: %w", err)
	}
	return districts, nil
}

// EnsureDistrict returns the ID of the district with the given name,
// creating it on first sight.
func (db *DB) EnsureDistrict(ctx context.Context, name string) (int64, error) {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO districts (name, slug) VALUES (?, ?) ON CONFLICT(name) DO NOTHING",
		name, normalize.Slug(name),
	)
	if err != nil {
		return 0, fmt.Errorf("creating district %q: %w", name, err)
	}
	var id int64
	if err := db.conn.GetContext(ctx, &id, "SELECT id FROM districts WHERE name = ?", name); err != nil {
		return 0, err
	}
	return id, nil
}
