package database

import (
	"context"
	"fmt"
	"time"
)

// FinanceInput carries the fields of a finance line to insert.
type FinanceInput struct {
	Source      string
	ExternalID  string
	PartyID     *int64
	CandidateID *int64
	EntityName  string
	Period      *string
	Category    string
	Concept     *string
	Amount      float64
	Currency    string
	Contributor *string
	ReportedAt  *string
	SourceURL   *string
}

// InsertFinanceRecord stores a finance line unless (source, external_id)
// is already present. Returns true if a row was inserted.
func (db *DB) InsertFinanceRecord(ctx context.Context, in FinanceInput) (bool, error) {
	currency := in.Currency
	if currency == "" {
		currency = "PEN"
	}
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO finance_records (source, external_id, party_id, candidate_id, entity_name,
			period, category, concept, amount, currency, contributor, reported_at, source_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, external_id) DO NOTHING`,
		in.Source, in.ExternalID, in.PartyID, in.CandidateID, in.EntityName,
		in.Period, in.Category, in.Concept, in.Amount, currency, in.Contributor,
		in.ReportedAt, in.SourceURL, formatTime(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("inserting finance record %s: %w", in.ExternalID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListFinanceRecords returns the finance lines of a party.
func (db *DB) ListFinanceRecords(ctx context.Context, partyID int64) ([]FinanceRecord, error) {
	var records []FinanceRecord
	err := db.conn.SelectContext(ctx, &records,
		`SELECT id, source, external_id, party_id, candidate_id, entity_name, period, category,
			concept, amount, currency, contributor, reported_at, source_url, created_at
		FROM finance_records WHERE party_id = ? ORDER BY reported_at DESC, id`,
		partyID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing finance records: %w", err)
	}
	return records, nil
}
