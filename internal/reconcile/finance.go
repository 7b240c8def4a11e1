package reconcile

import (
	"context"
	"fmt"

	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/logger"
	"github.com/TobiSchelling/electwatch/internal/sources"
)

// ReconcileFinance stores finance lines that are not yet present, linking
// them to a party and candidate when the names resolve. Lines whose
// organization matches no party are stored under their entity name.
func (r *Reconciler) ReconcileFinance(ctx context.Context, records []*sources.FinanceRecord) (*Result, error) {
	parties, err := r.db.ListParties(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading parties: %w", err)
	}
	people, err := r.loadPeople(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}
	source := string(sources.SourceFinance)

	result := &Result{}
	unresolved := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		in := database.FinanceInput{
			Source:      source,
			ExternalID:  rec.ExternalID,
			EntityName:  rec.EntityName,
			Period:      optional(rec.Period),
			Category:    rec.Category,
			Concept:     optional(rec.Concept),
			Amount:      rec.Amount,
			Currency:    rec.Currency,
			Contributor: optional(rec.Contributor),
			ReportedAt:  optional(rec.ReportedAt),
			SourceURL:   optional(rec.SourceURL),
		}
		if id, ok := resolveParty(parties, rec.EntityName); ok {
			in.PartyID = &id
		} else {
			unresolved++
		}
		if rec.CandidateName != "" {
			if ids := people.find("", rec.CandidateName); len(ids) > 0 {
				in.CandidateID = &ids[0]
			}
		}

		inserted, err := r.db.InsertFinanceRecord(ctx, in)
		if err != nil {
			result.fail(rec.ExternalID, err)
			continue
		}
		if inserted {
			result.Created++
		} else {
			result.Skipped++
		}
	}

	r.log.Info("Reconciled finance records",
		logger.Int("records", len(records)),
		logger.Int("created", result.Created),
		logger.Int("skipped", result.Skipped),
		logger.Int("unresolved_parties", unresolved),
		logger.Int("errors", len(result.Errors)),
	)
	return result, nil
}
