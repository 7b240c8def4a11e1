package reconcile

import (
	"context"
	"fmt"

	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/logger"
	"github.com/TobiSchelling/electwatch/internal/normalize"
	"github.com/TobiSchelling/electwatch/internal/sources"
)

// personIndex finds every candidacy of a person regardless of office.
type personIndex struct {
	byNationalID map[string][]int64
	byName       map[string][]candidacy
}

type candidacy struct {
	id         int64
	nationalID string
}

func (r *Reconciler) loadPeople(ctx context.Context) (*personIndex, error) {
	candidates, err := r.db.ListCandidates(ctx, database.CandidateFilter{})
	if err != nil {
		return nil, err
	}
	p := &personIndex{
		byNationalID: make(map[string][]int64),
		byName:       make(map[string][]candidacy, len(candidates)),
	}
	for _, c := range candidates {
		var nid string
		if c.NationalID != nil {
			nid = *c.NationalID
		}
		if nid != "" {
			p.byNationalID[nid] = append(p.byNationalID[nid], c.ID)
		}
		name := normalize.Fold(c.FullName)
		p.byName[name] = append(p.byName[name], candidacy{id: c.ID, nationalID: nid})
	}
	return p, nil
}

// find returns the candidacies a ruling refers to. A name-only match is
// ambiguous when the candidacies carry different national IDs.
func (p *personIndex) find(nationalID, name string) ([]int64, error) {
	if nationalID != "" {
		if ids := p.byNationalID[nationalID]; len(ids) > 0 {
			return ids, nil
		}
	}
	matches := p.byName[normalize.Fold(name)]
	ids := make([]int64, 0, len(matches))
	person := ""
	for _, m := range matches {
		if m.nationalID != "" {
			if person != "" && person != m.nationalID {
				return nil, ErrAmbiguousCandidate
			}
			person = m.nationalID
		}
		ids = append(ids, m.id)
	}
	return ids, nil
}

// ReconcileSentences turns judiciary rulings into verified flags on the
// matching candidates. Rulings about people who are not candidates are
// skipped. With replace set, each matched candidate's previous judiciary
// flags are deleted before the batch's flags are inserted.
func (r *Reconciler) ReconcileSentences(ctx context.Context, records []*sources.SentenceRecord, replace bool) (*Result, error) {
	people, err := r.loadPeople(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}
	source := string(sources.SourceJudiciary)

	result := &Result{}
	cleared := make(map[int64]bool)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		ids, err := people.find(rec.NationalID, rec.CandidateName)
		if err != nil {
			result.fail(rec.CaseNumber, err)
			continue
		}
		if len(ids) == 0 {
			result.Skipped++
			continue
		}

		sentence := database.Sentence{
			CaseNumber: rec.CaseNumber,
			Court:      rec.Court,
			Offense:    rec.Offense,
			Ruling:     rec.Ruling,
			Date:       rec.Date,
			Status:     rec.Status,
		}
		for _, id := range ids {
			if replace && !cleared[id] {
				n, err := r.db.DeleteFlags(ctx, id, source)
				if err != nil {
					result.fail(rec.CaseNumber, err)
					continue
				}
				cleared[id] = true
				if n > 0 {
					r.log.Debug("Replaced judiciary flags", logger.Int64("candidate_id", id), logger.Int64("deleted", n))
				}
			}
			inserted, err := r.db.InsertFlag(ctx, sentenceFlag(id, rec.Kind, sentence, source, rec.URL))
			if err != nil {
				result.fail(rec.CaseNumber, err)
				continue
			}
			if inserted {
				result.Created++
			} else {
				result.Skipped++
			}
		}
	}

	r.log.Info("Reconciled judiciary records",
		logger.Int("records", len(records)),
		logger.Int("flags_created", result.Created),
		logger.Int("skipped", result.Skipped),
		logger.Int("errors", len(result.Errors)),
		logger.Bool("replace", replace),
	)
	return result, nil
}
