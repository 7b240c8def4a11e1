package pipeline

import (
	"context"

	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/sources"
)

// PresidentialTerms tracks the names of every presidential candidate in the
// store in search and social sources.
func PresidentialTerms(db *database.DB) sources.TermsFunc {
	return func(ctx context.Context) ([]string, error) {
		candidates, err := db.ListCandidates(ctx, database.CandidateFilter{Office: database.OfficePresident})
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(candidates))
		for _, c := range candidates {
			names = append(names, c.FullName)
		}
		return names, nil
	}
}
