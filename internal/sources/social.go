package sources

import (
	"context"
	"math"
	"strings"

	"github.com/TobiSchelling/electwatch/internal/lexicon"
	"github.com/TobiSchelling/electwatch/internal/normalize"
)

// domainKeywords are election vocabulary stems that raise a post's relevance.
var domainKeywords = lexicon.New(
	"elecciones", "electoral", "candidat", "congreso", "senado", "diputad",
	"jne", "onpe", "debate", "voto", "campana", "presidencial", "plancha",
	"encuesta", "mitin", "segunda vuelta",
)

const (
	relevanceBase        = 0.2
	relevanceNameBonus   = 0.3
	relevanceEngageMax   = 0.3
	relevanceKeywordStep = 0.05
	relevanceKeywordMax  = 0.2
)

// Engagement holds the public counters of a post.
type Engagement struct {
	Likes    int64
	Comments int64
	Shares   int64
	Views    int64
}

// SocialRelevance scores a post in [0,1]: a base score, a bonus when a tracked
// name or hashtag occurs, a log-scaled engagement bonus, and a bonus per
// election keyword.
func SocialRelevance(text string, hashtags, terms []string, e Engagement) float64 {
	folded := normalize.Fold(text + " " + strings.Join(hashtags, " "))

	score := relevanceBase
	if mentionsTerm(folded, hashtags, terms) {
		score += relevanceNameBonus
	}

	weighted := float64(max(e.Likes, 0)) + 2*float64(max(e.Comments, 0)) +
		3*float64(max(e.Shares, 0)) + float64(max(e.Views, 0))/100
	score += math.Min(relevanceEngageMax, math.Log10(1+weighted)/10)

	score += math.Min(relevanceKeywordMax, relevanceKeywordStep*float64(domainKeywords.Count(folded)))

	return math.Max(0, math.Min(1, score))
}

func mentionsTerm(folded string, hashtags, terms []string) bool {
	tags := make(map[string]bool, len(hashtags))
	for _, h := range hashtags {
		tags[compact(h)] = true
	}
	for _, term := range terms {
		f := normalize.Fold(term)
		if f == "" {
			continue
		}
		if normalize.ContainsPhrase(folded, f) || tags[compact(term)] {
			return true
		}
	}
	return false
}

// compact folds a name or hashtag to letters and digits only, so
// "#AnaTorres" and "Ana Torres" compare equal.
func compact(s string) string {
	return strings.NewReplacer(" ", "", "#", "", "@", "").Replace(normalize.Fold(s))
}

// TermsFunc returns names tracked by search and social sources.
type TermsFunc func(ctx context.Context) ([]string, error)

// trackedTerms merges configured terms with dynamic ones, dropping
// duplicates by folded form.
func trackedTerms(ctx context.Context, configured []string, dynamic TermsFunc) ([]string, error) {
	terms := append([]string(nil), configured...)
	if dynamic != nil {
		more, err := dynamic(ctx)
		if err != nil {
			return nil, err
		}
		terms = append(terms, more...)
	}

	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		key := normalize.Fold(t)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(t))
	}
	return out, nil
}
