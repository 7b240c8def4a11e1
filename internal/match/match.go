// Package match links news and social content to the candidates and parties
// it mentions, and gives each item a lexicon-based sentiment.
package match

import (
	"context"
	"sort"
	"strings"

	"github.com/TobiSchelling/electwatch/internal/normalize"
	"github.com/TobiSchelling/electwatch/internal/sources"
)

const (
	EntityCandidate = "candidate"
	EntityParty     = "party"
)

const (
	// MaxResults is the most entities returned per item.
	MaxResults = 3

	baseRelevance  = 0.5
	titleBonus     = 0.2
	earlyBonus     = 0.1
	excerptBonus   = 0.1
	excerptRunes   = 500
	earlyTitlePart = 3
)

// Result is one entity mentioned by an item.
type Result struct {
	EntityType string
	EntityID   int64
	Name       string
	// PartyID is the candidate's party; zero for party results.
	PartyID   int64
	Relevance float64
}

// Matcher finds entity mentions using a cached entity set.
type Matcher struct {
	cache *Cache
}

// New creates a matcher over cache.
func New(cache *Cache) *Matcher {
	return &Matcher{cache: cache}
}

// Match returns up to MaxResults entities mentioned by item, most relevant
// first. Candidates are searched first; parties only when no candidate is
// mentioned.
func (m *Matcher) Match(ctx context.Context, item *sources.ContentItem) ([]Result, error) {
	snap, err := m.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	t := newTexts(item)

	results := t.find(snap.Candidates)
	if len(results) == 0 {
		results = t.find(snap.Parties)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		return results[i].EntityID < results[j].EntityID
	})
	if len(results) > MaxResults {
		results = results[:MaxResults]
	}
	return results, nil
}

// Invalidate drops the cached entity set, e.g. after a registry sync.
func (m *Matcher) Invalidate() {
	m.cache.Invalidate()
}

type texts struct {
	title   string
	all     string
	excerpt string
}

func newTexts(item *sources.ContentItem) texts {
	body := normalize.Fold(item.Text + " " + strings.Join(item.Hashtags, " "))
	title := normalize.Fold(item.Title)
	excerpt := body
	if r := []rune(body); len(r) > excerptRunes {
		excerpt = string(r[:excerptRunes])
	}
	return texts{
		title:   title,
		all:     strings.TrimSpace(title + " " + body),
		excerpt: excerpt,
	}
}

func (t texts) find(entities []Entity) []Result {
	var results []Result
	for _, e := range entities {
		if score, ok := t.score(e.phrases); ok {
			results = append(results, Result{
				EntityType: e.Type,
				EntityID:   e.ID,
				Name:       e.Name,
				PartyID:    e.PartyID,
				Relevance:  score,
			})
		}
	}
	return results
}

// score rates where the entity occurs: anywhere, in the title, early in the
// title, and in the body excerpt.
func (t texts) score(phrases []string) (float64, bool) {
	found := false
	titleIdx := -1
	inExcerpt := false
	for _, p := range phrases {
		if p == "" || !normalize.ContainsPhrase(t.all, p) {
			continue
		}
		found = true
		if i := normalize.PhraseIndex(t.title, p); i >= 0 && (titleIdx < 0 || i < titleIdx) {
			titleIdx = i
		}
		if normalize.ContainsPhrase(t.excerpt, p) {
			inExcerpt = true
		}
	}
	if !found {
		return 0, false
	}

	score := baseRelevance
	if titleIdx >= 0 {
		score += titleBonus
		if titleIdx < len(t.title)/earlyTitlePart {
			score += earlyBonus
		}
	}
	if inExcerpt {
		score += excerptBonus
	}
	return min(score, 1.0), true
}
