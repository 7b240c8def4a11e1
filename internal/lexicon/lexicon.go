// Package lexicon counts keyword stems in folded text with an Aho-Corasick
// automaton.
package lexicon

import (
	"sync"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/TobiSchelling/electwatch/internal/normalize"
)

// Lexicon is a fixed set of keywords. Safe for concurrent use.
type Lexicon struct {
	mu       sync.Mutex
	keywords []string
	matcher  *ahocorasick.Matcher
}

// New builds a lexicon. Keywords are folded the same way as the text they
// are matched against.
func New(keywords ...string) *Lexicon {
	folded := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if f := normalize.Fold(k); f != "" {
			folded = append(folded, f)
		}
	}
	return &Lexicon{
		keywords: folded,
		matcher:  ahocorasick.NewStringMatcher(folded),
	}
}

// Hits returns the distinct keywords that occur in folded text.
func (l *Lexicon) Hits(folded string) []string {
	if folded == "" || len(l.keywords) == 0 {
		return nil
	}
	// The matcher keeps per-search state.
	l.mu.Lock()
	idx := l.matcher.Match([]byte(folded))
	l.mu.Unlock()

	seen := make(map[int]bool, len(idx))
	hits := make([]string, 0, len(idx))
	for _, i := range idx {
		if i < 0 || i >= len(l.keywords) || seen[i] {
			continue
		}
		seen[i] = true
		hits = append(hits, l.keywords[i])
	}
	return hits
}

// Count returns the number of distinct keywords that occur in folded text.
func (l *Lexicon) Count(folded string) int {
	return len(l.Hits(folded))
}

// Len returns the number of keywords.
func (l *Lexicon) Len() int {
	return len(l.keywords)
}
