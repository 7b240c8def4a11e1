package match

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/normalize"
)

// DefaultTTL is how long a loaded entity set is reused.
const DefaultTTL = 5 * time.Minute

// minPartialLen is the shortest name fragment that counts as a mention.
const minPartialLen = 9

// minShortNameLen is the shortest party short name matched on its own.
const minShortNameLen = 3

// Entity is a candidate or party the matcher looks for.
type Entity struct {
	Type    string
	ID      int64
	Name    string
	PartyID int64
	// phrases are folded forms that count as a mention.
	phrases []string
}

// Snapshot is the entity set used for matching.
type Snapshot struct {
	Candidates []Entity
	Parties    []Entity
}

// NewSnapshot derives match phrases for the given candidates and parties.
func NewSnapshot(candidates []database.Candidate, parties []database.Party) *Snapshot {
	s := &Snapshot{
		Candidates: make([]Entity, 0, len(candidates)),
		Parties:    make([]Entity, 0, len(parties)),
	}
	for _, c := range candidates {
		s.Candidates = append(s.Candidates, Entity{
			Type:    EntityCandidate,
			ID:      c.ID,
			Name:    c.FullName,
			PartyID: c.PartyID,
			phrases: candidatePhrases(c.FullName),
		})
	}
	for _, p := range parties {
		phrases := []string{normalize.Fold(p.Name)}
		if p.ShortName != nil {
			if short := normalize.Fold(*p.ShortName); len(short) >= minShortNameLen && short != phrases[0] {
				phrases = append(phrases, short)
			}
		}
		s.Parties = append(s.Parties, Entity{Type: EntityParty, ID: p.ID, Name: p.Name, phrases: phrases})
	}
	return s
}

// candidatePhrases returns the full folded name, its hashtag form, the first
// given name with the paternal surname for names of four or more tokens, and
// every adjacent token pair in either order. Pairs shorter than minPartialLen
// are dropped.
func candidatePhrases(name string) []string {
	tokens := normalize.Tokens(name)
	if len(tokens) == 0 {
		return nil
	}
	full := normalize.Fold(name)
	phrases := []string{full}
	seen := map[string]bool{full: true}
	add := func(p string, minLen int) {
		if len(p) >= minLen && !seen[p] {
			seen[p] = true
			phrases = append(phrases, p)
		}
	}
	add("#"+strings.Join(tokens, ""), 0)
	if n := len(tokens); n >= 4 {
		add(tokens[0]+" "+tokens[n-2], 0)
	}
	for i := 0; i+1 < len(tokens); i++ {
		add(tokens[i]+" "+tokens[i+1], minPartialLen)
		add(tokens[i+1]+" "+tokens[i], minPartialLen)
	}
	return phrases
}

// Loader reads the current entity set.
type Loader func(ctx context.Context) (*Snapshot, error)

// StoreLoader loads every candidate and party from db.
func StoreLoader(db *database.DB) Loader {
	return func(ctx context.Context) (*Snapshot, error) {
		candidates, err := db.ListCandidates(ctx, database.CandidateFilter{})
		if err != nil {
			return nil, fmt.Errorf("loading candidates: %w", err)
		}
		parties, err := db.ListParties(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading parties: %w", err)
		}
		return NewSnapshot(candidates, parties), nil
	}
}

// Cache holds a Snapshot and reloads it once it is older than ttl.
type Cache struct {
	mu       sync.Mutex
	snap     *Snapshot
	loadedAt time.Time
	ttl      time.Duration
	now      func() time.Time
	loader   Loader
}

// NewCache creates a cache that loads lazily on first use.
func NewCache(loader Loader, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ttl: ttl, now: time.Now, loader: loader}
}

// Frozen returns a cache that always serves snap.
func Frozen(snap *Snapshot) *Cache {
	return &Cache{snap: snap, now: time.Now}
}

// Get returns the cached snapshot, reloading it when stale. A failed reload
// returns the loader error.
func (c *Cache) Get(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loader == nil {
		if c.snap == nil {
			return &Snapshot{}, nil
		}
		return c.snap, nil
	}
	now := c.now()
	if c.snap != nil && now.Sub(c.loadedAt) <= c.ttl {
		return c.snap, nil
	}
	snap, err := c.loader(ctx)
	if err != nil {
		// A snapshot past its ttl is never served.
		c.snap = nil
		return nil, err
	}
	c.snap, c.loadedAt = snap, now
	return snap, nil
}

// Invalidate forces a reload on the next Get.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loadedAt = time.Time{}
	if c.loader != nil {
		c.snap = nil
	}
	c.mu.Unlock()
}
