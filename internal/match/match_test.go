package match

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/sources"
)

func strptr(s string) *string { return &s }

func testSnapshot() *Snapshot {
	return NewSnapshot(
		[]database.Candidate{
			{ID: 1, FullName: "Ana Torres", PartyID: 10},
			{ID: 2, FullName: "Luis Alberto Paz Rojas", PartyID: 11},
			{ID: 3, FullName: "Rosa Quispe", PartyID: 10},
			{ID: 4, FullName: "Juan Li", PartyID: 11},
		},
		[]database.Party{
			{ID: 10, Name: "Fuerza X", ShortName: strptr("FX")},
			{ID: 11, Name: "Renovación Popular", ShortName: strptr("RP")},
			{ID: 12, Name: "Alianza para el Progreso", ShortName: strptr("APP")},
		},
	)
}

func TestMatchScenarioNegativeNews(t *testing.T) {
	m := New(Frozen(testSnapshot()))
	item := &sources.ContentItem{
		Title: "Ana Torres denunciada por colusión",
		Text:  "La fiscalía presentó una denuncia contra la candidata por presunta colusión en obras.",
	}

	results, err := m.Match(context.Background(), item)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, EntityCandidate, results[0].EntityType)
	assert.Equal(t, int64(1), results[0].EntityID)
	assert.Equal(t, int64(10), results[0].PartyID)
	assert.GreaterOrEqual(t, results[0].Relevance, 0.6)
	assert.InDelta(t, 0.8, results[0].Relevance, 1e-9)

	assert.Equal(t, database.SentimentNegative, Sentiment(item))
}

func TestMatchNameForms(t *testing.T) {
	m := New(Frozen(testSnapshot()))
	tests := []struct {
		name string
		text string
		want []int64
	}{
		{"full name with accents and case", "Entrevista a ANA TÓRRES hoy", []int64{1}},
		{"reversed pair", "Torres, Ana lidera la encuesta", []int64{1}},
		{"spanish short form", "Luis Paz visitó Arequipa", []int64{2}},
		{"surname pair", "Paz Rojas presentó su plan", []int64{2}},
		{"short full name", "Juan Li en el mercado", []int64{4}},
		{"partial token ignored", "Anatorres es un usuario", nil},
		{"hashtag before name", "Votaré por #Ana Torres", []int64{1}},
		{"compact hashtag", "Vamos #AnaTorres2026 no, #AnaTorres sí", []int64{1}},
		{"several candidates", "Rosa Quispe y Ana Torres debatieron", []int64{1, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := m.Match(context.Background(), &sources.ContentItem{Text: tt.text})
			require.NoError(t, err)
			var ids []int64
			for _, r := range results {
				ids = append(ids, r.EntityID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestCandidatePhrasesMinimumLength(t *testing.T) {
	assert.Equal(t, []string{"juan li", "#juanli"}, candidatePhrases("Juan Li"))
	phrases := candidatePhrases("Luis Alberto Paz Rojas")
	assert.Contains(t, phrases, "luis paz")
	assert.Contains(t, phrases, "paz rojas")
	assert.Contains(t, phrases, "rojas paz")
	assert.NotContains(t, phrases, "paz luis")
}

func TestMatchPartyFallback(t *testing.T) {
	m := New(Frozen(testSnapshot()))

	results, err := m.Match(context.Background(), &sources.ContentItem{
		Title: "Congreso",
		Text:  "La bancada de Renovacion Popular y APP votaron en contra",
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, EntityParty, r.EntityType)
	}

	results, _ = m.Match(context.Background(), &sources.ContentItem{Text: "El fx del dólar subió"})
	assert.Empty(t, results, "two-letter short names are not matched")

	results, _ = m.Match(context.Background(), &sources.ContentItem{Text: "Ana Torres de Fuerza X"})
	require.Len(t, results, 1)
	assert.Equal(t, EntityCandidate, results[0].EntityType)
}

func TestMatchBoundsAndOrdering(t *testing.T) {
	var candidates []database.Candidate
	names := []string{"Ana Torres", "Rosa Quispe", "Mario Vargas", "Elena Soto", "Pedro Castañeda"}
	for i, n := range names {
		candidates = append(candidates, database.Candidate{ID: int64(i + 1), FullName: n})
	}
	m := New(Frozen(NewSnapshot(candidates, nil)))

	item := &sources.ContentItem{
		Title: "Debate: Pedro Castañeda frente a Elena Soto",
		Text:  strings.Repeat("relleno ", 100) + "Ana Torres, Rosa Quispe y Mario Vargas también participaron.",
	}
	results, err := m.Match(context.Background(), item)
	require.NoError(t, err)
	require.Len(t, results, MaxResults)
	for i, r := range results {
		assert.GreaterOrEqual(t, r.Relevance, 0.0)
		assert.LessOrEqual(t, r.Relevance, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Relevance, r.Relevance)
		}
	}
	assert.Equal(t, int64(5), results[0].EntityID, "early title mention ranks first")
	assert.Equal(t, int64(4), results[1].EntityID)
}

func TestSentiment(t *testing.T) {
	assert.Equal(t, database.SentimentPositive, SentimentOf("La candidata presentó su propuesta y recibió respaldo"))
	assert.Equal(t, database.SentimentNegative, SentimentOf("Detenido por lavado de activos"))
	assert.Equal(t, database.SentimentMixed, SentimentOf("Investigado pero con respaldo"))
	assert.Equal(t, database.SentimentNeutral, SentimentOf("El clima de hoy en Lima"))
}

func TestCacheReloadsAfterTTL(t *testing.T) {
	loads := 0
	c := NewCache(func(context.Context) (*Snapshot, error) {
		loads++
		return testSnapshot(), nil
	}, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.Get(ctx)
	require.NoError(t, err)
	now = now.Add(time.Minute)
	_, _ = c.Get(ctx)
	assert.Equal(t, 1, loads, "exactly ttl old is still fresh")

	now = now.Add(time.Second)
	_, _ = c.Get(ctx)
	assert.Equal(t, 2, loads)

	c.Invalidate()
	_, _ = c.Get(ctx)
	assert.Equal(t, 3, loads)
}

func TestCacheFailsRatherThanServeExpiredSnapshot(t *testing.T) {
	fail := false
	c := NewCache(func(context.Context) (*Snapshot, error) {
		if fail {
			return nil, errors.New("database is locked")
		}
		return testSnapshot(), nil
	}, 5*time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.Get(ctx)
	require.NoError(t, err)

	fail = true
	now = now.Add(6 * time.Hour)
	snap, err := c.Get(ctx)
	require.Error(t, err)
	assert.Nil(t, snap)

	_, err = c.Get(ctx)
	require.Error(t, err, "a later call reloads again instead of reviving the old snapshot")

	fail = false
	snap, err = c.Get(ctx)
	require.NoError(t, err)
	assert.NotNil(t, snap)
}
