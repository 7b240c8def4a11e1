package enrich

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/electwatch/internal/database"
)

type mockProvider struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (m *mockProvider) Generate(_ context.Context, prompt string, _ int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	return m.reply, m.err
}

func (m *mockProvider) IsConfigured() bool { return true }

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedCandidate(t *testing.T, db *database.DB) int64 {
	t.Helper()
	ctx := context.Background()
	partyID, err := db.UpsertParty(ctx, "Fuerza X", nil, nil)
	require.NoError(t, err)
	id, err := db.CreateCandidate(ctx, "ana-torres", database.CandidateFields{
		FullName: "Ana Torres",
		Office:   database.OfficePresident,
		PartyID:  partyID,
		Source:   "registry",
	})
	require.NoError(t, err)
	return id
}

func seedNews(t *testing.T, db *database.DB, url string, candidateID *int64) int64 {
	t.Helper()
	body := "Ana Torres fue denunciada por colusión agravada en la fiscalía."
	published := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	id, err := db.InsertNewsMention(context.Background(), database.NewsInput{
		Source:      "El Diario",
		Title:       "Ana Torres denunciada por colusión",
		Body:        &body,
		URL:         url,
		PublishedAt: &published,
		CandidateID: candidateID,
		Relevance:   0.8,
		Sentiment:   database.SentimentNegative,
	})
	require.NoError(t, err)
	require.NotZero(t, id)
	return id
}

func newTestWorker(db *database.DB, p *mockProvider, maxAttempts int, opts Options) (*Worker, *Queue) {
	q := NewQueue(db, maxAttempts)
	if opts.Sleep == nil {
		opts.Sleep = func(context.Context, time.Duration) error { return nil }
	}
	return NewWorker(db, q, p, nil, opts), q
}

const legalReply = "```json\n" + `{
	"sentiment": "negative",
	"sentimentScore": -0.7,
	"relevance": 0.9,
	"summary": "La candidata enfrenta una denuncia.",
	"entities": {"candidates": ["Ana Torres"], "parties": [], "topics": ["corrupción"], "locations": ["Lima"]},
	"flags": [
		{"type": "LEGAL_ISSUE", "severity": "RED", "reason": "Denuncia por colusión"},
		{"type": "criminal", "severity": "RED", "reason": "Mismo hecho"}
	],
	"keyPhrases": ["colusión"],
	"isElectionRelated": true
}` + "\n```"

func TestWorkerAnalyzesAndRaisesFlagOnce(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	candidateID := seedCandidate(t, db)
	mentionID := seedNews(t, db, "https://diario.example/ana", &candidateID)

	p := &mockProvider{reply: legalReply}
	w, q := newTestWorker(db, p, 3, Options{})
	added, err := q.Enqueue(ctx, database.MentionNews, mentionID, 5)
	require.NoError(t, err)
	require.True(t, added)

	res, err := w.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempted)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 1, res.FlagsCreated)
	require.Len(t, p.prompts, 1)
	assert.Contains(t, p.prompts[0], "Title: Ana Torres denunciada por colusión")
	assert.Contains(t, p.prompts[0], "Date: 2026-03-01")

	m, err := db.GetNewsMention(ctx, mentionID)
	require.NoError(t, err)
	assert.Equal(t, database.SentimentNegative, m.Sentiment)
	assert.InDelta(t, 0.9, m.Relevance, 1e-9)
	require.NotNil(t, m.Summary)
	assert.Equal(t, "La candidata enfrenta una denuncia.", *m.Summary)
	assert.NotNil(t, m.AnalyzedAt)

	flags, err := db.ListFlags(ctx, candidateID)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, database.FlagPenalSentence, flags[0].Type)
	assert.Equal(t, database.SeverityRed, flags[0].Severity)
	assert.Equal(t, FlagSource, flags[0].Source)
	assert.Equal(t, "https://diario.example/ana", flags[0].EvidenceURL)
	assert.False(t, flags[0].IsVerified)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)

	again, err := q.Enqueue(ctx, database.MentionNews, mentionID, 5)
	require.NoError(t, err)
	assert.False(t, again)
}

func TestWorkerSkipsFlagsWithoutCandidate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	mentionID, err := db.InsertSocialMention(ctx, database.SocialInput{
		Platform: "x",
		PostID:   "1",
		Text:     "Ana Torres denunciada",
		URL:      "https://x.com/diario/status/1",
	})
	require.NoError(t, err)

	p := &mockProvider{reply: legalReply}
	w, q := newTestWorker(db, p, 3, Options{})
	_, err = q.Enqueue(ctx, database.MentionSocial, mentionID, 5)
	require.NoError(t, err)

	res, err := w.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)
	assert.Zero(t, res.FlagsCreated)
	assert.Contains(t, p.prompts[0], "Source: x")

	m, err := db.GetSocialMention(ctx, mentionID)
	require.NoError(t, err)
	assert.Equal(t, database.SentimentNegative, m.Sentiment)
}

func TestWorkerCapsAttempts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	mentionID := seedNews(t, db, "https://diario.example/a", nil)

	p := &mockProvider{err: errors.New("connection refused")}
	w, q := newTestWorker(db, p, 2, Options{})
	_, err := q.Enqueue(ctx, database.MentionNews, mentionID, 5)
	require.NoError(t, err)

	res, err := w.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)
	assert.Zero(t, res.Failed)

	items, err := db.ListQueueItems(ctx, database.QueuePending, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Attempts)
	require.NotNil(t, items[0].LastError)
	assert.Equal(t, "connection refused", *items[0].LastError)

	res, err = w.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	items, err = db.ListQueueItems(ctx, database.QueueFailed, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Attempts)

	res, err = w.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Attempted)
	assert.Equal(t, 2, p.calls())

	reopened, err := q.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Zero(t, reopened)
}

func TestWorkerKeepsMatcherValuesForUnparsedReply(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	candidateID := seedCandidate(t, db)
	mentionID := seedNews(t, db, "https://diario.example/b", &candidateID)

	w, q := newTestWorker(db, &mockProvider{reply: "I cannot help with that."}, 3, Options{})
	_, err := q.Enqueue(ctx, database.MentionNews, mentionID, 5)
	require.NoError(t, err)

	res, err := w.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 1, res.Unparsed)

	m, err := db.GetNewsMention(ctx, mentionID)
	require.NoError(t, err)
	assert.Equal(t, database.SentimentNegative, m.Sentiment)
	assert.InDelta(t, 0.8, m.Relevance, 1e-9)
	assert.NotNil(t, m.AnalyzedAt)

	flags, err := db.ListFlags(ctx, candidateID)
	require.NoError(t, err)
	assert.Empty(t, flags)
}

func TestWorkerBoundsRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	p := &mockProvider{reply: `{"sentiment": "neutral"}`}
	sleeps := 0
	w, q := newTestWorker(db, p, 3, Options{
		BatchSize:  2,
		MaxItems:   3,
		BatchDelay: time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			assert.Equal(t, time.Second, d)
			sleeps++
			return nil
		},
	})
	for i := range 5 {
		id := seedNews(t, db, "https://diario.example/n"+string(rune('a'+i)), nil)
		_, err := q.Enqueue(ctx, database.MentionNews, id, 5)
		require.NoError(t, err)
	}

	res, err := w.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempted)
	assert.Equal(t, 3, res.Completed)
	assert.Equal(t, 3, p.calls())
	assert.Equal(t, 1, sleeps)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 3, stats.Completed)
}

func TestWorkerWithoutProvider(t *testing.T) {
	db := openTestDB(t)
	w := NewWorker(db, NewQueue(db, 3), nil, nil, Options{})
	_, err := w.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestQueueRecoverStaleAndRetryFailed(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	q := NewQueue(db, 3)
	first := seedNews(t, db, "https://diario.example/s1", nil)
	second := seedNews(t, db, "https://diario.example/s2", nil)
	_, err := q.Enqueue(ctx, database.MentionNews, first, 5)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, database.MentionNews, second, 5)
	require.NoError(t, err)

	items, err := q.DrainBatch(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)

	claimed, err := db.ClaimQueueItem(ctx, items[0].ID)
	require.NoError(t, err)
	require.True(t, claimed)

	rest, err := q.DrainBatch(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, items[1].ID, rest[0].ID)

	recovered, err := q.RecoverStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, recovered)

	recovered, err = q.RecoverStale(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), recovered)

	claimed, err = db.ClaimQueueItem(ctx, items[1].ID)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, db.ReleaseQueueItem(ctx, items[1].ID, "boom", true))

	reopened, err := q.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reopened)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pending)
	assert.Zero(t, stats.Failed)
}

func TestParseAnalysis(t *testing.T) {
	a, ok := ParseAnalysis(`{
		"sentiment": "ANGRY",
		"sentimentScore": -4,
		"relevance": 1.7,
		"summary": "  ok  ",
		"entities": {"candidates": ["Ana", "ana", "", 3], "topics": "x"},
		"flags": [
			{"type": "transfuguismo", "severity": "amber", "reason": "Cambió de partido"},
			{"type": "rumor", "severity": "purple"},
			{"severity": "RED"},
			"bad"
		],
		"isElectionRelated": "yes"
	}`)
	require.True(t, ok)
	assert.Equal(t, database.SentimentNeutral, a.Sentiment)
	assert.Equal(t, -1.0, a.SentimentScore)
	assert.Equal(t, 1.0, a.Relevance)
	assert.Equal(t, "ok", a.Summary)
	assert.Equal(t, []string{"Ana"}, a.Entities.Candidates)
	assert.Empty(t, a.Entities.Topics)
	assert.NotNil(t, a.Entities.Parties)
	assert.False(t, a.IsElectionRelated)
	require.Len(t, a.Flags, 2)
	assert.Equal(t, FlagSignal{Type: database.FlagPartySwitching, Severity: database.SeverityAmber, Reason: "Cambió de partido"}, a.Flags[0])
	assert.Equal(t, FlagSignal{Type: database.FlagOther, Severity: database.SeverityGray}, a.Flags[1])
}

func TestParseAnalysisDefaults(t *testing.T) {
	a, ok := ParseAnalysis("not json")
	assert.False(t, ok)
	assert.Equal(t, DefaultAnalysis(), a)
	assert.Equal(t, database.SentimentNeutral, a.Sentiment)
	assert.Zero(t, a.SentimentScore)
	assert.Equal(t, 0.5, a.Relevance)
	assert.Empty(t, a.Flags)
}

func TestMapFlagType(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"LEGAL_ISSUE", database.FlagPenalSentence},
		{"criminal record", database.FlagPenalSentence},
		{"Lawsuit", database.FlagCivilSentence},
		{"FRAUD", database.FlagInvestigation},
		{"party-switch", database.FlagPartySwitching},
		{"UNDECLARED_ASSETS", database.FlagFinancialIrregularity},
		{"fake_news", database.FlagMisinformation},
		{"SCANDAL", database.FlagOther},
		{"", database.FlagOther},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, MapFlagType(tt.raw))
		})
	}
}

func TestBuildPromptTruncatesBody(t *testing.T) {
	prompt := BuildPrompt(Input{Body: strings.Repeat("ñ", 50), Source: "rpp"}, 10)
	assert.Contains(t, prompt, "Title: (none)")
	assert.Contains(t, prompt, "Date: unknown")
	assert.Contains(t, prompt, "\n"+strings.Repeat("ñ", 10)+"\n")
	assert.NotContains(t, prompt, strings.Repeat("ñ", 11))
}
