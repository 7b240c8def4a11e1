package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// NewsInput carries the fields of a news mention to insert.
type NewsInput struct {
	Source      string
	Author      *string
	Title       string
	Body        *string
	URL         string
	PublishedAt *time.Time
	CandidateID *int64
	PartyID     *int64
	Relevance   float64
	Sentiment   string
	Keywords    []string
}

// SocialInput carries the fields of a social mention to insert.
type SocialInput struct {
	Platform    string
	PostID      string
	Author      *string
	Text        string
	URL         string
	PublishedAt *time.Time
	CandidateID *int64
	PartyID     *int64
	Relevance   float64
	Sentiment   string
	Likes       int64
	Comments    int64
	Shares      int64
	Views       int64
	Hashtags    []string
	Keywords    []string
}

// AnalysisUpdate is the structured output written back onto a mention.
type AnalysisUpdate struct {
	Sentiment         string
	Relevance         float64
	Summary           string
	Topics            []string
	Keywords          []string
	Entities          Entities
	IsElectionRelated bool
}

// InsertNewsMention inserts a news mention. Returns the ID on success, 0 if
// the URL is already stored.
func (db *DB) InsertNewsMention(ctx context.Context, in NewsInput) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO news_mentions (source, author, title, body, url, published_at,
			candidate_id, party_id, relevance, sentiment, keywords, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING`,
		in.Source, in.Author, in.Title, in.Body, in.URL, timeArg(in.PublishedAt),
		in.CandidateID, in.PartyID, in.Relevance, sentimentOrNeutral(in.Sentiment),
		jsonArg(in.Keywords), formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting news mention %s: %w", in.URL, err)
	}
	return insertedID(result)
}

// InsertSocialMention inserts a social mention. Returns the ID on success, 0
// if the (platform, post_id) pair is already stored.
func (db *DB) InsertSocialMention(ctx context.Context, in SocialInput) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO social_mentions (platform, post_id, author, text, url, published_at,
			candidate_id, party_id, relevance, sentiment, likes, comments, shares, views,
			hashtags, keywords, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(platform, post_id) DO NOTHING`,
		in.Platform, in.PostID, in.Author, in.Text, in.URL, timeArg(in.PublishedAt),
		in.CandidateID, in.PartyID, in.Relevance, sentimentOrNeutral(in.Sentiment),
		in.Likes, in.Comments, in.Shares, in.Views,
		jsonArg(in.Hashtags), jsonArg(in.Keywords), formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting %s post %s: %w", in.Platform, in.PostID, err)
	}
	return insertedID(result)
}

// ExistingNewsURLs returns which of urls are already stored.
func (db *DB) ExistingNewsURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(urls) == 0 {
		return found, nil
	}
	query, args, err := sqlx.In("SELECT url FROM news_mentions WHERE url IN (?)", urls)
	if err != nil {
		return nil, err
	}
	var existing []string
	if err := db.conn.SelectContext(ctx, &existing, db.conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("checking news urls: %w", err)
	}
	for _, u := range existing {
		found[u] = true
	}
	return found, nil
}

// ExistingPostIDs returns which of postIDs are already stored for platform.
func (db *DB) ExistingPostIDs(ctx context.Context, platform string, postIDs []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(postIDs) == 0 {
		return found, nil
	}
	query, args, err := sqlx.In(
		"SELECT post_id FROM social_mentions WHERE platform = ? AND post_id IN (?)",
		platform, postIDs,
	)
	if err != nil {
		return nil, err
	}
	var existing []string
	if err := db.conn.SelectContext(ctx, &existing, db.conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("checking %s post ids: %w", platform, err)
	}
	for _, id := range existing {
		found[id] = true
	}
	return found, nil
}

// InsertMentionMatches records every entity a mention matched.
func (db *DB) InsertMentionMatches(ctx context.Context, matches []MentionMatch) error {
	for _, m := range matches {
		_, err := db.conn.NamedExecContext(ctx,
			`INSERT INTO mention_matches (mention_type, mention_id, entity_type, entity_id, relevance)
			VALUES (:mention_type, :mention_id, :entity_type, :entity_id, :relevance)
			ON CONFLICT(mention_type, mention_id, entity_type, entity_id) DO NOTHING`,
			m,
		)
		if err != nil {
			return fmt.Errorf("inserting mention match: %w", err)
		}
	}
	return nil
}

// ListMentionMatches returns the matches of one mention, best first.
func (db *DB) ListMentionMatches(ctx context.Context, mentionType MentionType, mentionID int64) ([]MentionMatch, error) {
	var matches []MentionMatch
	err := db.conn.SelectContext(ctx, &matches,
		`SELECT mention_type, mention_id, entity_type, entity_id, relevance
		FROM mention_matches WHERE mention_type = ? AND mention_id = ?
		ORDER BY relevance DESC`,
		mentionType, mentionID,
	)
	return matches, err
}

const newsColumns = `id, source, author, title, body, url, published_at, candidate_id, party_id,
	relevance, sentiment, keywords, entities, summary, topics, is_election_related,
	analyzed_at, created_at`

const socialColumns = `id, platform, post_id, author, text, url, published_at, candidate_id,
	party_id, relevance, sentiment, likes, comments, shares, views, hashtags, keywords,
	entities, summary, topics, is_election_related, analyzed_at, created_at`

// GetNewsMention returns a news mention by ID, or nil if not found.
func (db *DB) GetNewsMention(ctx context.Context, id int64) (*NewsMention, error) {
	var m NewsMention
	err := db.conn.GetContext(ctx, &m, "SELECT "+newsColumns+" FROM news_mentions WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetSocialMention returns a social mention by ID, or nil if not found.
func (db *DB) GetSocialMention(ctx context.Context, id int64) (*SocialMention, error) {
	var m SocialMention
	err := db.conn.GetContext(ctx, &m, "SELECT "+socialColumns+" FROM social_mentions WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListNewsMentions returns the newest news mentions linked to a candidate.
func (db *DB) ListNewsMentions(ctx context.Context, candidateID int64, limit int) ([]NewsMention, error) {
	var mentions []NewsMention
	err := db.conn.SelectContext(ctx, &mentions,
		"SELECT "+newsColumns+` FROM news_mentions WHERE candidate_id = ?
		ORDER BY COALESCE(published_at, created_at) DESC LIMIT ?`,
		candidateID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing news mentions: %w", err)
	}
	return mentions, nil
}

// ListSocialMentions returns the newest social mentions linked to a candidate.
func (db *DB) ListSocialMentions(ctx context.Context, candidateID int64, limit int) ([]SocialMention, error) {
	var mentions []SocialMention
	err := db.conn.SelectContext(ctx, &mentions,
		"SELECT "+socialColumns+` FROM social_mentions WHERE candidate_id = ?
		ORDER BY COALESCE(published_at, created_at) DESC LIMIT ?`,
		candidateID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing social mentions: %w", err)
	}
	return mentions, nil
}

// UpdateMentionAnalysis writes analysis output onto a news or social mention.
func (db *DB) UpdateMentionAnalysis(ctx context.Context, mentionType MentionType, id int64, a AnalysisUpdate) error {
	table, err := mentionTable(mentionType)
	if err != nil {
		return err
	}
	entities, err := json.Marshal(a.Entities)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx,
		`UPDATE `+table+` SET sentiment = ?, relevance = ?, summary = ?, topics = ?,
			keywords = COALESCE(?, keywords), entities = ?, is_election_related = ?, analyzed_at = ?
		WHERE id = ?`,
		sentimentOrNeutral(a.Sentiment), a.Relevance, nullString(a.Summary), jsonArg(a.Topics),
		jsonArg(a.Keywords), string(entities), a.IsElectionRelated, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating %s mention %d: %w", mentionType, id, err)
	}
	return nil
}

// MarkMentionAnalyzed stamps analyzed_at and leaves the stored sentiment and
// relevance untouched.
func (db *DB) MarkMentionAnalyzed(ctx context.Context, mentionType MentionType, id int64) error {
	table, err := mentionTable(mentionType)
	if err != nil {
		return err
	}
	if _, err := db.conn.ExecContext(ctx,
		`UPDATE `+table+` SET analyzed_at = ? WHERE id = ?`, formatTime(time.Now()), id,
	); err != nil {
		return fmt.Errorf("marking %s mention %d analyzed: %w", mentionType, id, err)
	}
	return nil
}

func mentionTable(mentionType MentionType) (string, error) {
	switch mentionType {
	case MentionNews:
		return "news_mentions", nil
	case MentionSocial:
		return "social_mentions", nil
	}
	return "", fmt.Errorf("unknown mention type %q", mentionType)
}

func insertedID(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return result.LastInsertId()
}

func timeArg(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return formatTime(*t)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func sentimentOrNeutral(s string) string {
	if s == "" {
		return SentimentNeutral
	}
	return s
}
