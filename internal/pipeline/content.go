package pipeline

import (
	"context"

	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/joblog"
	"github.com/TobiSchelling/electwatch/internal/logger"
	"github.com/TobiSchelling/electwatch/internal/match"
	"github.com/TobiSchelling/electwatch/internal/sources"
)

// persistContent stores new news and social items with their matches and
// queues them for analysis. News that mentions no tracked entity is skipped;
// social items come from tracked-term searches and are kept regardless.
func (r *Runner) persistContent(ctx context.Context, job *joblog.Job, items []*sources.ContentItem) error {
	known, err := r.existing(ctx, items)
	if err != nil {
		return err
	}

	unmatched := 0
	for _, item := range items {
		key := contentKey(item)
		if known[key] {
			job.Skipped(1)
			continue
		}
		known[key] = true

		results, err := r.matcher.Match(ctx, item)
		if err != nil {
			return err
		}
		if len(results) == 0 && item.Kind == database.MentionNews {
			unmatched++
			job.Skipped(1)
			continue
		}

		id, err := r.insertMention(ctx, item, results)
		if err != nil {
			job.Skipped(1)
			job.AddError(err.Error())
			continue
		}
		if id == 0 {
			job.Skipped(1)
			continue
		}
		job.Created(1)

		if len(results) > 0 {
			if err := r.db.InsertMentionMatches(ctx, mentionMatches(item.Kind, id, results)); err != nil {
				job.AddError(err.Error())
			}
		}
		if _, err := r.queue.Enqueue(ctx, item.Kind, id, r.cfg.Enrichment.ItemPriority); err != nil {
			job.AddError(err.Error())
			r.log.Warn("Enqueue failed", logger.Int64("mention_id", id), logger.Error(err))
		}
	}
	if unmatched > 0 {
		job.SetMetadata("unmatched", unmatched)
	}
	return nil
}

func contentKey(item *sources.ContentItem) string {
	if item.Kind == database.MentionSocial {
		return item.Platform + "|" + item.PostID
	}
	return item.URL
}

// storedEntries reports which listed content entries are already stored, so
// their detail pages are not fetched again. Persisting still dedups them.
func (r *Runner) storedEntries(ctx context.Context, entries []sources.Entry) (map[int]bool, error) {
	var items []*sources.ContentItem
	var idx []int
	for i, e := range entries {
		if ci, ok := e.Data.(*sources.ContentItem); ok && e.Err == nil {
			items = append(items, ci)
			idx = append(idx, i)
		}
	}
	stored := make(map[int]bool)
	if len(items) == 0 {
		return stored, nil
	}
	known, err := r.existing(ctx, items)
	if err != nil {
		return nil, err
	}
	for n, item := range items {
		if known[contentKey(item)] {
			stored[idx[n]] = true
		}
	}
	return stored, nil
}

// existing returns the keys of items already stored.
func (r *Runner) existing(ctx context.Context, items []*sources.ContentItem) (map[string]bool, error) {
	var urls []string
	posts := make(map[string][]string)
	for _, item := range items {
		if item.Kind == database.MentionSocial {
			posts[item.Platform] = append(posts[item.Platform], item.PostID)
		} else {
			urls = append(urls, item.URL)
		}
	}

	known := make(map[string]bool)
	if len(urls) > 0 {
		found, err := r.db.ExistingNewsURLs(ctx, urls)
		if err != nil {
			return nil, err
		}
		for u := range found {
			known[u] = true
		}
	}
	for platform, ids := range posts {
		found, err := r.db.ExistingPostIDs(ctx, platform, ids)
		if err != nil {
			return nil, err
		}
		for id := range found {
			known[platform+"|"+id] = true
		}
	}
	return known, nil
}

func (r *Runner) insertMention(ctx context.Context, item *sources.ContentItem, results []match.Result) (int64, error) {
	candidateID, partyID, relevance := topMatch(results)
	sentiment := match.Sentiment(item)

	if item.Kind == database.MentionSocial {
		return r.db.InsertSocialMention(ctx, database.SocialInput{
			Platform:    item.Platform,
			PostID:      item.PostID,
			Author:      optional(item.Author),
			Text:        item.Text,
			URL:         item.URL,
			PublishedAt: item.PublishedAt,
			CandidateID: candidateID,
			PartyID:     partyID,
			Relevance:   item.Relevance,
			Sentiment:   sentiment,
			Likes:       item.Likes,
			Comments:    item.Comments,
			Shares:      item.Shares,
			Views:       item.Views,
			Hashtags:    item.Hashtags,
		})
	}
	return r.db.InsertNewsMention(ctx, database.NewsInput{
		Source:      item.Source,
		Author:      optional(item.Author),
		Title:       item.Title,
		Body:        optional(item.Text),
		URL:         item.URL,
		PublishedAt: item.PublishedAt,
		CandidateID: candidateID,
		PartyID:     partyID,
		Relevance:   relevance,
		Sentiment:   sentiment,
	})
}

// topMatch links a mention to its most relevant entity.
func topMatch(results []match.Result) (candidateID, partyID *int64, relevance float64) {
	if len(results) == 0 {
		return nil, nil, 0
	}
	top := results[0]
	switch top.EntityType {
	case match.EntityCandidate:
		id := top.EntityID
		candidateID = &id
		if top.PartyID != 0 {
			pid := top.PartyID
			partyID = &pid
		}
	case match.EntityParty:
		id := top.EntityID
		partyID = &id
	}
	return candidateID, partyID, top.Relevance
}

func mentionMatches(kind database.MentionType, id int64, results []match.Result) []database.MentionMatch {
	out := make([]database.MentionMatch, 0, len(results))
	for _, res := range results {
		out = append(out, database.MentionMatch{
			MentionType: kind,
			MentionID:   id,
			EntityType:  res.EntityType,
			EntityID:    res.EntityID,
			Relevance:   res.Relevance,
		})
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
