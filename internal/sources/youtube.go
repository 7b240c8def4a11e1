package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/TobiSchelling/electwatch/internal/config"
	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/fetch"
	"github.com/TobiSchelling/electwatch/internal/logger"
)

// socialEntry carries a post and the terms it was searched with.
type socialEntry struct {
	item  *ContentItem
	terms []string
}

func normalizeSocial(e Entry, platform Source) ([]Record, error) {
	se, ok := e.Data.(*socialEntry)
	if !ok || se.item == nil {
		return nil, fmt.Errorf("%w: %s entry %s", ErrShape, platform, e.ID)
	}
	ci := se.item
	if strings.TrimSpace(ci.Text) == "" && strings.TrimSpace(ci.Title) == "" {
		return nil, fmt.Errorf("%w: %s post %s has no text", ErrShape, platform, ci.PostID)
	}
	ci.Relevance = SocialRelevance(ci.Title+" "+ci.Text, ci.Hashtags, se.terms, Engagement{
		Likes: ci.Likes, Comments: ci.Comments, Shares: ci.Shares, Views: ci.Views,
	})
	return []Record{ci}, nil
}

// YouTube searches videos for tracked terms and loads their statistics.
type YouTube struct {
	cfg    config.Social
	terms  []string
	dyn    TermsFunc
	apiKey string
	client *fetch.Client
	log    logger.Logger
	now    func() time.Time
}

// NewYouTube creates the video platform adapter.
func NewYouTube(cfg config.Social, terms []string, userAgent string, deps Deps) *YouTube {
	deps = deps.withDefaults()
	return &YouTube{
		cfg:    cfg,
		terms:  terms,
		dyn:    deps.Terms,
		apiKey: deps.Getenv(cfg.APIKeyEnv),
		client: deps.client(SourceYouTube, cfg.Fetch, userAgent, 2),
		log:    deps.Logger,
		now:    deps.Now,
	}
}

func (y *YouTube) Name() Source { return SourceYouTube }

type youtubeSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			ChannelTitle string `json:"channelTitle"`
			PublishedAt  string `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

type youtubeVideosResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount    flexInt `json:"viewCount"`
			LikeCount    flexInt `json:"likeCount"`
			CommentCount flexInt `json:"commentCount"`
		} `json:"statistics"`
		Snippet struct {
			Tags []string `json:"tags"`
		} `json:"snippet"`
	} `json:"items"`
}

// FetchList runs one search per tracked term.
func (y *YouTube) FetchList(ctx context.Context) ([]Entry, error) {
	if y.apiKey == "" {
		return nil, fmt.Errorf("%w: %s is not set", ErrNotConfigured, y.cfg.APIKeyEnv)
	}
	terms, err := trackedTerms(ctx, y.terms, y.dyn)
	if err != nil {
		return nil, fmt.Errorf("loading search terms: %w", err)
	}
	after := y.now().AddDate(0, 0, -y.cfg.DaysBack).UTC().Format(time.RFC3339)

	var entries []Entry
	seen := make(map[string]bool)
	for _, term := range terms {
		q := url.Values{
			"part":              {"snippet"},
			"type":              {"video"},
			"q":                 {term},
			"maxResults":        {fmt.Sprint(y.cfg.MaxResults)},
			"publishedAfter":    {after},
			"relevanceLanguage": {"es"},
			"key":               {y.apiKey},
		}
		var resp youtubeSearchResponse
		if err := y.client.GetJSON(ctx, strings.TrimRight(y.cfg.BaseURL, "/")+"/search?"+q.Encode(), nil, &resp); err != nil {
			return nil, fmt.Errorf("youtube search %q: %w", term, err)
		}
		for _, it := range resp.Items {
			id := it.ID.VideoID
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ci := &ContentItem{
				Kind:     database.MentionSocial,
				Source:   string(SourceYouTube),
				Platform: string(SourceYouTube),
				PostID:   id,
				Author:   strings.TrimSpace(it.Snippet.ChannelTitle),
				Title:    strings.TrimSpace(it.Snippet.Title),
				Text:     strings.TrimSpace(it.Snippet.Description),
				URL:      "https://www.youtube.com/watch?v=" + id,
			}
			if t, err := time.Parse(time.RFC3339, it.Snippet.PublishedAt); err == nil {
				t = t.UTC()
				ci.PublishedAt = &t
			}
			entries = append(entries, Entry{ID: id, URL: ci.URL, Data: &socialEntry{item: ci, terms: terms}})
		}
		y.log.Debug("Searched videos", logger.String("term", term), logger.Int("videos", len(resp.Items)))
	}
	return entries, nil
}

// FetchDetail loads view, like and comment counts.
func (y *YouTube) FetchDetail(ctx context.Context, e Entry) (Entry, error) {
	se, ok := e.Data.(*socialEntry)
	if !ok {
		return e, fmt.Errorf("%w: youtube entry %s", ErrShape, e.ID)
	}
	q := url.Values{"part": {"statistics,snippet"}, "id": {e.ID}, "key": {y.apiKey}}
	var resp youtubeVideosResponse
	if err := y.client.GetJSON(ctx, strings.TrimRight(y.cfg.BaseURL, "/")+"/videos?"+q.Encode(), nil, &resp); err != nil {
		return e, fmt.Errorf("youtube video %s: %w", e.ID, err)
	}
	if len(resp.Items) == 0 {
		return e, fmt.Errorf("%w: youtube video %s not found", ErrShape, e.ID)
	}
	stats := resp.Items[0].Statistics
	se.item.Views = int64(stats.ViewCount)
	se.item.Likes = int64(stats.LikeCount)
	se.item.Comments = int64(stats.CommentCount)
	se.item.Hashtags = resp.Items[0].Snippet.Tags
	return e, nil
}

// Normalize returns the video as a ContentItem with its relevance score.
func (y *YouTube) Normalize(e Entry) ([]Record, error) {
	return normalizeSocial(e, SourceYouTube)
}
