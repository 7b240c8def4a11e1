package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TobiSchelling/electwatch/internal/config"
	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/fetch"
	"github.com/TobiSchelling/electwatch/internal/logger"
)

const tiktokFields = "id,video_description,create_time,username,like_count,comment_count,share_count,view_count,hashtag_names"

// TikTok queries the short-video platform's research API.
type TikTok struct {
	cfg    config.Social
	terms  []string
	dyn    TermsFunc
	token  string
	client *fetch.Client
	log    logger.Logger
	now    func() time.Time
}

// NewTikTok creates the short-video adapter.
func NewTikTok(cfg config.Social, terms []string, userAgent string, deps Deps) *TikTok {
	deps = deps.withDefaults()
	return &TikTok{
		cfg:    cfg,
		terms:  terms,
		dyn:    deps.Terms,
		token:  deps.Getenv(cfg.APIKeyEnv),
		client: deps.client(SourceTikTok, cfg.Fetch, userAgent, 2),
		log:    deps.Logger,
		now:    deps.Now,
	}
}

func (t *TikTok) Name() Source { return SourceTikTok }

type tiktokQuery struct {
	Query struct {
		And []tiktokCondition `json:"and"`
	} `json:"query"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	MaxCount  int    `json:"max_count"`
}

type tiktokCondition struct {
	Operation   string   `json:"operation"`
	FieldName   string   `json:"field_name"`
	FieldValues []string `json:"field_values"`
}

type tiktokResponse struct {
	Data struct {
		Videos []struct {
			ID           flexString `json:"id"`
			Description  string     `json:"video_description"`
			CreateTime   int64      `json:"create_time"`
			Username     string     `json:"username"`
			LikeCount    int64      `json:"like_count"`
			CommentCount int64      `json:"comment_count"`
			ShareCount   int64      `json:"share_count"`
			ViewCount    int64      `json:"view_count"`
			Hashtags     []string   `json:"hashtag_names"`
		} `json:"videos"`
	} `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// FetchList runs one keyword query over all tracked terms.
func (t *TikTok) FetchList(ctx context.Context) ([]Entry, error) {
	if t.token == "" {
		return nil, fmt.Errorf("%w: %s is not set", ErrNotConfigured, t.cfg.APIKeyEnv)
	}
	terms, err := trackedTerms(ctx, t.terms, t.dyn)
	if err != nil {
		return nil, fmt.Errorf("loading search terms: %w", err)
	}
	if len(terms) == 0 {
		return nil, nil
	}

	now := t.now().UTC()
	var body tiktokQuery
	body.Query.And = []tiktokCondition{{Operation: "IN", FieldName: "keyword", FieldValues: terms}}
	body.StartDate = now.AddDate(0, 0, -t.cfg.DaysBack).Format("20060102")
	body.EndDate = now.Format("20060102")
	body.MaxCount = max(1, min(t.cfg.MaxResults, 100))

	header := http.Header{"Authorization": []string{"Bearer " + t.token}}
	endpoint := strings.TrimRight(t.cfg.BaseURL, "/") + "/research/video/query/?fields=" + url.QueryEscape(tiktokFields)

	var resp tiktokResponse
	if err := t.client.PostJSON(ctx, endpoint, header, body, &resp); err != nil {
		return nil, fmt.Errorf("tiktok query: %w", err)
	}
	if resp.Error.Code != "" && resp.Error.Code != "ok" {
		return nil, fmt.Errorf("tiktok query: %s: %s", resp.Error.Code, resp.Error.Message)
	}

	var entries []Entry
	seen := make(map[string]bool)
	for _, v := range resp.Data.Videos {
		id := string(v.ID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ci := &ContentItem{
			Kind:     database.MentionSocial,
			Source:   string(SourceTikTok),
			Platform: string(SourceTikTok),
			PostID:   id,
			Author:   v.Username,
			Text:     strings.TrimSpace(v.Description),
			URL:      "https://www.tiktok.com/@" + v.Username + "/video/" + id,
			Likes:    v.LikeCount,
			Comments: v.CommentCount,
			Shares:   v.ShareCount,
			Views:    v.ViewCount,
		}
		for _, h := range v.Hashtags {
			ci.Hashtags = append(ci.Hashtags, "#"+strings.TrimPrefix(h, "#"))
		}
		if v.CreateTime > 0 {
			ts := time.Unix(v.CreateTime, 0).UTC()
			ci.PublishedAt = &ts
		}
		entries = append(entries, Entry{ID: id, URL: ci.URL, Data: &socialEntry{item: ci, terms: terms}})
	}
	t.log.Debug("Queried videos", logger.Int("terms", len(terms)), logger.Int("videos", len(entries)))
	return entries, nil
}

// FetchDetail is a no-op: query results include engagement counts.
func (t *TikTok) FetchDetail(_ context.Context, e Entry) (Entry, error) {
	return e, nil
}

// Normalize returns the video as a ContentItem with its relevance score.
func (t *TikTok) Normalize(e Entry) ([]Record, error) {
	return normalizeSocial(e, SourceTikTok)
}

