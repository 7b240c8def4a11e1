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

// xMaxQueryLen is the longest recent-search query the API accepts.
const xMaxQueryLen = 512

// X queries the microblogging platform's recent search.
type X struct {
	cfg    config.Social
	terms  []string
	dyn    TermsFunc
	token  string
	client *fetch.Client
	log    logger.Logger
	now    func() time.Time
}

// NewX creates the microblogging adapter.
func NewX(cfg config.Social, terms []string, userAgent string, deps Deps) *X {
	deps = deps.withDefaults()
	return &X{
		cfg:    cfg,
		terms:  terms,
		dyn:    deps.Terms,
		token:  deps.Getenv(cfg.APIKeyEnv),
		client: deps.client(SourceX, cfg.Fetch, userAgent, 2),
		log:    deps.Logger,
		now:    deps.Now,
	}
}

func (x *X) Name() Source { return SourceX }

type xSearchResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		CreatedAt     string `json:"created_at"`
		AuthorID      string `json:"author_id"`
		PublicMetrics struct {
			RetweetCount    int64 `json:"retweet_count"`
			ReplyCount      int64 `json:"reply_count"`
			LikeCount       int64 `json:"like_count"`
			QuoteCount      int64 `json:"quote_count"`
			ImpressionCount int64 `json:"impression_count"`
		} `json:"public_metrics"`
		Entities struct {
			Hashtags []struct {
				Tag string `json:"tag"`
			} `json:"hashtags"`
		} `json:"entities"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
}

// FetchList runs recent searches over the tracked terms, batching terms into
// OR queries that fit the query length limit.
func (x *X) FetchList(ctx context.Context) ([]Entry, error) {
	if x.token == "" {
		return nil, fmt.Errorf("%w: %s is not set", ErrNotConfigured, x.cfg.APIKeyEnv)
	}
	terms, err := trackedTerms(ctx, x.terms, x.dyn)
	if err != nil {
		return nil, fmt.Errorf("loading search terms: %w", err)
	}
	header := http.Header{"Authorization": []string{"Bearer " + x.token}}
	start := x.now().AddDate(0, 0, -min(x.cfg.DaysBack, 7)).UTC().Add(time.Minute).Format(time.RFC3339)

	var entries []Entry
	seen := make(map[string]bool)
	for _, query := range xQueries(terms) {
		q := url.Values{
			"query":        {query},
			"max_results":  {fmt.Sprint(max(10, min(x.cfg.MaxResults, 100)))},
			"start_time":   {start},
			"tweet.fields": {"created_at,public_metrics,author_id,entities"},
			"expansions":   {"author_id"},
			"user.fields":  {"username"},
		}
		var resp xSearchResponse
		if err := x.client.GetJSON(ctx, strings.TrimRight(x.cfg.BaseURL, "/")+"/tweets/search/recent?"+q.Encode(), header, &resp); err != nil {
			return nil, fmt.Errorf("x search: %w", err)
		}

		users := make(map[string]string, len(resp.Includes.Users))
		for _, u := range resp.Includes.Users {
			users[u.ID] = u.Username
		}
		for _, p := range resp.Data {
			if p.ID == "" || seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			username := users[p.AuthorID]
			ci := &ContentItem{
				Kind:     database.MentionSocial,
				Source:   string(SourceX),
				Platform: string(SourceX),
				PostID:   p.ID,
				Author:   username,
				Text:     strings.TrimSpace(p.Text),
				URL:      xPostURL(username, p.ID),
				Likes:    p.PublicMetrics.LikeCount,
				Comments: p.PublicMetrics.ReplyCount,
				Shares:   p.PublicMetrics.RetweetCount + p.PublicMetrics.QuoteCount,
				Views:    p.PublicMetrics.ImpressionCount,
			}
			for _, h := range p.Entities.Hashtags {
				ci.Hashtags = append(ci.Hashtags, "#"+h.Tag)
			}
			if t, err := time.Parse(time.RFC3339, p.CreatedAt); err == nil {
				t = t.UTC()
				ci.PublishedAt = &t
			}
			entries = append(entries, Entry{ID: p.ID, URL: ci.URL, Data: &socialEntry{item: ci, terms: terms}})
		}
		x.log.Debug("Searched posts", logger.String("query", query), logger.Int("posts", len(resp.Data)))
	}
	return entries, nil
}

// xQueries packs quoted terms into OR queries no longer than xMaxQueryLen.
func xQueries(terms []string) []string {
	const suffix = " -is:retweet"
	var queries []string
	var current []string
	length := 0
	for _, t := range terms {
		quoted := `"` + strings.ReplaceAll(t, `"`, "") + `"`
		extra := len(quoted) + len(" OR ")
		if len(current) > 0 && length+extra+len(suffix)+2 > xMaxQueryLen {
			queries = append(queries, "("+strings.Join(current, " OR ")+")"+suffix)
			current, length = nil, 0
		}
		current = append(current, quoted)
		length += extra
	}
	if len(current) > 0 {
		queries = append(queries, "("+strings.Join(current, " OR ")+")"+suffix)
	}
	return queries
}

func xPostURL(username, id string) string {
	if username == "" {
		return "https://x.com/i/web/status/" + id
	}
	return "https://x.com/" + username + "/status/" + id
}

// FetchDetail is a no-op: search results include public metrics.
func (x *X) FetchDetail(_ context.Context, e Entry) (Entry, error) {
	return e, nil
}

// Normalize returns the post as a ContentItem with its relevance score.
func (x *X) Normalize(e Entry) ([]Record, error) {
	return normalizeSocial(e, SourceX)
}
