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

// newsSearchPageSize is the most articles requested per term.
const newsSearchPageSize = 50

// NewsSearch queries a NewsAPI-style search endpoint for every tracked term.
type NewsSearch struct {
	cfg    config.NewsSearch
	terms  []string
	dyn    TermsFunc
	apiKey string
	client *fetch.Client
	log    logger.Logger
	now    func() time.Time
}

// NewNewsSearch creates the search adapter.
func NewNewsSearch(cfg config.NewsSearch, terms []string, userAgent string, deps Deps) *NewsSearch {
	deps = deps.withDefaults()
	return &NewsSearch{
		cfg:    cfg,
		terms:  terms,
		dyn:    deps.Terms,
		apiKey: deps.Getenv(cfg.APIKeyEnv),
		client: deps.client(SourceNewsSearch, cfg.Fetch, userAgent, 2),
		log:    deps.Logger,
		now:    deps.Now,
	}
}

func (n *NewsSearch) Name() Source { return SourceNewsSearch }

type newsSearchResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Author      string `json:"author"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Content     string `json:"content"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// FetchList searches every tracked term, dropping URLs already seen in this run.
func (n *NewsSearch) FetchList(ctx context.Context) ([]Entry, error) {
	if n.apiKey == "" {
		return nil, fmt.Errorf("%w: %s is not set", ErrNotConfigured, n.cfg.APIKeyEnv)
	}
	terms, err := trackedTerms(ctx, n.terms, n.dyn)
	if err != nil {
		return nil, fmt.Errorf("loading search terms: %w", err)
	}
	from := n.now().AddDate(0, 0, -n.cfg.DaysBack).Format("2006-01-02")
	header := http.Header{"X-Api-Key": []string{n.apiKey}}

	var entries []Entry
	seen := make(map[string]bool)
	for _, term := range terms {
		q := url.Values{
			"q":        {`"` + term + `"`},
			"from":     {from},
			"language": {n.cfg.Language},
			"sortBy":   {"publishedAt"},
			"pageSize": {fmt.Sprint(newsSearchPageSize)},
		}
		var resp newsSearchResponse
		if err := n.client.GetJSON(ctx, n.cfg.BaseURL+"?"+q.Encode(), header, &resp); err != nil {
			return nil, fmt.Errorf("news search %q: %w", term, err)
		}
		if resp.Status == "error" {
			entries = append(entries, Entry{ID: term, Err: fmt.Errorf("news search %q: %s", term, resp.Message)})
			continue
		}

		for _, a := range resp.Articles {
			link := strings.TrimSpace(a.URL)
			title := strings.TrimSpace(a.Title)
			if link == "" || seen[link] {
				continue
			}
			seen[link] = true
			if title == "" || title == "[Removed]" {
				continue
			}
			ci := &ContentItem{
				Kind:   database.MentionNews,
				Source: strings.TrimSpace(a.Source.Name),
				Author: strings.TrimSpace(a.Author),
				Title:  title,
				Text:   joinNonEmpty(a.Description, stripTruncation(a.Content)),
				URL:    link,
			}
			if ci.Source == "" {
				ci.Source = sourceNameFromURL(link)
			}
			if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
				t = t.UTC()
				ci.PublishedAt = &t
			}
			entries = append(entries, Entry{ID: link, URL: link, Data: ci})
		}
		n.log.Debug("Searched news", logger.String("term", term), logger.Int("articles", len(resp.Articles)))
	}
	return entries, nil
}

// FetchDetail is a no-op: search results carry everything stored.
func (n *NewsSearch) FetchDetail(_ context.Context, e Entry) (Entry, error) {
	return e, nil
}

// Normalize returns the article as a ContentItem.
func (n *NewsSearch) Normalize(e Entry) ([]Record, error) {
	ci, ok := e.Data.(*ContentItem)
	if !ok {
		return nil, fmt.Errorf("%w: search entry %s", ErrShape, e.ID)
	}
	return []Record{ci}, nil
}

// stripTruncation drops NewsAPI's "[+123 chars]" suffix.
func stripTruncation(s string) string {
	if i := strings.LastIndex(s, "[+"); i >= 0 && strings.HasSuffix(s, "chars]") {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
