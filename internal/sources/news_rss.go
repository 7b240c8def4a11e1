package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/electwatch/internal/config"
	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/fetch"
	"github.com/TobiSchelling/electwatch/internal/logger"
)

// shortBodyChars is the feed body length below which the article page is
// fetched for full text.
const shortBodyChars = 280

// NewsRSS reads the configured news feeds.
type NewsRSS struct {
	cfg    config.NewsRSS
	client *fetch.Client
	log    logger.Logger
	now    func() time.Time
}

// NewNewsRSS creates the RSS adapter.
func NewNewsRSS(cfg config.NewsRSS, userAgent string, deps Deps) *NewsRSS {
	deps = deps.withDefaults()
	return &NewsRSS{
		cfg:    cfg,
		client: deps.client(SourceNewsRSS, cfg.Fetch, userAgent, 100),
		log:    deps.Logger,
		now:    deps.Now,
	}
}

func (n *NewsRSS) Name() Source { return SourceNewsRSS }

// FetchList parses every feed. A feed that fails to load becomes an errored
// entry; a blocked feed aborts the run.
func (n *NewsRSS) FetchList(ctx context.Context) ([]Entry, error) {
	if len(n.cfg.Feeds) == 0 {
		return nil, fmt.Errorf("%w: no feeds configured", ErrNotConfigured)
	}
	cutoff := n.now().AddDate(0, 0, -n.cfg.DaysBack)
	parser := gofeed.NewParser()

	var entries []Entry
	seen := make(map[string]bool)
	for _, fc := range n.cfg.Feeds {
		name := fc.Name
		if name == "" {
			name = sourceNameFromURL(fc.URL)
		}

		resp, err := n.client.Get(ctx, fc.URL)
		if err != nil {
			if fetch.IsBlocked(err) || ctx.Err() != nil {
				return nil, fmt.Errorf("feed %s: %w", name, err)
			}
			entries = append(entries, Entry{ID: fc.URL, Err: fmt.Errorf("feed %s: %w", name, err)})
			continue
		}
		feed, err := parser.ParseString(string(resp.Body))
		if err != nil {
			entries = append(entries, Entry{ID: fc.URL, Err: fetch.ParseError(err, fc.URL)})
			continue
		}

		count := 0
		for _, item := range feed.Items {
			if n.cfg.MaxItems > 0 && count >= n.cfg.MaxItems {
				break
			}
			ci := feedItem(item, name)
			if ci == nil || seen[ci.URL] {
				continue
			}
			if ci.PublishedAt != nil && n.cfg.DaysBack > 0 && ci.PublishedAt.Before(cutoff) {
				continue
			}
			seen[ci.URL] = true
			entries = append(entries, Entry{ID: ci.URL, URL: ci.URL, Data: ci})
			count++
		}
		n.log.Debug("Parsed feed", logger.String("feed", name), logger.Int("items", count))
	}
	return entries, nil
}

func feedItem(item *gofeed.Item, source string) *ContentItem {
	link := strings.TrimSpace(item.Link)
	if link == "" {
		link = strings.TrimSpace(item.GUID)
	}
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return nil
	}

	ci := &ContentItem{
		Kind:   database.MentionNews,
		Source: source,
		Title:  title,
		URL:    link,
	}
	switch {
	case item.Content != "":
		ci.Text = htmlText(item.Content)
	case item.Description != "":
		ci.Text = htmlText(item.Description)
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		ci.Author = strings.TrimSpace(item.Authors[0].Name)
	}
	switch {
	case item.PublishedParsed != nil:
		t := item.PublishedParsed.UTC()
		ci.PublishedAt = &t
	case item.UpdatedParsed != nil:
		t := item.UpdatedParsed.UTC()
		ci.PublishedAt = &t
	}
	return ci
}

// FetchDetail fetches the article page when the feed carried only a teaser.
// Extraction failures keep the teaser; blocked pages fail the run.
func (n *NewsRSS) FetchDetail(ctx context.Context, e Entry) (Entry, error) {
	ci, ok := e.Data.(*ContentItem)
	if !ok {
		return e, fmt.Errorf("%w: rss entry %s", ErrShape, e.ID)
	}
	if len([]rune(ci.Text)) >= shortBodyChars {
		return e, nil
	}

	resp, err := n.client.Get(ctx, ci.URL)
	if err != nil {
		if fetch.IsBlocked(err) || ctx.Err() != nil {
			return e, err
		}
		n.log.Debug("Article fetch failed, keeping feed text", logger.String("url", ci.URL), logger.Error(err))
		return e, nil
	}
	text, err := fetch.ExtractArticle(resp.Body, ci.URL)
	if err != nil || text == "" {
		return e, nil
	}
	ci.Text = text
	return e, nil
}

// Normalize returns the article as a ContentItem.
func (n *NewsRSS) Normalize(e Entry) ([]Record, error) {
	ci, ok := e.Data.(*ContentItem)
	if !ok {
		return nil, fmt.Errorf("%w: rss entry %s", ErrShape, e.ID)
	}
	return []Record{ci}, nil
}

// htmlText returns the visible text of an HTML fragment.
func htmlText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func sourceNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "rss.", "feeds.", "feed."} {
		host = strings.TrimPrefix(host, prefix)
	}
	parts := strings.Split(host, ".")
	name := parts[0]
	if len(parts) >= 3 && parts[len(parts)-1] == "pe" && (parts[len(parts)-2] == "com" || parts[len(parts)-2] == "gob") {
		name = parts[len(parts)-3]
	} else if len(parts) >= 2 {
		name = parts[len(parts)-2]
	}
	if name == "" {
		return host
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
