package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/TobiSchelling/electwatch/internal/config"
	"github.com/TobiSchelling/electwatch/internal/fetch"
	"github.com/TobiSchelling/electwatch/internal/logger"
	"github.com/TobiSchelling/electwatch/internal/normalize"
)

// judiciaryMinBody is the smallest plausible results page.
const judiciaryMinBody = 200

// Judiciary scrapes the judiciary records portal: a paged results table of
// rulings plus one detail page per case.
type Judiciary struct {
	cfg    config.Judiciary
	client *fetch.Client
	log    logger.Logger
}

// NewJudiciary creates the judiciary adapter.
func NewJudiciary(cfg config.Judiciary, userAgent string, deps Deps) *Judiciary {
	deps = deps.withDefaults()
	return &Judiciary{
		cfg:    cfg,
		client: deps.client(SourceJudiciary, cfg.Fetch, userAgent, judiciaryMinBody),
		log:    deps.Logger,
	}
}

func (j *Judiciary) Name() Source { return SourceJudiciary }

// FetchList reads result pages until there is no next link or max_pages.
func (j *Judiciary) FetchList(ctx context.Context) ([]Entry, error) {
	if j.cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: judiciary base_url is empty", ErrNotConfigured)
	}
	base, err := url.Parse(j.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("judiciary base_url: %w", err)
	}

	var entries []Entry
	for page := 1; j.cfg.MaxPages <= 0 || page <= j.cfg.MaxPages; page++ {
		pageURL := strings.TrimRight(j.cfg.BaseURL, "/") + "/sentencias?pagina=" + strconv.Itoa(page)
		resp, err := j.client.Get(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("judiciary page %d: %w", page, err)
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			return nil, fetch.ParseError(err, pageURL)
		}

		rows := doc.Find("table.resultados tbody tr")
		rows.Each(func(i int, row *goquery.Selection) {
			entries = append(entries, parseJudiciaryRow(base, page, i, row))
		})

		j.log.Debug("Fetched judiciary page", logger.Int("page", page), logger.Int("rows", rows.Length()))

		if rows.Length() == 0 || doc.Find("a.siguiente, a[rel='next']").Length() == 0 {
			break
		}
	}
	return entries, nil
}

func parseJudiciaryRow(base *url.URL, page, index int, row *goquery.Selection) Entry {
	rec := &SentenceRecord{
		CaseNumber:    cellText(row, "td.expediente"),
		CandidateName: cellText(row, "td.nombre"),
		NationalID:    cellText(row, "td.documento"),
		Offense:       cellText(row, "td.delito"),
		Status:        cellText(row, "td.estado"),
		Kind:          parseSentenceKind(cellText(row, "td.materia")),
	}
	e := Entry{ID: rec.CaseNumber, Data: rec}

	if rec.CaseNumber == "" || rec.CandidateName == "" {
		e.Err = fmt.Errorf("%w: judiciary row %d on page %d lacks case number or name", ErrShape, index+1, page)
		return e
	}
	if rec.Kind == "" {
		e.Err = fmt.Errorf("%w: judiciary case %s has unknown matter", ErrShape, rec.CaseNumber)
		return e
	}
	if href, ok := row.Find("td.expediente a").Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			e.URL = base.ResolveReference(ref).String()
			rec.URL = e.URL
		}
	}
	return e
}

// FetchDetail reads the case page for court, ruling and date. Cases without
// a detail link keep their list data.
func (j *Judiciary) FetchDetail(ctx context.Context, e Entry) (Entry, error) {
	rec, ok := e.Data.(*SentenceRecord)
	if !ok {
		return e, fmt.Errorf("%w: judiciary entry %s", ErrShape, e.ID)
	}
	if e.URL == "" {
		return e, nil
	}

	resp, err := j.client.Get(ctx, e.URL)
	if err != nil {
		return e, fmt.Errorf("judiciary detail %s: %w", e.ID, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return e, fetch.ParseError(err, e.URL)
	}

	doc.Find("dl.detalle dt").Each(func(_ int, dt *goquery.Selection) {
		value := strings.TrimSpace(dt.NextFiltered("dd").Text())
		if value == "" {
			return
		}
		switch label := normalize.Fold(dt.Text()); {
		case strings.Contains(label, "organo"), strings.Contains(label, "juzgado"), strings.Contains(label, "sala"):
			rec.Court = value
		case strings.Contains(label, "fallo"), strings.Contains(label, "pena"):
			rec.Ruling = value
		case strings.Contains(label, "fecha"):
			rec.Date = normalizeDate(value)
		case strings.Contains(label, "delito"), strings.Contains(label, "pretension"):
			rec.Offense = value
		}
	})
	return e, nil
}

// Normalize returns the case as a SentenceRecord.
func (j *Judiciary) Normalize(e Entry) ([]Record, error) {
	rec, ok := e.Data.(*SentenceRecord)
	if !ok {
		return nil, fmt.Errorf("%w: judiciary entry %s", ErrShape, e.ID)
	}
	rec.CandidateName = cleanName(rec.CandidateName)
	return []Record{rec}, nil
}

func cellText(row *goquery.Selection, selector string) string {
	return strings.Join(strings.Fields(row.Find(selector).First().Text()), " ")
}

func parseSentenceKind(matter string) SentenceKind {
	f := normalize.Fold(matter)
	switch {
	case strings.Contains(f, "penal"):
		return SentencePenal
	case strings.Contains(f, "civil"), strings.Contains(f, "familia"), strings.Contains(f, "laboral"):
		return SentenceCivil
	}
	return ""
}
