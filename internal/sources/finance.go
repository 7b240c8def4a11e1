package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/TobiSchelling/electwatch/internal/config"
	"github.com/TobiSchelling/electwatch/internal/fetch"
)

// Finance reads the campaign-finance portal: a list of filed reports and the
// income and expense lines of each report.
type Finance struct {
	cfg    config.Finance
	client *fetch.Client
}

// NewFinance creates the finance adapter.
func NewFinance(cfg config.Finance, userAgent string, deps Deps) *Finance {
	deps = deps.withDefaults()
	return &Finance{
		cfg:    cfg,
		client: deps.client(SourceFinance, cfg.Fetch, userAgent, 2),
	}
}

func (f *Finance) Name() Source { return SourceFinance }

type financeListResponse struct {
	Reports []financeReport `json:"informes"`
}

type financeReport struct {
	ID           flexString `json:"id"`
	Organization string     `json:"organizacion"`
	Candidate    string     `json:"candidato"`
	Period       string     `json:"periodo"`
	FiledAt      string     `json:"fechaPresentacion"`
}

type financeLine struct {
	Concept     string     `json:"concepto"`
	Contributor string     `json:"aportante"`
	Supplier    string     `json:"proveedor"`
	Amount      flexFloat  `json:"monto"`
	Currency    string     `json:"moneda"`
	Date        flexString `json:"fecha"`
}

type financeDetailResponse struct {
	Income   []financeLine `json:"ingresos"`
	Expenses []financeLine `json:"gastos"`
}

type financeEntry struct {
	report financeReport
	detail *financeDetailResponse
}

// FetchList reads the reports filed for the configured process.
func (f *Finance) FetchList(ctx context.Context) ([]Entry, error) {
	if f.cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: finance base_url is empty", ErrNotConfigured)
	}
	listURL := strings.TrimRight(f.cfg.BaseURL, "/") + "/informes?proceso=" + url.QueryEscape(f.cfg.Process)

	var resp financeListResponse
	if err := f.client.GetJSON(ctx, listURL, nil, &resp); err != nil {
		return nil, fmt.Errorf("finance report list: %w", err)
	}

	entries := make([]Entry, 0, len(resp.Reports))
	for _, r := range resp.Reports {
		e := Entry{ID: string(r.ID), Data: &financeEntry{report: r}}
		if r.ID == "" || strings.TrimSpace(r.Organization) == "" {
			e.Err = fmt.Errorf("%w: finance report without id or organization", ErrShape)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// FetchDetail loads the lines of one report.
func (f *Finance) FetchDetail(ctx context.Context, e Entry) (Entry, error) {
	fe, ok := e.Data.(*financeEntry)
	if !ok {
		return e, fmt.Errorf("%w: finance entry %s", ErrShape, e.ID)
	}
	detailURL := strings.TrimRight(f.cfg.BaseURL, "/") + "/informes/" + url.PathEscape(e.ID)

	var resp financeDetailResponse
	if err := f.client.GetJSON(ctx, detailURL, nil, &resp); err != nil {
		return e, fmt.Errorf("finance report %s: %w", e.ID, err)
	}
	fe.detail = &resp
	e.URL = detailURL
	return e, nil
}

// Normalize emits one FinanceRecord per line. External IDs are derived from
// the report ID, category and line position, so re-fetching a report yields
// the same IDs.
func (f *Finance) Normalize(e Entry) ([]Record, error) {
	fe, ok := e.Data.(*financeEntry)
	if !ok || fe.detail == nil {
		return nil, fmt.Errorf("%w: finance entry %s has no detail", ErrShape, e.ID)
	}

	var records []Record
	add := func(category string, lines []financeLine) {
		for i, line := range lines {
			if line.Amount <= 0 {
				continue
			}
			contributor := strings.TrimSpace(line.Contributor)
			if contributor == "" {
				contributor = strings.TrimSpace(line.Supplier)
			}
			reportedAt := normalizeDate(string(line.Date))
			if reportedAt == "" {
				reportedAt = normalizeDate(fe.report.FiledAt)
			}
			records = append(records, &FinanceRecord{
				ExternalID:    e.ID + ":" + category + ":" + strconv.Itoa(i),
				ReportID:      e.ID,
				EntityName:    strings.TrimSpace(fe.report.Organization),
				CandidateName: cleanName(fe.report.Candidate),
				Period:        strings.TrimSpace(fe.report.Period),
				Category:      category,
				Concept:       strings.TrimSpace(line.Concept),
				Amount:        float64(line.Amount),
				Currency:      currencyOrDefault(line.Currency),
				Contributor:   contributor,
				ReportedAt:    reportedAt,
				SourceURL:     e.URL,
			})
		}
	}
	add("income", fe.detail.Income)
	add("expense", fe.detail.Expenses)
	return records, nil
}

func currencyOrDefault(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	switch c {
	case "", "S/", "SOLES":
		return "PEN"
	case "US$", "DOLARES", "DÓLARES":
		return "USD"
	}
	return c
}
