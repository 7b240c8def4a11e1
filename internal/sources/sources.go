// Package sources fetches and normalizes the external sources electwatch
// tracks. Every source implements Adapter; a Dispatcher selects one by name.
package sources

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/TobiSchelling/electwatch/internal/database"
)

// Source identifies an external source.
type Source string

const (
	SourceRegistry   Source = "registry"
	SourceJudiciary  Source = "judiciary"
	SourceFinance    Source = "finance"
	SourceNewsRSS    Source = "news-rss"
	SourceNewsSearch Source = "news-search"
	SourceYouTube    Source = "youtube"
	SourceX          Source = "x"
	SourceTikTok     Source = "tiktok"
)

// All lists every known source in sync order.
var All = []Source{
	SourceRegistry, SourceJudiciary, SourceFinance,
	SourceNewsRSS, SourceNewsSearch,
	SourceYouTube, SourceX, SourceTikTok,
}

var (
	// ErrUnknownSource is returned for a source name no adapter handles.
	ErrUnknownSource = errors.New("unknown source")
	// ErrNotConfigured is returned when a source lacks credentials or endpoints.
	ErrNotConfigured = errors.New("source not configured")
	// ErrShape marks an entry whose payload is missing expected data.
	ErrShape = errors.New("unexpected payload shape")
)

// ParseSource validates a source name.
func ParseSource(name string) (Source, error) {
	for _, s := range All {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, name)
}

// Entry is one item discovered by FetchList. Data holds adapter-specific
// payload carried through FetchDetail to Normalize. Err is set for list rows
// that could not be read; such entries are counted and skipped.
type Entry struct {
	ID   string
	URL  string
	Data any
	Err  error
}

// Adapter fetches one external source and normalizes it.
type Adapter interface {
	Name() Source
	FetchList(ctx context.Context) ([]Entry, error)
	FetchDetail(ctx context.Context, e Entry) (Entry, error)
	Normalize(e Entry) ([]Record, error)
}

// Record is a normalized item: *RegistryRecord, *SentenceRecord,
// *FinanceRecord or *ContentItem.
type Record interface {
	record()
}

// RegistryRecord is a candidate as published by the official registry.
type RegistryRecord struct {
	ExternalID     string                `json:"external_id"`
	FullName       string                `json:"full_name"`
	Office         database.Office       `json:"office"`
	PartyName      string                `json:"party"`
	DistrictName   string                `json:"district,omitempty"`
	NationalID     string                `json:"national_id,omitempty"`
	BirthDate      string                `json:"birth_date,omitempty"`
	PhotoURL       string                `json:"photo_url,omitempty"`
	Education      []database.Education  `json:"education,omitempty"`
	Experience     []database.Experience `json:"experience,omitempty"`
	Trajectory     []database.Trajectory `json:"trajectory,omitempty"`
	Assets         *database.Assets      `json:"assets,omitempty"`
	PenalSentences []database.Sentence   `json:"penal_sentences,omitempty"`
	CivilSentences []database.Sentence   `json:"civil_sentences,omitempty"`
	SourceURL      string                `json:"source_url,omitempty"`
	FetchedAt      time.Time             `json:"fetched_at"`
}

// SentenceKind distinguishes criminal from civil rulings.
type SentenceKind string

const (
	SentencePenal SentenceKind = "penal"
	SentenceCivil SentenceKind = "civil"
)

// SentenceRecord is a ruling found on the judiciary portal.
type SentenceRecord struct {
	CandidateName string
	NationalID    string
	Kind          SentenceKind
	CaseNumber    string
	Court         string
	Offense       string
	Ruling        string
	Date          string
	Status        string
	URL           string
}

// FinanceRecord is one income or expense line of a campaign-finance report.
type FinanceRecord struct {
	ExternalID    string
	ReportID      string
	EntityName    string
	CandidateName string
	Period        string
	Category      string
	Concept       string
	Amount        float64
	Currency      string
	Contributor   string
	ReportedAt    string
	SourceURL     string
}

// ContentItem is a news article or social post before matching.
type ContentItem struct {
	Kind        database.MentionType
	Source      string
	Platform    string
	PostID      string
	Author      string
	Title       string
	Text        string
	URL         string
	PublishedAt *time.Time
	Likes       int64
	Comments    int64
	Shares      int64
	Views       int64
	Hashtags    []string
	// Relevance is set by social adapters; news relevance comes from matching.
	Relevance float64
}

func (*RegistryRecord) record() {}
func (*SentenceRecord) record() {}
func (*FinanceRecord) record()  {}
func (*ContentItem) record()    {}

// Dispatcher selects an adapter by source name.
type Dispatcher struct {
	adapters map[Source]Adapter
}

// NewDispatcher registers adapters by their Name.
func NewDispatcher(adapters ...Adapter) *Dispatcher {
	d := &Dispatcher{adapters: make(map[Source]Adapter, len(adapters))}
	for _, a := range adapters {
		d.adapters[a.Name()] = a
	}
	return d
}

// Get returns the adapter for s.
func (d *Dispatcher) Get(s Source) (Adapter, error) {
	a, ok := d.adapters[s]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, s)
	}
	return a, nil
}

// Sources lists registered sources in sync order.
func (d *Dispatcher) Sources() []Source {
	out := make([]Source, 0, len(d.adapters))
	for s := range d.adapters {
		out = append(out, s)
	}
	order := make(map[Source]int, len(All))
	for i, s := range All {
		order[s] = i
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out
}
