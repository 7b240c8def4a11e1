package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// timeLayout is fixed-width UTC so TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000Z"

// Timestamp stores a time.Time as fixed-width UTC text.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// Value implements driver.Valuer.
func (t Timestamp) Value() (driver.Value, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.UTC().Format(timeLayout), nil
}

// Scan implements sql.Scanner.
func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Timestamp", src)
	}
}

func (t *Timestamp) parse(s string) error {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

// MarshalJSON renders the timestamp as RFC 3339.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// JSON stores a value as a JSON-encoded TEXT column.
// A NULL column scans to the zero value of T.
type JSON[T any] struct {
	V T
}

// Value implements driver.Valuer.
func (j JSON[T]) Value() (driver.Value, error) {
	data, err := json.Marshal(j.V)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (j *JSON[T]) Scan(src any) error {
	var zero T
	j.V = zero
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into JSON column", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &j.V)
}

// MarshalJSON renders the wrapped value.
func (j JSON[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.V)
}

// jsonArg encodes v for a nullable JSON column, returning nil for empty
// values so COALESCE keeps what is stored.
func jsonArg[T any](v []T) any {
	if len(v) == 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(data)
}

// Office is the position a candidate runs for.
type Office string

const (
	OfficePresident        Office = "president"
	OfficeVicePresident    Office = "vice-president"
	OfficeSenator          Office = "senator"
	OfficeDeputy           Office = "deputy"
	OfficeAndeanParliament Office = "andean-parliament"
)

// Valid reports whether o is a known office.
func (o Office) Valid() bool {
	switch o {
	case OfficePresident, OfficeVicePresident, OfficeSenator, OfficeDeputy, OfficeAndeanParliament:
		return true
	}
	return false
}

// RequiresDistrict reports whether candidates for o run in an electoral district.
func (o Office) RequiresDistrict() bool {
	return o == OfficeSenator || o == OfficeDeputy
}

// Party represents a political organization.
type Party struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	ShortName *string   `db:"short_name" json:"short_name,omitempty"`
	Slug      string    `db:"slug" json:"slug"`
	Color     *string   `db:"color" json:"color,omitempty"`
	CreatedAt Timestamp `db:"created_at" json:"created_at"`
	UpdatedAt Timestamp `db:"updated_at" json:"updated_at"`
}

// District is an electoral district.
type District struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Slug string `db:"slug" json:"slug"`
}

// Education is one entry of a candidate's academic record.
type Education struct {
	Level       string `json:"level"`
	Institution string `json:"institution,omitempty"`
	Degree      string `json:"degree,omitempty"`
	Year        string `json:"year,omitempty"`
}

// Experience is one entry of a candidate's work history.
type Experience struct {
	Organization string `json:"organization"`
	Position     string `json:"position,omitempty"`
	StartYear    string `json:"start_year,omitempty"`
	EndYear      string `json:"end_year,omitempty"`
}

// Trajectory is one entry of a candidate's party history.
type Trajectory struct {
	Organization string `json:"organization"`
	Role         string `json:"role,omitempty"`
	StartYear    string `json:"start_year,omitempty"`
	EndYear      string `json:"end_year,omitempty"`
}

// Sentence is a court ruling declared by or recorded against a candidate.
type Sentence struct {
	CaseNumber string `json:"case_number,omitempty"`
	Court      string `json:"court,omitempty"`
	Offense    string `json:"offense"`
	Ruling     string `json:"ruling,omitempty"`
	Date       string `json:"date,omitempty"`
	Status     string `json:"status,omitempty"`
}

// Assets is a candidate's sworn asset declaration.
type Assets struct {
	Income     float64 `json:"income"`
	RealEstate float64 `json:"real_estate"`
	Vehicles   float64 `json:"vehicles"`
	Other      float64 `json:"other"`
	Currency   string  `json:"currency,omitempty"`
	Year       string  `json:"year,omitempty"`
}

// Candidate is the canonical record of a person running for office.
type Candidate struct {
	ID             int64              `db:"id" json:"id"`
	Slug           string             `db:"slug" json:"slug"`
	FullName       string             `db:"full_name" json:"full_name"`
	Office         Office             `db:"office" json:"office"`
	PartyID        int64              `db:"party_id" json:"party_id"`
	DistrictID     *int64             `db:"district_id" json:"district_id,omitempty"`
	NationalID     *string            `db:"national_id" json:"national_id,omitempty"`
	BirthDate      *string            `db:"birth_date" json:"birth_date,omitempty"`
	PhotoURL       *string            `db:"photo_url" json:"photo_url,omitempty"`
	Education      JSON[[]Education]  `db:"education" json:"education"`
	Experience     JSON[[]Experience] `db:"experience" json:"experience"`
	Trajectory     JSON[[]Trajectory] `db:"trajectory" json:"trajectory"`
	Assets         JSON[*Assets]      `db:"assets" json:"assets"`
	PenalSentences JSON[[]Sentence]   `db:"penal_sentences" json:"penal_sentences"`
	CivilSentences JSON[[]Sentence]   `db:"civil_sentences" json:"civil_sentences"`
	IsVerified     bool               `db:"is_verified" json:"is_verified"`
	Source         string             `db:"source" json:"source"`
	CreatedAt      Timestamp          `db:"created_at" json:"created_at"`
	UpdatedAt      Timestamp          `db:"updated_at" json:"updated_at"`
}

// CandidateFields carries the values written by a create or merge.
// Nil pointers and empty slices leave the stored value untouched on update.
type CandidateFields struct {
	FullName       string
	Office         Office
	PartyID        int64
	DistrictID     *int64
	NationalID     *string
	BirthDate      *string
	PhotoURL       *string
	Education      []Education
	Experience     []Experience
	Trajectory     []Trajectory
	Assets         *Assets
	PenalSentences []Sentence
	CivilSentences []Sentence
	IsVerified     bool
	Source         string
}

// Fingerprint is the last-seen content hash of an entity from one source.
type Fingerprint struct {
	EntityType    string    `db:"entity_type"`
	EntityID      int64     `db:"entity_id"`
	Source        string    `db:"source"`
	ContentHash   string    `db:"content_hash"`
	LastCheckedAt Timestamp `db:"last_checked_at"`
	LastChangedAt Timestamp `db:"last_changed_at"`
}

// JobStatus is the lifecycle state of a sync job.
type JobStatus string

const (
	JobStarted   JobStatus = "started"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the job can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// SyncJob is one execution of one source adapter.
type SyncJob struct {
	ID           string               `db:"id" json:"id"`
	Source       string               `db:"source" json:"source"`
	Status       JobStatus            `db:"status" json:"status"`
	Processed    int                  `db:"processed" json:"processed"`
	Updated      int                  `db:"updated" json:"updated"`
	Created      int                  `db:"created" json:"created"`
	Skipped      int                  `db:"skipped" json:"skipped"`
	Metadata     JSON[map[string]any] `db:"metadata" json:"metadata"`
	ErrorMessage *string              `db:"error_message" json:"error_message,omitempty"`
	StartedAt    Timestamp            `db:"started_at" json:"started_at"`
	CompletedAt  *Timestamp           `db:"completed_at" json:"completed_at,omitempty"`
}

// JobCounts is the counter snapshot persisted with a job.
type JobCounts struct {
	Processed int
	Updated   int
	Created   int
	Skipped   int
}

// Entities are the names extracted from a mention by analysis.
type Entities struct {
	Candidates []string `json:"candidates"`
	Parties    []string `json:"parties"`
	Topics     []string `json:"topics"`
	Locations  []string `json:"locations"`
}

// MentionType distinguishes news from social mentions.
type MentionType string

const (
	MentionNews   MentionType = "news"
	MentionSocial MentionType = "social"
)

// NewsMention is a persisted news article.
type NewsMention struct {
	ID                int64           `db:"id" json:"id"`
	Source            string          `db:"source" json:"source"`
	Author            *string         `db:"author" json:"author,omitempty"`
	Title             string          `db:"title" json:"title"`
	Body              *string         `db:"body" json:"body,omitempty"`
	URL               string          `db:"url" json:"url"`
	PublishedAt       *Timestamp      `db:"published_at" json:"published_at,omitempty"`
	CandidateID       *int64          `db:"candidate_id" json:"candidate_id,omitempty"`
	PartyID           *int64          `db:"party_id" json:"party_id,omitempty"`
	Relevance         float64         `db:"relevance" json:"relevance"`
	Sentiment         string          `db:"sentiment" json:"sentiment"`
	Keywords          JSON[[]string]  `db:"keywords" json:"keywords"`
	Entities          JSON[*Entities] `db:"entities" json:"entities"`
	Summary           *string         `db:"summary" json:"summary,omitempty"`
	Topics            JSON[[]string]  `db:"topics" json:"topics"`
	IsElectionRelated *bool           `db:"is_election_related" json:"is_election_related,omitempty"`
	AnalyzedAt        *Timestamp      `db:"analyzed_at" json:"analyzed_at,omitempty"`
	CreatedAt         Timestamp       `db:"created_at" json:"created_at"`
}

// SocialMention is a persisted social or video post.
type SocialMention struct {
	ID                int64           `db:"id" json:"id"`
	Platform          string          `db:"platform" json:"platform"`
	PostID            string          `db:"post_id" json:"post_id"`
	Author            *string         `db:"author" json:"author,omitempty"`
	Text              string          `db:"text" json:"text"`
	URL               string          `db:"url" json:"url"`
	PublishedAt       *Timestamp      `db:"published_at" json:"published_at,omitempty"`
	CandidateID       *int64          `db:"candidate_id" json:"candidate_id,omitempty"`
	PartyID           *int64          `db:"party_id" json:"party_id,omitempty"`
	Relevance         float64         `db:"relevance" json:"relevance"`
	Sentiment         string          `db:"sentiment" json:"sentiment"`
	Likes             int64           `db:"likes" json:"likes"`
	Comments          int64           `db:"comments" json:"comments"`
	Shares            int64           `db:"shares" json:"shares"`
	Views             int64           `db:"views" json:"views"`
	Hashtags          JSON[[]string]  `db:"hashtags" json:"hashtags"`
	Keywords          JSON[[]string]  `db:"keywords" json:"keywords"`
	Entities          JSON[*Entities] `db:"entities" json:"entities"`
	Summary           *string         `db:"summary" json:"summary,omitempty"`
	Topics            JSON[[]string]  `db:"topics" json:"topics"`
	IsElectionRelated *bool           `db:"is_election_related" json:"is_election_related,omitempty"`
	AnalyzedAt        *Timestamp      `db:"analyzed_at" json:"analyzed_at,omitempty"`
	CreatedAt         Timestamp       `db:"created_at" json:"created_at"`
}

// MentionMatch links a mention to one matched entity.
type MentionMatch struct {
	MentionType MentionType `db:"mention_type" json:"mention_type"`
	MentionID   int64       `db:"mention_id" json:"mention_id"`
	EntityType  string      `db:"entity_type" json:"entity_type"`
	EntityID    int64       `db:"entity_id" json:"entity_id"`
	Relevance   float64     `db:"relevance" json:"relevance"`
}

// QueueStatus is the lifecycle state of an analysis queue item.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

// QueueItem is one mention waiting for AI analysis.
type QueueItem struct {
	ID          int64       `db:"id" json:"id"`
	SourceType  MentionType `db:"source_type" json:"source_type"`
	SourceID    int64       `db:"source_id" json:"source_id"`
	Priority    int         `db:"priority" json:"priority"`
	Status      QueueStatus `db:"status" json:"status"`
	Attempts    int         `db:"attempts" json:"attempts"`
	LastError   *string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   Timestamp   `db:"created_at" json:"created_at"`
	UpdatedAt   Timestamp   `db:"updated_at" json:"updated_at"`
	ProcessedAt *Timestamp  `db:"processed_at" json:"processed_at,omitempty"`
}

// QueueStats counts queue items per status.
type QueueStats struct {
	Pending    int `db:"pending" json:"pending"`
	Processing int `db:"processing" json:"processing"`
	Completed  int `db:"completed" json:"completed"`
	Failed     int `db:"failed" json:"failed"`
}

// Severity grades a flag.
type Severity string

const (
	SeverityRed   Severity = "RED"
	SeverityAmber Severity = "AMBER"
	SeverityGray  Severity = "GRAY"
)

// Sentiment labels.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
	SentimentMixed    = "mixed"
)

// Flag types.
const (
	FlagPenalSentence         = "PENAL_SENTENCE"
	FlagCivilSentence         = "CIVIL_SENTENCE"
	FlagInvestigation         = "INVESTIGATION"
	FlagPartySwitching        = "PARTY_SWITCHING"
	FlagFinancialIrregularity = "FINANCIAL_IRREGULARITY"
	FlagMisinformation        = "MISINFORMATION"
	FlagOther                 = "OTHER"
)

// ParseSeverity returns the severity named by s, or GRAY when s is not one.
func ParseSeverity(s string) Severity {
	switch sev := Severity(strings.ToUpper(strings.TrimSpace(s))); sev {
	case SeverityRed, SeverityAmber, SeverityGray:
		return sev
	}
	return SeverityGray
}

// Flag is an integrity signal attached to a candidate.
type Flag struct {
	ID          int64     `db:"id" json:"id"`
	CandidateID int64     `db:"candidate_id" json:"candidate_id"`
	Type        string    `db:"type" json:"type"`
	Severity    Severity  `db:"severity" json:"severity"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description,omitempty"`
	Source      string    `db:"source" json:"source"`
	EvidenceURL string    `db:"evidence_url" json:"evidence_url,omitempty"`
	IsVerified  bool      `db:"is_verified" json:"is_verified"`
	CapturedAt  Timestamp `db:"captured_at" json:"captured_at"`
}

// FinanceRecord is one income or expense line of a campaign-finance report.
type FinanceRecord struct {
	ID          int64     `db:"id" json:"id"`
	Source      string    `db:"source" json:"source"`
	ExternalID  string    `db:"external_id" json:"external_id"`
	PartyID     *int64    `db:"party_id" json:"party_id,omitempty"`
	CandidateID *int64    `db:"candidate_id" json:"candidate_id,omitempty"`
	EntityName  string    `db:"entity_name" json:"entity_name"`
	Period      *string   `db:"period" json:"period,omitempty"`
	Category    string    `db:"category" json:"category"`
	Concept     *string   `db:"concept" json:"concept,omitempty"`
	Amount      float64   `db:"amount" json:"amount"`
	Currency    string    `db:"currency" json:"currency"`
	Contributor *string   `db:"contributor" json:"contributor,omitempty"`
	ReportedAt  *string   `db:"reported_at" json:"reported_at,omitempty"`
	SourceURL   *string   `db:"source_url" json:"source_url,omitempty"`
	CreatedAt   Timestamp `db:"created_at" json:"created_at"`
}

// Stats holds row counts for the status view.
type Stats struct {
	Parties        int `db:"parties"`
	Candidates     int `db:"candidates"`
	NewsMentions   int `db:"news_mentions"`
	SocialMentions int `db:"social_mentions"`
	Flags          int `db:"flags"`
	FinanceRecords int `db:"finance_records"`
	QueuePending   int `db:"queue_pending"`
}
