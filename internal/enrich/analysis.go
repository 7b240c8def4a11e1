package enrich

import (
	"math"
	"strings"

	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/llm"
)

const (
	maxSummaryRunes = 600
	maxListItems    = 20
	maxFlags        = 5
)

// FlagSignal is an integrity concern reported by the analysis service.
type FlagSignal struct {
	Type     string
	Severity database.Severity
	Reason   string
}

// Analysis is the validated output of the analysis service.
type Analysis struct {
	Sentiment         string
	SentimentScore    float64
	Relevance         float64
	Summary           string
	Entities          database.Entities
	Flags             []FlagSignal
	KeyPhrases        []string
	IsElectionRelated bool
}

// DefaultAnalysis is used when the service output cannot be parsed.
func DefaultAnalysis() Analysis {
	return Analysis{
		Sentiment: database.SentimentNeutral,
		Relevance: 0.5,
		Entities: database.Entities{
			Candidates: []string{},
			Parties:    []string{},
			Topics:     []string{},
			Locations:  []string{},
		},
		Flags:      []FlagSignal{},
		KeyPhrases: []string{},
	}
}

// ParseAnalysis validates a raw service reply field by field. Missing or
// malformed fields keep their defaults. ok is false when the reply holds no
// JSON object at all.
func ParseAnalysis(raw string) (a Analysis, ok bool) {
	a = DefaultAnalysis()
	data := llm.ParseJSONResponse(raw)
	if data == nil {
		return a, false
	}

	if s, valid := stringField(data, "sentiment"); valid {
		switch s = strings.ToLower(s); s {
		case database.SentimentPositive, database.SentimentNegative, database.SentimentNeutral, database.SentimentMixed:
			a.Sentiment = s
		}
	}
	if f, valid := numberField(data, "sentimentScore"); valid {
		a.SentimentScore = clamp(f, -1, 1)
	}
	if f, valid := numberField(data, "relevance"); valid {
		a.Relevance = clamp(f, 0, 1)
	}
	if s, valid := stringField(data, "summary"); valid {
		a.Summary = truncateRunes(s, maxSummaryRunes)
	}
	if b, valid := data["isElectionRelated"].(bool); valid {
		a.IsElectionRelated = b
	}
	a.KeyPhrases = stringList(data["keyPhrases"])

	if ents, valid := data["entities"].(map[string]any); valid {
		a.Entities.Candidates = stringList(ents["candidates"])
		a.Entities.Parties = stringList(ents["parties"])
		a.Entities.Topics = stringList(ents["topics"])
		a.Entities.Locations = stringList(ents["locations"])
	}

	if flags, valid := data["flags"].([]any); valid {
		for _, f := range flags {
			m, isMap := f.(map[string]any)
			if !isMap {
				continue
			}
			typ, _ := stringField(m, "type")
			if typ == "" {
				continue
			}
			sev, _ := stringField(m, "severity")
			reason, _ := stringField(m, "reason")
			a.Flags = append(a.Flags, FlagSignal{
				Type:     MapFlagType(typ),
				Severity: database.ParseSeverity(sev),
				Reason:   truncateRunes(reason, maxSummaryRunes),
			})
			if len(a.Flags) == maxFlags {
				break
			}
		}
	}
	return a, true
}

func stringField(m map[string]any, key string) (string, bool) {
	s, ok := m[key].(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(s), true
}

func numberField(m map[string]any, key string) (float64, bool) {
	f, ok := m[key].(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// stringList keeps the distinct non-empty strings of a JSON array.
func stringList(v any) []string {
	out := []string{}
	items, ok := v.([]any)
	if !ok {
		return out
	}
	seen := make(map[string]bool)
	for _, it := range items {
		s, isString := it.(string)
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if !isString || s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if len(out) == maxListItems {
			break
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
