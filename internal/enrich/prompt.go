package enrich

import (
	"fmt"
	"strings"
	"time"
)

const analysisPrompt = `You analyze Peruvian election coverage for a candidate transparency monitor.

Read the item below and describe it. Only report flags for concrete allegations or facts about a named candidate, never for opinions.

Title: %s
Source: %s
Date: %s
Content:
%s

Respond with ONLY this JSON:
{
    "sentiment": "positive" | "negative" | "neutral" | "mixed",
    "sentimentScore": -1.0 to 1.0,
    "relevance": 0.0 to 1.0,
    "summary": "One or two sentences in Spanish",
    "entities": {
        "candidates": ["full names"],
        "parties": ["party names"],
        "topics": ["short topics"],
        "locations": ["places"]
    },
    "flags": [
        {"type": "LEGAL_ISSUE" | "CIVIL_CASE" | "CORRUPTION" | "PARTY_SWITCH" | "FINANCIAL" | "MISINFORMATION" | "OTHER", "severity": "RED" | "AMBER" | "GRAY", "reason": "What the item says"}
    ],
    "keyPhrases": ["phrase"],
    "isElectionRelated": true | false
}`

// Input is the content sent for analysis.
type Input struct {
	Title  string
	Body   string
	Source string
	Date   *time.Time
}

// BuildPrompt renders the analysis prompt, truncating the body to maxChars runes.
func BuildPrompt(in Input, maxChars int) string {
	date := "unknown"
	if in.Date != nil && !in.Date.IsZero() {
		date = in.Date.UTC().Format("2006-01-02")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "(none)"
	}
	body := strings.TrimSpace(in.Body)
	if maxChars > 0 {
		body = truncateRunes(body, maxChars)
	}
	return fmt.Sprintf(analysisPrompt, title, in.Source, date, body)
}
