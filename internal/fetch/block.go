package fetch

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"
)

// blockMarkers appear on anti-bot challenge and denial pages.
var blockMarkers = []string{
	"captcha",
	"cf-challenge",
	"cf-browser-verification",
	"just a moment",
	"attention required",
	"incapsula",
	"access denied",
	"recaptcha",
	"hcaptcha",
	"request unsuccessful",
	"are you a robot",
}

// challengePageMax bounds the size of pages scanned for markers in the body.
// Larger pages are only checked by title.
const challengePageMax = 32 * 1024

// garbledRatio is the share of replacement or control runes that marks a
// body as unreadable.
const garbledRatio = 0.10

// DetectBlock inspects a response body and reports why it looks like a block
// page or unusable garbage. minLen is the smallest plausible body length.
func DetectBlock(body []byte, minLen int) (string, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) < minLen {
		return "response too short", true
	}
	if looksJSON(trimmed) {
		return "", false
	}

	lower := strings.ToLower(string(trimmed))
	title := htmlTitle(lower)
	for _, marker := range blockMarkers {
		if strings.Contains(title, marker) {
			return "challenge page: " + marker, true
		}
		if len(lower) <= challengePageMax && strings.Contains(lower, marker) {
			return "challenge page: " + marker, true
		}
	}

	if garbled(trimmed) {
		return "garbled response", true
	}
	return "", false
}

func looksJSON(b []byte) bool {
	return len(b) > 0 && (b[0] == '{' || b[0] == '[')
}

func htmlTitle(lower string) string {
	start := strings.Index(lower, "<title")
	if start < 0 {
		return ""
	}
	open := strings.Index(lower[start:], ">")
	if open < 0 {
		return ""
	}
	rest := lower[start+open+1:]
	end := strings.Index(rest, "</title>")
	if end < 0 {
		return ""
	}
	return rest[:end]
}

func garbled(b []byte) bool {
	total, bad := 0, 0
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		total++
		if r == utf8.RuneError || (unicode.IsControl(r) && !unicode.IsSpace(r)) {
			bad++
		}
	}
	return total > 0 && float64(bad)/float64(total) > garbledRatio
}
