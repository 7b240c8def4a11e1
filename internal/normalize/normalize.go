// Package normalize folds names and free text into comparable forms and
// computes content fingerprints.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, strips diacritics, turns punctuation into spaces and
// collapses whitespace. "José  MARÍA-Pérez" becomes "jose maria perez".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case r == '#' || r == '@':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens returns the folded whitespace-separated tokens of s.
func Tokens(s string) []string {
	return strings.Fields(Fold(s))
}

// Slug builds a URL-safe identifier: "Ana Torres" -> "ana-torres".
func Slug(s string) string {
	f := strings.NewReplacer("#", "", "@", "").Replace(Fold(s))
	return strings.Join(strings.Fields(f), "-")
}

// ContainsPhrase reports whether the folded phrase occurs in folded text on
// token boundaries. Both arguments must already be folded.
func ContainsPhrase(text, phrase string) bool {
	return PhraseIndex(text, phrase) >= 0
}

// PhraseIndex returns the byte offset of phrase in text on token boundaries,
// or -1. A leading '#' or '@' on a token also counts as a boundary, so
// "#ana torres" contains "ana torres". Both arguments must already be folded.
func PhraseIndex(text, phrase string) int {
	if phrase == "" || text == "" {
		return -1
	}
	padded := " " + text + " "
	target := phrase + " "
	for from := 1; from < len(padded); {
		i := strings.Index(padded[from:], target)
		if i < 0 {
			return -1
		}
		i += from
		switch padded[i-1] {
		case ' ':
			return i - 1
		case '#', '@':
			if i >= 2 && padded[i-2] == ' ' {
				return i - 1
			}
		}
		from = i + 1
	}
	return -1
}

// Hash returns the hex sha256 of the canonical JSON encoding of v.
// Struct field order makes the encoding deterministic; maps are sorted by
// encoding/json.
func Hash(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashStrings hashes the given parts joined by a separator that cannot
// appear in folded text.
func HashStrings(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}
