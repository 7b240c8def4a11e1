package llm

import (
	"encoding/json"
	"strings"
)

// ParseJSONResponse decodes the JSON object in a model reply. Markdown fences
// and prose around the object are tolerated; nil means nothing decodable.
func ParseJSONResponse(text string) map[string]any {
	body := unfence(strings.TrimSpace(text))
	if body == "" {
		return nil
	}

	var obj map[string]any
	if json.Unmarshal([]byte(body), &obj) == nil {
		return obj
	}

	open, closing := strings.IndexByte(body, '{'), strings.LastIndexByte(body, '}')
	if open < 0 || closing <= open {
		return nil
	}
	obj = nil
	if json.Unmarshal([]byte(body[open:closing+1]), &obj) != nil {
		return nil
	}
	return obj
}

// unfence returns the content of a ```-fenced block, or s unchanged.
func unfence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	_, rest, found := strings.Cut(s, "\n")
	if !found {
		// Single line such as ```{"a":1}```.
		return strings.Trim(strings.TrimPrefix(strings.TrimPrefix(s, "```json"), "```"), "`")
	}
	if i := strings.LastIndex(rest, "```"); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}
