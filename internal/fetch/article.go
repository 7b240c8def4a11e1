package fetch

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// minArticleText is the shortest extracted text treated as an article.
const minArticleText = 100

// ExtractArticle returns the readable main text of an HTML page, or "" when
// nothing article-like could be recovered.
func ExtractArticle(body []byte, pageURL string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parsing page url: %w", err)
	}
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return "", ParseError(err, pageURL)
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) < minArticleText {
		return "", nil
	}
	return text, nil
}
