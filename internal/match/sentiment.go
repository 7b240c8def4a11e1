package match

import (
	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/lexicon"
	"github.com/TobiSchelling/electwatch/internal/normalize"
	"github.com/TobiSchelling/electwatch/internal/sources"
)

var negative = lexicon.New(
	"denunci", "corrup", "colusi", "fraud", "sentenci", "conden", "investig",
	"sobor", "coima", "escandal", "acus", "detenid", "prision", "peculad",
	"malversa", "lavado", "delito",
)

var positive = lexicon.New(
	"propuest", "propon", "respald", "apoy", "logr", "lider", "aprob",
	"compromis", "reconoc", "alianz", "favorit", "ventaj", "inversi", "benefici",
)

// Sentiment labels the title and text of item by counting negative and
// positive stems. The larger count wins; a tie with hits on both sides is
// mixed, and no hits is neutral.
func Sentiment(item *sources.ContentItem) string {
	return SentimentOf(item.Title + " " + item.Text)
}

// SentimentOf labels free text.
func SentimentOf(text string) string {
	folded := normalize.Fold(text)
	neg, pos := negative.Count(folded), positive.Count(folded)
	switch {
	case neg > pos:
		return database.SentimentNegative
	case pos > neg:
		return database.SentimentPositive
	case neg > 0:
		return database.SentimentMixed
	default:
		return database.SentimentNeutral
	}
}
