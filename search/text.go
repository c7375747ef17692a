package search

import (
	"errors"
	"strings"

	"github.com/poiesic/graphrag/core"
)

// Stop words never start or end a spotted phrase
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "what": true, "which": true, "how": true,
	"does": true, "can": true, "should": true, "when": true, "where": true,
	"why": true, "who": true, "my": true, "i": true, "or": true, "use": true,
	"used": true, "best": true, "most": true, "many": true, "much": true,
}

// tokenize splits text into lowercased words with surrounding punctuation trimmed.
func tokenize(text string) []string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"()[]{}"))
		if cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

func isStopWord(word string) bool {
	return stopWords[word]
}

func isServiceErr(err error) bool {
	return errors.Is(err, core.ErrServiceUnavailable)
}
