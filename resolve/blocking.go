package resolve

import (
	"strings"

	"github.com/xrash/smetrics"
)

// BlockKeys returns the blocking keys of a normalized key: its first token,
// the Soundex code of the first token and the Soundex code of the whole key.
// Keys that may match fuzzily usually share at least one block.
func BlockKeys(key string) []string {
	tokens := strings.Fields(key)
	if len(tokens) == 0 {
		return nil
	}
	blocks := []string{"t:" + tokens[0]}
	if letters := asciiLetters(tokens[0]); letters != "" {
		blocks = append(blocks, "s:"+smetrics.Soundex(letters))
	}
	if letters := asciiLetters(key); letters != "" {
		blocks = append(blocks, "w:"+smetrics.Soundex(letters))
	}
	return blocks
}
