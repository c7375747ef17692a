package resolve

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"
)

// Similarity scores two normalized keys on [0,1]; 1 means identical.
type Similarity func(a, b string) float64

// EditSimilarity is 1 - levenshtein(a,b) / max(len(a), len(b)), counted in runes.
func EditSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// JaroWinklerSimilarity favors keys sharing a prefix, which suits product
// names with trailing formulation codes.
func JaroWinklerSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	return smetrics.JaroWinkler(a, b, 0.7, 4)
}
