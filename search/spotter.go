package search

import (
	"context"
	"errors"
	"strings"

	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/extraction"
	"github.com/poiesic/graphrag/resolve"
	"github.com/poiesic/graphrag/storage"
)

// Spotter finds canonical entities mentioned in text without changing the
// registry.
type Spotter interface {
	Spot(ctx context.Context, text string) ([]*core.CanonicalEntity, error)
}

// DefaultMaxNGram is the longest word sequence the NGramSpotter tries.
const DefaultMaxNGram = 3

// NGramSpotter looks every 1..MaxN word sequence of the text up in the
// registry. Longer sequences are tried first so that "stem rust" wins over
// "rust" when both are known.
type NGramSpotter struct {
	resolver *resolve.Resolver
	maxN     int
}

var _ Spotter = (*NGramSpotter)(nil)

// NewNGramSpotter creates an n-gram spotter over resolver.
func NewNGramSpotter(resolver *resolve.Resolver, maxN int) *NGramSpotter {
	if maxN <= 0 {
		maxN = DefaultMaxNGram
	}
	return &NGramSpotter{resolver: resolver, maxN: maxN}
}

// Spot returns the distinct entities found, in order of first match.
func (s *NGramSpotter) Spot(ctx context.Context, text string) ([]*core.CanonicalEntity, error) {
	reader := s.resolver.Reader()
	words := tokenize(text)
	covered := make([]bool, len(words))
	seen := make(map[core.ID]bool)
	var found []*core.CanonicalEntity

	for n := min(s.maxN, len(words)); n >= 1; n-- {
		for i := 0; i+n <= len(words); i++ {
			if anyCovered(covered[i : i+n]) {
				continue
			}
			gram := words[i : i+n]
			if isStopWord(gram[0]) || isStopWord(gram[n-1]) {
				continue
			}
			entities, err := reader.LookupAny(ctx, strings.Join(gram, " "))
			if err != nil {
				return nil, err
			}
			if len(entities) == 0 {
				continue
			}
			for j := i; j < i+n; j++ {
				covered[j] = true
			}
			for _, e := range entities {
				if !seen[e.Id] {
					seen[e.Id] = true
					found = append(found, e)
				}
			}
		}
	}
	return found, nil
}

func anyCovered(flags []bool) bool {
	for _, f := range flags {
		if f {
			return true
		}
	}
	return false
}

// ExtractorSpotter runs the entity extractor over the query and looks each
// typed mention up read-only.
type ExtractorSpotter struct {
	extractor *extraction.Extractor
	resolver  *resolve.Resolver
}

var _ Spotter = (*ExtractorSpotter)(nil)

// NewExtractorSpotter creates a spotter backed by the LLM extractor.
func NewExtractorSpotter(extractor *extraction.Extractor, resolver *resolve.Resolver) *ExtractorSpotter {
	return &ExtractorSpotter{extractor: extractor, resolver: resolver}
}

// Spot extracts mentions from text and returns those that resolve.
// Mentions that do not resolve are dropped.
func (s *ExtractorSpotter) Spot(ctx context.Context, text string) ([]*core.CanonicalEntity, error) {
	result, err := s.extractor.Extract(ctx, core.Chunk{Id: "query", Text: text})
	if err != nil {
		return nil, err
	}
	reader := s.resolver.Reader()
	seen := make(map[core.ID]bool)
	var found []*core.CanonicalEntity
	for _, m := range result.Mentions {
		entity, err := reader.Lookup(ctx, m.Text, m.Type)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !seen[entity.Id] {
			seen[entity.Id] = true
			found = append(found, entity)
		}
	}
	return found, nil
}
