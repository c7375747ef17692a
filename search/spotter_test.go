package search

import (
	"context"
	"strings"
	"testing"

	"github.com/poiesic/graphrag/ai"
	"github.com/poiesic/graphrag/ai/mock"
	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/extraction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"how", "is", "rust", "on", "wheat", "treated"},
		tokenize("How is rust on wheat treated?"))
	assert.Empty(t, tokenize(" ... !! "))
}

func TestNGramSpotter(t *testing.T) {
	f := seedCorpus(t)
	s := NewNGramSpotter(f.resolver, 0)
	ctx := context.Background()

	t.Run("finds entities in order", func(t *testing.T) {
		found, err := s.Spot(ctx, "How is rust on wheat treated?")
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, core.EntityTypeDisease, found[0].Type)
		assert.Equal(t, core.EntityTypeCrop, found[1].Type)
		assert.Equal(t, []string{"rust", "wheat"}, names(found))
	})

	t.Run("multi-word names", func(t *testing.T) {
		found, err := s.Spot(ctx, "when to apply fungicide x")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, core.EntityTypeInput, found[0].Type)
		assert.True(t, strings.EqualFold("fungicide X", found[0].Name))
	})

	t.Run("deduplicates", func(t *testing.T) {
		found, err := s.Spot(ctx, "rust, rust and more rust")
		require.NoError(t, err)
		assert.Len(t, found, 1)
	})

	t.Run("nothing known", func(t *testing.T) {
		found, err := s.Spot(ctx, "what is the best time for this")
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("does not mint", func(t *testing.T) {
		_, err := s.Spot(ctx, "sorghum and millet")
		require.NoError(t, err)
		count, err := f.stores.Graph.CountType(ctx, core.EntityTypeCrop)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestExtractorSpotter(t *testing.T) {
	f := seedCorpus(t)
	extractor, err := extraction.NewExtractor(agronomyExtractor().WithTerm("maize", "Crop"))
	require.NoError(t, err)
	s := NewExtractorSpotter(extractor, f.resolver)

	found, err := s.Spot(context.Background(), "Does rust affect wheat and maize?")
	require.NoError(t, err)
	assert.Equal(t, []string{"wheat", "rust"}, names(found))
}

func TestExtractorSpotter_ServiceFailure(t *testing.T) {
	f := seedCorpus(t)
	backend := mock.NewMockExtractor()
	backend.ExtractFunc = func(ctx context.Context, _ ai.ExtractionRequest) (*ai.Extraction, error) {
		return nil, context.DeadlineExceeded
	}
	extractor, err := extraction.NewExtractor(backend)
	require.NoError(t, err)

	_, err = NewExtractorSpotter(extractor, f.resolver).Spot(context.Background(), "rust on wheat")
	assert.ErrorIs(t, err, core.ErrServiceUnavailable)
}
