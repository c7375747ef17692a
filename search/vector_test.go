package search

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/graphrag/ai/mock"
	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVectorRetriever(t *testing.T) {
	stores := badger.NewMemoryStores(t)

	_, err := NewVectorRetriever(nil, mock.NewMockEmbedder(), 0)
	assert.ErrorIs(t, err, ErrVectorStoreRequired)
	_, err = NewVectorRetriever(stores.Vectors, nil, 0)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	r, err := NewVectorRetriever(stores.Vectors, mock.NewMockEmbedder(), 0)
	require.NoError(t, err)
	assert.Nil(t, r.cache)
	r.Close()
}

func TestVectorRetriever_Retrieve(t *testing.T) {
	f := seedCorpus(t)
	r := f.vectorRetriever(t, nil)
	ctx := context.Background()

	t.Run("ranks by similarity", func(t *testing.T) {
		results, err := r.Retrieve(ctx, "fungicide for wheat rust", 2, nil)
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, "bulletin-1#1", results[0].ChunkId)
		assert.Equal(t, "bulletin-1#0", results[1].ChunkId)
		for i, res := range results {
			assert.Equal(t, core.SourceVector, res.Source)
			assert.Equal(t, i+1, res.Rank)
			assert.Equal(t, res.ChunkId, res.Key)
			require.Len(t, res.Provenance, 1)
			assert.Equal(t, "bulletin-1", res.Provenance[0].DocumentId)
		}
		assert.GreaterOrEqual(t, results[0].RawScore, results[1].RawScore)
		assert.Equal(t, corpus[1].Text, results[0].Content)
		assert.Equal(t, 66, results[0].Provenance[0].Offset)
	})

	t.Run("fewer matches than k", func(t *testing.T) {
		results, err := r.Retrieve(ctx, "wheat", 10, nil)
		require.NoError(t, err)
		assert.Len(t, results, len(corpus))
	})

	t.Run("metadata filter", func(t *testing.T) {
		results, err := r.Retrieve(ctx, "wheat rust", 5, core.MetadataFilter{"region": "rajasthan"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "bulletin-2#0", results[0].ChunkId)
		assert.Equal(t, "rajasthan", results[0].Metadata["region"])
	})

	t.Run("non-positive k", func(t *testing.T) {
		results, err := r.Retrieve(ctx, "wheat", 0, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestVectorRetriever_CachesQueryEmbeddings(t *testing.T) {
	f := seedCorpus(t)
	embedder := mock.NewMockEmbedder()
	r := f.vectorRetriever(t, embedder)
	ctx := context.Background()

	_, err := r.Retrieve(ctx, "wheat rust", 3, nil)
	require.NoError(t, err)
	r.cache.Wait()

	// Whitespace differences share an entry.
	_, err = r.Retrieve(ctx, "  wheat   rust ", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.CallCount())

	_, err = r.Retrieve(ctx, "fungicide", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, embedder.CallCount())
}

func TestVectorRetriever_EmbedderFailure(t *testing.T) {
	f := seedCorpus(t)
	embedder := mock.NewMockEmbedder()
	down := errors.New("connection refused")
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, down
	}
	r := f.vectorRetriever(t, embedder)

	_, err := r.Retrieve(context.Background(), "wheat", 3, nil)
	assert.ErrorIs(t, err, core.ErrServiceUnavailable)
	assert.ErrorIs(t, err, down)
}
