package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/graphrag/ai"
	"github.com/poiesic/graphrag/ai/mock"
	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/metrics"
	"github.com/poiesic/graphrag/storage"
	"github.com/poiesic/graphrag/storage/badger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agronomyExtractor() *mock.MockExtractor {
	return mock.NewMockExtractor().
		WithTerm("wheat", "Crop").
		WithTerm("rust", "Disease").
		WithTerm("fungicide X", "Input").
		WithRelation("rust", "AFFECTS", "wheat").
		WithRelation("rust", "TREATED_BY", "fungicide X")
}

func setupPipeline(t *testing.T, embedder *mock.MockEmbedder, extractor *mock.MockExtractor, opts ...Option) (*Pipeline, *badger.MemoryStores) {
	t.Helper()
	stores := badger.NewMemoryStores(t)
	provider := mock.NewMockProviderWithServices(embedder, extractor)
	p, err := NewPipeline(stores.Vectors, stores.Graph, provider, append([]Option{WithPoolSize(4)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p, stores
}

func TestNewPipeline_RequiresArguments(t *testing.T) {
	stores := badger.NewMemoryStores(t)
	provider := mock.NewMockProvider()

	_, err := NewPipeline(nil, stores.Graph, provider)
	assert.ErrorIs(t, err, ErrVectorStoreRequired)
	_, err = NewPipeline(stores.Vectors, nil, provider)
	assert.ErrorIs(t, err, ErrGraphStoreRequired)
	_, err = NewPipeline(stores.Vectors, stores.Graph, nil)
	assert.ErrorIs(t, err, ErrAIProviderRequired)
}

func TestIngestDocument_WheatRustScenario(t *testing.T) {
	p, stores := setupPipeline(t, mock.NewMockEmbedder(), agronomyExtractor())
	ctx := context.Background()

	report, err := p.IngestDocument(ctx, "bulletin-7", []core.Chunk{
		{Id: "chunk1", Text: "Stem rust is a fungal disease that affects wheat in cool seasons."},
		{Id: "chunk2", Text: "Wheat growers control rust with fungicide X at flag leaf."},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Failures)
	assert.Equal(t, "bulletin-7", report.DocumentId)
	assert.NotEmpty(t, report.RunId)
	assert.Equal(t, 2, report.ChunksProcessed)
	assert.Equal(t, 3, report.EntitiesCreated)
	assert.Equal(t, 2, report.EdgesCreated)

	stats, err := stores.Graph.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EntitiesByType[core.EntityTypeCrop])
	assert.Equal(t, 1, stats.EntitiesByType[core.EntityTypeDisease])
	assert.Equal(t, 1, stats.EntitiesByType[core.EntityTypeInput])
	assert.Equal(t, 1, stats.EdgesByLabel[core.RelationAffects])
	assert.Equal(t, 1, stats.EdgesByLabel[core.RelationTreatedBy])

	wheat, err := stores.Graph.GetEntity(ctx, core.EntityID(core.EntityTypeCrop, "wheat"))
	require.NoError(t, err)
	assert.True(t, strings.EqualFold("wheat", wheat.Name))
	require.Len(t, wheat.Provenance, 2)
	for _, prov := range wheat.Provenance {
		assert.Equal(t, "bulletin-7", prov.DocumentId)
		assert.Equal(t, report.RunId, prov.RunId)
	}

	fungicide, err := stores.Graph.FindByAlias(ctx, core.EntityTypeInput, "fungicide x")
	require.NoError(t, err)
	assert.Equal(t, "fungicide X", fungicide.Name)

	// Both chunks are stored with embeddings.
	count, err := stores.Vectors.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	chunk, err := stores.Vectors.GetChunk(ctx, "chunk1")
	require.NoError(t, err)
	assert.Equal(t, "bulletin-7", chunk.DocumentId)
	assert.Len(t, chunk.Vector, mock.Dimensions)
}

func TestIngestDocument_IsIdempotent(t *testing.T) {
	p, stores := setupPipeline(t, mock.NewMockEmbedder(), agronomyExtractor())
	ctx := context.Background()
	chunks := []core.Chunk{{Id: "c1", Text: "Rust affects wheat."}}

	_, err := p.IngestDocument(ctx, "doc", chunks)
	require.NoError(t, err)
	second, err := p.IngestDocument(ctx, "doc", chunks)
	require.NoError(t, err)
	assert.Equal(t, 0, second.EntitiesCreated)
	assert.Equal(t, 0, second.EdgesCreated)

	wheat, err := stores.Graph.GetEntity(ctx, core.EntityID(core.EntityTypeCrop, "wheat"))
	require.NoError(t, err)
	assert.Len(t, wheat.Provenance, 1)
}

func TestIngestDocument_FailuresAreIsolated(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if strings.Contains(texts[0], "embed-fails") {
			return nil, core.ErrServiceUnavailable
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.BagOfWords(text, mock.Dimensions)
		}
		return out, nil
	}

	extractor := agronomyExtractor()
	fallback := agronomyExtractor()
	extractor.ExtractFunc = func(ctx context.Context, req ai.ExtractionRequest) (*ai.Extraction, error) {
		if strings.Contains(req.Text, "extract-fails") {
			return nil, errors.New("connection refused")
		}
		return fallback.Extract(ctx, req)
	}

	collector := metrics.NewCollector("test", prometheus.NewRegistry())
	p, stores := setupPipeline(t, embedder, extractor, WithMetrics(collector))
	ctx := context.Background()

	report, err := p.IngestDocument(ctx, "doc", []core.Chunk{
		{Id: "ok", Text: "Rust affects wheat."},
		{Id: "bad-embed", Text: "embed-fails wheat"},
		{Id: "bad-extract", Text: "extract-fails rust"},
		{Id: "blank", Text: "   "},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.ChunksProcessed)
	require.Len(t, report.Failures, 3)

	byChunk := make(map[string]ChunkFailure)
	for _, f := range report.Failures {
		byChunk[f.ChunkId] = f
	}
	assert.Equal(t, StageEmbed, byChunk["bad-embed"].Stage)
	assert.ErrorIs(t, byChunk["bad-embed"].Err, core.ErrServiceUnavailable)
	assert.Equal(t, StageExtract, byChunk["bad-extract"].Stage)
	assert.ErrorIs(t, byChunk["bad-extract"], core.ErrServiceUnavailable)
	assert.Equal(t, StageValidate, byChunk["blank"].Stage)
	assert.ErrorIs(t, byChunk["blank"].Err, core.ErrInvalidChunk)

	// The chunk that failed extraction was already stored and stays.
	_, err = stores.Vectors.GetChunk(ctx, "bad-extract")
	assert.NoError(t, err)
	_, err = stores.Vectors.GetChunk(ctx, "bad-embed")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Failures come back in input order.
	assert.Equal(t, "bad-embed", report.Failures[0].ChunkId)
	assert.Equal(t, "blank", report.Failures[2].ChunkId)
}

func TestIngestDocument_InvalidArguments(t *testing.T) {
	p, _ := setupPipeline(t, mock.NewMockEmbedder(), agronomyExtractor())

	_, err := p.IngestDocument(context.Background(), "  ", nil)
	assert.ErrorIs(t, err, ErrDocumentIDRequired)

	report, err := p.IngestDocument(context.Background(), "empty", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.ChunksProcessed)
	assert.False(t, report.Failed())
}

func TestIngestDocument_CancelledContext(t *testing.T) {
	p, _ := setupPipeline(t, mock.NewMockEmbedder(), agronomyExtractor())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.IngestDocument(ctx, "doc", []core.Chunk{{Id: "c1", Text: "wheat"}})
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, StageSchedule, report.Failures[0].Stage)
	assert.ErrorIs(t, report.Failures[0].Err, context.Canceled)
}

func TestRunIDContext(t *testing.T) {
	assert.Equal(t, "", RunIDFromContext(context.Background()))
	assert.Equal(t, "r", RunIDFromContext(ContextWithRunID(context.Background(), "r")))
}
