package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/graphrag/ai"
	"github.com/poiesic/graphrag/ai/mock"
	"github.com/poiesic/graphrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scripted(out *ai.Extraction, err error) *mock.MockExtractor {
	m := mock.NewMockExtractor()
	m.ExtractFunc = func(ctx context.Context, req ai.ExtractionRequest) (*ai.Extraction, error) {
		return out, err
	}
	return m
}

var chunk = core.Chunk{Id: "doc-0", DocumentId: "doc", Text: "Stem rust affects Wheat in Punjab."}

func TestNewExtractor_RequiresBackend(t *testing.T) {
	_, err := NewExtractor(nil)
	assert.ErrorIs(t, err, ErrExtractorRequired)
}

func TestExtract_ValidatesAgainstTaxonomy(t *testing.T) {
	backend := scripted(&ai.Extraction{
		Entities: []ai.ExtractedEntity{
			{Name: "stem rust", Type: "disease", Confidence: ai.Confidence(0.9)},
			{Name: "wheat", Type: "Crops"},
			{Name: "Punjab", Type: "Region", Confidence: ai.Confidence(1.7)},
			{Name: "farmer", Type: "Person", Confidence: ai.Confidence(0.9)},
			{Name: "", Type: "Crop"},
			{Name: "tractor", Type: "Input", Confidence: ai.Confidence(0.1)},
		},
		Relations: []ai.ExtractedRelation{
			{From: "stem rust", To: "wheat", Type: "affects"},
			{From: "stem rust", To: "Punjab", Type: "occurs in", Confidence: ai.Confidence(0.6)},
			{From: "stem rust", To: "wheat", Type: "EATS"},
			{From: "farmer", To: "wheat", Type: "GROWN_IN"},
			{From: "tractor", To: "wheat", Type: "APPLIED_TO"},
		},
	}, nil)
	extractor, err := NewExtractor(backend)
	require.NoError(t, err)

	result, err := extractor.Extract(context.Background(), chunk)
	require.NoError(t, err)

	require.Len(t, result.Mentions, 3)
	assert.Equal(t, core.EntityTypeDisease, result.Mentions[0].Type)
	assert.Equal(t, 0, result.Mentions[0].Offset)
	assert.Equal(t, core.EntityTypeCrop, result.Mentions[1].Type)
	assert.Equal(t, DefaultConfidence, result.Mentions[1].Confidence)
	assert.Equal(t, 18, result.Mentions[1].Offset)
	assert.Equal(t, 1.0, result.Mentions[2].Confidence)
	assert.Equal(t, "doc-0", result.Mentions[2].ChunkId)

	require.Len(t, result.Relations, 2)
	assert.Equal(t, core.RelationAffects, result.Relations[0].Label)
	assert.Equal(t, 0, result.Relations[0].Subject)
	assert.Equal(t, 1, result.Relations[0].Object)
	assert.Equal(t, core.RelationOccursIn, result.Relations[1].Label)
	assert.Equal(t, 0.6, result.Relations[1].Confidence)

	// farmer, empty name, tractor; EATS, farmer edge, tractor edge
	assert.Equal(t, 6, result.Dropped)
}

func TestExtract_DuplicateMentionKeepsHighestConfidence(t *testing.T) {
	backend := scripted(&ai.Extraction{
		Entities: []ai.ExtractedEntity{
			{Name: "wheat", Type: "Crop", Confidence: ai.Confidence(0.5)},
			{Name: "Wheat", Type: "Crop", Confidence: ai.Confidence(0.8), Description: "a cereal"},
		},
	}, nil)
	extractor, err := NewExtractor(backend)
	require.NoError(t, err)

	result, err := extractor.Extract(context.Background(), chunk)
	require.NoError(t, err)
	require.Len(t, result.Mentions, 1)
	assert.Equal(t, 0.8, result.Mentions[0].Confidence)
	assert.Equal(t, "a cereal", result.Mentions[0].Description)
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{"malformed passes through", core.ErrMalformedExtraction, core.ErrMalformedExtraction},
		{"unavailable passes through", core.ErrServiceUnavailable, core.ErrServiceUnavailable},
		{"other errors become unavailable", errors.New("boom"), core.ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor, err := NewExtractor(scripted(nil, tt.err))
			require.NoError(t, err)
			_, err = extractor.Extract(context.Background(), chunk)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestExtract_Timeout(t *testing.T) {
	backend := mock.NewMockExtractor()
	backend.ExtractFunc = func(ctx context.Context, req ai.ExtractionRequest) (*ai.Extraction, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	extractor, err := NewExtractor(backend, WithTimeout(10*time.Millisecond))
	require.NoError(t, err)

	_, err = extractor.Extract(context.Background(), chunk)
	assert.ErrorIs(t, err, core.ErrServiceUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExtract_BlankChunkSkipsBackend(t *testing.T) {
	backend := mock.NewMockExtractor()
	extractor, err := NewExtractor(backend)
	require.NoError(t, err)

	result, err := extractor.Extract(context.Background(), core.Chunk{Id: "x", Text: "  "})
	require.NoError(t, err)
	assert.Empty(t, result.Mentions)
	assert.Zero(t, backend.CallCount())
}

func TestExtract_PassesVocabulary(t *testing.T) {
	var got ai.ExtractionRequest
	backend := mock.NewMockExtractor()
	backend.ExtractFunc = func(ctx context.Context, req ai.ExtractionRequest) (*ai.Extraction, error) {
		got = req
		return &ai.Extraction{}, nil
	}
	extractor, err := NewExtractor(backend)
	require.NoError(t, err)

	_, err = extractor.Extract(context.Background(), chunk)
	require.NoError(t, err)
	assert.Contains(t, got.EntityTypes, "Crop")
	assert.Contains(t, got.Relations, "TREATED_BY")
	assert.Equal(t, chunk.Text, got.Text)
}
