package search

import (
	"context"
	"testing"

	"github.com/poiesic/graphrag/ai/mock"
	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/ingestion"
	"github.com/poiesic/graphrag/resolve"
	"github.com/poiesic/graphrag/storage/badger"
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

var corpus = []core.Chunk{
	{
		Id: "bulletin-1#0", DocumentId: "bulletin-1",
		Text:     "Stem rust is a fungal disease that affects wheat in cool seasons.",
		Metadata: map[string]string{"region": "punjab"},
	},
	{
		Id: "bulletin-1#1", DocumentId: "bulletin-1", Offset: 66,
		Text:     "Wheat growers control rust with fungicide X at flag leaf.",
		Metadata: map[string]string{"region": "punjab"},
	},
	{
		Id: "bulletin-2#0", DocumentId: "bulletin-2",
		Text:     "Drip irrigation saves water in dry regions.",
		Metadata: map[string]string{"region": "rajasthan"},
	},
}

type fixture struct {
	stores   *badger.MemoryStores
	resolver *resolve.Resolver
}

// seedCorpus ingests the corpus one chunk at a time so entity names are
// taken from the first chunk.
func seedCorpus(t *testing.T) *fixture {
	t.Helper()
	stores := badger.NewMemoryStores(t)
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(), agronomyExtractor())
	p, err := ingestion.NewPipeline(stores.Vectors, stores.Graph, provider, ingestion.WithPoolSize(2))
	require.NoError(t, err)
	t.Cleanup(p.Release)

	for _, chunk := range corpus {
		report, err := p.IngestDocument(context.Background(), chunk.DocumentId, []core.Chunk{chunk})
		require.NoError(t, err)
		require.Empty(t, report.Failures)
	}
	return &fixture{stores: stores, resolver: p.Resolver()}
}

func (f *fixture) vectorRetriever(t *testing.T, embedder *mock.MockEmbedder) *VectorRetriever {
	t.Helper()
	if embedder == nil {
		embedder = mock.NewMockEmbedder()
	}
	r, err := NewVectorRetriever(f.stores.Vectors, embedder, 16)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func (f *fixture) graphRetriever(t *testing.T, spotter Spotter, opts ...GraphOption) *GraphRetriever {
	t.Helper()
	if spotter == nil {
		spotter = NewNGramSpotter(f.resolver, 0)
	}
	r, err := NewGraphRetriever(f.stores.Graph, spotter, opts...)
	require.NoError(t, err)
	return r
}

// funcSpotter adapts a function to Spotter.
type funcSpotter func(ctx context.Context, text string) ([]*core.CanonicalEntity, error)

func (f funcSpotter) Spot(ctx context.Context, text string) ([]*core.CanonicalEntity, error) {
	return f(ctx, text)
}

// blockingSpotter waits for cancellation.
var blockingSpotter = funcSpotter(func(ctx context.Context, _ string) ([]*core.CanonicalEntity, error) {
	<-ctx.Done()
	return nil, ctx.Err()
})

func names(entities []*core.CanonicalEntity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Name
	}
	return out
}
