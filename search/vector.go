package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/poiesic/graphrag/ai"
	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/metrics"
	"github.com/poiesic/graphrag/storage"
)

// DefaultCacheEntries bounds the query embedding cache.
const DefaultCacheEntries = 1024

// VectorRetriever ranks stored chunks by similarity to the query embedding.
type VectorRetriever struct {
	store    storage.VectorStore
	embedder ai.Embedder
	cache    *ristretto.Cache[string, []float32]
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// VectorOption configures a VectorRetriever.
type VectorOption func(*VectorRetriever)

// WithVectorMetrics records cache lookups on c.
func WithVectorMetrics(c *metrics.Collector) VectorOption {
	return func(r *VectorRetriever) {
		r.metrics = c
	}
}

// WithVectorLogger sets a custom logger.
func WithVectorLogger(logger *slog.Logger) VectorOption {
	return func(r *VectorRetriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewVectorRetriever creates a VectorRetriever with an embedding cache of
// cacheEntries queries. Zero or less disables the cache.
func NewVectorRetriever(store storage.VectorStore, embedder ai.Embedder, cacheEntries int, opts ...VectorOption) (*VectorRetriever, error) {
	if store == nil {
		return nil, ErrVectorStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	r := &VectorRetriever{
		store:    store,
		embedder: embedder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "vector-retriever")

	if cacheEntries > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
			NumCounters:        int64(cacheEntries) * 10,
			MaxCost:            int64(cacheEntries),
			BufferItems:        64,
			IgnoreInternalCost: true,
		})
		if err != nil {
			return nil, err
		}
		r.cache = cache
	}
	return r, nil
}

// Retrieve returns up to k chunks matching filter, ranked 1..n by cosine
// similarity. Fewer than k results means the index holds fewer matches.
func (r *VectorRetriever) Retrieve(ctx context.Context, text string, k int, filter core.MetadataFilter) ([]core.RetrievalResult, error) {
	if k <= 0 {
		return nil, nil
	}
	vector, err := r.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	matches, err := r.store.Nearest(ctx, vector, k, filter)
	if err != nil {
		r.logger.Error("error querying for similar chunks", "err", err)
		return nil, serviceErr(err)
	}

	results := make([]core.RetrievalResult, len(matches))
	for i, match := range matches {
		chunk := match.Chunk
		results[i] = core.RetrievalResult{
			Source:   core.SourceVector,
			Content:  chunk.Text,
			RawScore: float64(match.Score),
			Rank:     i + 1,
			Key:      chunk.Id,
			ChunkId:  chunk.Id,
			Metadata: chunk.Metadata,
			Provenance: []core.Provenance{{
				DocumentId: chunk.DocumentId,
				ChunkId:    chunk.Id,
				Page:       chunk.Page,
				Offset:     chunk.Offset,
				Confidence: float64(match.Score),
			}},
		}
	}
	r.logger.Debug("vector retrieval", "k", k, "results", len(results))
	return results, nil
}

// embed returns the query embedding, from the cache when possible.
func (r *VectorRetriever) embed(ctx context.Context, text string) ([]float32, error) {
	key := strings.Join(strings.Fields(text), " ")
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			r.metrics.CacheLookup(true)
			return v, nil
		}
		r.metrics.CacheLookup(false)
	}

	vector, err := r.embedder.EmbedText(ctx, key)
	if err != nil {
		r.logger.Error("error generating embedding for query", "err", err)
		return nil, serviceErr(err)
	}
	if r.cache != nil {
		r.cache.Set(key, vector, 1)
	}
	return vector, nil
}

// Close releases the cache.
func (r *VectorRetriever) Close() {
	if r.cache != nil {
		r.cache.Close()
	}
}

// serviceErr marks err as ServiceUnavailable unless it is a context error.
func serviceErr(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isServiceErr(err) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrServiceUnavailable, err)
}
