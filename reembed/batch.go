package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/graphrag/ai"
	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/storage"
)

// BatchProcessor embeds batches of chunks and writes them back.
type BatchProcessor struct {
	store          storage.VectorStore
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for embedding API calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(store storage.VectorStore, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		store:          store,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds the text of each chunk, normalizes the vectors and upserts
// the chunks. All vectors of a batch must share one dimension.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embeddings, err := Retry(ctx, bp.maxRetries, bp.retryBaseDelay, func(ctx context.Context) ([][]float32, error) {
		return bp.embedder.EmbedTexts(ctx, texts)
	})
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(embeddings))
	}

	dim := len(embeddings[0])
	for i := range chunks {
		if len(embeddings[i]) != dim || dim == 0 {
			return fmt.Errorf("%w: chunk %s has %d dimensions, batch has %d",
				ErrDimensionMismatch, chunks[i].Id, len(embeddings[i]), dim)
		}
		chunks[i].Vector = NormalizeVector(embeddings[i])
	}

	if err := bp.store.UpsertChunks(ctx, chunks...); err != nil {
		return fmt.Errorf("failed to update chunks: %w", err)
	}
	return nil
}
