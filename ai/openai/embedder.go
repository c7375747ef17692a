package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/graphrag/ai"
	"github.com/poiesic/graphrag/core"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// embedBatchSize caps how many texts go into one /embeddings request.
const embedBatchSize = 64

// Embedder implements ai.Embedder on an OpenAI-compatible embeddings API.
type Embedder struct {
	client embeddings.Embedder
	logger *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	llm, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.APIKey),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}
	client, err := embeddings.NewEmbedder(llm,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(embedBatchSize),
	)
	if err != nil {
		return nil, err
	}

	return &Embedder{
		client: client,
		logger: slog.Default().With("component", "openai-embedder", "model", config.EmbeddingModel),
	}, nil
}

// NewEmbedder builds a standalone embedder, for example to re-embed the
// corpus with a model other than the provider's.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText embeds a single query or passage.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.client.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Error("embedding failed", "chars", len(text), "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrServiceUnavailable, err)
	}
	return vector, nil
}

// EmbedTexts embeds texts in order. A response with a different number of
// vectors than inputs is treated as a service failure.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := e.client.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("batch embedding failed", "count", len(texts), "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrServiceUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %d embeddings for %d texts", core.ErrServiceUnavailable, len(vectors), len(texts))
	}
	e.logger.Debug("embedded batch", "count", len(texts))
	return vectors, nil
}
