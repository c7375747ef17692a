package ai

import "context"

// Embedder maps text into the vector space used for chunk retrieval.
// Queries and chunks must be embedded by the same model to be comparable.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts returns one vector per input, in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// EntityExtractor reads a passage and reports the entities and relations
// it mentions.
//
// The result is unvalidated model output. Types and labels may fall outside
// the taxonomy and confidences may be absent or out of range; callers
// filter and clamp. Transport failures wrap core.ErrServiceUnavailable and
// replies that never parse wrap core.ErrMalformedExtraction.
type EntityExtractor interface {
	Extract(ctx context.Context, req ExtractionRequest) (*Extraction, error)
}

// AIProvider hands out the model services that share one configuration.
// All services are safe for concurrent use. Close releases the services.
type AIProvider interface {
	Embedder() Embedder
	Extractor() EntityExtractor
	Close() error
}
