package reembed

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrVectorStoreRequired is returned when no chunk store is supplied.
	ErrVectorStoreRequired = errors.New("vector store required")

	// ErrEmbedderRequired is returned when no embedder is supplied.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrBuilderRequired is returned when a rebuild lacks an extractor or builder.
	ErrBuilderRequired = errors.New("extractor and builder required")

	// ErrDimensionMismatch is returned when a batch yields vectors of
	// different lengths.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
