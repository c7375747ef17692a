package ingestion

import "errors"

var (
	// ErrVectorStoreRequired is returned when a vector store is not provided.
	ErrVectorStoreRequired = errors.New("vector store required")

	// ErrGraphStoreRequired is returned when a graph store is not provided.
	ErrGraphStoreRequired = errors.New("graph store required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrResolverRequired is returned when a builder has no resolver.
	ErrResolverRequired = errors.New("resolver required")

	// ErrDocumentIDRequired is returned when IngestDocument gets a blank id.
	ErrDocumentIDRequired = errors.New("document id required")

	// ErrEmbeddingMismatch is returned when the embedder returns the wrong
	// number of vectors.
	ErrEmbeddingMismatch = errors.New("embedding result mismatch")
)
