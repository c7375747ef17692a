package mock

import (
	"sync/atomic"

	"github.com/poiesic/graphrag/ai"
)

// MockProvider pairs a MockEmbedder with a MockExtractor and records
// whether it was closed.
type MockProvider struct {
	embedder  *MockEmbedder
	extractor *MockExtractor
	closed    atomic.Bool
}

var _ ai.AIProvider = (*MockProvider)(nil)

// NewMockProvider returns a provider with an empty lexicon and bag-of-words
// embeddings.
func NewMockProvider() ai.AIProvider {
	return NewMockProviderWithServices(nil, nil)
}

// NewMockProviderWithServices wires the given doubles. A nil argument is
// replaced with a fresh default.
func NewMockProviderWithServices(embedder *MockEmbedder, extractor *MockExtractor) ai.AIProvider {
	if embedder == nil {
		embedder = NewMockEmbedder()
	}
	if extractor == nil {
		extractor = NewMockExtractor()
	}
	return &MockProvider{embedder: embedder, extractor: extractor}
}

func (p *MockProvider) Embedder() ai.Embedder { return p.embedder }
func (p *MockProvider) Extractor() ai.EntityExtractor { return p.extractor }

// Close marks the provider closed. It is safe to call more than once.
func (p *MockProvider) Close() error {
	p.closed.Store(true)
	return nil
}

// Closed reports whether Close has been called.
func (p *MockProvider) Closed() bool {
	return p.closed.Load()
}

// GetMockEmbedder exposes the embedder for call-count assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockExtractor exposes the extractor for call-count assertions.
func (p *MockProvider) GetMockExtractor() *MockExtractor {
	return p.extractor
}
