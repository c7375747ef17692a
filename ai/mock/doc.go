// Package mock provides test double implementations of AI service interfaces.
//
// The mocks let tests and offline demos run without a model server:
//
//   - MockEmbedder: hashed bag-of-words vectors, so overlapping texts are similar
//   - MockExtractor: lexicon lookup plus scripted relations
//   - MockProvider: aggregates mock embedder and extractor
//
// # Usage in Tests
//
//	extractor := mock.NewMockExtractor().
//	    WithTerm("wheat", "Crop").
//	    WithTerm("rust", "Disease").
//	    WithRelation("rust", "AFFECTS", "wheat")
//	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(), extractor)
//
// Custom behavior can be injected with ExtractFunc or EmbedTextFunc, and
// CallCount reports how often a service was used.
package mock
