package mock

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/poiesic/graphrag/ai"
)

// Relation is a scripted relation emitted when both endpoints occur in the text.
type Relation struct {
	From, To, Type string
}

// MockExtractor is a test double for ai.EntityExtractor.
//
// By default it reports every lexicon term found in the text (case-insensitive,
// as written in the text)
// with the configured confidence, plus every scripted relation whose endpoints
// were both found.
type MockExtractor struct {
	// ExtractFunc is called by Extract if set.
	ExtractFunc func(ctx context.Context, req ai.ExtractionRequest) (*ai.Extraction, error)

	lexicon    map[string]string
	order      []string
	relations  []Relation
	confidence float64

	callCount atomic.Int64
}

// NewMockExtractor creates a mock extractor with an empty lexicon.
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{
		lexicon:    make(map[string]string),
		confidence: 0.9,
	}
}

// WithTerm adds a term and its entity type to the lexicon.
func (m *MockExtractor) WithTerm(term, entityType string) *MockExtractor {
	if _, ok := m.lexicon[term]; !ok {
		m.order = append(m.order, term)
	}
	m.lexicon[term] = entityType
	return m
}

// WithRelation scripts a relation between two lexicon terms.
func (m *MockExtractor) WithRelation(from, label, to string) *MockExtractor {
	m.relations = append(m.relations, Relation{From: from, To: to, Type: label})
	return m
}

// WithConfidence sets the confidence reported for every item.
func (m *MockExtractor) WithConfidence(c float64) *MockExtractor {
	m.confidence = c
	return m
}

// Extract runs ExtractFunc or the lexicon scan.
func (m *MockExtractor) Extract(ctx context.Context, req ai.ExtractionRequest) (*ai.Extraction, error) {
	m.callCount.Add(1)

	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lower := strings.ToLower(req.Text)
	found := make(map[string]bool)
	out := &ai.Extraction{}
	for _, term := range m.order {
		idx := strings.Index(lower, strings.ToLower(term))
		if idx < 0 {
			continue
		}
		found[term] = true
		// Report the span as written when lowering kept byte offsets.
		name := term
		if len(lower) == len(req.Text) {
			name = req.Text[idx : idx+len(term)]
		}
		out.Entities = append(out.Entities, ai.ExtractedEntity{
			Name:       name,
			Type:       m.lexicon[term],
			Confidence: ai.Confidence(m.confidence),
		})
	}
	for _, rel := range m.relations {
		if found[rel.From] && found[rel.To] {
			out.Relations = append(out.Relations, ai.ExtractedRelation{
				From:       rel.From,
				To:         rel.To,
				Type:       rel.Type,
				Confidence: ai.Confidence(m.confidence),
			})
		}
	}
	return out, nil
}

// CallCount returns the number of times Extract was called.
func (m *MockExtractor) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom function.
func (m *MockExtractor) Reset() {
	m.callCount.Store(0)
	m.ExtractFunc = nil
}
