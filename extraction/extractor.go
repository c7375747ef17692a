// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package extraction turns a chunk into validated entity mentions and
// relations. Model output is checked against the taxonomy here and nowhere
// else: anything outside it is dropped with a warning, never returned.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/graphrag/ai"
	"github.com/poiesic/graphrag/core"
)

const (
	// DefaultMinConfidence drops mentions the model is unsure about.
	DefaultMinConfidence = 0.3
	// DefaultConfidence is assigned when the model omits a confidence.
	DefaultConfidence = 0.75
	// DefaultTimeout bounds one extraction call.
	DefaultTimeout = 60 * time.Second
)

// ErrExtractorRequired is returned when no backend is supplied.
var ErrExtractorRequired = errors.New("entity extractor is required")

// Relation links two mentions of the same Result by index.
type Relation struct {
	Subject    int
	Object     int
	Label      core.RelationLabel
	Confidence float64
}

// Result is the validated output for one chunk.
type Result struct {
	Mentions  []core.EntityMention
	Relations []Relation
	// Dropped counts entities and relations rejected at validation.
	Dropped int
}

// Extractor validates ai.EntityExtractor output against a taxonomy.
type Extractor struct {
	backend           ai.EntityExtractor
	taxonomy          core.Taxonomy
	minConfidence     float64
	defaultConfidence float64
	timeout           time.Duration
	logger            *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTaxonomy replaces the default agricultural taxonomy.
func WithTaxonomy(t core.Taxonomy) Option {
	return func(e *Extractor) {
		e.taxonomy = t
	}
}

// WithMinConfidence sets the confidence below which mentions are dropped.
func WithMinConfidence(c float64) Option {
	return func(e *Extractor) {
		e.minConfidence = c
	}
}

// WithDefaultConfidence sets the confidence used when the model omits one.
func WithDefaultConfidence(c float64) Option {
	return func(e *Extractor) {
		e.defaultConfidence = c
	}
}

// WithTimeout bounds each backend call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		e.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// NewExtractor creates an Extractor over backend.
func NewExtractor(backend ai.EntityExtractor, opts ...Option) (*Extractor, error) {
	if backend == nil {
		return nil, ErrExtractorRequired
	}
	e := &Extractor{
		backend:           backend,
		taxonomy:          core.DefaultTaxonomy(),
		minConfidence:     DefaultMinConfidence,
		defaultConfidence: DefaultConfidence,
		timeout:           DefaultTimeout,
		logger:            slog.Default().With("component", "extractor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Taxonomy returns the taxonomy output is validated against.
func (e *Extractor) Taxonomy() core.Taxonomy {
	return e.taxonomy
}

// Extract runs the backend on chunk.Text and validates the result.
// A chunk with blank text yields an empty result without a backend call.
func (e *Extractor) Extract(ctx context.Context, chunk core.Chunk) (*Result, error) {
	if strings.TrimSpace(chunk.Text) == "" {
		return &Result{}, nil
	}
	raw, err := e.ExtractText(ctx, chunk.Text)
	if err != nil {
		return nil, err
	}
	return e.validate(chunk, raw), nil
}

// ExtractText calls the backend with the taxonomy vocabulary and returns the
// raw, unvalidated output.
func (e *Extractor) ExtractText(ctx context.Context, text string) (*ai.Extraction, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	raw, err := e.backend.Extract(ctx, ai.ExtractionRequest{
		Text:        text,
		EntityTypes: e.taxonomy.EntityTypeNames(),
		Relations:   e.taxonomy.RelationNames(),
	})
	if err != nil {
		if errors.Is(err, core.ErrServiceUnavailable) || errors.Is(err, core.ErrMalformedExtraction) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrServiceUnavailable, err)
	}
	if raw == nil {
		return &ai.Extraction{}, nil
	}
	return raw, nil
}

func (e *Extractor) validate(chunk core.Chunk, raw *ai.Extraction) *Result {
	result := &Result{}
	byName := make(map[string]int)

	for _, ent := range raw.Entities {
		name := strings.TrimSpace(ent.Name)
		entityType, ok := e.taxonomy.ParseEntityType(ent.Type)
		if name == "" || !ok {
			e.logger.Warn("dropping entity outside taxonomy",
				"chunk", chunk.Id, "name", ent.Name, "type", ent.Type)
			result.Dropped++
			continue
		}

		confidence := e.confidence(ent.Confidence)
		if confidence < e.minConfidence {
			e.logger.Debug("dropping low confidence entity",
				"chunk", chunk.Id, "name", name, "confidence", confidence)
			result.Dropped++
			continue
		}

		key := strings.ToLower(name)
		if idx, seen := byName[key]; seen {
			// Same surface form twice: keep the more confident reading.
			if confidence > result.Mentions[idx].Confidence {
				result.Mentions[idx].Confidence = confidence
				result.Mentions[idx].Type = entityType
				if ent.Description != "" {
					result.Mentions[idx].Description = ent.Description
				}
			}
			continue
		}

		mention := core.EntityMention{
			Text:        name,
			Type:        entityType,
			ChunkId:     chunk.Id,
			Confidence:  confidence,
			Offset:      indexFold(chunk.Text, name),
			Description: strings.TrimSpace(ent.Description),
		}
		if err := core.ValidateMention(&mention, e.taxonomy); err != nil {
			e.logger.Warn("dropping invalid mention", "chunk", chunk.Id, "err", err)
			result.Dropped++
			continue
		}
		byName[key] = len(result.Mentions)
		result.Mentions = append(result.Mentions, mention)
	}

	seen := make(map[string]bool)
	for _, rel := range raw.Relations {
		label, ok := e.taxonomy.ParseRelation(rel.Type)
		if !ok {
			e.logger.Warn("dropping relation outside vocabulary",
				"chunk", chunk.Id, "type", rel.Type)
			result.Dropped++
			continue
		}
		subject, okS := byName[strings.ToLower(strings.TrimSpace(rel.From))]
		object, okO := byName[strings.ToLower(strings.TrimSpace(rel.To))]
		if !okS || !okO {
			e.logger.Warn("dropping relation with unknown endpoint",
				"chunk", chunk.Id, "from", rel.From, "to", rel.To, "type", rel.Type)
			result.Dropped++
			continue
		}

		key := fmt.Sprintf("%d-%s-%d", subject, label, object)
		if seen[key] {
			continue
		}
		seen[key] = true
		result.Relations = append(result.Relations, Relation{
			Subject:    subject,
			Object:     object,
			Label:      label,
			Confidence: e.confidence(rel.Confidence),
		})
	}
	return result
}

func (e *Extractor) confidence(c *float64) float64 {
	if c == nil {
		return e.defaultConfidence
	}
	return min(max(*c, 0), 1)
}

// indexFold returns the byte offset of the first case-insensitive match of
// sub in s, or -1.
func indexFold(s, sub string) int {
	lower := strings.ToLower(s)
	if len(lower) == len(s) {
		return strings.Index(lower, strings.ToLower(sub))
	}
	return strings.Index(s, sub)
}
