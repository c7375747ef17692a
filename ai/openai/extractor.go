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

package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"
	"github.com/poiesic/graphrag/ai"
	"github.com/poiesic/graphrag/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Extractor implements ai.EntityExtractor using OpenAI-compatible chat APIs.
type Extractor struct {
	client      llms.Model
	maxAttempts int
	logger      *slog.Logger
}

// entity and relation mirror the JSON the model is asked to produce.
type entity struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Confidence  *float64 `json:"confidence"`
}

type relation struct {
	From       string   `json:"from"`
	To         string   `json:"to"`
	Type       string   `json:"type"`
	Confidence *float64 `json:"confidence"`
}

type extraction struct {
	Entities  []entity   `json:"entities"`
	Relations []relation `json:"relations"`
}

// newExtractor is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newExtractor(config *ai.Config) (*Extractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ExtractorHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.ExtractorModel),
	)
	if err != nil {
		return nil, err
	}

	return newExtractorWithModel(client, config.MaxAttempts), nil
}

func newExtractorWithModel(client llms.Model, maxAttempts int) *Extractor {
	return &Extractor{
		client:      client,
		maxAttempts: maxAttempts,
		logger:      slog.Default().With("component", "openai-extractor"),
	}
}

// NewExtractor creates a new entity extractor using the provided configuration.
//
// Returns ai.EntityExtractor interface to enforce abstraction.
func NewExtractor(config *ai.Config) (ai.EntityExtractor, error) {
	return newExtractor(config)
}

// Extract asks the model for entities and relations in req.Text.
// Malformed JSON is retried up to the configured number of attempts.
func (e *Extractor) Extract(ctx context.Context, req ai.ExtractionRequest) (*ai.Extraction, error) {
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(buildSystemPrompt(req.EntityTypes, req.Relations)),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(req.Text),
			},
		},
	}

	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		response, err := e.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			e.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return nil, fmt.Errorf("%w: %w", core.ErrServiceUnavailable, err)
		}

		if len(response.Choices) < 1 {
			e.logger.Debug("no choices returned from model")
			return &ai.Extraction{}, nil
		}

		result, err := parseExtraction(response.Choices[0].Content)
		if err != nil {
			lastErr = err
			e.logger.Warn("error parsing extractor response",
				"attempt", attempt+1,
				"response", response.Choices[0].Content,
				"err", err)
			continue
		}

		e.logger.Debug("extracted",
			"entities", len(result.Entities),
			"relations", len(result.Relations))
		return result, nil
	}

	e.logger.Error("failed to parse extractor response after retries", "err", lastErr)
	return nil, fmt.Errorf("%w: %w", core.ErrMalformedExtraction, lastErr)
}

// parseExtraction strips code fences, repairs common defects and decodes
// the model response.
func parseExtraction(raw string) (*ai.Extraction, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = repairJSON(strings.TrimSpace(text))

	var result extraction
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, err
	}

	out := &ai.Extraction{
		Entities:  make([]ai.ExtractedEntity, 0, len(result.Entities)),
		Relations: make([]ai.ExtractedRelation, 0, len(result.Relations)),
	}
	for _, ent := range result.Entities {
		out.Entities = append(out.Entities, ai.ExtractedEntity{
			Name:        strings.TrimSpace(ent.Name),
			Type:        strings.TrimSpace(ent.Type),
			Description: strings.TrimSpace(ent.Description),
			Confidence:  ent.Confidence,
		})
	}
	for _, rel := range result.Relations {
		out.Relations = append(out.Relations, ai.ExtractedRelation{
			From:       strings.TrimSpace(rel.From),
			To:         strings.TrimSpace(rel.To),
			Type:       strings.TrimSpace(rel.Type),
			Confidence: rel.Confidence,
		})
	}
	return out, nil
}
