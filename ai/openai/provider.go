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
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/graphrag/ai"
)

// Provider serves embeddings and extractions from OpenAI-compatible
// endpoints described by one ai.Config.
type Provider struct {
	embedder  *Embedder
	extractor *Extractor
}

var _ ai.AIProvider = (*Provider)(nil)

// NewProvider validates config and builds both clients. No request is made
// until the first embedding or extraction.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if config == nil {
		return nil, errors.New("openai: nil config")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	extractor, err := newExtractor(config)
	if err != nil {
		return nil, fmt.Errorf("openai extractor: %w", err)
	}

	slog.Debug("openai provider ready",
		"embedding_host", config.EmbeddingHost,
		"embedding_model", config.EmbeddingModel,
		"extractor_host", config.ExtractorHost,
		"extractor_model", config.ExtractorModel)
	return &Provider{embedder: embedder, extractor: extractor}, nil
}

func (p *Provider) Embedder() ai.Embedder { return p.embedder }

func (p *Provider) Extractor() ai.EntityExtractor { return p.extractor }

// Close is a no-op; the HTTP clients hold no resources that need releasing.
func (p *Provider) Close() error {
	return nil
}
