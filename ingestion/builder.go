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

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/extraction"
	"github.com/poiesic/graphrag/metrics"
	"github.com/poiesic/graphrag/resolve"
	"github.com/poiesic/graphrag/storage"
)

// Builder writes one chunk's extraction into the graph.
type Builder struct {
	resolver *resolve.Resolver
	store    storage.GraphStore
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewBuilder creates a Builder. collector may be nil.
func NewBuilder(resolver *resolve.Resolver, store storage.GraphStore, collector *metrics.Collector, logger *slog.Logger) (*Builder, error) {
	if resolver == nil {
		return nil, ErrResolverRequired
	}
	if store == nil {
		return nil, ErrGraphStoreRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		resolver: resolver,
		store:    store,
		metrics:  collector,
		logger:   logger.With("component", "builder"),
	}, nil
}

// BuildChunk resolves every mention of result and upserts an edge for each
// relation whose endpoints both resolved. Relations with an unresolved
// endpoint are dropped. Provenance carries the chunk's document and page and
// the run id from ctx.
//
// An error means a store failure part way through; whatever was written
// before it stays.
func (b *Builder) BuildChunk(ctx context.Context, chunk core.Chunk, result *extraction.Result) (*ChunkOutcome, error) {
	outcome := &ChunkOutcome{ChunkId: chunk.Id}
	if result == nil {
		return outcome, nil
	}

	base := core.Provenance{
		DocumentId:  chunk.DocumentId,
		ChunkId:     chunk.Id,
		Page:        chunk.Page,
		ExtractedAt: time.Now().UTC(),
		RunId:       RunIDFromContext(ctx),
	}

	resolved := make([]core.ID, len(result.Mentions))
	ok := make([]bool, len(result.Mentions))
	for i, mention := range result.Mentions {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		mention.ChunkId = chunk.Id
		res, err := b.resolver.Resolve(ctx, mention, base)
		if err != nil {
			if errors.Is(err, core.ErrInvalidMention) {
				b.logger.Warn("rejecting mention", "chunk", chunk.Id, "text", mention.Text, "err", err)
				outcome.ItemsRejected++
				continue
			}
			return outcome, fmt.Errorf("resolve %q: %w", mention.Text, err)
		}
		resolved[i], ok[i] = res.Entity.Id, true
		switch {
		case res.Created:
			outcome.EntitiesCreated++
		case res.Updated:
			outcome.EntitiesUpdated++
		}
		b.metrics.EntityResolved(string(mention.Type), string(res.Method))
	}

	for _, rel := range result.Relations {
		if rel.Subject < 0 || rel.Subject >= len(ok) || rel.Object < 0 || rel.Object >= len(ok) ||
			!ok[rel.Subject] || !ok[rel.Object] {
			outcome.RelationsDropped++
			continue
		}
		prov := base
		prov.Offset = result.Mentions[rel.Subject].Offset
		prov.Confidence = rel.Confidence
		edge := &core.Edge{
			Subject:    resolved[rel.Subject],
			Label:      rel.Label,
			Object:     resolved[rel.Object],
			Confidence: rel.Confidence,
			Provenance: []core.Provenance{prov},
		}
		created, err := b.store.UpsertEdge(ctx, edge)
		if err != nil {
			return outcome, fmt.Errorf("upsert edge %s: %w", edge.Key(), err)
		}
		if created {
			outcome.EdgesCreated++
		} else {
			outcome.EdgesUpdated++
		}
		b.metrics.EdgeUpserted(string(rel.Label), created)
	}
	b.metrics.RelationsDropped(outcome.RelationsDropped)

	b.logger.Debug("built chunk",
		"chunk", chunk.Id, "entitiesCreated", outcome.EntitiesCreated,
		"edgesCreated", outcome.EdgesCreated, "relationsDropped", outcome.RelationsDropped)
	return outcome, nil
}
