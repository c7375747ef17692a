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

package storage

import (
	"context"

	"github.com/poiesic/graphrag/core"
)

// NodeUpsert describes a merge into the canonical entity registry.
// The store creates the node if absent; otherwise it appends Aliases and
// Provenance when new and raises Description/Confidence only when the
// incoming confidence is higher. Existing aliases are never removed, and an
// alias key already owned by another entity of the same type is skipped.
type NodeUpsert struct {
	Id          core.ID
	Type        core.EntityType
	Name        string // used only when the node is created
	Aliases     []core.Alias
	BlockKeys   []string
	Description string
	Confidence  float64
	Provenance  *core.Provenance
}

// NodeChange reports what an upsert did.
type NodeChange struct {
	Created         bool
	AliasAdded      bool
	ProvenanceAdded bool
}

// GraphStore holds canonical entities and the edges between them.
// Every upsert is atomic with respect to concurrent upserts on the same key.
// Implementations must be thread-safe and support concurrent access.
type GraphStore interface {
	// UpsertNode merges a node keyed by id and returns its stored state.
	UpsertNode(ctx context.Context, upsert NodeUpsert) (*core.CanonicalEntity, NodeChange, error)

	// UpsertEdge merges an edge keyed by (subject, label, object).
	// Provenance is appended, confidence raised to the maximum seen.
	// Returns true when the edge did not exist before.
	UpsertEdge(ctx context.Context, edge *core.Edge) (bool, error)

	// GetEntity retrieves a single entity.
	// Returns ErrNotFound if the entity doesn't exist.
	GetEntity(ctx context.Context, id core.ID) (*core.CanonicalEntity, error)

	// GetEntities retrieves multiple entities.
	// Returns only the entities that exist (no error for missing ids).
	GetEntities(ctx context.Context, ids ...core.ID) ([]*core.CanonicalEntity, error)

	// FindByAlias finds the entity of the given type that owns a normalized alias.
	// Returns ErrNotFound if no entity owns it.
	FindByAlias(ctx context.Context, entityType core.EntityType, key string) (*core.CanonicalEntity, error)

	// FindCandidates returns entities of the given type indexed under any of
	// the blocking keys.
	FindCandidates(ctx context.Context, entityType core.EntityType, blockKeys []string) ([]*core.CanonicalEntity, error)

	// ScanType calls fn for every entity of a type, in creation order.
	ScanType(ctx context.Context, entityType core.EntityType, fn func(*core.CanonicalEntity) error) error

	// CountType returns the number of entities of a type.
	CountType(ctx context.Context, entityType core.EntityType) (int, error)

	// SearchEntities finds entities whose name or an alias contains text
	// (case-insensitive). A nil entityType searches every type.
	SearchEntities(ctx context.Context, text string, entityType *core.EntityType, limit int) ([]*core.CanonicalEntity, error)

	// EdgesOf returns every edge with id as subject or object.
	EdgesOf(ctx context.Context, id core.ID) ([]*core.Edge, error)

	// Neighborhood collects nodes and edges reachable from roots within maxHops,
	// ignoring edge direction.
	Neighborhood(ctx context.Context, roots []core.ID, maxHops int) (*core.Subgraph, error)

	// Stats counts entities per type and edges per label.
	Stats(ctx context.Context) (*core.GraphStats, error)

	// Close releases resources.
	Close() error
}

// VectorStore holds chunks and their embeddings.
// Implementations must be thread-safe and support concurrent access.
type VectorStore interface {
	// UpsertChunks inserts or replaces chunks by id.
	// Sets InsertedAt/UpdatedAt timestamps.
	UpsertChunks(ctx context.Context, chunks ...*core.Chunk) error

	// GetChunk retrieves a single chunk.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id string) (*core.Chunk, error)

	// GetChunks retrieves multiple chunks.
	// Returns only the chunks that exist (no error for missing ids).
	GetChunks(ctx context.Context, ids ...string) ([]*core.Chunk, error)

	// Nearest returns up to k chunks with embeddings ranked by cosine
	// similarity to vector, restricted to chunks matching filter.
	Nearest(ctx context.Context, vector []float32, k int, filter core.MetadataFilter) ([]*core.ScoredChunk, error)

	// ForEachChunk calls fn with batches of chunks ordered by id, starting
	// after the given id ("" starts from the beginning).
	ForEachChunk(ctx context.Context, after string, batchSize int, fn func([]*core.Chunk) error) error

	// CountChunks returns the number of stored chunks.
	CountChunks(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// CheckpointStore persists progress markers for maintenance runs.
type CheckpointStore interface {
	// SaveCheckpoint persists a checkpoint for a processor type.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for a processor type.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, processorType string) (*core.Checkpoint, error)

	// ClearCheckpoint removes the checkpoint for a processor type.
	ClearCheckpoint(ctx context.Context, processorType string) error
}
