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

package core

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ID is a unique identifier for canonical entities.
// It is generated using content-based hashing.
type ID uint64

// String renders the ID in decimal form.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses a decimal ID.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return ID(v), nil
}

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// EntityID derives the id of a canonical entity from its type and normalized name.
func EntityID(entityType EntityType, key string) ID {
	return IDFromContent("(" + string(entityType) + "," + key + ")")
}

// Chunk is a unit of source text. Chunks are the grain of ingestion,
// provenance and vector retrieval.
type Chunk struct {
	Id         string
	DocumentId string
	Text       string
	Page       int
	Offset     int
	Metadata   map[string]string
	Vector     []float32 // Embedding vector (populated during ingestion)
	InsertedAt time.Time
	UpdatedAt  time.Time
}

// MetadataFilter restricts vector retrieval to chunks whose metadata holds
// every listed key with the given value.
type MetadataFilter map[string]string

// Matches reports whether the metadata satisfies the filter.
func (f MetadataFilter) Matches(metadata map[string]string) bool {
	for k, v := range f {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// ScoredChunk is a nearest-neighbor hit.
type ScoredChunk struct {
	Chunk *Chunk
	Score float32
}

// EntityMention is a typed span produced by extraction. It is consumed once
// by the resolver and never persisted.
type EntityMention struct {
	Text        string
	Type        EntityType
	ChunkId     string
	Confidence  float64
	Offset      int
	Description string
}

// Provenance ties a fact back to the chunk it was extracted from.
type Provenance struct {
	DocumentId  string
	ChunkId     string
	Page        int
	Offset      int
	Confidence  float64
	ExtractedAt time.Time
	RunId       string
}

// Key identifies the source location of a provenance record. Two records
// with the same key describe the same evidence.
func (p Provenance) Key() string {
	return p.DocumentId + "|" + p.ChunkId + "|" + strconv.Itoa(p.Offset)
}

// AppendProvenance appends records whose key is not already present and
// reports how many were added.
func AppendProvenance(list []Provenance, records ...Provenance) ([]Provenance, int) {
	added := 0
	for _, rec := range records {
		if hasProvenance(list, rec.Key()) {
			continue
		}
		list = append(list, rec)
		added++
	}
	return list, added
}

func hasProvenance(list []Provenance, key string) bool {
	for _, p := range list {
		if p.Key() == key {
			return true
		}
	}
	return false
}

// Alias is a known surface form of an entity.
type Alias struct {
	Text string // literal text as first seen
	Key  string // normalized form used for matching
}

// CanonicalEntity is the deduplicated identity of one real-world referent.
type CanonicalEntity struct {
	Id          ID
	Type        EntityType
	Name        string
	Description string
	Aliases     []Alias
	Provenance  []Provenance
	Confidence  float64 // highest confidence seen across mentions
	Seq         uint64  // creation order, used for deterministic tie-breaks
	InsertedAt  time.Time
	UpdatedAt   time.Time
}

// HasAlias reports whether the entity already knows the normalized key.
func (e *CanonicalEntity) HasAlias(key string) bool {
	for _, a := range e.Aliases {
		if a.Key == key {
			return true
		}
	}
	return false
}

// AliasTexts returns the literal alias texts.
func (e *CanonicalEntity) AliasTexts() []string {
	out := make([]string, len(e.Aliases))
	for i, a := range e.Aliases {
		out[i] = a.Text
	}
	return out
}

// RelationCandidate is a relation between two resolved entities that has not
// yet been written to the graph.
type RelationCandidate struct {
	Subject    ID
	Label      RelationLabel
	Object     ID
	Confidence float64
	Provenance Provenance
}

// Edge is a directed, labeled relation stored in the graph.
type Edge struct {
	Subject    ID
	Label      RelationLabel
	Object     ID
	Confidence float64
	Provenance []Provenance
	InsertedAt time.Time
	UpdatedAt  time.Time
}

// Key identifies the (subject, label, object) triple.
func (e *Edge) Key() string {
	return e.Subject.String() + "-" + string(e.Label) + "-" + e.Object.String()
}

// Other returns the endpoint opposite to id.
func (e *Edge) Other(id ID) ID {
	if e.Subject == id {
		return e.Object
	}
	return e.Subject
}

// Subgraph is the result of a bounded-hop neighborhood query.
type Subgraph struct {
	Roots []ID
	Nodes map[ID]*CanonicalEntity
	Edges []*Edge
}

// GraphStats summarizes the contents of the stores.
type GraphStats struct {
	EntitiesByType map[EntityType]int
	EdgesByLabel   map[RelationLabel]int
	Chunks         int
}

// TotalEntities sums entity counts across types.
func (s *GraphStats) TotalEntities() int {
	total := 0
	for _, n := range s.EntitiesByType {
		total += n
	}
	return total
}

// TotalEdges sums edge counts across labels.
func (s *GraphStats) TotalEdges() int {
	total := 0
	for _, n := range s.EdgesByLabel {
		total += n
	}
	return total
}

// Checkpoint tracks processing progress for resumable maintenance runs.
type Checkpoint struct {
	ProcessorType string
	LastChunkId   string
	Processed     int
	UpdatedAt     time.Time
}
