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

// Source identifies which retrieval mode produced a result.
type Source string

const (
	SourceVector Source = "vector"
	SourceGraph  Source = "graph"
)

// PathStep is one traversed edge of a graph path. Forward is false when the
// edge was walked against its direction.
type PathStep struct {
	Edge     *Edge
	FromName string
	ToName   string
	Forward  bool
}

// RetrievalResult is a single ranked item from one retrieval source.
// Results are produced per query and never persisted.
type RetrievalResult struct {
	Source     Source
	Content    string
	RawScore   float64
	Rank       int // 1-based position within its source list
	Provenance []Provenance
	Key        string // dedup identity: chunk id or path signature

	// Vector results.
	ChunkId  string
	Metadata map[string]string

	// Graph results.
	Path           []PathStep
	EvidenceChunks []string
}

// FusedItem is a result placed in the final context.
type FusedItem struct {
	Result      RetrievalResult
	Score       float64
	Rank        int
	Sources     []Source
	MultiSource bool
	Fingerprint uint64
}

// FusedContext is the ranked, deduplicated context bundle returned by a query.
type FusedContext struct {
	Items          []FusedItem
	Partial        bool     // one source contributed nothing
	MissingSources []Source // sources that failed, timed out or were empty
	VectorWeight   float64  // effective weight after renormalization
	GraphWeight    float64
}

// Empty reports a successful query that found nothing.
func (c *FusedContext) Empty() bool {
	return c == nil || len(c.Items) == 0
}

// Len returns the number of items.
func (c *FusedContext) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

// Weights are per-source fusion weights. Classified weights sum to 1.
type Weights struct {
	Vector float64 `yaml:"vector"`
	Graph  float64 `yaml:"graph"`
}

// Balanced is the even split used for ambiguous queries.
var Balanced = Weights{Vector: 0.5, Graph: 0.5}

// Normalized scales w so the two weights sum to 1. Negative weights count
// as 0; if both are 0 the split is even.
func (w Weights) Normalized() Weights {
	v, g := max(w.Vector, 0), max(w.Graph, 0)
	total := v + g
	if total == 0 {
		return Balanced
	}
	return Weights{Vector: v / total, Graph: g / total}
}
