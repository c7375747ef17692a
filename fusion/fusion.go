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

// Package fusion merges ranked vector and graph results into a single
// context using weighted Reciprocal Rank Fusion.
//
// Each item scores weight / (k + rank) from its source-local rank. A graph
// path and one chunk it cites are merged and boosted; when one source is
// empty its weight moves to the other.
package fusion

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/poiesic/graphrag/core"
)

const (
	// DefaultK is the RRF smoothing constant.
	DefaultK = 60.0
	// DefaultBonus multiplies the score of items found by both sources.
	DefaultBonus = 1.5
)

// Fuser performs weighted RRF. A Fuser is safe for concurrent use.
type Fuser struct {
	k      float64
	bonus  float64
	logger *slog.Logger
}

// Option configures a Fuser.
type Option func(*Fuser)

// WithK sets the RRF constant. Non-positive values are ignored.
func WithK(k float64) Option {
	return func(f *Fuser) {
		if k > 0 {
			f.k = k
		}
	}
}

// WithBonus sets the multi-source bonus factor. Values below 1 are ignored.
func WithBonus(bonus float64) Option {
	return func(f *Fuser) {
		if bonus >= 1 {
			f.bonus = bonus
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fuser) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFuser creates a Fuser.
func NewFuser(opts ...Option) *Fuser {
	f := &Fuser{
		k:      DefaultK,
		bonus:  DefaultBonus,
		logger: slog.Default().With("component", "fusion"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// K returns the RRF constant.
func (f *Fuser) K() float64 {
	return f.k
}

// candidate is one item moving through the fusion stages.
type candidate struct {
	result  core.RetrievalResult
	score   float64
	sources []core.Source
	multi   bool
}

// Fuse merges the two ranked lists and returns at most n items (n <= 0 keeps
// everything). Input slices are not modified.
func (f *Fuser) Fuse(vector, graph []core.RetrievalResult, w core.Weights, n int) *core.FusedContext {
	vector = dedupeByKey(vector)
	graph = dedupeByKey(graph)

	out := &core.FusedContext{}
	weights := w.Normalized()
	switch {
	case len(vector) == 0 && len(graph) == 0:
		out.MissingSources = []core.Source{core.SourceVector, core.SourceGraph}
		weights = core.Weights{}
	case len(vector) == 0:
		out.Partial = true
		out.MissingSources = []core.Source{core.SourceVector}
		weights = core.Weights{Graph: 1}
	case len(graph) == 0:
		out.Partial = true
		out.MissingSources = []core.Source{core.SourceGraph}
		weights = core.Weights{Vector: 1}
	}
	out.VectorWeight = weights.Vector
	out.GraphWeight = weights.Graph

	vecCands := f.score(vector, core.SourceVector, weights.Vector)
	graphCands := f.score(graph, core.SourceGraph, weights.Graph)
	merged := f.mergeAcrossSources(vecCands, graphCands)

	slices.SortStableFunc(merged, compareCandidates)
	merged = dropDuplicateContent(merged)

	if n > 0 && len(merged) > n {
		merged = merged[:n]
	}

	out.Items = make([]core.FusedItem, len(merged))
	for i, c := range merged {
		out.Items[i] = core.FusedItem{
			Result:      c.result,
			Score:       c.score,
			Rank:        i + 1,
			Sources:     c.sources,
			MultiSource: c.multi,
			Fingerprint: Fingerprint(c.result.Content),
		}
	}

	f.logger.Debug("fused results",
		"vector", len(vector), "graph", len(graph), "items", len(out.Items),
		"partial", out.Partial, "vectorWeight", out.VectorWeight, "graphWeight", out.GraphWeight)
	return out
}

// RRF is the reciprocal rank score of a 1-based rank.
func (f *Fuser) RRF(rank int) float64 {
	return 1 / (float64(rank) + f.k)
}

func (f *Fuser) score(results []core.RetrievalResult, source core.Source, weight float64) []*candidate {
	cands := make([]*candidate, len(results))
	for i, r := range results {
		rank := r.Rank
		if rank <= 0 {
			rank = i + 1
			r.Rank = rank
		}
		r.Source = source
		cands[i] = &candidate{
			result:  r,
			score:   weight * f.RRF(rank),
			sources: []core.Source{source},
		}
	}
	return cands
}

// mergeAcrossSources pairs each graph item with at most one vector item:
// the best-scored chunk among its evidence that no earlier path claimed.
// The pair keeps the higher-scored instance, or the chunk on a tie, and its
// score is boosted. Other chunks the path cites stay as items of their own.
func (f *Fuser) mergeAcrossSources(vector, graph []*candidate) []*candidate {
	byChunk := make(map[string]*candidate, len(vector))
	for _, v := range vector {
		if v.result.ChunkId != "" {
			byChunk[v.result.ChunkId] = v
		}
	}

	consumed := make(map[*candidate]bool)
	out := make([]*candidate, 0, len(vector)+len(graph))
	for _, g := range graph {
		var match *candidate
		for _, chunkID := range g.result.EvidenceChunks {
			v, ok := byChunk[chunkID]
			if !ok || consumed[v] {
				continue
			}
			if match == nil || v.score > match.score {
				match = v
			}
		}
		if match == nil {
			out = append(out, g)
			continue
		}
		consumed[match] = true

		rep := match
		if g.score > match.score {
			rep = g
		}
		out = append(out, &candidate{
			result:  rep.result,
			score:   rep.score * f.bonus,
			sources: []core.Source{core.SourceVector, core.SourceGraph},
			multi:   true,
		})
	}
	for _, v := range vector {
		if !consumed[v] {
			out = append(out, v)
		}
	}
	return out
}

func compareCandidates(a, b *candidate) int {
	switch {
	case a.score > b.score:
		return -1
	case a.score < b.score:
		return 1
	}
	if a.result.Rank != b.result.Rank {
		return a.result.Rank - b.result.Rank
	}
	return strings.Compare(a.result.Key, b.result.Key)
}

// dedupeByKey keeps the best-ranked result per key.
func dedupeByKey(results []core.RetrievalResult) []core.RetrievalResult {
	if len(results) == 0 {
		return nil
	}
	best := make(map[string]int, len(results))
	out := make([]core.RetrievalResult, 0, len(results))
	for i, r := range results {
		if r.Rank <= 0 {
			r.Rank = i + 1
		}
		key := resultKey(r)
		if j, ok := best[key]; ok {
			if r.Rank < out[j].Rank {
				out[j] = r
			}
			continue
		}
		best[key] = len(out)
		out = append(out, r)
	}
	return out
}

func resultKey(r core.RetrievalResult) string {
	switch {
	case r.Key != "":
		return r.Key
	case r.ChunkId != "":
		return r.ChunkId
	default:
		return "fp:" + strings.TrimSpace(r.Content)
	}
}

// dropDuplicateContent keeps the first of any items with identical content.
// Input must already be sorted.
func dropDuplicateContent(cands []*candidate) []*candidate {
	seen := make(map[uint64]bool, len(cands))
	out := cands[:0]
	for _, c := range cands {
		fp := Fingerprint(c.result.Content)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, c)
	}
	return out
}

// Fingerprint hashes content after case folding and whitespace collapse.
func Fingerprint(content string) uint64 {
	return xxhash.Sum64String(strings.ToLower(strings.Join(strings.Fields(content), " ")))
}
