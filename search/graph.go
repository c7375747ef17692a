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

package search

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/storage"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxHops bounds path length during traversal.
	DefaultMaxHops = 2

	defaultTraversalConcurrency = 4
)

// GraphRetriever answers queries with paths through the knowledge graph that
// start at entities mentioned in the query.
type GraphRetriever struct {
	store       storage.GraphStore
	spotter     Spotter
	maxHops     int
	concurrency int
	logger      *slog.Logger
}

// GraphOption configures a GraphRetriever.
type GraphOption func(*GraphRetriever)

// WithMaxHops sets the longest path the retriever emits.
func WithMaxHops(hops int) GraphOption {
	return func(r *GraphRetriever) {
		if hops > 0 {
			r.maxHops = hops
		}
	}
}

// WithTraversalConcurrency bounds how many roots are expanded at once.
func WithTraversalConcurrency(n int) GraphOption {
	return func(r *GraphRetriever) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithGraphLogger sets a custom logger.
func WithGraphLogger(logger *slog.Logger) GraphOption {
	return func(r *GraphRetriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewGraphRetriever creates a GraphRetriever that finds its roots with spotter.
func NewGraphRetriever(store storage.GraphStore, spotter Spotter, opts ...GraphOption) (*GraphRetriever, error) {
	if store == nil {
		return nil, ErrGraphStoreRequired
	}
	if spotter == nil {
		return nil, ErrSpotterRequired
	}
	r := &GraphRetriever{
		store:       store,
		spotter:     spotter,
		maxHops:     DefaultMaxHops,
		concurrency: defaultTraversalConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "graph-retriever")
	return r, nil
}

// MaxHops returns the configured traversal depth.
func (r *GraphRetriever) MaxHops() int {
	return r.maxHops
}

// Retrieve returns up to k paths rooted at entities spotted in text.
// Finding no entity is not an error.
func (r *GraphRetriever) Retrieve(ctx context.Context, text string, k int) ([]core.RetrievalResult, error) {
	results, _, err := r.retrieve(ctx, text, k)
	return results, err
}

func (r *GraphRetriever) retrieve(ctx context.Context, text string, k int) ([]core.RetrievalResult, []*core.CanonicalEntity, error) {
	if k <= 0 {
		return nil, nil, nil
	}
	entities, err := r.spotter.Spot(ctx, text)
	if err != nil {
		return nil, nil, serviceErr(err)
	}
	if len(entities) == 0 {
		r.logger.Debug("no entities spotted in query")
		return nil, nil, nil
	}
	results, err := r.fromRoots(ctx, entities, k)
	return results, entities, err
}

// Expand spots entities in each text and returns their paths, skipping any
// whose key is in exclude.
func (r *GraphRetriever) Expand(ctx context.Context, texts []string, k int, exclude map[string]bool) ([]core.RetrievalResult, error) {
	if k <= 0 {
		return nil, nil
	}
	seen := make(map[core.ID]bool)
	var roots []*core.CanonicalEntity
	for _, text := range texts {
		entities, err := r.spotter.Spot(ctx, text)
		if err != nil {
			return nil, serviceErr(err)
		}
		for _, e := range entities {
			if !seen[e.Id] {
				seen[e.Id] = true
				roots = append(roots, e)
			}
		}
	}
	if len(roots) == 0 {
		return nil, nil
	}
	paths, err := r.fromRoots(ctx, roots, 0)
	if err != nil {
		return nil, err
	}
	var out []core.RetrievalResult
	for _, p := range paths {
		if exclude[p.Key] {
			continue
		}
		out = append(out, p)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// fromRoots traverses from every root concurrently and ranks the distinct
// paths found. k <= 0 keeps every path.
func (r *GraphRetriever) fromRoots(ctx context.Context, roots []*core.CanonicalEntity, k int) ([]core.RetrievalResult, error) {
	found := make([][]core.RetrievalResult, len(roots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, root := range roots {
		g.Go(func() error {
			sub, err := r.store.Neighborhood(gctx, []core.ID{root.Id}, r.maxHops)
			if err != nil {
				return err
			}
			found[i] = enumeratePaths(sub, root.Id, r.maxHops)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.Error("error traversing graph", "err", err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, serviceErr(err)
	}

	best := make(map[string]core.RetrievalResult)
	for _, paths := range found {
		for _, p := range paths {
			if old, ok := best[p.Key]; !ok || p.RawScore > old.RawScore {
				best[p.Key] = p
			}
		}
	}
	results := make([]core.RetrievalResult, 0, len(best))
	for _, p := range best {
		results = append(results, p)
	}
	slices.SortFunc(results, func(a, b core.RetrievalResult) int {
		if c := cmp.Compare(b.RawScore, a.RawScore); c != 0 {
			return c
		}
		if c := cmp.Compare(len(a.Path), len(b.Path)); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	r.logger.Debug("graph retrieval", "roots", len(roots), "paths", len(results))
	return results, nil
}

// enumeratePaths walks every simple path of 1..maxHops edges leaving root,
// ignoring edge direction.
func enumeratePaths(sub *core.Subgraph, root core.ID, maxHops int) []core.RetrievalResult {
	if sub == nil || sub.Nodes[root] == nil {
		return nil
	}
	adjacent := make(map[core.ID][]*core.Edge)
	for _, e := range sub.Edges {
		if sub.Nodes[e.Subject] == nil || sub.Nodes[e.Object] == nil {
			continue
		}
		adjacent[e.Subject] = append(adjacent[e.Subject], e)
		if e.Object != e.Subject {
			adjacent[e.Object] = append(adjacent[e.Object], e)
		}
	}

	var out []core.RetrievalResult
	visited := map[core.ID]bool{root: true}
	var steps []core.PathStep

	var walk func(node core.ID)
	walk = func(node core.ID) {
		if len(steps) == maxHops {
			return
		}
		for _, e := range adjacent[node] {
			next := e.Other(node)
			if visited[next] {
				continue
			}
			steps = append(steps, core.PathStep{
				Edge:     e,
				FromName: sub.Nodes[node].Name,
				ToName:   sub.Nodes[next].Name,
				Forward:  e.Subject == node,
			})
			out = append(out, pathResult(slices.Clone(steps)))

			visited[next] = true
			walk(next)
			visited[next] = false
			steps = steps[:len(steps)-1]
		}
	}
	walk(root)
	return out
}

// pathResult turns a path into a graph retrieval result.
func pathResult(steps []core.PathStep) core.RetrievalResult {
	score := 1.0
	var provenance []core.Provenance
	var evidence []string
	seenChunk := make(map[string]bool)
	for _, s := range steps {
		score *= s.Edge.Confidence
		provenance, _ = core.AppendProvenance(provenance, s.Edge.Provenance...)
		for _, p := range s.Edge.Provenance {
			if p.ChunkId != "" && !seenChunk[p.ChunkId] {
				seenChunk[p.ChunkId] = true
				evidence = append(evidence, p.ChunkId)
			}
		}
	}
	score /= float64(1 + len(steps))

	return core.RetrievalResult{
		Source:         core.SourceGraph,
		Content:        RenderPath(steps),
		RawScore:       score,
		Key:            PathSignature(steps),
		Path:           steps,
		Provenance:     provenance,
		EvidenceChunks: evidence,
	}
}

// RenderPath formats a path as "wheat <-[AFFECTS]- rust -[TREATED_BY]-> fungicide X".
func RenderPath(steps []core.PathStep) string {
	if len(steps) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(steps[0].FromName)
	for _, s := range steps {
		if s.Forward {
			b.WriteString(" -[" + string(s.Edge.Label) + "]-> ")
		} else {
			b.WriteString(" <-[" + string(s.Edge.Label) + "]- ")
		}
		b.WriteString(s.ToName)
	}
	return b.String()
}

// PathSignature identifies a path by its edges. A path and its reverse share
// a signature.
func PathSignature(steps []core.PathStep) string {
	keys := make([]string, len(steps))
	for i, s := range steps {
		keys[i] = s.Edge.Key()
	}
	forward := strings.Join(keys, "|")
	slices.Reverse(keys)
	backward := strings.Join(keys, "|")
	return min(forward, backward)
}
