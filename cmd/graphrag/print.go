package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/poiesic/graphrag"
	"github.com/poiesic/graphrag/classify"
	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/reembed"
	"github.com/poiesic/graphrag/search"
)

// printMonitor reports query progress as it happens.
type printMonitor struct {
	out io.Writer
}

var _ search.QueryMonitor = (*printMonitor)(nil)

func (m *printMonitor) Start(text string) {
	fmt.Fprintf(m.out, "Query: %s\n", text)
}

func (m *printMonitor) Classified(c classify.Classification) {
	fmt.Fprintf(m.out, "Type: %s (vector %.2f, graph %.2f)", c.Type, c.VectorWeight, c.GraphWeight)
	if c.Ambiguous {
		fmt.Fprint(m.out, " ambiguous")
	}
	if len(c.Cues) > 0 {
		fmt.Fprintf(m.out, " cues=%s", strings.Join(c.Cues, ","))
	}
	fmt.Fprintln(m.out)
}

func (m *printMonitor) VectorRetrieved(results []core.RetrievalResult, err error) {
	m.source("vector", results, err)
}

func (m *printMonitor) EntitiesSpotted(entities []*core.CanonicalEntity) {
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = fmt.Sprintf("%s (%s)", e.Name, e.Type)
	}
	fmt.Fprintf(m.out, "Entities: %s\n", strings.Join(names, ", "))
}

func (m *printMonitor) GraphRetrieved(results []core.RetrievalResult, err error) {
	m.source("graph", results, err)
}

func (m *printMonitor) Expanded(added []core.RetrievalResult) {
	fmt.Fprintf(m.out, "Expansion: %d paths from vector chunks\n", len(added))
}

func (m *printMonitor) Finish(fused *core.FusedContext) {
	if fused.Partial {
		fmt.Fprintf(m.out, "Partial context, missing %v\n", fused.MissingSources)
	}
	fmt.Fprintln(m.out)
}

func (m *printMonitor) source(name string, results []core.RetrievalResult, err error) {
	if err != nil {
		fmt.Fprintf(m.out, "%s: failed: %v\n", name, err)
		return
	}
	fmt.Fprintf(m.out, "%s: %d results\n", name, len(results))
	for _, r := range results {
		fmt.Fprintf(m.out, "  %2d [%.3f] %s\n", r.Rank, r.RawScore, oneLine(r.Content, 90))
	}
}

func printContext(w io.Writer, resp *search.QueryResponse) {
	fused := resp.Context
	if fused.Empty() {
		fmt.Fprintln(w, "No context found.")
		return
	}
	for _, item := range fused.Items {
		sources := make([]string, len(item.Sources))
		for i, s := range item.Sources {
			sources[i] = string(s)
		}
		fmt.Fprintf(w, "%2d. [%.4f] (%s) %s\n", item.Rank, item.Score, strings.Join(sources, "+"), item.Result.Content)
		if cites := citations(item.Result.Provenance); cites != "" {
			fmt.Fprintf(w, "    from %s\n", cites)
		}
	}
}

func citations(provenance []core.Provenance) string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range provenance {
		if p.ChunkId == "" || seen[p.ChunkId] {
			continue
		}
		seen[p.ChunkId] = true
		out = append(out, p.ChunkId)
	}
	return strings.Join(out, ", ")
}

func printEntities(w io.Writer, entities []*core.CanonicalEntity) {
	if len(entities) == 0 {
		fmt.Fprintln(w, "No entities found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tNAME\tALIASES\tCONFIDENCE")
	for _, e := range entities {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\n", e.Id, e.Type, e.Name, strings.Join(e.AliasTexts(), "; "), e.Confidence)
	}
	tw.Flush()
}

func printDetails(w io.Writer, d *graphrag.EntityDetails) {
	e := d.Entity
	fmt.Fprintf(w, "%s (%s) id=%s confidence=%.2f\n", e.Name, e.Type, e.Id, e.Confidence)
	if e.Description != "" {
		fmt.Fprintf(w, "  %s\n", e.Description)
	}
	if len(e.Aliases) > 1 {
		fmt.Fprintf(w, "Aliases: %s\n", strings.Join(e.AliasTexts(), ", "))
	}

	fmt.Fprintf(w, "Relations (%d):\n", len(d.Related))
	for _, r := range d.Related {
		arrow := fmt.Sprintf("-[%s]->", r.Label)
		if r.Direction == graphrag.Incoming {
			arrow = fmt.Sprintf("<-[%s]-", r.Label)
		}
		fmt.Fprintf(w, "  %s %s (%s) [%.2f]\n", arrow, r.Entity.Name, r.Entity.Type, r.Confidence)
	}

	fmt.Fprintf(w, "Mentioned in (%d):\n", len(d.Provenance))
	for _, p := range d.Provenance {
		fmt.Fprintf(w, "  %s page=%d offset=%d [%.2f]\n", p.ChunkId, p.Page, p.Offset, p.Confidence)
	}
}

func printStats(w io.Writer, s *core.GraphStats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Entities\t%d\n", s.TotalEntities())
	for _, et := range slices.Sorted(maps.Keys(s.EntitiesByType)) {
		fmt.Fprintf(tw, "  %s\t%d\n", et, s.EntitiesByType[et])
	}
	fmt.Fprintf(tw, "Edges\t%d\n", s.TotalEdges())
	for _, label := range slices.Sorted(maps.Keys(s.EdgesByLabel)) {
		fmt.Fprintf(tw, "  %s\t%d\n", label, s.EdgesByLabel[label])
	}
	fmt.Fprintf(tw, "Chunks\t%d\n", s.Chunks)
	tw.Flush()
}

func printRebuild(w io.Writer, r *reembed.RebuildReport) {
	fmt.Fprintf(w, "Run %s: %d chunks, entities %d new / %d updated, edges %d new / %d updated, %d relations dropped\n",
		r.RunId, r.ChunksProcessed, r.EntitiesCreated, r.EntitiesUpdated, r.EdgesCreated, r.EdgesUpdated, r.RelationsDropped)
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  failed: %v\n", f)
	}
}

// oneLine collapses whitespace and truncates to n runes.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if runes := []rune(s); len(runes) > n {
		return string(runes[:n-1]) + "…"
	}
	return s
}
