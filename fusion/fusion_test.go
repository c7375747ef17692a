package fusion

import (
	"fmt"
	"testing"

	"github.com/poiesic/graphrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func vectorResult(chunkID string, rank int, content string) core.RetrievalResult {
	return core.RetrievalResult{
		Source:  core.SourceVector,
		Content: content,
		Rank:    rank,
		Key:     chunkID,
		ChunkId: chunkID,
	}
}

func graphResult(key string, rank int, content string, evidence ...string) core.RetrievalResult {
	return core.RetrievalResult{
		Source:         core.SourceGraph,
		Content:        content,
		Rank:           rank,
		Key:            key,
		EvidenceChunks: evidence,
	}
}

func vectorList(n int) []core.RetrievalResult {
	out := make([]core.RetrievalResult, n)
	for i := range out {
		out[i] = vectorResult(fmt.Sprintf("c%d", i+1), i+1, fmt.Sprintf("chunk text %d", i+1))
	}
	return out
}

func TestFuse_VectorOnlyIsPartial(t *testing.T) {
	f := NewFuser()

	got := f.Fuse(vectorList(5), nil, core.Weights{Vector: 0.2, Graph: 0.8}, 10)

	require.Len(t, got.Items, 5)
	assert.True(t, got.Partial)
	assert.Equal(t, []core.Source{core.SourceGraph}, got.MissingSources)
	assert.Equal(t, 1.0, got.VectorWeight)
	assert.Equal(t, 0.0, got.GraphWeight)
	for i, item := range got.Items {
		assert.Equal(t, i+1, item.Rank)
		assert.Equal(t, fmt.Sprintf("c%d", i+1), item.Result.ChunkId)
		assert.InDelta(t, 1/(60.0+float64(i+1)), item.Score, 1e-12)
		assert.Equal(t, []core.Source{core.SourceVector}, item.Sources)
		assert.False(t, item.MultiSource)
	}
}

func TestFuse_GraphOnlyIsPartial(t *testing.T) {
	got := NewFuser().Fuse(nil, []core.RetrievalResult{
		graphResult("p1", 1, "wheat -AFFECTS-> rust"),
	}, core.Weights{Vector: 0.7, Graph: 0.3}, 10)

	require.Len(t, got.Items, 1)
	assert.True(t, got.Partial)
	assert.Equal(t, []core.Source{core.SourceVector}, got.MissingSources)
	assert.Equal(t, 1.0, got.GraphWeight)
	assert.InDelta(t, 1/61.0, got.Items[0].Score, 1e-12)
}

func TestFuse_BothEmpty(t *testing.T) {
	got := NewFuser().Fuse(nil, nil, core.Balanced, 10)
	assert.True(t, got.Empty())
	assert.False(t, got.Partial)
	assert.ElementsMatch(t, []core.Source{core.SourceVector, core.SourceGraph}, got.MissingSources)
}

func TestFuse_WeightsAndOrdering(t *testing.T) {
	vector := []core.RetrievalResult{
		vectorResult("c1", 1, "rust spreads in cool weather"),
		vectorResult("c2", 2, "fungicide X label rates"),
	}
	graph := []core.RetrievalResult{
		graphResult("p1", 1, "rust -TREATED_BY-> fungicide X"),
		graphResult("p2", 2, "wheat -AFFECTS-> rust"),
	}

	got := NewFuser().Fuse(vector, graph, core.Weights{Vector: 0.2, Graph: 0.8}, 0)

	require.Len(t, got.Items, 4)
	assert.False(t, got.Partial)
	assert.Empty(t, got.MissingSources)
	keys := make([]string, len(got.Items))
	for i, item := range got.Items {
		keys[i] = item.Result.Key
	}
	assert.Equal(t, []string{"p1", "p2", "c1", "c2"}, keys)
	assert.InDelta(t, 0.8/61, got.Items[0].Score, 1e-12)
	assert.InDelta(t, 0.2/62, got.Items[3].Score, 1e-12)
}

func TestFuse_WeightsAreNormalized(t *testing.T) {
	vector := []core.RetrievalResult{vectorResult("c1", 1, "a")}
	graph := []core.RetrievalResult{graphResult("p1", 1, "b")}

	got := NewFuser().Fuse(vector, graph, core.Weights{Vector: 2, Graph: 6}, 0)
	assert.InDelta(t, 0.25, got.VectorWeight, 1e-12)
	assert.InDelta(t, 0.75, got.GraphWeight, 1e-12)
}

func TestFuse_TiesBreakOnRankThenKey(t *testing.T) {
	vector := []core.RetrievalResult{vectorResult("c9", 1, "one")}
	graph := []core.RetrievalResult{graphResult("a-path", 1, "two")}

	got := NewFuser().Fuse(vector, graph, core.Balanced, 0)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "a-path", got.Items[0].Result.Key)
	assert.Equal(t, "c9", got.Items[1].Result.Key)
}

func TestFuse_CrossSourceMerge(t *testing.T) {
	vector := []core.RetrievalResult{
		vectorResult("c1", 1, "Rust on wheat is treated with fungicide X."),
		vectorResult("c2", 2, "Unrelated chunk."),
	}
	graph := []core.RetrievalResult{
		graphResult("p1", 1, "rust -TREATED_BY-> fungicide X", "c1"),
	}

	got := NewFuser().Fuse(vector, graph, core.Weights{Vector: 0.4, Graph: 0.6}, 0)

	require.Len(t, got.Items, 2)
	merged := got.Items[0]
	assert.True(t, merged.MultiSource)
	assert.Equal(t, []core.Source{core.SourceVector, core.SourceGraph}, merged.Sources)
	// The graph instance scored higher, so it represents the pair.
	assert.Equal(t, "p1", merged.Result.Key)
	assert.InDelta(t, 0.6/61*1.5, merged.Score, 1e-12)
	assert.Equal(t, "c2", got.Items[1].Result.Key)
}

func TestFuse_CrossSourceMergeKeepsHigherInstance(t *testing.T) {
	vector := []core.RetrievalResult{vectorResult("c1", 1, "chunk")}
	graph := []core.RetrievalResult{graphResult("p1", 3, "path", "c1")}

	got := NewFuser(WithBonus(2)).Fuse(vector, graph, core.Weights{Vector: 0.7, Graph: 0.3}, 0)

	require.Len(t, got.Items, 1)
	assert.Equal(t, "c1", got.Items[0].Result.Key)
	assert.InDelta(t, 0.7/61*2, got.Items[0].Score, 1e-12)
}

func TestFuse_MultiHopPathKeepsEveryChunk(t *testing.T) {
	vector := []core.RetrievalResult{
		vectorResult("c1", 1, "Stem rust affects wheat."),
		vectorResult("c2", 2, "Control rust with fungicide X."),
	}
	graph := []core.RetrievalResult{
		graphResult("p1", 1, "wheat <-AFFECTS- rust -TREATED_BY-> fungicide X", "c1", "c2"),
	}

	t.Run("chunk wins a tie", func(t *testing.T) {
		got := NewFuser().Fuse(vector, graph, core.Balanced, 10)

		require.Len(t, got.Items, 2)
		assert.Equal(t, "c1", got.Items[0].Result.Key)
		assert.True(t, got.Items[0].MultiSource)
		assert.InDelta(t, 0.5/61*1.5, got.Items[0].Score, 1e-12)
		assert.Equal(t, "c2", got.Items[1].Result.Key)
		assert.False(t, got.Items[1].MultiSource)
		assert.Equal(t, "Control rust with fungicide X.", got.Items[1].Result.Content)
	})

	t.Run("path outscores its chunks", func(t *testing.T) {
		got := NewFuser().Fuse(vector, graph, core.Weights{Vector: 0.2, Graph: 0.8}, 10)

		require.Len(t, got.Items, 2)
		assert.Equal(t, "p1", got.Items[0].Result.Key)
		assert.True(t, got.Items[0].MultiSource)
		assert.Equal(t, "c2", got.Items[1].Result.Key)
	})
}

func TestFuse_EachChunkPairsWithOnePath(t *testing.T) {
	vector := []core.RetrievalResult{vectorResult("c1", 1, "Rust on wheat.")}
	graph := []core.RetrievalResult{
		graphResult("p1", 1, "wheat <-AFFECTS- rust", "c1"),
		graphResult("p2", 2, "rust -TREATED_BY-> fungicide X", "c1"),
	}

	got := NewFuser().Fuse(vector, graph, core.Weights{Vector: 0.4, Graph: 0.6}, 0)

	require.Len(t, got.Items, 2)
	assert.Equal(t, "p1", got.Items[0].Result.Key)
	assert.True(t, got.Items[0].MultiSource)
	assert.Equal(t, "p2", got.Items[1].Result.Key)
	assert.False(t, got.Items[1].MultiSource)
}

func TestFuse_DedupWithinList(t *testing.T) {
	vector := []core.RetrievalResult{
		vectorResult("c1", 1, "first"),
		vectorResult("c2", 2, "second"),
		vectorResult("c1", 3, "first"),
	}
	got := NewFuser().Fuse(vector, nil, core.Balanced, 0)

	require.Len(t, got.Items, 2)
	assert.Equal(t, 1, got.Items[0].Result.Rank)
	assert.Equal(t, "c1", got.Items[0].Result.Key)
}

func TestFuse_DropsDuplicateContent(t *testing.T) {
	vector := []core.RetrievalResult{
		vectorResult("c1", 1, "Rust  affects WHEAT"),
		vectorResult("c2", 2, "rust affects wheat"),
		vectorResult("c3", 3, "something else"),
	}
	got := NewFuser().Fuse(vector, nil, core.Balanced, 0)

	require.Len(t, got.Items, 2)
	assert.Equal(t, "c1", got.Items[0].Result.Key)
	assert.Equal(t, "c3", got.Items[1].Result.Key)
	assert.Equal(t, Fingerprint("rust affects wheat"), got.Items[0].Fingerprint)
}

func TestFuse_Truncates(t *testing.T) {
	got := NewFuser().Fuse(vectorList(8), nil, core.Balanced, 3)
	require.Len(t, got.Items, 3)
	assert.Equal(t, 3, got.Items[2].Rank)
}

func TestFuse_CustomK(t *testing.T) {
	f := NewFuser(WithK(10))
	assert.Equal(t, 10.0, f.K())
	got := f.Fuse(vectorList(1), nil, core.Balanced, 0)
	assert.InDelta(t, 1/11.0, got.Items[0].Score, 1e-12)

	assert.Equal(t, DefaultK, NewFuser(WithK(-1)).K())
}

func TestFuse_DoesNotModifyInput(t *testing.T) {
	vector := []core.RetrievalResult{{Key: "c1", ChunkId: "c1", Content: "x"}}
	NewFuser().Fuse(vector, nil, core.Balanced, 0)
	assert.Equal(t, 0, vector[0].Rank)
	assert.Equal(t, core.Source(""), vector[0].Source)
}

// drawLists builds a vector list over distinct chunks and a graph list whose
// paths cite a random subset of them as evidence.
func drawLists(t *rapid.T) ([]core.RetrievalResult, []core.RetrievalResult) {
	nv := rapid.IntRange(0, 10).Draw(t, "nv")
	ng := rapid.IntRange(0, 10).Draw(t, "ng")
	vector := make([]core.RetrievalResult, nv)
	for i := range vector {
		vector[i] = vectorResult(fmt.Sprintf("c%02d", i), i+1, fmt.Sprintf("chunk %d", i))
	}
	graph := make([]core.RetrievalResult, ng)
	for i := range graph {
		var evidence []string
		if nv > 0 {
			for range rapid.IntRange(0, 2).Draw(t, "cites") {
				evidence = append(evidence, fmt.Sprintf("c%02d", rapid.IntRange(0, nv-1).Draw(t, "evidence")))
			}
		}
		graph[i] = graphResult(fmt.Sprintf("p%02d", i), i+1, fmt.Sprintf("path %d", i), evidence...)
	}
	return vector, graph
}

func TestProperty_FusedContextIsWellFormed(t *testing.T) {
	f := NewFuser()
	rapid.Check(t, func(t *rapid.T) {
		vector, graph := drawLists(t)
		w := core.Weights{
			Vector: float64(rapid.IntRange(0, 10).Draw(t, "wv")),
			Graph:  float64(rapid.IntRange(0, 10).Draw(t, "wg")),
		}
		n := rapid.IntRange(0, 25).Draw(t, "n")

		got := f.Fuse(vector, graph, w, n)

		if n > 0 && got.Len() > n {
			t.Fatalf("%d items exceed cap %d", got.Len(), n)
		}
		if n == 0 && got.Len() < max(len(vector), len(graph)) {
			t.Fatalf("%d items from %d chunks and %d paths", got.Len(), len(vector), len(graph))
		}
		if got.Partial != ((len(vector) == 0) != (len(graph) == 0)) {
			t.Fatalf("partial=%v with %d vector and %d graph", got.Partial, len(vector), len(graph))
		}
		if len(vector)+len(graph) > 0 {
			if sum := got.VectorWeight + got.GraphWeight; sum < 0.999999 || sum > 1.000001 {
				t.Fatalf("weights sum to %v", sum)
			}
		}

		keys := make(map[string]bool)
		for i, item := range got.Items {
			if item.Rank != i+1 {
				t.Fatalf("item %d has rank %d", i, item.Rank)
			}
			if i > 0 && item.Score > got.Items[i-1].Score {
				t.Fatalf("scores not descending at %d", i)
			}
			if keys[item.Result.Key] {
				t.Fatalf("duplicate key %s", item.Result.Key)
			}
			keys[item.Result.Key] = true
			if item.Score > DefaultBonus/(DefaultK+1)+1e-12 {
				t.Fatalf("score %v above the maximum", item.Score)
			}
		}
	})
}

func TestProperty_MultiSourceNeverLowersScore(t *testing.T) {
	f := NewFuser()
	rapid.Check(t, func(t *rapid.T) {
		vector, graph := drawLists(t)
		w := core.Weights{Vector: 0.5, Graph: 0.5}
		got := f.Fuse(vector, graph, w, 0)

		for _, item := range got.Items {
			single := 0.5 * f.RRF(item.Result.Rank)
			if len(vector) == 0 || len(graph) == 0 {
				single = f.RRF(item.Result.Rank)
			}
			want := single
			if item.MultiSource {
				want = single * DefaultBonus
			}
			if diff := item.Score - want; diff > 1e-12 || diff < -1e-12 {
				t.Fatalf("item %s scored %v, want %v", item.Result.Key, item.Score, want)
			}
		}
	})
}

func TestProperty_BetterRankNeverScoresLower(t *testing.T) {
	f := NewFuser()
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 30).Draw(t, "n")
		wv := rapid.Float64Range(0.01, 1).Draw(t, "wv")
		got := f.Fuse(vectorList(n), nil, core.Weights{Vector: wv, Graph: 1 - wv}, 0)
		for i := 1; i < got.Len(); i++ {
			if got.Items[i].Result.Rank < got.Items[i-1].Result.Rank {
				t.Fatalf("rank %d placed after rank %d", got.Items[i].Result.Rank, got.Items[i-1].Result.Rank)
			}
		}
	})
}

// Raising the vector weight while the graph weight stays fixed must keep
// each source's internal order and never push a vector item below a graph
// item it already outranked.
func TestProperty_RaisingWeightIsMonotone(t *testing.T) {
	f := NewFuser()
	rapid.Check(t, func(t *rapid.T) {
		nv := rapid.IntRange(1, 10).Draw(t, "nv")
		ng := rapid.IntRange(1, 10).Draw(t, "ng")
		vector := vectorList(nv)
		graph := make([]core.RetrievalResult, ng)
		for i := range graph {
			graph[i] = graphResult(fmt.Sprintf("p%02d", i), i+1, fmt.Sprintf("path %d", i))
		}
		wg := rapid.Float64Range(0.1, 1).Draw(t, "wg")
		wv := rapid.Float64Range(0.1, 1).Draw(t, "wv")
		raised := wv + rapid.Float64Range(0.01, 1).Draw(t, "delta")

		before := positions(f.Fuse(vector, graph, core.Weights{Vector: wv, Graph: wg}, 0))
		after := positions(f.Fuse(vector, graph, core.Weights{Vector: raised, Graph: wg}, 0))

		for _, a := range vector {
			for _, b := range vector {
				if (before[a.Key] < before[b.Key]) != (after[a.Key] < after[b.Key]) {
					t.Fatalf("vector items %s and %s swapped", a.Key, b.Key)
				}
			}
			for _, g := range graph {
				if before[a.Key] < before[g.Key] && after[a.Key] > after[g.Key] {
					t.Fatalf("vector item %s fell below %s", a.Key, g.Key)
				}
			}
		}
		for _, a := range graph {
			for _, b := range graph {
				if (before[a.Key] < before[b.Key]) != (after[a.Key] < after[b.Key]) {
					t.Fatalf("graph items %s and %s swapped", a.Key, b.Key)
				}
			}
		}
	})
}

func positions(fc *core.FusedContext) map[string]int {
	out := make(map[string]int, fc.Len())
	for i, item := range fc.Items {
		out[item.Result.Key] = i
	}
	return out
}
