package badger

import (
	"context"
	"sync"
	"testing"

	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upsertEntity(t *testing.T, g *GraphStore, et core.EntityType, name string) *core.CanonicalEntity {
	t.Helper()
	entity, _, err := g.UpsertNode(context.Background(), storage.NodeUpsert{
		Id:         core.EntityID(et, name),
		Type:       et,
		Name:       name,
		Aliases:    []core.Alias{{Text: name, Key: name}},
		BlockKeys:  []string{name[:1]},
		Confidence: 0.8,
	})
	require.NoError(t, err)
	return entity
}

func TestUpsertNode_CreateThenMerge(t *testing.T) {
	stores := NewMemoryStores(t)
	ctx := context.Background()
	id := core.EntityID(core.EntityTypeCrop, "wheat")

	prov := core.Provenance{DocumentId: "d", ChunkId: "c1", Offset: 0, Confidence: 0.6}
	entity, change, err := stores.Graph.UpsertNode(ctx, storage.NodeUpsert{
		Id:          id,
		Type:        core.EntityTypeCrop,
		Name:        "wheat",
		Aliases:     []core.Alias{{Text: "wheat", Key: "wheat"}},
		Description: "a cereal",
		Confidence:  0.6,
		Provenance:  &prov,
	})
	require.NoError(t, err)
	assert.True(t, change.Created)
	assert.True(t, change.AliasAdded)
	assert.True(t, change.ProvenanceAdded)
	assert.NotZero(t, entity.Seq)

	prov2 := core.Provenance{DocumentId: "d", ChunkId: "c2", Offset: 5, Confidence: 0.9}
	entity, change, err = stores.Graph.UpsertNode(ctx, storage.NodeUpsert{
		Id:          id,
		Type:        core.EntityTypeCrop,
		Name:        "ignored",
		Aliases:     []core.Alias{{Text: "Triticum", Key: "triticum"}},
		Description: "bread wheat",
		Confidence:  0.9,
		Provenance:  &prov2,
	})
	require.NoError(t, err)
	assert.False(t, change.Created)
	assert.True(t, change.AliasAdded)
	assert.Equal(t, "wheat", entity.Name)
	assert.Equal(t, "bread wheat", entity.Description)
	assert.Equal(t, 0.9, entity.Confidence)
	assert.Len(t, entity.Aliases, 2)
	assert.Len(t, entity.Provenance, 2)

	// Replaying the same provenance changes nothing.
	_, change, err = stores.Graph.UpsertNode(ctx, storage.NodeUpsert{
		Id:         id,
		Type:       core.EntityTypeCrop,
		Confidence: 0.5,
		Provenance: &prov2,
	})
	require.NoError(t, err)
	assert.Equal(t, storage.NodeChange{}, change)

	found, err := stores.Graph.FindByAlias(ctx, core.EntityTypeCrop, "triticum")
	require.NoError(t, err)
	assert.Equal(t, id, found.Id)

	_, err = stores.Graph.FindByAlias(ctx, core.EntityTypeDisease, "triticum")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpsertNode_AliasOwnedByAnotherEntity(t *testing.T) {
	stores := NewMemoryStores(t)
	ctx := context.Background()

	first := upsertEntity(t, stores.Graph, core.EntityTypeInput, "mancozeb")
	second := upsertEntity(t, stores.Graph, core.EntityTypeInput, "dithane")

	_, change, err := stores.Graph.UpsertNode(ctx, storage.NodeUpsert{
		Id:      second.Id,
		Type:    core.EntityTypeInput,
		Aliases: []core.Alias{{Text: "mancozeb", Key: "mancozeb"}},
	})
	require.NoError(t, err)
	assert.False(t, change.AliasAdded)

	owner, err := stores.Graph.FindByAlias(ctx, core.EntityTypeInput, "mancozeb")
	require.NoError(t, err)
	assert.Equal(t, first.Id, owner.Id)
}

func TestUpsertNode_TypeConflict(t *testing.T) {
	stores := NewMemoryStores(t)
	crop := upsertEntity(t, stores.Graph, core.EntityTypeCrop, "maize")

	_, _, err := stores.Graph.UpsertNode(context.Background(), storage.NodeUpsert{
		Id:   crop.Id,
		Type: core.EntityTypeInput,
		Name: "maize",
	})
	require.ErrorIs(t, err, storage.ErrTypeConflict)
}

func TestUpsertNode_Concurrent(t *testing.T) {
	stores := NewMemoryStores(t)
	ctx := context.Background()
	id := core.EntityID(core.EntityTypeDisease, "rust")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			prov := core.Provenance{DocumentId: "d", ChunkId: "c", Offset: i}
			_, _, err := stores.Graph.UpsertNode(ctx, storage.NodeUpsert{
				Id:         id,
				Type:       core.EntityTypeDisease,
				Name:       "rust",
				Aliases:    []core.Alias{{Text: "rust", Key: "rust"}},
				Confidence: 0.5,
				Provenance: &prov,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entity, err := stores.Graph.GetEntity(ctx, id)
	require.NoError(t, err)
	assert.Len(t, entity.Provenance, 8)
	assert.Len(t, entity.Aliases, 1)

	count, err := stores.Graph.CountType(ctx, core.EntityTypeDisease)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpsertEdge(t *testing.T) {
	stores := NewMemoryStores(t)
	ctx := context.Background()
	rust := upsertEntity(t, stores.Graph, core.EntityTypeDisease, "rust")
	wheat := upsertEntity(t, stores.Graph, core.EntityTypeCrop, "wheat")

	edge := &core.Edge{
		Subject:    rust.Id,
		Label:      core.RelationAffects,
		Object:     wheat.Id,
		Confidence: 0.7,
		Provenance: []core.Provenance{{DocumentId: "d", ChunkId: "c1"}},
	}
	created, err := stores.Graph.UpsertEdge(ctx, edge)
	require.NoError(t, err)
	assert.True(t, created)

	edge.Confidence = 0.9
	edge.Provenance = []core.Provenance{{DocumentId: "d", ChunkId: "c2"}}
	created, err = stores.Graph.UpsertEdge(ctx, edge)
	require.NoError(t, err)
	assert.False(t, created)

	edges, err := stores.Graph.EdgesOf(ctx, wheat.Id)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, 0.9, edges[0].Confidence)
	assert.Len(t, edges[0].Provenance, 2)

	edges, err = stores.Graph.EdgesOf(ctx, rust.Id)
	require.NoError(t, err)
	assert.Len(t, edges, 1)

	_, err = stores.Graph.UpsertEdge(ctx, &core.Edge{Subject: rust.Id, Label: core.RelationAffects, Object: core.ID(42)})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpsertEdge_SelfLoop(t *testing.T) {
	stores := NewMemoryStores(t)
	ctx := context.Background()
	wheat := upsertEntity(t, stores.Graph, core.EntityTypeCrop, "wheat")

	_, err := stores.Graph.UpsertEdge(ctx, &core.Edge{Subject: wheat.Id, Label: core.RelationRelatedTo, Object: wheat.Id})
	require.NoError(t, err)

	edges, err := stores.Graph.EdgesOf(ctx, wheat.Id)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestNeighborhood(t *testing.T) {
	stores := NewMemoryStores(t)
	ctx := context.Background()
	wheat := upsertEntity(t, stores.Graph, core.EntityTypeCrop, "wheat")
	rust := upsertEntity(t, stores.Graph, core.EntityTypeDisease, "rust")
	fungicide := upsertEntity(t, stores.Graph, core.EntityTypeInput, "fungicide x")
	farmer := upsertEntity(t, stores.Graph, core.EntityTypeTechnique, "scouting")

	for _, e := range []*core.Edge{
		{Subject: rust.Id, Label: core.RelationAffects, Object: wheat.Id, Confidence: 0.9},
		{Subject: rust.Id, Label: core.RelationTreatedBy, Object: fungicide.Id, Confidence: 0.8},
		{Subject: fungicide.Id, Label: core.RelationRelatedTo, Object: farmer.Id, Confidence: 0.5},
	} {
		_, err := stores.Graph.UpsertEdge(ctx, e)
		require.NoError(t, err)
	}

	sub, err := stores.Graph.Neighborhood(ctx, []core.ID{wheat.Id}, 1)
	require.NoError(t, err)
	assert.Equal(t, []core.ID{wheat.Id}, sub.Roots)
	assert.Len(t, sub.Nodes, 2)
	assert.Len(t, sub.Edges, 1)

	sub, err = stores.Graph.Neighborhood(ctx, []core.ID{wheat.Id}, 2)
	require.NoError(t, err)
	assert.Len(t, sub.Nodes, 3)
	assert.Contains(t, sub.Nodes, fungicide.Id)
	assert.NotContains(t, sub.Nodes, farmer.Id)

	sub, err = stores.Graph.Neighborhood(ctx, []core.ID{core.ID(99)}, 2)
	require.NoError(t, err)
	assert.Empty(t, sub.Roots)
	assert.Empty(t, sub.Nodes)
}

func TestSearchEntities(t *testing.T) {
	stores := NewMemoryStores(t)
	ctx := context.Background()
	upsertEntity(t, stores.Graph, core.EntityTypeDisease, "stem rust")
	upsertEntity(t, stores.Graph, core.EntityTypeDisease, "rust")
	upsertEntity(t, stores.Graph, core.EntityTypeCrop, "wheat")

	results, err := stores.Graph.SearchEntities(ctx, "RUST", nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "rust", results[0].Name)
	assert.Equal(t, "stem rust", results[1].Name)

	crop := core.EntityTypeCrop
	results, err = stores.Graph.SearchEntities(ctx, "rust", &crop, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = stores.Graph.SearchEntities(ctx, "rust", nil, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestScanTypeAndCandidates(t *testing.T) {
	stores := NewMemoryStores(t)
	ctx := context.Background()
	first := upsertEntity(t, stores.Graph, core.EntityTypePest, "aphid")
	second := upsertEntity(t, stores.Graph, core.EntityTypePest, "armyworm")
	upsertEntity(t, stores.Graph, core.EntityTypePest, "locust")
	upsertEntity(t, stores.Graph, core.EntityTypeCrop, "apple")

	var names []string
	err := stores.Graph.ScanType(ctx, core.EntityTypePest, func(e *core.CanonicalEntity) error {
		names = append(names, e.Name)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"aphid", "armyworm", "locust"}, names)

	candidates, err := stores.Graph.FindCandidates(ctx, core.EntityTypePest, []string{"a", "zzz"})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	ids := []core.ID{candidates[0].Id, candidates[1].Id}
	assert.ElementsMatch(t, []core.ID{first.Id, second.Id}, ids)
}

func TestStats(t *testing.T) {
	stores := NewMemoryStores(t)
	ctx := context.Background()
	rust := upsertEntity(t, stores.Graph, core.EntityTypeDisease, "rust")
	wheat := upsertEntity(t, stores.Graph, core.EntityTypeCrop, "wheat")
	upsertEntity(t, stores.Graph, core.EntityTypeCrop, "maize")
	_, err := stores.Graph.UpsertEdge(ctx, &core.Edge{Subject: rust.Id, Label: core.RelationAffects, Object: wheat.Id})
	require.NoError(t, err)

	stats, err := stores.Graph.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.EntitiesByType[core.EntityTypeCrop])
	assert.Equal(t, 1, stats.EntitiesByType[core.EntityTypeDisease])
	assert.Equal(t, 1, stats.EdgesByLabel[core.RelationAffects])
	assert.Equal(t, 3, stats.TotalEntities())
}
