package badger

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/storage"
)

// GraphStore implements storage.GraphStore for BadgerDB.
type GraphStore struct {
	backend *Backend
	seq     *badger.Sequence
}

var _ storage.GraphStore = (*GraphStore)(nil)

// NewGraphStore creates a new GraphStore.
func NewGraphStore(backend *Backend) (*GraphStore, error) {
	seq, err := backend.GetSequence(entitySeq)
	if err != nil {
		return nil, err
	}
	return &GraphStore{
		backend: backend,
		seq:     seq,
	}, nil
}

// Close releases the entity sequence lease.
func (s *GraphStore) Close() error {
	return s.seq.Release()
}

// UpsertNode merges a node keyed by id.
func (s *GraphStore) UpsertNode(ctx context.Context, up storage.NodeUpsert) (*core.CanonicalEntity, storage.NodeChange, error) {
	var result *core.CanonicalEntity
	var change storage.NodeChange
	err := s.backend.Update(func(tx *badger.Txn) error {
		change = storage.NodeChange{}
		key := makeEntityKey(up.Id)
		entity, err := readEntity(tx, key)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if entity == nil {
			seq, err := s.seq.Next()
			if err != nil {
				return err
			}
			entity = &core.CanonicalEntity{
				Id:          up.Id,
				Type:        up.Type,
				Name:        up.Name,
				Description: up.Description,
				Confidence:  up.Confidence,
				Seq:         seq + 1,
				InsertedAt:  now,
				UpdatedAt:   now,
			}
			if err := tx.Set(makeTypeKey(up.Type, entity.Seq, entity.Id), nil); err != nil {
				return err
			}
			change.Created = true
		} else if entity.Type != up.Type {
			return storage.ErrTypeConflict
		}

		for _, alias := range up.Aliases {
			added, err := s.addAlias(tx, entity, alias)
			if err != nil {
				return err
			}
			change.AliasAdded = change.AliasAdded || added
		}

		for _, block := range up.BlockKeys {
			if err := tx.Set(makeBlockKey(up.Type, block, up.Id), nil); err != nil {
				return err
			}
		}

		if up.Provenance != nil {
			var n int
			entity.Provenance, n = core.AppendProvenance(entity.Provenance, *up.Provenance)
			change.ProvenanceAdded = n > 0
		}

		raised := false
		if !change.Created && up.Confidence > entity.Confidence {
			entity.Confidence = up.Confidence
			if up.Description != "" {
				entity.Description = up.Description
			}
			raised = true
		} else if entity.Description == "" && up.Description != "" {
			entity.Description = up.Description
			raised = true
		}

		if !change.Created && !change.AliasAdded && !change.ProvenanceAdded && !raised {
			result = entity
			return nil
		}
		if !change.Created {
			entity.UpdatedAt = now
		}

		value, err := storage.MarshalEntity(entity)
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		result = entity
		return nil
	})
	if err != nil {
		return nil, storage.NodeChange{}, err
	}
	return result, change, nil
}

// addAlias records an alias on the entity and in the alias index.
// Keys already owned by another entity are left alone.
func (s *GraphStore) addAlias(tx *badger.Txn, entity *core.CanonicalEntity, alias core.Alias) (bool, error) {
	if alias.Key == "" || entity.HasAlias(alias.Key) {
		return false, nil
	}
	aliasKey := makeAliasKey(entity.Type, alias.Key)
	owner, err := readID(tx, aliasKey)
	if err != nil {
		return false, err
	}
	if owner != 0 && owner != entity.Id {
		s.backend.logger.Debug("alias owned by another entity",
			"alias", alias.Key, "entity", entity.Id, "owner", owner)
		return false, nil
	}
	if err := tx.Set(aliasKey, storage.MarshalID(entity.Id)); err != nil {
		return false, err
	}
	entity.Aliases = append(entity.Aliases, alias)
	return true, nil
}

// UpsertEdge merges an edge keyed by (subject, label, object).
func (s *GraphStore) UpsertEdge(ctx context.Context, edge *core.Edge) (bool, error) {
	created := false
	err := s.backend.Update(func(tx *badger.Txn) error {
		created = false
		for _, id := range []core.ID{edge.Subject, edge.Object} {
			if _, err := tx.Get(makeEntityKey(id)); err != nil {
				if err == badger.ErrKeyNotFound {
					return storage.ErrNotFound
				}
				return err
			}
		}

		key := makeEdgeKey(edge.Subject, edge.Label, edge.Object)
		existing, err := readEdge(tx, key)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		var merged *core.Edge
		if existing == nil {
			merged = &core.Edge{
				Subject:    edge.Subject,
				Label:      edge.Label,
				Object:     edge.Object,
				Confidence: edge.Confidence,
				InsertedAt: now,
				UpdatedAt:  now,
			}
			merged.Provenance, _ = core.AppendProvenance(nil, edge.Provenance...)
			if err := tx.Set(makeAdjacentKey(edge.Subject, key), nil); err != nil {
				return err
			}
			if err := tx.Set(makeAdjacentKey(edge.Object, key), nil); err != nil {
				return err
			}
			created = true
		} else {
			merged = existing
			var added int
			merged.Provenance, added = core.AppendProvenance(merged.Provenance, edge.Provenance...)
			if edge.Confidence <= merged.Confidence && added == 0 {
				return nil
			}
			merged.Confidence = max(merged.Confidence, edge.Confidence)
			merged.UpdatedAt = now
		}

		value, err := storage.MarshalEdge(merged)
		if err != nil {
			return err
		}
		return tx.Set(key, value)
	})
	return created, err
}

// GetEntity retrieves a single entity by ID.
func (s *GraphStore) GetEntity(ctx context.Context, id core.ID) (*core.CanonicalEntity, error) {
	var result *core.CanonicalEntity
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readEntity(tx, makeEntityKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetEntities retrieves multiple entities by their IDs.
func (s *GraphStore) GetEntities(ctx context.Context, ids ...core.ID) ([]*core.CanonicalEntity, error) {
	var result []*core.CanonicalEntity
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readEntities(tx, ids)
		return err
	}, false)
	return result, err
}

// FindByAlias finds an entity by a normalized alias of the given type.
func (s *GraphStore) FindByAlias(ctx context.Context, entityType core.EntityType, key string) (*core.CanonicalEntity, error) {
	var result *core.CanonicalEntity
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		id, err := readID(tx, makeAliasKey(entityType, key))
		if err != nil {
			return err
		}
		if id == 0 {
			return storage.ErrNotFound
		}
		result, err = readEntity(tx, makeEntityKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// FindCandidates returns entities indexed under any of the blocking keys.
func (s *GraphStore) FindCandidates(ctx context.Context, entityType core.EntityType, blockKeys []string) ([]*core.CanonicalEntity, error) {
	var result []*core.CanonicalEntity
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		seen := make(map[core.ID]bool)
		var ids []core.ID
		for _, block := range blockKeys {
			prefix := makePartialBlockKey(entityType, block)
			for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
				id := idFromSuffix(iter.Item().Key())
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}

		var err error
		result, err = readEntities(tx, ids)
		return err
	}, false)
	return result, err
}

// ScanType calls fn for every entity of a type, in creation order.
func (s *GraphStore) ScanType(ctx context.Context, entityType core.EntityType, fn func(*core.CanonicalEntity) error) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		prefix := makePartialTypeKey(entityType)
		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			entity, err := readEntity(tx, makeEntityKey(idFromSuffix(iter.Item().Key())))
			if err != nil {
				return err
			}
			if entity == nil {
				continue
			}
			if err := fn(entity); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// CountType returns the number of entities of a type.
func (s *GraphStore) CountType(ctx context.Context, entityType core.EntityType) (int, error) {
	count := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		count = countPrefix(tx, makePartialTypeKey(entityType))
		return nil
	}, false)
	return count, err
}

// SearchEntities finds entities whose name or an alias contains text.
// Exact name matches come first, then shorter names, then creation order.
func (s *GraphStore) SearchEntities(ctx context.Context, text string, entityType *core.EntityType, limit int) ([]*core.CanonicalEntity, error) {
	needle := strings.ToLower(strings.TrimSpace(text))
	var results []*core.CanonicalEntity
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entityRecordPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var entity *core.CanonicalEntity
			err := iter.Item().Value(func(val []byte) error {
				var err error
				entity, err = storage.UnmarshalEntity(val)
				return err
			})
			if err != nil {
				return err
			}
			if entityType != nil && entity.Type != *entityType {
				continue
			}
			if matchesEntity(entity, needle) {
				results = append(results, entity)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.CanonicalEntity) int {
		aExact := strings.EqualFold(a.Name, needle)
		bExact := strings.EqualFold(b.Name, needle)
		if aExact != bExact {
			if aExact {
				return -1
			}
			return 1
		}
		if len(a.Name) != len(b.Name) {
			return len(a.Name) - len(b.Name)
		}
		if a.Seq < b.Seq {
			return -1
		}
		if a.Seq > b.Seq {
			return 1
		}
		return 0
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func matchesEntity(entity *core.CanonicalEntity, needle string) bool {
	if needle == "" {
		return true
	}
	if strings.Contains(strings.ToLower(entity.Name), needle) {
		return true
	}
	for _, alias := range entity.Aliases {
		if strings.Contains(alias.Key, needle) || strings.Contains(strings.ToLower(alias.Text), needle) {
			return true
		}
	}
	return false
}

// EdgesOf returns every edge touching id.
func (s *GraphStore) EdgesOf(ctx context.Context, id core.ID) ([]*core.Edge, error) {
	var result []*core.Edge
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readAdjacentEdges(tx, id)
		return err
	}, false)
	return result, err
}

// Neighborhood walks edges breadth-first from roots, up to maxHops away.
func (s *GraphStore) Neighborhood(ctx context.Context, roots []core.ID, maxHops int) (*core.Subgraph, error) {
	sub := &core.Subgraph{Nodes: make(map[core.ID]*core.CanonicalEntity)}
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		visited := make(map[core.ID]bool)
		seenEdges := make(map[string]bool)
		var frontier []core.ID
		for _, id := range roots {
			if visited[id] {
				continue
			}
			entity, err := readEntity(tx, makeEntityKey(id))
			if err != nil {
				return err
			}
			if entity == nil {
				continue
			}
			visited[id] = true
			sub.Roots = append(sub.Roots, id)
			sub.Nodes[id] = entity
			frontier = append(frontier, id)
		}

		for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			var next []core.ID
			for _, node := range frontier {
				edges, err := readAdjacentEdges(tx, node)
				if err != nil {
					return err
				}
				for _, edge := range edges {
					if !seenEdges[edge.Key()] {
						seenEdges[edge.Key()] = true
						sub.Edges = append(sub.Edges, edge)
					}
					other := edge.Other(node)
					if visited[other] {
						continue
					}
					entity, err := readEntity(tx, makeEntityKey(other))
					if err != nil {
						return err
					}
					if entity == nil {
						continue
					}
					visited[other] = true
					sub.Nodes[other] = entity
					next = append(next, other)
				}
			}
			frontier = next
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Stats counts entities per type and edges per label.
func (s *GraphStore) Stats(ctx context.Context) (*core.GraphStats, error) {
	stats := &core.GraphStats{
		EntitiesByType: make(map[core.EntityType]int),
		EdgesByLabel:   make(map[core.RelationLabel]int),
	}
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		typePrefix := []byte(entityTypePrefix + ":")
		for iter.Seek(typePrefix); iter.ValidForPrefix(typePrefix); iter.Next() {
			stats.EntitiesByType[typeFromTypeKey(iter.Item().Key())]++
		}

		edgePrefix := []byte(edgeRecordPrefix + ":")
		for iter.Seek(edgePrefix); iter.ValidForPrefix(edgePrefix); iter.Next() {
			stats.EdgesByLabel[labelFromEdgeKey(iter.Item().Key())]++
		}
		return nil
	}, false)
	return stats, err
}

// Helper methods

func countPrefix(tx *badger.Txn, prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	count := 0
	for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
		count++
	}
	return count
}

// readEntity returns nil, nil when the key doesn't exist.
func readEntity(tx *badger.Txn, key []byte) (*core.CanonicalEntity, error) {
	return readRecord(tx, key, storage.UnmarshalEntity)
}

func readEntities(tx *badger.Txn, ids []core.ID) ([]*core.CanonicalEntity, error) {
	var result []*core.CanonicalEntity
	for _, id := range ids {
		entity, err := readEntity(tx, makeEntityKey(id))
		if err != nil {
			return nil, err
		}
		if entity != nil {
			result = append(result, entity)
		}
	}
	return result, nil
}

// readID reads an ID-valued index entry. Returns 0 if the key doesn't exist.
func readID(tx *badger.Txn, key []byte) (core.ID, error) {
	return readRecord(tx, key, storage.UnmarshalID)
}

func readEdge(tx *badger.Txn, key []byte) (*core.Edge, error) {
	return readRecord(tx, key, storage.UnmarshalEdge)
}

func readAdjacentEdges(tx *badger.Txn, node core.ID) ([]*core.Edge, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var keys [][]byte
	prefix := makePartialAdjacentKey(node)
	for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
		keys = append(keys, bytes.Clone(edgeKeyFromAdjacent(iter.Item().Key())))
	}

	edges := make([]*core.Edge, 0, len(keys))
	for _, key := range keys {
		edge, err := readEdge(tx, key)
		if err != nil {
			return nil, err
		}
		if edge != nil {
			edges = append(edges, edge)
		}
	}
	return edges, nil
}
