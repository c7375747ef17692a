package badger

import (
	"bytes"
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/storage"
)

// VectorStore implements storage.VectorStore for BadgerDB.
// Nearest is an exhaustive cosine scan.
type VectorStore struct {
	backend *Backend
}

var _ storage.VectorStore = (*VectorStore)(nil)

// NewVectorStore creates a new VectorStore.
func NewVectorStore(backend *Backend) *VectorStore {
	return &VectorStore{backend: backend}
}

// Close is a no-op; the backend owns the database handle.
func (s *VectorStore) Close() error {
	return nil
}

// UpsertChunks inserts or replaces chunks by id.
func (s *VectorStore) UpsertChunks(ctx context.Context, chunks ...*core.Chunk) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, chunk := range chunks {
			key := makeChunkKey(chunk.Id)
			old, err := readChunk(tx, key)
			if err != nil {
				return err
			}
			if old != nil {
				chunk.InsertedAt = old.InsertedAt
			} else {
				chunk.InsertedAt = now
			}
			chunk.UpdatedAt = now

			value, err := storage.MarshalChunk(chunk)
			if err != nil {
				return err
			}
			if err := tx.Set(key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetChunk retrieves a single chunk by id.
func (s *VectorStore) GetChunk(ctx context.Context, id string) (*core.Chunk, error) {
	var result *core.Chunk
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readChunk(tx, makeChunkKey(id))
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

// GetChunks retrieves multiple chunks by id.
func (s *VectorStore) GetChunks(ctx context.Context, ids ...string) ([]*core.Chunk, error) {
	var result []*core.Chunk
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			chunk, err := readChunk(tx, makeChunkKey(id))
			if err != nil {
				return err
			}
			if chunk != nil {
				result = append(result, chunk)
			}
		}
		return nil
	}, false)
	return result, err
}

// Nearest ranks chunks by cosine similarity to vector.
// Equal scores are ordered by chunk id.
func (s *VectorStore) Nearest(ctx context.Context, vector []float32, k int, filter core.MetadataFilter) ([]*core.ScoredChunk, error) {
	if k <= 0 || len(vector) == 0 {
		return nil, nil
	}

	var results []*core.ScoredChunk
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkRecordPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}

			// Skip chunks without embeddings
			if len(chunk.Vector) != len(vector) {
				continue
			}
			if !filter.Matches(chunk.Metadata) {
				continue
			}

			results = append(results, &core.ScoredChunk{
				Chunk: chunk,
				Score: cosine(vector, chunk.Vector),
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.ScoredChunk) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return strings.Compare(a.Chunk.Id, b.Chunk.Id)
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// ForEachChunk walks chunks in id order. Each batch is read in its own
// transaction so fn may write to the stores.
func (s *VectorStore) ForEachChunk(ctx context.Context, after string, batchSize int, fn func([]*core.Chunk) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	cursor := after
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var batch []*core.Chunk
		err := s.backend.WithTx(func(tx *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(chunkRecordPrefix + ":")
			iter := tx.NewIterator(opts)
			defer iter.Close()

			start := makeChunkKey(cursor)
			for iter.Seek(start); iter.Valid() && len(batch) < batchSize; iter.Next() {
				item := iter.Item()
				if cursor != "" && bytes.Equal(item.Key(), start) {
					continue
				}
				var chunk *core.Chunk
				err := item.Value(func(val []byte) error {
					var err error
					chunk, err = storage.UnmarshalChunk(val)
					return err
				})
				if err != nil {
					return err
				}
				batch = append(batch, chunk)
			}
			return nil
		}, false)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := fn(batch); err != nil {
			return err
		}
		cursor = batch[len(batch)-1].Id
		if len(batch) < batchSize {
			return nil
		}
	}
}

// CountChunks returns the number of stored chunks.
func (s *VectorStore) CountChunks(ctx context.Context) (int, error) {
	count := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		count = countPrefix(tx, []byte(chunkRecordPrefix+":"))
		return nil
	}, false)
	return count, err
}

// readChunk returns nil, nil when the chunk doesn't exist.
func readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	return readRecord(tx, key, storage.UnmarshalChunk)
}

// cosine computes cosine similarity. Zero vectors score 0.
func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
