package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/storage"
)

// CheckpointStore keeps one resumable progress marker per maintenance job
// ("reembed", "rebuild") next to the data it describes.
type CheckpointStore struct {
	backend *Backend
}

var _ storage.CheckpointStore = (*CheckpointStore)(nil)

func NewCheckpointStore(backend *Backend) *CheckpointStore {
	return &CheckpointStore{backend: backend}
}

// SaveCheckpoint overwrites the marker for checkpoint.ProcessorType and
// stamps UpdatedAt.
func (s *CheckpointStore) SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error {
	checkpoint.UpdatedAt = time.Now().UTC()
	value, err := storage.MarshalCheckpoint(checkpoint)
	if err != nil {
		return err
	}
	key := makeCheckpointKey(checkpoint.ProcessorType)
	return s.backend.Update(func(tx *badger.Txn) error {
		return tx.Set(key, value)
	})
}

// LoadCheckpoint returns nil, nil when the job has no marker.
func (s *CheckpointStore) LoadCheckpoint(ctx context.Context, processorType string) (*core.Checkpoint, error) {
	var checkpoint *core.Checkpoint
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		checkpoint, err = readRecord(tx, makeCheckpointKey(processorType), storage.UnmarshalCheckpoint)
		return err
	}, false)
	return checkpoint, err
}

// ClearCheckpoint drops the marker so the next run starts from the first
// chunk. Clearing a missing marker is not an error.
func (s *CheckpointStore) ClearCheckpoint(ctx context.Context, processorType string) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		return tx.Delete(makeCheckpointKey(processorType))
	})
}
