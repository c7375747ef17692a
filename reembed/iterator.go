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

package reembed

import (
	"context"
	"fmt"

	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/storage"
)

const (
	// DefaultBatchSize is the default number of chunks to fetch in each batch
	DefaultBatchSize = 100
)

// ChunkIterator walks every stored chunk in id order. With a checkpoint
// store it records the last chunk of each finished batch and resumes after
// it on the next run.
type ChunkIterator struct {
	store         storage.VectorStore
	checkpoints   storage.CheckpointStore
	processorType string
	batchSize     int
}

// NewChunkIterator creates a new chunk iterator. checkpoints may be nil, in
// which case every run starts from the first chunk.
func NewChunkIterator(store storage.VectorStore, checkpoints storage.CheckpointStore, processorType string, batchSize int) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ChunkIterator{
		store:         store,
		checkpoints:   checkpoints,
		processorType: processorType,
		batchSize:     batchSize,
	}
}

// Resume returns the checkpoint of an interrupted run, or nil.
func (it *ChunkIterator) Resume(ctx context.Context) (*core.Checkpoint, error) {
	if it.checkpoints == nil {
		return nil, nil
	}
	return it.checkpoints.LoadCheckpoint(ctx, it.processorType)
}

// ForEach calls fn for each batch of chunks after the checkpoint. Iteration
// stops on the first error from fn, leaving the checkpoint at the last
// completed batch. A completed walk clears the checkpoint.
func (it *ChunkIterator) ForEach(ctx context.Context, fn func([]*core.Chunk) error) error {
	checkpoint, err := it.Resume(ctx)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if checkpoint == nil {
		checkpoint = &core.Checkpoint{ProcessorType: it.processorType}
	}

	err = it.store.ForEachChunk(ctx, checkpoint.LastChunkId, it.batchSize, func(batch []*core.Chunk) error {
		if err := fn(batch); err != nil {
			return err
		}
		if it.checkpoints == nil {
			return nil
		}
		checkpoint.LastChunkId = batch[len(batch)-1].Id
		checkpoint.Processed += len(batch)
		if err := it.checkpoints.SaveCheckpoint(ctx, checkpoint); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if it.checkpoints != nil {
		return it.checkpoints.ClearCheckpoint(ctx, it.processorType)
	}
	return nil
}
